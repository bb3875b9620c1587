// Package broker is the cross-process fan-out layer. Events published on
// any one process reach every process currently subscribed to the room,
// over Redis pub/sub. Nothing is persisted: a subscriber that was not
// listening at publish time never sees the event.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatwire/pkg/model"
)

// GlobalChannel carries the events every connected client receives
// irrespective of room membership (newRoom, roomNotification).
const GlobalChannel = "fanout:global"

func RoomChannel(roomID string) string {
	return "fanout:room:" + roomID
}

// Broadcaster publishes room-scoped and global events.
type Broadcaster struct {
	redis *redis.Client
}

func NewBroadcaster(rdb *redis.Client) *Broadcaster {
	return &Broadcaster{redis: rdb}
}

// Publish sends one event to every process subscribed to the room. Delivery
// is fire-once; there is no retry and no replay.
func (b *Broadcaster) Publish(ctx context.Context, roomID, event string, payload any) error {
	return b.publish(ctx, RoomChannel(roomID), event, payload)
}

// PublishGlobal sends one event to every connected client on every process.
func (b *Broadcaster) PublishGlobal(ctx context.Context, event string, payload any) error {
	return b.publish(ctx, GlobalChannel, event, payload)
}

func (b *Broadcaster) publish(ctx context.Context, channel, event string, payload any) error {
	env, err := model.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("broker: marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("broker: marshal %s envelope: %w", event, err)
	}
	if err := b.redis.Publish(ctx, channel, frame).Err(); err != nil {
		return fmt.Errorf("broker: publish %s to %s: %w", event, channel, err)
	}
	return nil
}
