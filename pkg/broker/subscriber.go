package broker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatwire/pkg/model"
)

// RoomEvent is one delivered fan-out event together with the room it was
// addressed to. RoomID is empty for global events.
type RoomEvent struct {
	RoomID   string
	Envelope model.Envelope
}

// Subscriber holds one process's subscription set: the global channel plus
// whichever room channels the process currently has connections in. The
// subscription set is a routing optimization, not membership truth; that
// lives in the presence store.
type Subscriber struct {
	pubsub *redis.PubSub
	events chan RoomEvent
}

// NewSubscriber opens the subscription on the global channel and starts
// decoding delivered frames into Events. Close the subscriber to stop.
func NewSubscriber(ctx context.Context, rdb *redis.Client) *Subscriber {
	s := &Subscriber{
		pubsub: rdb.Subscribe(ctx, GlobalChannel),
		events: make(chan RoomEvent, 256),
	}
	go s.run()
	return s
}

// Events delivers decoded fan-out events until the subscriber is closed.
func (s *Subscriber) Events() <-chan RoomEvent {
	return s.events
}

// SubscribeRoom adds the room's channel to the subscription set. Safe to
// call for an already-subscribed room.
func (s *Subscriber) SubscribeRoom(ctx context.Context, roomID string) error {
	return s.pubsub.Subscribe(ctx, RoomChannel(roomID))
}

// UnsubscribeRoom drops the room's channel from the subscription set.
func (s *Subscriber) UnsubscribeRoom(ctx context.Context, roomID string) error {
	return s.pubsub.Unsubscribe(ctx, RoomChannel(roomID))
}

func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}

func (s *Subscriber) run() {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		var env model.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("Failed to unmarshal fan-out frame on %s: %v", msg.Channel, err)
			continue
		}

		roomID := ""
		if msg.Channel != GlobalChannel {
			// Channel is "fanout:room:{id}".
			roomID = msg.Channel[len("fanout:room:"):]
		}

		s.events <- RoomEvent{RoomID: roomID, Envelope: env}
	}
}
