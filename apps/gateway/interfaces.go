package main

import (
	"context"

	"github.com/mahaj/chatwire/pkg/model"
)

// PresenceStore is the shared membership record the hub mutates. Implemented
// by presence.Store; narrowed here so hub logic is testable without Redis.
type PresenceStore interface {
	AddEntry(ctx context.Context, roomID string, user model.OnlineUser) error
	RemoveEntry(ctx context.Context, roomID, userID, connID string) error
	ListEntries(ctx context.Context, roomID string) ([]model.OnlineUser, error)
	CountEntries(ctx context.Context, roomID string) (int64, error)
	HasEntry(ctx context.Context, roomID, userID, connID string) (bool, error)
	RemovePriorConnections(ctx context.Context, roomID, userID, keepConnID string) error
	RemoveFromAllRooms(ctx context.Context, userID, connID string) ([]string, error)
}

// Broadcaster publishes events to every process subscribed to a room.
type Broadcaster interface {
	Publish(ctx context.Context, roomID, event string, payload any) error
}

// Enqueuer appends message jobs to the durable pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, job model.MessageJob) error
}

// RoomSubscriber is the hub's handle on its fan-out subscription set.
type RoomSubscriber interface {
	SubscribeRoom(ctx context.Context, roomID string) error
	UnsubscribeRoom(ctx context.Context, roomID string) error
}
