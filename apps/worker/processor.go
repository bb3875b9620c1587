package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mahaj/chatwire/pkg/model"
	"github.com/mahaj/chatwire/pkg/queue"
)

const (
	// Attempts per job before the job is dead-lettered.
	maxAttempts = 3

	baseBackoff = 100 * time.Millisecond
)

// MessageStore persists hydrated messages.
type MessageStore interface {
	Persist(msg model.Message) error
}

// RoomLookup resolves the room detail used for hydration.
type RoomLookup interface {
	Lookup(roomID string) (model.Room, error)
}

// RoomViewers reports who is currently viewing a room. Backed by the shared
// presence store, injected here so the worker never reaches into a gateway's
// connection registry.
type RoomViewers interface {
	ListEntries(ctx context.Context, roomID string) ([]model.OnlineUser, error)
}

// ReadMarker records read-up-to marks. Best-effort.
type ReadMarker interface {
	MarkRead(userID, roomID string, at time.Time) error
}

// Publisher fans the processed message out.
type Publisher interface {
	Publish(ctx context.Context, roomID, event string, payload any) error
	PublishGlobal(ctx context.Context, event string, payload any) error
}

// Ledger parks dead letters and keeps the pipeline counters.
type Ledger interface {
	RecordProcessed(ctx context.Context) error
	RecordFailure(ctx context.Context) error
	PushDead(ctx context.Context, dl queue.DeadLetter) error
}

// IDGen issues message ids.
type IDGen interface {
	Generate() int64
}

// Processor executes message jobs: persist, mark viewers read, fan out.
// It is safe to run more than once for the same job; the only cost of a
// redelivery is a possible duplicate message row.
type Processor struct {
	messages MessageStore
	rooms    RoomLookup
	viewers  RoomViewers
	reads    ReadMarker
	pub      Publisher
	ledger   Ledger
	ids      IDGen
}

func NewProcessor(messages MessageStore, rooms RoomLookup, viewers RoomViewers, reads ReadMarker, pub Publisher, ledger Ledger, ids IDGen) *Processor {
	return &Processor{
		messages: messages,
		rooms:    rooms,
		viewers:  viewers,
		reads:    reads,
		pub:      pub,
		ledger:   ledger,
		ids:      ids,
	}
}

// Process runs one job to completion or dead-letter. The message id is
// generated once up front, so a retried persist overwrites the same row
// instead of duplicating it.
func (p *Processor) Process(ctx context.Context, job model.MessageJob) error {
	id := p.ids.Generate()

	var (
		msg model.Message
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		msg, err = p.attempt(job, id)
		if err == nil {
			break
		}

		log.Printf("Attempt %d/%d failed for message in room %s: %v", attempt, maxAttempts, job.RoomID, err)
		if lerr := p.ledger.RecordFailure(ctx); lerr != nil {
			log.Printf("Failed to record failure: %v", lerr)
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(baseBackoff << (attempt - 1)):
			}
		}
	}

	if err != nil {
		dl := queue.DeadLetter{
			Job:          job,
			FailedReason: err.Error(),
			AttemptsMade: maxAttempts,
			FailedAt:     time.Now().UTC(),
		}
		if derr := p.ledger.PushDead(ctx, dl); derr != nil {
			log.Printf("Failed to park dead letter for room %s: %v", job.RoomID, derr)
		}
		return fmt.Errorf("worker: job for room %s dead-lettered after %d attempts: %w", job.RoomID, maxAttempts, err)
	}

	p.markViewersRead(ctx, msg)

	// Exactly one broadcast per processed job, after the successful persist.
	if err := p.pub.Publish(ctx, msg.RoomID, model.EventNewMessage, msg); err != nil {
		log.Printf("Failed to publish newMessage for room %s: %v", msg.RoomID, err)
	}
	notification := model.RoomNotificationData{RoomID: msg.RoomID, Preview: msg.Content}
	if err := p.pub.PublishGlobal(ctx, model.EventRoomNotification, notification); err != nil {
		log.Printf("Failed to publish roomNotification for room %s: %v", msg.RoomID, err)
	}

	if err := p.ledger.RecordProcessed(ctx); err != nil {
		log.Printf("Failed to record processed job: %v", err)
	}

	log.Printf("Message %d processed for room %s", msg.ID, msg.RoomID)
	return nil
}

// attempt hydrates and persists once.
func (p *Processor) attempt(job model.MessageJob, id int64) (model.Message, error) {
	room, err := p.rooms.Lookup(job.RoomID)
	if err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		ID:        id,
		Content:   job.Content,
		RoomID:    job.RoomID,
		UserID:    job.UserID,
		StorageID: job.StorageID,
		CreatedAt: time.Now().UTC(),
		User:      model.MessageUser{ID: job.UserID, Username: job.Username},
		Room:      model.MessageRoom{ID: room.ID, Name: room.Name},
	}

	if err := p.messages.Persist(msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// markViewersRead marks everyone currently viewing the room, plus the
// sender, as read up to this message. Failures never fail the job.
func (p *Processor) markViewersRead(ctx context.Context, msg model.Message) {
	marked := map[string]bool{}

	viewers, err := p.viewers.ListEntries(ctx, msg.RoomID)
	if err != nil {
		log.Printf("Failed to list viewers of room %s: %v", msg.RoomID, err)
	} else {
		for _, v := range viewers {
			marked[v.UserID] = true
		}
	}
	marked[msg.UserID] = true

	for userID := range marked {
		if err := p.reads.MarkRead(userID, msg.RoomID, msg.CreatedAt); err != nil {
			log.Printf("Failed to mark read for %s in room %s: %v", userID, msg.RoomID, err)
		}
	}
}
