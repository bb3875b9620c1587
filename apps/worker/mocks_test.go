package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mahaj/chatwire/pkg/model"
	"github.com/mahaj/chatwire/pkg/queue"
)

var errPersist = errors.New("scylla unavailable")

// flakyMessageStore fails the first failures attempts, then succeeds.
// Rows are keyed by message id, so a retried persist with the same id
// overwrites rather than duplicates.
type flakyMessageStore struct {
	mu       sync.Mutex
	failures int
	attempts int
	rows     map[int64]model.Message
}

func newFlakyMessageStore(failures int) *flakyMessageStore {
	return &flakyMessageStore{failures: failures, rows: make(map[int64]model.Message)}
}

func (s *flakyMessageStore) Persist(msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return errPersist
	}
	s.rows[msg.ID] = msg
	return nil
}

type staticRooms struct{}

func (staticRooms) Lookup(roomID string) (model.Room, error) {
	return model.Room{ID: roomID, Name: "room-" + roomID, CreatedAt: time.Now()}, nil
}

type staticViewers struct {
	users []model.OnlineUser
}

func (v staticViewers) ListEntries(context.Context, string) ([]model.OnlineUser, error) {
	return v.users, nil
}

type recordReads struct {
	mu     sync.Mutex
	marked map[string]time.Time // userID -> last mark
	err    error
}

func newRecordReads() *recordReads {
	return &recordReads{marked: make(map[string]time.Time)}
}

func (r *recordReads) MarkRead(userID, roomID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.marked[userID] = at
	return nil
}

type published struct {
	RoomID string
	Event  string
	Global bool
}

type recordPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordPublisher) Publish(_ context.Context, roomID, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{RoomID: roomID, Event: event})
	return nil
}

func (p *recordPublisher) PublishGlobal(_ context.Context, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Event: event, Global: true})
	return nil
}

func (p *recordPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

type recordLedger struct {
	mu        sync.Mutex
	processed int
	failed    int
	dead      []queue.DeadLetter
}

func (l *recordLedger) RecordProcessed(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed++
	return nil
}

func (l *recordLedger) RecordFailure(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed++
	return nil
}

func (l *recordLedger) PushDead(_ context.Context, dl queue.DeadLetter) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dead = append(l.dead, dl)
	return nil
}

// seqIDs hands out predictable ids.
type seqIDs struct {
	mu   sync.Mutex
	next int64
}

func (g *seqIDs) Generate() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next
}
