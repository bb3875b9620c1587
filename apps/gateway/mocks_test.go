package main

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mahaj/chatwire/pkg/model"
)

// fakePresence is an in-memory PresenceStore. Setting failAll makes every
// operation error, for store-unavailability tests.
type fakePresence struct {
	mu      sync.Mutex
	entries map[string]map[string]model.OnlineUser // roomID -> "user/conn" -> entry
	failAll bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{entries: make(map[string]map[string]model.OnlineUser)}
}

var errStoreDown = errors.New("presence store unavailable")

func key(userID, connID string) string { return userID + "/" + connID }

func (f *fakePresence) AddEntry(_ context.Context, roomID string, user model.OnlineUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	if f.entries[roomID] == nil {
		f.entries[roomID] = make(map[string]model.OnlineUser)
	}
	f.entries[roomID][key(user.UserID, user.ConnID)] = user
	return nil
}

func (f *fakePresence) RemoveEntry(_ context.Context, roomID, userID, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	delete(f.entries[roomID], key(userID, connID))
	if len(f.entries[roomID]) == 0 {
		delete(f.entries, roomID)
	}
	return nil
}

func (f *fakePresence) ListEntries(_ context.Context, roomID string) ([]model.OnlineUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	users := []model.OnlineUser{}
	for _, u := range f.entries[roomID] {
		users = append(users, u)
	}
	return users, nil
}

func (f *fakePresence) CountEntries(_ context.Context, roomID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, errStoreDown
	}
	return int64(len(f.entries[roomID])), nil
}

func (f *fakePresence) HasEntry(_ context.Context, roomID, userID, connID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errStoreDown
	}
	_, ok := f.entries[roomID][key(userID, connID)]
	return ok, nil
}

func (f *fakePresence) RemovePriorConnections(_ context.Context, roomID, userID, keepConnID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	for k, u := range f.entries[roomID] {
		if u.UserID == userID && u.ConnID != keepConnID {
			delete(f.entries[roomID], k)
		}
	}
	return nil
}

func (f *fakePresence) RemoveFromAllRooms(_ context.Context, userID, connID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	var rooms []string
	for roomID, users := range f.entries {
		if _, ok := users[key(userID, connID)]; ok {
			delete(users, key(userID, connID))
			if len(users) == 0 {
				delete(f.entries, roomID)
			}
			rooms = append(rooms, roomID)
		}
	}
	return rooms, nil
}

// roomUsers returns the current entries for assertions.
func (f *fakePresence) roomUsers(roomID string) []model.OnlineUser {
	users, _ := f.ListEntries(context.Background(), roomID)
	return users
}

// seed inserts an entry directly, bypassing the hub.
func (f *fakePresence) seed(roomID string, user model.OnlineUser) {
	_ = f.AddEntry(context.Background(), roomID, user)
}

type publishedEvent struct {
	RoomID  string
	Event   string
	Payload any
}

// recordBroadcaster records every published event.
type recordBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (b *recordBroadcaster) Publish(_ context.Context, roomID, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{RoomID: roomID, Event: event, Payload: payload})
	return nil
}

// count returns how many events of the given kind went to the room.
func (b *recordBroadcaster) count(roomID, event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.RoomID == roomID && e.Event == event {
			n++
		}
	}
	return n
}

// recordQueue records enqueued jobs.
type recordQueue struct {
	mu   sync.Mutex
	jobs []model.MessageJob
}

func (q *recordQueue) Enqueue(_ context.Context, job model.MessageJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// recordSub tracks the fan-out subscription set.
type recordSub struct {
	mu         sync.Mutex
	subscribed map[string]bool
}

func newRecordSub() *recordSub {
	return &recordSub{subscribed: make(map[string]bool)}
}

func (s *recordSub) SubscribeRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[roomID] = true
	return nil
}

func (s *recordSub) UnsubscribeRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, roomID)
	return nil
}

func newTestClient(hub *Hub, userID, username string) *Client {
	c := &Client{
		hub:      hub,
		send:     make(chan []byte, 32),
		ConnID:   uuid.NewString(),
		UserID:   userID,
		Username: username,
	}
	hub.Register(c)
	return c
}
