package db

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/mahaj/chatwire/pkg/model"
)

// RoomStore owns the durable room entities. The realtime core only needs
// room ids for keying presence and fan-out; the rest is thin CRUD.
type RoomStore struct {
	session *Session
}

func NewRoomStore(session *Session) *RoomStore {
	return &RoomStore{session: session}
}

// Create inserts a new room with a generated id.
func (s *RoomStore) Create(name, creatorID string) (model.Room, error) {
	room := model.Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO rooms (id, name, creator_id, created_at) VALUES (?, ?, ?, ?)`
	if err := s.session.Query(query, room.ID, room.Name, creatorID, room.CreatedAt).Exec(); err != nil {
		return model.Room{}, fmt.Errorf("db: create room %q: %w", name, err)
	}
	return room, nil
}

// Lookup fetches one room, or ErrRoomNotFound.
func (s *RoomStore) Lookup(roomID string) (model.Room, error) {
	var room model.Room
	room.ID = roomID

	query := `SELECT name, created_at FROM rooms WHERE id = ?`
	err := s.session.Query(query, roomID).Scan(&room.Name, &room.CreatedAt)
	if err == gocql.ErrNotFound {
		return model.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return model.Room{}, fmt.Errorf("db: lookup room %s: %w", roomID, err)
	}
	return room, nil
}

// List returns every room, newest last. Rooms are few; a full scan is fine
// at this scale.
func (s *RoomStore) List() ([]model.Room, error) {
	iter := s.session.Query(`SELECT id, name, created_at FROM rooms`).Iter()

	rooms := []model.Room{}
	var room model.Room
	for iter.Scan(&room.ID, &room.Name, &room.CreatedAt) {
		rooms = append(rooms, room)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("db: list rooms: %w", err)
	}
	return rooms, nil
}
