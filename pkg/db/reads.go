package db

import (
	"fmt"
	"time"
)

// ReadStore tracks each user's last-read timestamp per room. This backs the
// unread badges; it is best-effort and never on the critical path.
type ReadStore struct {
	session *Session
}

func NewReadStore(session *Session) *ReadStore {
	return &ReadStore{session: session}
}

// MarkRead upserts the user's last-read mark for the room.
func (s *ReadStore) MarkRead(userID, roomID string, at time.Time) error {
	query := `INSERT INTO room_reads (user_id, room_id, last_read) VALUES (?, ?, ?)`
	if err := s.session.Query(query, userID, roomID, at).Exec(); err != nil {
		return fmt.Errorf("db: mark read %s/%s: %w", userID, roomID, err)
	}
	return nil
}

// LastRead returns the user's last-read mark, zero if never marked.
func (s *ReadStore) LastRead(userID, roomID string) (time.Time, error) {
	var at time.Time
	query := `SELECT last_read FROM room_reads WHERE user_id = ? AND room_id = ?`
	if err := s.session.Query(query, userID, roomID).Scan(&at); err != nil {
		return time.Time{}, nil
	}
	return at, nil
}
