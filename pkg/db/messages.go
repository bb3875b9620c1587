package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/chatwire/pkg/model"
)

var ErrRoomNotFound = errors.New("room not found")

// MessageStore persists and reads chat messages.
type MessageStore struct {
	session *Session
}

func NewMessageStore(session *Session) *MessageStore {
	return &MessageStore{session: session}
}

// Persist writes the message row. The caller supplies the id; writing the
// same id twice overwrites the same row, so a retried persist is safe.
func (s *MessageStore) Persist(msg model.Message) error {
	query := `INSERT INTO messages (room_id, id, user_id, username, content, storage_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	err := s.session.Query(query,
		msg.RoomID, msg.ID, msg.UserID, msg.User.Username, msg.Content, msg.StorageID, msg.CreatedAt,
	).Exec()
	if err != nil {
		return fmt.Errorf("db: persist message %d: %w", msg.ID, err)
	}
	return nil
}

// Get reads a single message by room and id.
func (s *MessageStore) Get(roomID string, id int64) (model.Message, error) {
	var msg model.Message
	msg.RoomID = roomID
	msg.ID = id

	query := `SELECT user_id, username, content, storage_id, created_at FROM messages WHERE room_id = ? AND id = ?`
	var username string
	err := s.session.Query(query, roomID, id).Scan(
		&msg.UserID, &username, &msg.Content, &msg.StorageID, &msg.CreatedAt,
	)
	if err != nil {
		return model.Message{}, fmt.Errorf("db: get message %d: %w", id, err)
	}
	msg.User = model.MessageUser{ID: msg.UserID, Username: username}
	return msg, nil
}

// Edit replaces the content of an existing message.
func (s *MessageStore) Edit(roomID string, id int64, content string) error {
	query := `UPDATE messages SET content = ? WHERE room_id = ? AND id = ?`
	if err := s.session.Query(query, content, roomID, id).Exec(); err != nil {
		return fmt.Errorf("db: edit message %d: %w", id, err)
	}
	return nil
}

// Delete removes a message row.
func (s *MessageStore) Delete(roomID string, id int64) error {
	query := `DELETE FROM messages WHERE room_id = ? AND id = ?`
	if err := s.session.Query(query, roomID, id).Exec(); err != nil {
		return fmt.Errorf("db: delete message %d: %w", id, err)
	}
	return nil
}

// History pages through a room's messages newest-first. A zero cursor starts
// from the latest; otherwise only messages older than the cursor id return.
func (s *MessageStore) History(roomID string, limit int, cursor int64) ([]model.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var iter *gocql.Iter
	if cursor > 0 {
		query := `SELECT id, user_id, username, content, storage_id, created_at FROM messages WHERE room_id = ? AND id < ? LIMIT ?`
		iter = s.session.Query(query, roomID, cursor, limit).Iter()
	} else {
		query := `SELECT id, user_id, username, content, storage_id, created_at FROM messages WHERE room_id = ? LIMIT ?`
		iter = s.session.Query(query, roomID, limit).Iter()
	}

	messages := []model.Message{}
	var (
		id        int64
		userID    string
		username  string
		content   string
		storageID string
		createdAt time.Time
	)
	for iter.Scan(&id, &userID, &username, &content, &storageID, &createdAt) {
		messages = append(messages, model.Message{
			ID:        id,
			Content:   content,
			RoomID:    roomID,
			UserID:    userID,
			StorageID: storageID,
			CreatedAt: createdAt,
			User:      model.MessageUser{ID: userID, Username: username},
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("db: history for room %s: %w", roomID, err)
	}
	return messages, nil
}
