package model

import "time"

// MessageUser is the sender detail embedded in a hydrated message.
type MessageUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MessageRoom is the room detail embedded in a hydrated message.
type MessageRoom struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is the fully hydrated form broadcast to clients and returned
// from history queries.
type Message struct {
	ID        int64       `json:"id"`
	Content   string      `json:"content"`
	RoomID    string      `json:"roomId"`
	UserID    string      `json:"userId"`
	StorageID string      `json:"storageId,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	User      MessageUser `json:"user"`
	Room      MessageRoom `json:"room"`
}

// Room is the durable room entity. The core only needs its id for keying
// presence and fan-out channels; name/creation time ride along for clients.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageJob is one durable unit of work in the message pipeline.
type MessageJob struct {
	Content    string    `json:"content"`
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	StorageID  string    `json:"storage_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
