package model

import "encoding/json"

// Event names consumed from clients.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventUserTyping  = "userTyping"
)

// Event names emitted to clients.
const (
	EventOnlineUsers      = "onlineUsers"
	EventOnlineCount      = "onlineCount"
	EventUserLeftRoom     = "userLeftRoom"
	EventUserIsTyping     = "userIsTyping"
	EventNewMessage       = "newMessage"
	EventNewRoom          = "newRoom"
	EventRoomNotification = "roomNotification"
	EventMessageEdited    = "messageEdited"
	EventMessageDeleted   = "messageDeleted"
	EventError            = "error"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope. Marshal errors are
// returned to the caller; payloads are plain structs and should never fail.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Client payloads.

type SendMessageData struct {
	Content   string `json:"content"`
	RoomID    string `json:"roomId"`
	StorageID string `json:"storageId,omitempty"`
}

type RoomData struct {
	RoomID string `json:"roomId"`
}

type TypingData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// Server payloads.

type UserIsTypingData struct {
	UserID string `json:"userId"`
}

type UserLeftRoomData struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

type OnlineCountData struct {
	RoomID string `json:"roomId"`
	Count  int64  `json:"count"`
}

type RoomNotificationData struct {
	RoomID  string `json:"roomId"`
	Preview string `json:"preview"`
}

type NewRoomData struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID string `json:"userId"`
}

type MessageDeletedData struct {
	ID string `json:"id"`
}

type ErrorData struct {
	Message string `json:"message"`
}
