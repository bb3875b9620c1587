package model

import "time"

// OnlineUser is one live connection's membership in one room, as stored in
// the presence store and returned in onlineUsers lists.
type OnlineUser struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	ConnID   string    `json:"connId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Valid reports whether the entry has every required field. Entries failing
// this check are treated as corrupt and scheduled for cleanup.
func (u OnlineUser) Valid() bool {
	return u.UserID != "" && u.Username != "" && u.ConnID != "" && !u.JoinedAt.IsZero()
}
