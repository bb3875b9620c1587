package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/chatwire/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is the per-connection context: the websocket link plus the
// authenticated identity attached at handshake time. Nothing outside the
// gateway mutates it.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	ConnID   string
	UserID   string
	Username string

	// Current room focus; at most one. Accessed only from the read loop.
	roomID string
}

// SendError pushes an error event to this client without closing it.
func (c *Client) SendError(message string) {
	env, err := model.NewEnvelope(model.EventError, model.ErrorData{Message: message})
	if err != nil {
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// readPump dispatches inbound events. Running all handlers on this one
// goroutine is what gives per-connection ordering: a join followed by a
// send from the same connection is processed join-then-send.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Read error on %s: %v", c.ConnID, err)
			}
			break
		}

		var env model.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Printf("Bad frame from %s: %v", c.ConnID, err)
			c.SendError("malformed event")
			continue
		}

		c.dispatch(env)
	}
}

func (c *Client) dispatch(env model.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch env.Event {
	case model.EventJoinRoom:
		// joinRoom carries a bare room id string.
		var roomID string
		if err := json.Unmarshal(env.Data, &roomID); err != nil || roomID == "" {
			c.SendError("joinRoom requires a room id")
			return
		}
		c.hub.JoinRoom(ctx, c, roomID)

	case model.EventLeaveRoom:
		var data model.RoomData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.RoomID == "" {
			c.SendError("leaveRoom requires a room id")
			return
		}
		c.hub.LeaveRoom(ctx, c, data.RoomID)

	case model.EventSendMessage:
		var data model.SendMessageData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.RoomID == "" || data.Content == "" {
			c.SendError("sendMessage requires content and a room id")
			return
		}
		c.hub.SendMessage(ctx, c, data)

	case model.EventUserTyping:
		var data model.TypingData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.RoomID == "" {
			return
		}
		// The sender's identity comes from auth, not the payload.
		c.hub.Typing(ctx, data.RoomID, c.UserID)

	default:
		log.Printf("Unknown event %q from %s", env.Event, c.ConnID)
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
