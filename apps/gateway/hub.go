package main

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mahaj/chatwire/pkg/broker"
	"github.com/mahaj/chatwire/pkg/model"
)

// Hub owns this process's slice of the system: the set of local connections,
// which rooms they are focused on, and the bridge between those connections
// and the shared presence store, pipeline, and fan-out layer.
//
// A connection focuses at most one room at a time; joining a new room
// leaves the previous one first. Several invariants (prior-connection
// collapse, disconnect cleanup) depend on that, so it is a constraint, not
// an accident.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]bool // roomID -> local clients focused on it
	clients map[*Client]bool

	presence    PresenceStore
	broadcaster Broadcaster
	queue       Enqueuer
	sub         RoomSubscriber
}

func NewHub(presence PresenceStore, broadcaster Broadcaster, queue Enqueuer, sub RoomSubscriber) *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Client]bool),
		clients:     make(map[*Client]bool),
		presence:    presence,
		broadcaster: broadcaster,
		queue:       queue,
		sub:         sub,
	}
}

// Register adds a freshly authenticated connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	log.Printf("Client registered: %s (user %s)", c.ConnID, c.Username)
}

// JoinRoom is called from the client's read loop, so joins and leaves for
// one connection never interleave.
func (h *Hub) JoinRoom(ctx context.Context, c *Client, roomID string) {
	// Duplicate join: no state change, just re-emit the list so the
	// client resynchronizes.
	if c.roomID == roomID {
		log.Printf("User %s already in room %s, ignoring duplicate join", c.Username, roomID)
		h.emitOnlineUsers(ctx, roomID)
		return
	}

	// Changing rooms: the leave must settle before the join starts, or
	// old and new presence entries could transiently coexist.
	if c.roomID != "" {
		previous := c.roomID
		h.LeaveRoom(ctx, c, previous)
		log.Printf("User %s moved from room %s to %s", c.Username, previous, roomID)
	}

	h.subscribeLocal(ctx, c, roomID)
	c.roomID = roomID

	if err := h.presence.RemovePriorConnections(ctx, roomID, c.UserID, c.ConnID); err != nil {
		log.Printf("Failed to collapse prior connections of %s in %s: %v", c.UserID, roomID, err)
		h.abortJoin(ctx, c, roomID)
		c.SendError("failed to join room")
		return
	}

	exists, err := h.presence.HasEntry(ctx, roomID, c.UserID, c.ConnID)
	if err != nil {
		log.Printf("Failed to check presence of %s in %s: %v", c.UserID, roomID, err)
		h.abortJoin(ctx, c, roomID)
		c.SendError("failed to join room")
		return
	}

	if !exists {
		entry := model.OnlineUser{
			UserID:   c.UserID,
			Username: c.Username,
			ConnID:   c.ConnID,
			JoinedAt: time.Now().UTC(),
		}
		if err := h.presence.AddEntry(ctx, roomID, entry); err != nil {
			log.Printf("Failed to add presence of %s in %s: %v", c.UserID, roomID, err)
			h.abortJoin(ctx, c, roomID)
			c.SendError("failed to join room")
			return
		}
		log.Printf("User %s entered room %s", c.Username, roomID)
	}

	h.emitOnlineCount(ctx, roomID)
	h.emitOnlineUsers(ctx, roomID)
}

// abortJoin unwinds a partially applied join. Without it a failed join would
// leave roomID set with no presence entry, and a retry of the same room would
// take the duplicate-join fast path and never insert one.
func (h *Hub) abortJoin(ctx context.Context, c *Client, roomID string) {
	h.unsubscribeLocal(ctx, c, roomID)
	if c.roomID == roomID {
		c.roomID = ""
	}
}

// LeaveRoom detaches the connection from the room and announces it.
func (h *Hub) LeaveRoom(ctx context.Context, c *Client, roomID string) {
	h.unsubscribeLocal(ctx, c, roomID)
	if c.roomID == roomID {
		c.roomID = ""
	}

	if err := h.presence.RemoveEntry(ctx, roomID, c.UserID, c.ConnID); err != nil {
		log.Printf("Failed to remove presence of %s in %s: %v", c.UserID, roomID, err)
		c.SendError("failed to leave room")
		return
	}

	h.publish(ctx, roomID, model.EventUserLeftRoom, model.UserLeftRoomData{
		Username: c.Username,
		RoomID:   roomID,
	})
	h.emitOnlineCount(ctx, roomID)
	h.emitOnlineUsers(ctx, roomID)

	log.Printf("User %s left room %s", c.Username, roomID)
}

// SendMessage enqueues the message job and returns. Persistence and the
// eventual newMessage broadcast happen in the worker; no synchronous ack
// is given to the client.
func (h *Hub) SendMessage(ctx context.Context, c *Client, data model.SendMessageData) {
	job := model.MessageJob{
		Content:    data.Content,
		RoomID:     data.RoomID,
		UserID:     c.UserID,
		Username:   c.Username,
		StorageID:  data.StorageID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.queue.Enqueue(ctx, job); err != nil {
		log.Printf("Failed to enqueue message from %s for room %s: %v", c.Username, data.RoomID, err)
	}
}

// Typing relays a typing notification. No presence mutation, no persistence.
func (h *Hub) Typing(ctx context.Context, roomID, userID string) {
	h.publish(ctx, roomID, model.EventUserIsTyping, model.UserIsTypingData{UserID: userID})
}

// Disconnect cleans up after transport-level closure. It must never panic
// for connections that failed the handshake.
func (h *Hub) Disconnect(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.UserID == "" {
		log.Printf("Anonymous connection %s disconnected", c.ConnID)
		h.drop(ctx, c)
		return
	}

	currentRoom := c.roomID
	if currentRoom != "" {
		if err := h.presence.RemoveEntry(ctx, currentRoom, c.UserID, c.ConnID); err != nil {
			log.Printf("Failed to remove presence of %s in %s on disconnect: %v", c.UserID, currentRoom, err)
		}
		h.announceLeft(ctx, c, currentRoom)
	}

	// Defensive sweep: current-room tracking and the store can drift, so
	// remove whatever membership the store still holds for this connection.
	rooms, err := h.presence.RemoveFromAllRooms(ctx, c.UserID, c.ConnID)
	if err != nil {
		log.Printf("Failed defensive presence sweep for %s: %v", c.ConnID, err)
	}
	for _, roomID := range rooms {
		if roomID == currentRoom {
			continue
		}
		h.announceLeft(ctx, c, roomID)
	}

	h.drop(ctx, c)
	log.Printf("User %s fully disconnected (conn %s)", c.Username, c.ConnID)
}

func (h *Hub) announceLeft(ctx context.Context, c *Client, roomID string) {
	h.publish(ctx, roomID, model.EventUserLeftRoom, model.UserLeftRoomData{
		Username: c.Username,
		RoomID:   roomID,
	})
	h.emitOnlineCount(ctx, roomID)
	h.emitOnlineUsers(ctx, roomID)
}

// drop removes the connection from all local maps and closes its send
// channel. Idempotent under the lock.
func (h *Hub) drop(ctx context.Context, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	for roomID, clients := range h.rooms {
		if clients[c] {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.rooms, roomID)
				h.unsubscribeChannelLocked(ctx, roomID)
			}
		}
	}
	close(c.send)
}

// subscribeLocal and its unsubscribe counterparts keep the room map and the
// fan-out subscription set in lockstep: both the membership change and the
// pub/sub call happen under h.mu, so a leave that empties a room can never
// undo the subscription of a join that repopulated it.
func (h *Hub) subscribeLocal(ctx context.Context, c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := h.rooms[roomID] == nil
	if first {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true

	if first && h.sub != nil {
		if err := h.sub.SubscribeRoom(ctx, roomID); err != nil {
			log.Printf("Failed to subscribe fan-out channel for room %s: %v", roomID, err)
		}
	}
}

func (h *Hub) unsubscribeLocal(ctx context.Context, c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
			h.unsubscribeChannelLocked(ctx, roomID)
		}
	}
}

// unsubscribeChannelLocked drops the room's fan-out subscription. The caller
// holds h.mu.
func (h *Hub) unsubscribeChannelLocked(ctx context.Context, roomID string) {
	if h.sub == nil {
		return
	}
	if err := h.sub.UnsubscribeRoom(ctx, roomID); err != nil {
		log.Printf("Failed to unsubscribe fan-out channel for room %s: %v", roomID, err)
	}
}

// emitOnlineCount publishes the room's member count. Store failures here are
// logged and swallowed; a stale count never justifies dropping a connection.
func (h *Hub) emitOnlineCount(ctx context.Context, roomID string) {
	count, err := h.presence.CountEntries(ctx, roomID)
	if err != nil {
		log.Printf("Failed to count presence for room %s: %v", roomID, err)
		return
	}
	h.publish(ctx, roomID, model.EventOnlineCount, model.OnlineCountData{RoomID: roomID, Count: count})
}

// emitOnlineUsers publishes the room's member list, same failure policy as
// emitOnlineCount.
func (h *Hub) emitOnlineUsers(ctx context.Context, roomID string) {
	users, err := h.presence.ListEntries(ctx, roomID)
	if err != nil {
		log.Printf("Failed to list presence for room %s: %v", roomID, err)
		return
	}
	h.publish(ctx, roomID, model.EventOnlineUsers, users)
}

func (h *Hub) publish(ctx context.Context, roomID, event string, payload any) {
	if err := h.broadcaster.Publish(ctx, roomID, event, payload); err != nil {
		log.Printf("Failed to publish %s for room %s: %v", event, roomID, err)
	}
}

// DeliverFanout routes one decoded fan-out event to local connections:
// room events to the room's local clients, global events to everyone.
// Slow clients whose buffers are full are dropped, as they would only
// fall further behind.
func (h *Hub) DeliverFanout(ev broker.RoomEvent) {
	frame, err := json.Marshal(ev.Envelope)
	if err != nil {
		log.Printf("Failed to marshal fan-out envelope %s: %v", ev.Envelope.Event, err)
		return
	}

	// drop closes send channels under the write lock; the read lock stays
	// held across these non-blocking sends so a close never lands mid-loop.
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if ev.RoomID != "" {
		targets = h.rooms[ev.RoomID]
	}
	for c := range targets {
		select {
		case c.send <- frame:
		default:
			log.Printf("Dropping slow client %s (user %s)", c.ConnID, c.Username)
			if c.conn != nil {
				go c.conn.Close()
			}
		}
	}
}

// RunFanout drains the subscriber's event stream into local delivery.
func (h *Hub) RunFanout(events <-chan broker.RoomEvent) {
	for ev := range events {
		h.DeliverFanout(ev)
	}
}
