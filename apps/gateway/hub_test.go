package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chatwire/pkg/broker"
	"github.com/mahaj/chatwire/pkg/model"
)

func newTestHub() (*Hub, *fakePresence, *recordBroadcaster, *recordQueue, *recordSub) {
	presence := newFakePresence()
	broadcaster := &recordBroadcaster{}
	queue := &recordQueue{}
	sub := newRecordSub()
	return NewHub(presence, broadcaster, queue, sub), presence, broadcaster, queue, sub
}

func TestJoinRoomIdempotent(t *testing.T) {
	hub, presence, broadcaster, _, _ := newTestHub()
	ctx := context.Background()
	alice := newTestClient(hub, "u1", "alice")

	hub.JoinRoom(ctx, alice, "r1")
	hub.JoinRoom(ctx, alice, "r1")

	users := presence.roomUsers("r1")
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)
	assert.Equal(t, alice.ConnID, users[0].ConnID)

	// One count update from the real join; the duplicate join only
	// re-emits the user list.
	assert.Equal(t, 1, broadcaster.count("r1", model.EventOnlineCount))
	assert.Equal(t, 2, broadcaster.count("r1", model.EventOnlineUsers))
}

func TestJoinRoomSwitchesRooms(t *testing.T) {
	hub, presence, broadcaster, _, sub := newTestHub()
	ctx := context.Background()
	alice := newTestClient(hub, "u1", "alice")

	hub.JoinRoom(ctx, alice, "roomA")
	hub.JoinRoom(ctx, alice, "roomB")

	assert.Empty(t, presence.roomUsers("roomA"))
	require.Len(t, presence.roomUsers("roomB"), 1)
	assert.Equal(t, "roomB", alice.roomID)

	// The leave was announced to room A before the join settled in B.
	assert.Equal(t, 1, broadcaster.count("roomA", model.EventUserLeftRoom))

	assert.False(t, sub.subscribed["roomA"])
	assert.True(t, sub.subscribed["roomB"])
}

func TestStaleConnectionCollapse(t *testing.T) {
	hub, presence, _, _, _ := newTestHub()
	ctx := context.Background()

	c1 := newTestClient(hub, "u1", "alice")
	c2 := newTestClient(hub, "u1", "alice")

	hub.JoinRoom(ctx, c1, "r1")
	// c2 joins the same room without c1 disconnecting (tab refresh).
	hub.JoinRoom(ctx, c2, "r1")

	users := presence.roomUsers("r1")
	require.Len(t, users, 1)
	assert.Equal(t, c2.ConnID, users[0].ConnID)
}

func TestDisconnectCleansAllRooms(t *testing.T) {
	hub, presence, broadcaster, _, _ := newTestHub()
	ctx := context.Background()
	alice := newTestClient(hub, "u1", "alice")

	hub.JoinRoom(ctx, alice, "roomA")
	// Simulate drift: the store still holds an entry for this connection
	// in another room the hub no longer tracks.
	presence.seed("roomB", model.OnlineUser{
		UserID: "u1", Username: "alice", ConnID: alice.ConnID, JoinedAt: time.Now(),
	})

	hub.Disconnect(alice)

	assert.Empty(t, presence.roomUsers("roomA"))
	assert.Empty(t, presence.roomUsers("roomB"))
	assert.Equal(t, 1, broadcaster.count("roomA", model.EventUserLeftRoom))
	assert.Equal(t, 1, broadcaster.count("roomB", model.EventUserLeftRoom))
	assert.GreaterOrEqual(t, broadcaster.count("roomA", model.EventOnlineCount), 1)
	assert.GreaterOrEqual(t, broadcaster.count("roomB", model.EventOnlineCount), 1)
}

func TestAnonymousDisconnectIsHarmless(t *testing.T) {
	hub, _, broadcaster, _, _ := newTestHub()
	c := newTestClient(hub, "", "")

	// Must not panic and must not announce anything.
	hub.Disconnect(c)
	assert.Empty(t, broadcaster.events)
}

func TestSendMessageEnqueuesAuthenticatedJob(t *testing.T) {
	hub, _, _, queue, _ := newTestHub()
	ctx := context.Background()
	alice := newTestClient(hub, "u1", "alice")

	hub.SendMessage(ctx, alice, model.SendMessageData{Content: "hello", RoomID: "r1"})

	require.Len(t, queue.jobs, 1)
	job := queue.jobs[0]
	assert.Equal(t, "hello", job.Content)
	assert.Equal(t, "r1", job.RoomID)
	// Identity comes from the handshake, not the payload.
	assert.Equal(t, "u1", job.UserID)
	assert.Equal(t, "alice", job.Username)
}

func TestTypingRelaysWithoutPresenceMutation(t *testing.T) {
	hub, presence, broadcaster, _, _ := newTestHub()
	ctx := context.Background()

	hub.Typing(ctx, "r1", "u1")

	assert.Equal(t, 1, broadcaster.count("r1", model.EventUserIsTyping))
	assert.Empty(t, presence.roomUsers("r1"))
}

func TestJoinFailureKeepsConnectionOpen(t *testing.T) {
	hub, presence, _, _, _ := newTestHub()
	ctx := context.Background()
	alice := newTestClient(hub, "u1", "alice")

	presence.failAll = true
	hub.JoinRoom(ctx, alice, "r1")

	// The client got an error event but is still registered.
	require.Len(t, alice.send, 1)
	var env model.Envelope
	require.NoError(t, json.Unmarshal(<-alice.send, &env))
	assert.Equal(t, model.EventError, env.Event)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.True(t, hub.clients[alice])
}

func TestFanoutDelivery(t *testing.T) {
	hub, _, _, _, _ := newTestHub()
	ctx := context.Background()
	alice := newTestClient(hub, "u1", "alice")
	bob := newTestClient(hub, "u2", "bob")
	carol := newTestClient(hub, "u3", "carol")

	hub.JoinRoom(ctx, alice, "r1")
	hub.JoinRoom(ctx, bob, "r1")
	hub.JoinRoom(ctx, carol, "r2")

	env, err := model.NewEnvelope(model.EventNewMessage, model.Message{
		Content: "hello",
		RoomID:  "r1",
		User:    model.MessageUser{ID: "u1", Username: "alice"},
	})
	require.NoError(t, err)

	drain := func(c *Client) {
		for len(c.send) > 0 {
			<-c.send
		}
	}
	drain(alice)
	drain(bob)
	drain(carol)

	hub.DeliverFanout(broker.RoomEvent{RoomID: "r1", Envelope: env})

	for _, c := range []*Client{alice, bob} {
		require.Len(t, c.send, 1, "room member should receive the event")
		var got model.Envelope
		require.NoError(t, json.Unmarshal(<-c.send, &got))
		assert.Equal(t, model.EventNewMessage, got.Event)
		var msg model.Message
		require.NoError(t, json.Unmarshal(got.Data, &msg))
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, "alice", msg.User.Username)
	}
	assert.Empty(t, carol.send, "other rooms must not receive the event")

	// Global events reach everyone.
	global, err := model.NewEnvelope(model.EventNewRoom, model.NewRoomData{ID: "r9", Name: "general"})
	require.NoError(t, err)
	hub.DeliverFanout(broker.RoomEvent{RoomID: "", Envelope: global})

	assert.Len(t, alice.send, 1)
	assert.Len(t, bob.send, 1)
	assert.Len(t, carol.send, 1)
}

func TestFanoutSurvivesConcurrentDisconnect(t *testing.T) {
	hub, _, _, _, _ := newTestHub()
	ctx := context.Background()

	env, err := model.NewEnvelope(model.EventNewRoom, model.NewRoomData{ID: "r9", Name: "general"})
	require.NoError(t, err)

	// Disconnects landing in the middle of a fan-out must not hit a closed
	// send channel.
	for i := 0; i < 50; i++ {
		clients := make([]*Client, 8)
		for j := range clients {
			clients[j] = newTestClient(hub, fmt.Sprintf("u%d", j), "user")
			hub.JoinRoom(ctx, clients[j], "r1")
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for k := 0; k < 20; k++ {
				hub.DeliverFanout(broker.RoomEvent{Envelope: env})
			}
		}()
		go func() {
			defer wg.Done()
			for _, c := range clients {
				hub.Disconnect(c)
			}
		}()
		wg.Wait()
	}
}

func TestRejoinAfterLastViewerDisconnectStaysSubscribed(t *testing.T) {
	hub, _, _, _, sub := newTestHub()
	ctx := context.Background()

	c1 := newTestClient(hub, "u1", "alice")
	hub.JoinRoom(ctx, c1, "r1")
	require.True(t, sub.subscribed["r1"])

	// The room's last viewer refreshes the page: the old connection drops
	// and the new one rejoins immediately. The drop's unsubscribe must not
	// undo the rejoin's subscription.
	c2 := newTestClient(hub, "u1", "alice")
	hub.Disconnect(c1)
	hub.JoinRoom(ctx, c2, "r1")

	time.Sleep(50 * time.Millisecond)
	require.True(t, sub.subscribed["r1"])

	env, err := model.NewEnvelope(model.EventUserIsTyping, model.UserIsTypingData{UserID: "u2"})
	require.NoError(t, err)
	for len(c2.send) > 0 {
		<-c2.send
	}
	hub.DeliverFanout(broker.RoomEvent{RoomID: "r1", Envelope: env})
	assert.Len(t, c2.send, 1)
}

func TestJoinRetryAfterStoreRecovery(t *testing.T) {
	hub, presence, _, _, _ := newTestHub()
	ctx := context.Background()
	alice := newTestClient(hub, "u1", "alice")

	presence.failAll = true
	hub.JoinRoom(ctx, alice, "r1")
	// The failed join is fully unwound, so the retry is not mistaken for a
	// duplicate.
	assert.Equal(t, "", alice.roomID)

	presence.failAll = false
	hub.JoinRoom(ctx, alice, "r1")

	users := presence.roomUsers("r1")
	require.Len(t, users, 1)
	assert.Equal(t, alice.ConnID, users[0].ConnID)
	assert.Equal(t, "r1", alice.roomID)
}

func TestEndToEndScenario(t *testing.T) {
	hub, presence, broadcaster, queue, _ := newTestHub()
	ctx := context.Background()

	alice := newTestClient(hub, "u1", "alice")
	bob := newTestClient(hub, "u2", "bob")

	hub.JoinRoom(ctx, alice, "r1")
	hub.JoinRoom(ctx, bob, "r1")

	count, err := presence.CountEntries(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	hub.SendMessage(ctx, alice, model.SendMessageData{Content: "hello", RoomID: "r1"})
	require.Len(t, queue.jobs, 1)

	// The worker's broadcast comes back through the fan-out layer.
	env, err := model.NewEnvelope(model.EventNewMessage, model.Message{
		Content: queue.jobs[0].Content,
		RoomID:  "r1",
		User:    model.MessageUser{ID: "u1", Username: queue.jobs[0].Username},
	})
	require.NoError(t, err)

	for len(alice.send) > 0 {
		<-alice.send
	}
	for len(bob.send) > 0 {
		<-bob.send
	}
	hub.DeliverFanout(broker.RoomEvent{RoomID: "r1", Envelope: env})
	assert.Len(t, alice.send, 1)
	assert.Len(t, bob.send, 1)

	hub.Disconnect(bob)

	count, err = presence.CountEntries(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, broadcaster.count("r1", model.EventUserLeftRoom))
}
