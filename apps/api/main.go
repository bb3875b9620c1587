// The api process is the operational and CRUD surface around the realtime
// core: token issuing, room management, message history/edit/delete, and
// the pipeline's queue status and dead-letter controls.
package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatwire/pkg/broker"
	"github.com/mahaj/chatwire/pkg/config"
	"github.com/mahaj/chatwire/pkg/db"
	"github.com/mahaj/chatwire/pkg/presence"
	"github.com/mahaj/chatwire/pkg/queue"
)

type server struct {
	rooms       *db.RoomStore
	messages    *db.MessageStore
	reads       *db.ReadStore
	presence    *presence.Store
	broadcaster *broker.Broadcaster
	ledger      *queue.Ledger
}

func main() {
	cfg := config.Load()

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	s := &server{
		rooms:       db.NewRoomStore(session),
		messages:    db.NewMessageStore(session),
		reads:       db.NewReadStore(session),
		presence:    presence.NewStore(rdb),
		broadcaster: broker.NewBroadcaster(rdb),
		ledger:      queue.NewLedger(rdb),
	}

	r := gin.Default()
	r.Use(corsMiddleware())

	r.POST("/login", s.login)

	authed := r.Group("/", authMiddleware())
	{
		authed.GET("/rooms", s.listRooms)
		authed.POST("/rooms", s.createRoom)
		authed.GET("/rooms/:roomId/users", s.roomUsers)
		authed.GET("/rooms/:roomId/count", s.roomCount)
		authed.GET("/rooms/:roomId/messages", s.history)
		authed.POST("/rooms/:roomId/read", s.markRead)
		authed.PUT("/rooms/:roomId/messages/:id", s.editMessage)
		authed.DELETE("/rooms/:roomId/messages/:id", s.deleteMessage)

		authed.GET("/debug/presence", s.presenceDebug)
		authed.GET("/debug/queue-status", s.queueStatus)
		authed.POST("/debug/queue-clear-failed", s.queueClearFailed)
	}

	log.Printf("API starting on %s...", cfg.APIAddr)
	if err := r.Run(cfg.APIAddr); err != nil {
		log.Fatal(err)
	}
}
