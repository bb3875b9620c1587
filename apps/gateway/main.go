package main

import (
	"context"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatwire/pkg/broker"
	"github.com/mahaj/chatwire/pkg/config"
	"github.com/mahaj/chatwire/pkg/presence"
	"github.com/mahaj/chatwire/pkg/queue"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	store := presence.NewStore(rdb)
	broadcaster := broker.NewBroadcaster(rdb)
	subscriber := broker.NewSubscriber(ctx, rdb)
	defer subscriber.Close()

	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	hub := NewHub(store, broadcaster, producer, subscriber)
	go hub.RunFanout(subscriber.Events())
	go store.RunSweeper(ctx)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	log.Printf("Gateway starting on %s...", cfg.GatewayAddr)
	if err := http.ListenAndServe(cfg.GatewayAddr, nil); err != nil {
		log.Fatal(err)
	}
}
