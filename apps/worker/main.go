package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chatwire/pkg/broker"
	"github.com/mahaj/chatwire/pkg/config"
	"github.com/mahaj/chatwire/pkg/db"
	"github.com/mahaj/chatwire/pkg/model"
	"github.com/mahaj/chatwire/pkg/presence"
	"github.com/mahaj/chatwire/pkg/queue"
	"github.com/mahaj/chatwire/pkg/snowflake"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	session, err := db.InitSchema(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to initialize ScyllaDB schema: %v", err)
	}
	defer session.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		log.Fatalf("Failed to initialize snowflake node: %v", err)
	}

	processor := NewProcessor(
		db.NewMessageStore(session),
		db.NewRoomStore(session),
		presence.NewStore(rdb),
		db.NewReadStore(session),
		broker.NewBroadcaster(rdb),
		queue.NewLedger(rdb),
		node,
	)

	reader := queue.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.WorkerGroupID)
	defer reader.Close()

	log.Println("Worker starting, consuming message jobs...")
	consume(ctx, reader, processor)
}

// consume reads jobs off the pipeline topic one at a time. A single
// consumer per partition keeps each room's messages FIFO; add workers by
// adding partitions, not by parallelizing here.
func consume(ctx context.Context, reader *kafka.Reader, processor *Processor) {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading job: %v. Retrying in 1s...", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var job model.MessageJob
		if err := json.Unmarshal(m.Value, &job); err != nil {
			log.Printf("Failed to unmarshal job at offset %d: %v", m.Offset, err)
			continue
		}

		if err := processor.Process(ctx, job); err != nil {
			// Already dead-lettered; the offset is committed and the
			// job does not re-enter the queue.
			log.Printf("Job failed permanently: %v", err)
		}
	}
}
