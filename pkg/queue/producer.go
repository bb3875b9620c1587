// Package queue is the durable message pipeline: a Kafka topic that
// decouples message acceptance in the gateway from persistence and fan-out
// in the worker, plus the Redis-backed dead-letter and stats surface
// operators inspect.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chatwire/pkg/model"
)

// Producer appends message jobs to the pipeline topic. Jobs are keyed by
// room id so each room's messages stay FIFO within a partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Enqueue appends one job. It returns once the broker has the job; it never
// waits for the worker to process it.
func (p *Producer) Enqueue(ctx context.Context, job model.MessageJob) error {
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.RoomID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("queue: enqueue job for room %s: %w", job.RoomID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// NewReader builds the worker-side consumer for the pipeline topic. All
// workers share one group so each job is consumed once.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}
