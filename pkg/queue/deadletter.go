package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatwire/pkg/model"
)

const (
	deadLetterKey = "queue:dead"
	statsKey      = "queue:stats"

	// Dead letters are parked for operators, not replayed; keep the list
	// from growing without bound.
	deadLetterMax = 1000
)

// DeadLetter is a job that exhausted its retries, parked for inspection.
// It never re-enters the queue automatically.
type DeadLetter struct {
	Job          model.MessageJob `json:"job"`
	FailedReason string           `json:"failedReason"`
	AttemptsMade int              `json:"attemptsMade"`
	FailedAt     time.Time        `json:"failedAt"`
}

// Stats are the pipeline's operational counters.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dead      int64 `json:"dead"`
}

// Ledger records pipeline outcomes in Redis for the operational surface.
type Ledger struct {
	redis *redis.Client
}

func NewLedger(rdb *redis.Client) *Ledger {
	return &Ledger{redis: rdb}
}

// RecordProcessed bumps the processed counter.
func (l *Ledger) RecordProcessed(ctx context.Context) error {
	return l.redis.HIncrBy(ctx, statsKey, "processed", 1).Err()
}

// RecordFailure bumps the failed counter (one per failed attempt, not per job).
func (l *Ledger) RecordFailure(ctx context.Context) error {
	return l.redis.HIncrBy(ctx, statsKey, "failed", 1).Err()
}

// PushDead parks a dead letter at the head of the list and trims the tail.
func (l *Ledger) PushDead(ctx context.Context, dl DeadLetter) error {
	frame, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("queue: marshal dead letter: %w", err)
	}

	pipe := l.redis.TxPipeline()
	pipe.LPush(ctx, deadLetterKey, frame)
	pipe.LTrim(ctx, deadLetterKey, 0, deadLetterMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: push dead letter: %w", err)
	}
	return nil
}

// ListDead returns up to n most recent dead letters. Frames that no longer
// decode are skipped.
func (l *Ledger) ListDead(ctx context.Context, n int64) ([]DeadLetter, error) {
	frames, err := l.redis.LRange(ctx, deadLetterKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list dead letters: %w", err)
	}

	letters := make([]DeadLetter, 0, len(frames))
	for _, frame := range frames {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(frame), &dl); err != nil {
			continue
		}
		letters = append(letters, dl)
	}
	return letters, nil
}

// ClearDead drops all parked dead letters.
func (l *Ledger) ClearDead(ctx context.Context) error {
	if err := l.redis.Del(ctx, deadLetterKey).Err(); err != nil {
		return fmt.Errorf("queue: clear dead letters: %w", err)
	}
	return nil
}

// GetStats reads the pipeline counters and current dead-letter depth.
func (l *Ledger) GetStats(ctx context.Context) (Stats, error) {
	fields, err := l.redis.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: read stats: %w", err)
	}

	dead, err := l.redis.LLen(ctx, deadLetterKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: dead-letter depth: %w", err)
	}

	return Stats{
		Processed: parseCounter(fields["processed"]),
		Failed:    parseCounter(fields["failed"]),
		Dead:      dead,
	}, nil
}

func parseCounter(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
