// Package queue carries stage requests from producers to workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"video-pipeline/internal/types"
)

// ErrEmpty is returned by Claim when nothing arrived before the wait expired.
var ErrEmpty = errors.New("queue: empty")

// Message asks a worker to act on one job. An empty Stage means advance the
// job through every remaining stage.
type Message struct {
	JobID string      `json:"job_id"`
	Stage types.Stage `json:"stage,omitempty"`
	Rerun bool        `json:"rerun,omitempty"`
}

func (m Message) Validate() error {
	if m.JobID == "" {
		return &types.ValidationError{Subject: "message", Reason: "missing job_id"}
	}
	if m.Stage != "" {
		if _, ok := types.ParseStage(string(m.Stage)); !ok {
			return &types.ValidationError{Subject: "message", Reason: fmt.Sprintf("unknown stage %q", m.Stage)}
		}
	} else if m.Rerun {
		return &types.ValidationError{Subject: "message", Reason: "rerun needs a stage"}
	}
	return nil
}

// Delivery is a claimed message. Raw is the payload as stored, used to ack.
type Delivery struct {
	Message Message
	Raw     string
}

// Queue is an at-least-once work queue.
type Queue interface {
	Enqueue(ctx context.Context, m Message) error
	// Claim blocks up to wait for a message and moves it to the processing list.
	Claim(ctx context.Context, wait time.Duration) (Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	// RequeueStale moves up to max entries claimed longer than staleAfter ago
	// back to the queue.
	RequeueStale(ctx context.Context, staleAfter time.Duration, max int64) (int64, error)
}

// Redis is a reliable queue on two lists. Claim uses BRPOPLPUSH so a message is
// never lost between pop and processing; Ack removes it from the processing list.
// Claim times live in a hash so the reaper only touches abandoned entries.
type Redis struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
	claimsKey     string
	now           func() time.Time
}

var _ Queue = (*Redis)(nil)

func NewRedis(rdb *redis.Client, queueKey, processingKey string) *Redis {
	return &Redis{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
		claimsKey:     processingKey + ":claims",
		now:           time.Now,
	}
}

func (q *Redis) Enqueue(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.queueKey, data).Err()
}

func (q *Redis) Claim(ctx context.Context, wait time.Duration) (Delivery, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, wait).Result()
	if errors.Is(err, redis.Nil) {
		return Delivery{}, ErrEmpty
	}
	if err != nil {
		return Delivery{}, err
	}
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		// a poison message would be requeued forever
		_ = q.rdb.LRem(ctx, q.processingKey, 1, raw).Err()
		return Delivery{}, fmt.Errorf("queue: decode %q: %w", raw, err)
	}
	if err := q.rdb.HSet(ctx, q.claimsKey, raw, q.now().Unix()).Err(); err != nil {
		return Delivery{}, fmt.Errorf("queue: record claim: %w", err)
	}
	return Delivery{Message: m, Raw: raw}, nil
}

func (q *Redis) Ack(ctx context.Context, d Delivery) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey, 1, d.Raw)
	pipe.HDel(ctx, q.claimsKey, d.Raw)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *Redis) RequeueStale(ctx context.Context, staleAfter time.Duration, max int64) (int64, error) {
	entries, err := q.rdb.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	cutoff := q.now().Add(-staleAfter).Unix()
	var moved int64
	for _, raw := range entries {
		if moved >= max {
			break
		}
		claimed, err := q.rdb.HGet(ctx, q.claimsKey, raw).Int64()
		if errors.Is(err, redis.Nil) {
			// claimed by a process that died before recording it; start the clock now
			_ = q.rdb.HSetNX(ctx, q.claimsKey, raw, q.now().Unix()).Err()
			continue
		}
		if err != nil {
			return moved, err
		}
		if claimed > cutoff {
			continue
		}
		pipe := q.rdb.TxPipeline()
		rem := pipe.LRem(ctx, q.processingKey, 1, raw)
		pipe.HDel(ctx, q.claimsKey, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, err
		}
		if rem.Val() == 0 {
			continue
		}
		if err := q.rdb.RPush(ctx, q.queueKey, raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Depth returns the number of waiting messages.
func (q *Redis) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueKey).Result()
}
