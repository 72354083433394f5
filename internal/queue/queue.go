// Package queue delivers URL jobs to the worker pool. The broker contract is
// deliberately thin — enqueue a {urlId} payload, block-pop one back — because
// the claim compare-and-swap in the processor makes at-least-once delivery
// safe: a redelivered or double-enqueued job settles as a no-op.
//
// The production implementation is a Redis list. Scheduling policy, retries,
// and backoff are the broker's concern, not the core's.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job is the queue message payload.
type Job struct {
	URLID string `json:"urlId"`
}

// JobQueue is the durable job channel between ingestion and the workers.
type JobQueue interface {
	// Enqueue publishes one job.
	Enqueue(ctx context.Context, urlID string) error
	// Dequeue blocks up to timeout for the next job. A nil job with a nil
	// error means the wait timed out and the caller should poll again.
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
}

// RedisQueue is a Redis list-backed JobQueue: LPUSH to enqueue, BRPOP to
// dequeue, so jobs come out in FIFO order.
type RedisQueue struct {
	Client *redis.Client
	Name   string
}

// NewRedisQueue returns a queue on the named Redis list. The client's
// lifecycle is owned by the caller.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{Client: client, Name: name}
}

// Enqueue pushes the job payload onto the head of the list.
func (q *RedisQueue) Enqueue(ctx context.Context, urlID string) error {
	payload, err := json.Marshal(Job{URLID: urlID})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.Client.LPush(ctx, q.Name, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", q.Name, err)
	}
	return nil
}

// Dequeue block-pops the tail of the list. redis.Nil (timeout elapsed) maps
// to (nil, nil).
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	vals, err := q.Client.BRPop(ctx, timeout, q.Name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue %s: %w", q.Name, err)
	}
	// BRPOP returns [key, value].
	if len(vals) != 2 {
		return nil, fmt.Errorf("dequeue %s: unexpected reply of %d values", q.Name, len(vals))
	}
	var job Job
	if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	if job.URLID == "" {
		return nil, fmt.Errorf("decode job payload: missing urlId")
	}
	return &job, nil
}
