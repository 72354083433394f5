package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// chanQueue is an in-memory JobQueue backed by a channel, mirroring the
// blocking semantics of the Redis list.
type chanQueue struct {
	jobs chan string
	err  error
}

func newChanQueue(size int) *chanQueue {
	return &chanQueue{jobs: make(chan string, size)}
}

func (q *chanQueue) Enqueue(_ context.Context, urlID string) error {
	if q.err != nil {
		return q.err
	}
	q.jobs <- urlID
	return nil
}

func (q *chanQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	if q.err != nil {
		return nil, q.err
	}
	select {
	case id := <-q.jobs:
		return &Job{URLID: id}, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestWorkerPool_ProcessesAllJobs(t *testing.T) {
	q := newChanQueue(32)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{}, 8)

	pool := &WorkerPool{
		Queue: q,
		Process: func(_ context.Context, urlID string) {
			mu.Lock()
			seen[urlID]++
			mu.Unlock()
			done <- struct{}{}
		},
		Concurrency: 3,
		PollTimeout: 50 * time.Millisecond,
		Log:         zerolog.Nop(),
	}

	pool.Start(ctx)
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d jobs", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("distinct jobs = %d, want 5 (%v)", len(seen), seen)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %s processed %d times", id, n)
		}
	}
}

func TestWorkerPool_StopWaitsForInflight(t *testing.T) {
	q := newChanQueue(1)
	ctx := context.Background()
	if err := q.Enqueue(ctx, "slow"); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	finished := make(chan struct{})
	pool := &WorkerPool{
		Queue: q,
		Process: func(context.Context, string) {
			close(started)
			time.Sleep(100 * time.Millisecond)
			close(finished)
		},
		Concurrency: 1,
		PollTimeout: 20 * time.Millisecond,
		Log:         zerolog.Nop(),
	}

	pool.Start(ctx)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	pool.Stop()
	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the in-flight job finished")
	}

	// Stop is idempotent, Start after Stop is a no-op.
	pool.Stop()
	pool.Start(ctx)
}

func TestWorkerPool_ShutdownDoesNotCancelInflightJob(t *testing.T) {
	q := newChanQueue(1)
	if err := q.Enqueue(context.Background(), "inflight"); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	committed := make(chan error, 1)
	pool := &WorkerPool{
		Queue: q,
		Process: func(jobCtx context.Context, _ string) {
			close(started)
			// Simulate the commit that runs after shutdown begins: it
			// must still see a live context or the write would abort and
			// strand the URL in PROCESSING.
			time.Sleep(50 * time.Millisecond)
			committed <- jobCtx.Err()
		},
		Concurrency: 1,
		PollTimeout: 20 * time.Millisecond,
		Log:         zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}
	cancel() // shutdown signal lands while the job is mid-flight
	pool.Stop()

	select {
	case err := <-committed:
		if err != nil {
			t.Fatalf("job context died with the shutdown context: %v", err)
		}
	default:
		t.Fatal("Stop returned before the in-flight job committed")
	}
}

func TestWorkerPool_SurvivesDequeueErrors(t *testing.T) {
	q := newChanQueue(1)
	q.err = errors.New("broker down")

	pool := &WorkerPool{
		Queue:       q,
		Process:     func(context.Context, string) { t.Error("no job should be processed") },
		Concurrency: 1,
		PollTimeout: 10 * time.Millisecond,
		Log:         zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	// Let the worker hit the error and park in backoff, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	stopped := make(chan struct{})
	go func() { pool.Stop(); close(stopped) }()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}

func TestWorkerPool_ContextCancelStopsWorkers(t *testing.T) {
	q := newChanQueue(1)
	pool := &WorkerPool{
		Queue:       q,
		Process:     func(context.Context, string) {},
		Concurrency: 2,
		PollTimeout: 10 * time.Millisecond,
		Log:         zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() { pool.Stop(); close(stopped) }()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit on context cancellation")
	}
}
