package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// dequeueErrorBackoff delays the next poll after a broker error so a dead
// Redis does not spin the workers.
const dequeueErrorBackoff = 2 * time.Second

// WorkerPool drains a JobQueue with a bounded number of goroutines. Each
// worker block-pops one job at a time and hands it to Process; jobs are
// never nacked because the processor records every outcome itself.
//
// Shutdown is graceful: Stop makes workers quit after their current job (no
// job is abandoned mid-transaction) and blocks until all of them returned.
// Canceling the Start context likewise only stops dequeues; the running job
// gets a context detached from that cancellation, so its commit (or its
// terminal failure record) still lands before the worker exits.
type WorkerPool struct {
	Queue       JobQueue
	Process     func(ctx context.Context, urlID string)
	Concurrency int
	PollTimeout time.Duration
	Log         zerolog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopping atomic.Bool
	started  atomic.Bool
}

// Start launches the worker goroutines and returns immediately.
func (p *WorkerPool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.stopCh = make(chan struct{})

	n := p.Concurrency
	if n < 1 {
		n = 1
	}
	p.Log.Info().Int("concurrency", n).Msg("worker pool starting")

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop prevents further dequeues, waits for in-flight jobs to finish, and
// returns. Safe to call more than once.
func (p *WorkerPool) Stop() {
	if !p.started.Load() {
		return
	}
	if p.stopping.CompareAndSwap(false, true) {
		close(p.stopCh)
	}
	p.wg.Wait()
	p.Log.Info().Msg("worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	lg := p.Log.With().Int("worker", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		job, err := p.Queue.Dequeue(ctx, p.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lg.Error().Err(err).Msg("dequeue failed")
			select {
			case <-time.After(dequeueErrorBackoff):
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			}
			continue
		}
		if job == nil {
			continue // poll timeout, loop around
		}

		// The dequeue context dies on shutdown; the job must not. A job
		// interrupted mid-flight would strand its URL in PROCESSING with
		// credits already spent, so it runs to its own terminal record.
		p.Process(context.WithoutCancel(ctx), job.URLID)
	}
}
