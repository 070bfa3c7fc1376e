// Package workerpool runs tool calls on a bounded set of goroutines.
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/paolino/mcp-memory-server/internal/logging"
)

var log = logging.L("workerpool")

// ErrQueueFull is returned by Submit when the queue has no free slot.
var ErrQueueFull = errors.New("worker pool queue full")

// ErrStopped is returned by Submit after Shutdown began.
var ErrStopped = errors.New("worker pool stopped")

// Job is a unit of work. ctx is cancelled if Shutdown gives up waiting.
type Job func(ctx context.Context)

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int   `json:"workers"`
	QueueSize int   `json:"queue_size"`
	Queued    int   `json:"queued"`
	InFlight  int64 `json:"in_flight"`
	Completed int64 `json:"completed"`
	Rejected  int64 `json:"rejected"`
	Panicked  int64 `json:"panicked"`
}

// Pool is a fixed number of workers reading from a bounded queue.
type Pool struct {
	workers int
	queue   chan Job

	// mu guards accepting and the queue close
	mu        sync.RWMutex
	accepting bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	inFlight  atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64
}

// New starts workers goroutines over a queue of queueSize jobs. Both are at
// least 1.
func New(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers:   workers,
		queue:     make(chan Job, queueSize),
		accepting: true,
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	log.Infow("worker pool started", "workers", workers, "queueSize", queueSize)
	return p
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.accepting {
		p.rejected.Add(1)
		return ErrStopped
	}

	p.wg.Add(1)
	select {
	case p.queue <- job:
		return nil
	default:
		p.wg.Done()
		p.rejected.Add(1)
		log.Warnw("worker pool queue full, job rejected", "queueSize", cap(p.queue))
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued and running ones. If
// ctx expires first the jobs' context is cancelled and Shutdown returns
// ctx.Err().
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.accepting = false
		close(p.queue)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		log.Infow("worker pool drained", "completed", p.completed.Load())
		return nil
	case <-ctx.Done():
		p.cancel()
		log.Warnw("worker pool drain timed out", "inFlight", p.inFlight.Load())
		return ctx.Err()
	}
}

// Stats reports counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		QueueSize: cap(p.queue),
		Queued:    len(p.queue),
		InFlight:  p.inFlight.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}

func (p *Pool) worker() {
	for job := range p.queue {
		p.run(job)
	}
}

// run executes one job with panic recovery. wg.Done matches the wg.Add in
// Submit.
func (p *Pool) run(job Job) {
	p.inFlight.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			log.Errorw("job panicked", "panic", r, "stack", string(debug.Stack()))
		}
		p.inFlight.Add(-1)
		p.completed.Add(1)
		p.wg.Done()
	}()
	job(p.ctx)
}
