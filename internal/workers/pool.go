// Package workers provides the bounded blocking-task pool that backs
// the extension host's spawn_blocking capability.
package workers

import (
	"context"
	"errors"
	"sync"

	"github.com/ternarybob/arbor"
)

// ErrPoolSaturated is returned by Submit when the task queue is full.
var ErrPoolSaturated = errors.New("workers: blocking task queue is saturated")

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("workers: pool is shut down")

// Task is a blocking unit of work offloaded from a plugin goroutine.
type Task func(ctx context.Context) error

type job struct {
	task Task
	done chan error
}

// Pool manages a fixed number of goroutines that execute blocking
// tasks pulled from a bounded queue. Unlike a fire-and-forget pool,
// Submit blocks the caller until the task has actually run and
// returns the task's own error, since extensions rely on
// spawn_blocking for synchronous offload of blocking work.
type Pool struct {
	jobs       chan job
	maxWorkers int
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	closed     chan struct{}
	closeOnce  sync.Once
	logger     arbor.ILogger
}

// NewPool creates a new worker pool with the given worker count and
// queue depth.
func NewPool(maxWorkers, queueSize int, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if queueSize <= 0 {
		queueSize = maxWorkers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		jobs:       make(chan job, queueSize),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		closed:     make(chan struct{}),
		logger:     logger,
	}
}

// Start begins the worker pool's goroutines.
func (p *Pool) Start() {
	p.logger.Info().Int("max_workers", p.maxWorkers).Msg("Starting blocking task pool")

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a blocking task and waits for it to complete,
// returning the task's own error. Returns ErrPoolSaturated immediately
// if the queue is full, and ErrPoolClosed if the pool has been shut
// down.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-p.closed:
		return ErrPoolClosed
	default:
	}

	j := job{task: task, done: make(chan error, 1)}

	select {
	case p.jobs <- j:
	default:
		return ErrPoolSaturated
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Shutdown stops accepting new tasks and waits for in-flight tasks to
// drain.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info().Msg("Blocking task pool shutdown complete")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for j := range p.jobs {
		err := j.task(p.ctx)
		j.done <- err
		if err != nil {
			p.logger.Error().Err(err).Int("worker_id", id).Msg("Blocking task failed")
		}
	}

	p.logger.Debug().Int("worker_id", id).Msg("Worker stopping - queue closed")
}
