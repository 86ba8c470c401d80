// Package parallel runs independent jobs, such as whole routing instances,
// on a bounded set of goroutines. A cp.Solver is single-threaded, so each
// job owns its model; nothing is shared between jobs.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrPoolShutdown is returned when submitting to a pool that was shut down.
var ErrPoolShutdown = errors.New("worker pool has been shutdown")

// WorkerPool executes submitted tasks on a fixed number of workers. The task
// queue is bounded, so Submit blocks when every worker is busy and the queue
// is full.
type WorkerPool struct {
	maxWorkers int
	tasks      chan func()
	workers    sync.WaitGroup
	pending    sync.WaitGroup
	shutdown   chan struct{}
	mu         sync.RWMutex
	once       sync.Once
}

// NewWorkerPool starts maxWorkers workers. If maxWorkers is 0 or negative,
// it defaults to the number of CPU cores.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	wp := &WorkerPool{
		maxWorkers: maxWorkers,
		tasks:      make(chan func(), maxWorkers*2),
		shutdown:   make(chan struct{}),
	}
	for i := 0; i < maxWorkers; i++ {
		wp.workers.Add(1)
		go wp.worker()
	}
	return wp
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int { return wp.maxWorkers }

func (wp *WorkerPool) worker() {
	defer wp.workers.Done()
	for task := range wp.tasks {
		task()
		wp.pending.Done()
	}
}

// Submit queues task. It blocks while the queue is full and gives up when
// ctx is done or the pool shuts down.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	select {
	case <-wp.shutdown:
		return ErrPoolShutdown
	default:
	}
	wp.pending.Add(1)
	select {
	case wp.tasks <- task:
		return nil
	case <-ctx.Done():
		wp.pending.Done()
		return ctx.Err()
	case <-wp.shutdown:
		wp.pending.Done()
		return ErrPoolShutdown
	}
}

// Wait blocks until every submitted task has run.
func (wp *WorkerPool) Wait() { wp.pending.Wait() }

// Shutdown stops accepting tasks, runs those already queued and waits for
// the workers to exit.
func (wp *WorkerPool) Shutdown() {
	wp.once.Do(func() {
		close(wp.shutdown)
		wp.mu.Lock()
		close(wp.tasks)
		wp.mu.Unlock()
		wp.workers.Wait()
	})
}

// Result is the outcome of one job run by Map.
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn on every item and returns the results in item order. Items
// that could not be submitted carry the submission error.
func Map[T, R any](ctx context.Context, wp *WorkerPool, items []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	var done sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		done.Add(1)
		err := wp.Submit(ctx, func() {
			defer done.Done()
			results[i].Value, results[i].Err = fn(ctx, item)
		})
		if err != nil {
			done.Done()
			results[i].Err = err
		}
	}
	done.Wait()
	return results
}
