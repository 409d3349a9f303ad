// Package tasks provides the asynchronous chain runner: a bounded worker
// pool with per-key in-flight deduplication.
//
// The state machine hands multi-minute work (remediation, impact
// resolution, ledger writes) to a Runner so the webhook path returns
// quickly. A chain runs strictly in sequence inside one submitted function;
// different keys run fully concurrently. A key that is already in flight is
// rejected, which gives the at-most-one-concurrent-chain-per-device
// property the rest of the design relies on.
package tasks

import (
	"context"
	"log"
	"sync"
)

type job struct {
	key string
	fn  func(context.Context)
}

// Runner runs submitted functions on a fixed pool of workers.
type Runner struct {
	workers int
	jobs    chan job
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewRunner creates a Runner with the given worker count and queue depth.
// Call Start before submitting.
func NewRunner(workers, queue int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		workers:  workers,
		jobs:     make(chan job, queue),
		inflight: make(map[string]struct{}, workers),
	}
}

// Start launches the worker pool. Workers drain the queue until Stop closes
// it; a cancelled ctx makes queued chains no-ops instead of running them.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for j := range r.jobs {
				select {
				case <-ctx.Done():
					r.release(j.key)
					continue
				default:
				}
				r.run(ctx, j)
			}
		}()
	}
}

// Submit queues fn under key. It returns false without queuing when a chain
// for the same key is already queued or running, or when the queue is full.
func (r *Runner) Submit(key string, fn func(context.Context)) bool {
	r.mu.Lock()
	if _, busy := r.inflight[key]; busy {
		r.mu.Unlock()
		return false
	}
	r.inflight[key] = struct{}{}
	r.mu.Unlock()

	select {
	case r.jobs <- job{key: key, fn: fn}:
		return true
	default:
		r.release(key)
		log.Printf("task queue full, dropping chain for %s", key)
		return false
	}
}

// Stop closes the queue and waits for in-flight chains to finish.
func (r *Runner) Stop() {
	close(r.jobs)
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, j job) {
	defer r.release(j.key)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("task chain for %s panicked: %v", j.key, rec)
		}
	}()
	j.fn(ctx)
}

func (r *Runner) release(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}
