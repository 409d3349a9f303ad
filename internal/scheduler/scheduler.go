// Package scheduler provides a lightweight timer scheduler for the periodic
// stale-device sweep and the one-shot deferred ticket-cleanup jobs.
//
// Jobs run inline on the scheduler goroutine, separate from the task-runner
// workers. Jobs are held in memory only; a process restart drops anything
// pending.
package scheduler

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

type entry struct {
	name     string
	nextRun  time.Time
	interval time.Duration // zero for one-shot jobs
	fn       func(context.Context)
}

// Scheduler fires registered jobs when their time comes.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	wake    chan struct{}
	done    chan struct{}
}

// New creates a Scheduler. The scheduler does not start automatically —
// call Start to begin dispatching.
func New() *Scheduler {
	return &Scheduler{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start runs the scheduling loop. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.Lock()
		if len(s.entries) == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		sort.Slice(s.entries, func(i, j int) bool {
			return s.entries[i].nextRun.Before(s.entries[j].nextRun)
		})
		next := s.entries[0].nextRun
		s.mu.Unlock()

		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		s.fireDue(ctx)
	}
}

// Stop waits for the scheduling loop to exit. The caller must cancel the
// context passed to Start before calling Stop.
func (s *Scheduler) Stop() {
	<-s.done
}

// After registers a one-shot job to run d from now.
func (s *Scheduler) After(d time.Duration, name string, fn func(context.Context)) {
	s.add(&entry{name: name, nextRun: time.Now().Add(d), fn: fn})
}

// Every registers a periodic job. The first run happens d from now.
func (s *Scheduler) Every(d time.Duration, name string, fn func(context.Context)) {
	s.add(&entry{name: name, nextRun: time.Now().Add(d), interval: d, fn: fn})
}

// Pending returns the number of registered jobs (for monitoring / tests).
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) add(e *entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*entry
	remaining := s.entries[:0]
	for _, e := range s.entries {
		if e.nextRun.After(now) {
			remaining = append(remaining, e)
			continue
		}
		due = append(due, e)
		if e.interval > 0 {
			e.nextRun = now.Add(e.interval)
			remaining = append(remaining, e)
		}
	}
	s.entries = remaining
	s.mu.Unlock()

	for _, e := range due {
		log.Printf("scheduler: running %s", e.name)
		e.fn(ctx)
	}
}
