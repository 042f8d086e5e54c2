package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type entry struct {
	interval time.Duration
	name     string
	argFn    func() any
}

// Scheduler enqueues jobs at fixed intervals (the beat side of the queue:
// spam cleanup, vote chunk refreshes, analytics reloads).
type Scheduler struct {
	d       *Dispatcher
	entries []entry
	wg      sync.WaitGroup
}

func NewScheduler(d *Dispatcher) *Scheduler {
	return &Scheduler{d: d}
}

// Every schedules job name at the given interval. argFn may be nil for jobs
// without an argument; otherwise it is evaluated at each tick.
func (s *Scheduler) Every(interval time.Duration, name string, argFn func() any) {
	s.entries = append(s.entries, entry{interval: interval, name: name, argFn: argFn})
}

// Start launches one ticker goroutine per entry.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		s.wg.Add(1)
		go func(e entry) {
			defer s.wg.Done()
			ticker := time.NewTicker(e.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					var arg any
					if e.argFn != nil {
						arg = e.argFn()
					}
					if err := s.d.Enqueue(e.name, arg); err != nil {
						slog.Error("scheduled job enqueue failed", "job", e.name, "error", err)
					}
				}
			}
		}(e)
	}
}

// Wait blocks until all tickers have stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
