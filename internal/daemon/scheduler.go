// Package daemon runs the recurring synchronization process: one
// self-rescheduling timer per integration plugin, a single-instance file
// lock, and a config watcher that picks up credential and interval
// changes without a restart.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// TaskFunc performs one scheduled pass and returns the delay until the
// next firing. Returning zero or a negative delay stops the task.
type TaskFunc func(ctx context.Context) time.Duration

// Scheduler owns one timer goroutine per recurring task. Tasks are fully
// independent: a slow, failing or panicking pass in one never delays or
// aborts another's schedule.
type Scheduler struct {
	logger *log.Logger

	mu    sync.Mutex
	names map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a stopped-when-cancelled scheduler.
// If logger is nil, a default logger writing to stderr is used.
func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sched] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		names:  make(map[string]bool),
		ctx:    ctx,
		cancel: cancel,
	}
}

// QueueRecurring starts a recurring task. fn fires after initial, then
// after whatever delay each invocation returns. Queueing the same name
// twice is rejected; there is intentionally exactly one timer per plugin,
// which is what rules out two overlapping passes for the same account.
func (s *Scheduler) QueueRecurring(name string, initial time.Duration, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names[name] {
		return fmt.Errorf("recurring task %q already queued", name)
	}
	s.names[name] = true

	s.wg.Add(1)
	go s.run(name, initial, fn)
	return nil
}

// Stop cancels every task and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(name string, initial time.Duration, fn TaskFunc) {
	defer s.wg.Done()

	timer := time.NewTimer(initial)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			delay := s.fire(name, fn)
			if delay <= 0 {
				s.logger.Printf("Recurring task %q finished", name)
				return
			}
			timer.Reset(delay)
		}
	}
}

// fire runs one pass, containing panics so a broken plugin cannot take
// the other schedules down with it.
func (s *Scheduler) fire(name string, fn TaskFunc) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Recurring task %q panicked: %v", name, r)
			delay = time.Minute
		}
	}()
	return fn(s.ctx)
}
