// Package scheduler provides the delayed-task queue implementations. The
// in-process scheduler backs the server and the sweep binary; the manual
// scheduler is a test double that runs tasks only when told to, so tests
// can step through a self-re-enqueueing sweep page by page.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loom/internal/domain/repositories"
)

// InProcess runs tasks on timers inside the current process. A task that
// panics or returns an error is logged and dropped; it is the task's job
// to persist enough progress to resume on the next trigger.
type InProcess struct {
	logger *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	timers map[*time.Timer]struct{}
	closed bool
}

// NewInProcess creates an in-process scheduler
func NewInProcess(logger *slog.Logger) *InProcess {
	return &InProcess{
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
	}
}

// RunAfter enqueues the task to run after the given delay
func (s *InProcess) RunAfter(ctx context.Context, delay time.Duration, name string, task repositories.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return context.Canceled
	}

	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.timers, timer)
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled task panicked", "task", name, "panic", r)
			}
		}()

		// Tasks outlive the request that scheduled them, so they run
		// under a fresh context rather than the caller's.
		if err := task(context.Background()); err != nil {
			s.logger.Error("scheduled task failed", "task", name, "error", err)
		}
	})
	s.timers[timer] = struct{}{}

	return nil
}

// Close stops pending timers and waits for running tasks to finish
func (s *InProcess) Close() {
	s.mu.Lock()
	s.closed = true
	for timer := range s.timers {
		if timer.Stop() {
			delete(s.timers, timer)
			s.wg.Done()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

var _ repositories.Scheduler = (*InProcess)(nil)
