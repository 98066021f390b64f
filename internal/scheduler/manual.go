package scheduler

import (
	"context"
	"sync"
	"time"

	"loom/internal/domain/repositories"
)

type pending struct {
	name string
	task repositories.Task
}

// Manual is a test scheduler. Enqueued tasks sit in a FIFO queue until
// the test runs them explicitly, which makes self-re-enqueueing sweeps
// deterministic: each RunNext executes exactly one page.
type Manual struct {
	mu    sync.Mutex
	queue []pending
}

// NewManual creates an empty manual scheduler
func NewManual() *Manual {
	return &Manual{}
}

// RunAfter enqueues the task, ignoring the delay
func (s *Manual) RunAfter(ctx context.Context, delay time.Duration, name string, task repositories.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, pending{name: name, task: task})
	return nil
}

// Pending reports the number of queued tasks
func (s *Manual) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunNext runs the oldest queued task. Returns false when the queue is
// empty.
func (s *Manual) RunNext(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	return true, next.task(ctx)
}

// Drain runs queued tasks, including ones they enqueue, until the queue
// is empty or a task fails.
func (s *Manual) Drain(ctx context.Context) error {
	for {
		ran, err := s.RunNext(ctx)
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
	}
}

var _ repositories.Scheduler = (*Manual)(nil)
