package repositories

import (
	"context"
	"time"
)

// Task is a unit of background work enqueued on the scheduler.
type Task func(ctx context.Context) error

// Scheduler is the boundary with the delayed-task queue used by the
// background sweeps. Jobs re-enqueue themselves page by page with an
// explicit delay rather than looping, which bounds write amplification
// and lets a crashed run resume from its persisted cursor.
//
// RunAfter returns an error only when enqueueing fails; task failures are
// the implementation's to report (they must not silently stall the queue).
type Scheduler interface {
	RunAfter(ctx context.Context, delay time.Duration, name string, task Task) error
}
