// Package admission implements the Admission Queue (spec.md §4.2): a
// bounded-concurrency, priority-ordered scheduler for deferred producer
// functions, with per-task deadlines and exponential-backoff retry.
package admission

import (
	"context"
	"time"

	"github.com/agentmesh/substrate/types"
)

// Producer is the deferred unit of work a Task wraps. It is invoked with a
// context carrying the task's deadline (2x EstimatedDuration) and must
// respect cancellation.
type Producer func(ctx context.Context) (any, error)

// Task describes a unit of work to admit. ID should be unique per
// submission; callers that resubmit the same logical task should mint a new
// ID, since the scheduler tracks retries against its own envelope, not the
// caller's identity scheme.
type Task struct {
	ID                string
	OriginatorID      string
	Priority          types.Priority
	EstimatedDuration time.Duration
	MaxRetries        int
	Producer          Producer
}

// Result is delivered on a Task's Handle once the scheduler reaches a
// terminal outcome (success, or a failure with no retries left). A task
// still queued when the scheduler is closed receives no Result.
type Result struct {
	Value any
	Err   error
}

// Handle lets a caller await a submitted Task's outcome without blocking the
// scheduler itself.
type Handle struct {
	done chan Result
}

// Wait blocks until the task completes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-h.done:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newHandle() *Handle {
	return &Handle{done: make(chan Result, 1)}
}
