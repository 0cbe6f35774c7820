package bus

import (
	"time"

	"github.com/agentmesh/substrate/types"
)

// envelope is the bus-owned wrapper around an immutable Message: it carries
// everything the dispatcher needs to mutate across retries without ever
// touching the Message itself, per spec.md §9 ("the envelope is owned by the
// bus, never leaks"). Callers only ever see the Message.
type envelope struct {
	msg        types.Message
	seq        uint64 // enqueue sequence, the heap's tie-break
	enqueuedAt time.Time
	eligibleAt time.Time // retry backoff floor; zero means "now"
	attempt    int
	lastErr    error
}

func newEnvelope(msg types.Message, seq uint64, now time.Time) *envelope {
	return &envelope{
		msg:        msg,
		seq:        seq,
		enqueuedAt: now,
		eligibleAt: now,
	}
}

// retry bumps the attempt counter and schedules the next eligible instant
// using the bus's exponential backoff: min(2^attempt * 1s, 30s).
func (e *envelope) retry(cause error, now time.Time) {
	e.attempt++
	e.lastErr = cause
	e.eligibleAt = now.Add(backoffDelay(e.attempt))
}

func backoffDelay(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt && d < 30*time.Second; i++ {
		d *= 2
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
