package bus

import (
	"sync"
	"time"
)

// breakerState mirrors llm/circuitbreaker's Closed/Open/HalfOpen machine,
// keyed here per recipient participant rather than per provider.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// participantBreaker is a single participant's circuit breaker. A half-open
// probe is exclusive: a second delivery attempt arriving while a probe is in
// flight fails fast rather than queuing behind it (spec.md §9 open question
// decision), so at most one message tests recovery at a time.
type participantBreaker struct {
	mu              sync.Mutex
	state           breakerState
	failures        int
	openedAt        time.Time
	halfOpenInUse   bool
	threshold       int
	recoveryWindow  time.Duration
}

func newParticipantBreaker(threshold int, recovery time.Duration) *participantBreaker {
	return &participantBreaker{threshold: threshold, recoveryWindow: recovery}
}

// allow reports whether a delivery attempt may proceed, transitioning Open ->
// HalfOpen once the recovery window has elapsed.
func (b *participantBreaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.Sub(b.openedAt) < b.recoveryWindow {
			return false
		}
		b.state = breakerHalfOpen
		b.halfOpenInUse = true
		return true
	case breakerHalfOpen:
		if b.halfOpenInUse {
			return false
		}
		b.halfOpenInUse = true
		return true
	default:
		return true
	}
}

func (b *participantBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpenInUse = false
	b.state = breakerClosed
}

func (b *participantBreaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halfOpenInUse = false

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = now
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = breakerOpen
		b.openedAt = now
	}
}

func (b *participantBreaker) stateString() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
