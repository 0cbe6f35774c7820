package provider

import (
	"sync"
	"time"
)

// Config describes one registered provider at construction time.
type Config struct {
	Name       string
	Priority   int // lower rank is tried first
	RateLimit  int // max requests per fixed 60s window
	Timeout    time.Duration
	Generate   Generator
}

// entry is the router-owned mutable state for one provider: rate-limit
// window, error history, enabled flag, and usage counter. Grounded on
// llm/router/router.go's per-candidate health bookkeeping.
type entry struct {
	mu sync.Mutex

	name      string
	priority  int
	rateLimit int
	timeout   time.Duration
	generate  Generator
	enabled   bool

	resetInstant time.Time
	windowCount  int

	errors []time.Time // recorded error instants, pruned lazily
	usage  int64
}

func newEntry(cfg Config) *entry {
	return &entry{
		name:      cfg.Name,
		priority:  cfg.Priority,
		rateLimit: cfg.RateLimit,
		timeout:   cfg.Timeout,
		generate:  cfg.Generate,
		enabled:   true,
	}
}

// checkAndConsumeRateLimit reports whether a call may proceed right now,
// consuming one slot from the fixed window if so. The window resets to
// [now, now+60s) the first time it is observed expired — drift-preserving,
// not wall-clock aligned, per spec.md §9.
func (e *entry) checkAndConsumeRateLimit(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rateLimit <= 0 {
		return true
	}
	if now.After(e.resetInstant) || now.Equal(e.resetInstant) {
		e.resetInstant = now.Add(rateLimitWindow)
		e.windowCount = 0
	}
	if e.windowCount >= e.rateLimit {
		return false
	}
	e.windowCount++
	return true
}

func (e *entry) isRateLimited(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rateLimit <= 0 {
		return false
	}
	if now.After(e.resetInstant) {
		return false
	}
	return e.windowCount >= e.rateLimit
}

func (e *entry) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usage++
}

func (e *entry) recordError(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usage++
	e.errors = append(e.errors, now)
	e.pruneErrorsLocked(now)
}

// pruneErrorsLocked drops error timestamps older than the larger of the two
// accounting windows (cooldown, recent-error count). Caller holds e.mu.
func (e *entry) pruneErrorsLocked(now time.Time) {
	horizon := errorAccountWindow
	if cooldownWindow > horizon {
		horizon = cooldownWindow
	}
	cutoff := now.Add(-horizon)
	i := 0
	for i < len(e.errors) && e.errors[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		e.errors = e.errors[i:]
	}
}

func (e *entry) errorsSince(now time.Time, window time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneErrorsLocked(now)
	cutoff := now.Add(-window)
	count := 0
	for _, ts := range e.errors {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

func (e *entry) inCooldown(now time.Time) bool {
	return e.errorsSince(now, cooldownWindow) >= cooldownThreshold
}

func (e *entry) clearErrorHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = nil
}

func (e *entry) resetRateLimit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.windowCount = 0
	e.resetInstant = time.Time{}
}

func (e *entry) setEnabled(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = v
}

func (e *entry) setPriority(p int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priority = p
}

func (e *entry) isEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

func (e *entry) getPriority() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.priority
}

func (e *entry) health(now time.Time) Health {
	e.mu.Lock()
	enabled := e.enabled
	usage := e.usage
	e.mu.Unlock()

	recent := e.errorsSince(now, errorAccountWindow)
	rateLimited := e.isRateLimited(now)
	cooldown := e.inCooldown(now)

	return Health{
		Name:           e.name,
		Enabled:        enabled,
		RateLimitedNow: rateLimited,
		InCooldown:     cooldown,
		RecentErrors:   recent,
		UsageCount:     usage,
		Status:         deriveStatus(enabled, rateLimited, cooldown, recent),
	}
}

func deriveStatus(enabled, rateLimited, cooldown bool, recentErrors int) Status {
	switch {
	case !enabled:
		return StatusDisabled
	case rateLimited:
		return StatusRateLimited
	case cooldown:
		return StatusCooldown
	case recentErrors > 3:
		return StatusUnstable
	case recentErrors >= 1:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
