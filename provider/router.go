package provider

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentmesh/substrate/observability"
	"github.com/agentmesh/substrate/types"
)

// FallbackRule is one row of the static-fallback table: a coarse substring
// match against the request's concept, producing a pre-written artifact
// with a synthetic "static" provenance stamp.
type FallbackRule struct {
	MatchSubstring string
	Artifact       Artifact
}

// Router is the Provider Router.
type Router struct {
	sink observability.Sink

	mu       sync.RWMutex
	entries  map[string]*entry
	fallback []FallbackRule

	fallbackTriggered atomic.Int64
}

// New constructs a Router from the given provider configs, tried in
// ascending Priority order. Providers with equal Priority are tried in no
// defined order; registration order is not kept.
func New(sink observability.Sink, configs []Config) *Router {
	if sink == nil {
		sink = observability.NopSink{}
	}
	r := &Router{sink: sink, entries: make(map[string]*entry, len(configs))}
	for _, c := range configs {
		r.entries[c.Name] = newEntry(c)
	}
	return r
}

// SetFallbackTable replaces the static-fallback rules, evaluated in order.
func (r *Router) SetFallbackTable(rules []FallbackRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = rules
}

// candidates returns enabled, non-cooldown providers sorted by ascending
// priority rank, per spec.md §4.3's selection algorithm.
func (r *Router) candidates(now time.Time) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.isEnabled() && !e.inCooldown(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].getPriority() < out[j].getPriority() })
	return out
}

// Generate runs the selection and failover algorithm, falling back to the
// static table and finally the last provider error.
func (r *Router) Generate(ctx context.Context, req Request) (Artifact, error) {
	now := time.Now()
	var lastErr error
	failedOver := false

	for _, e := range r.candidates(now) {
		if !e.checkAndConsumeRateLimit(time.Now()) {
			continue
		}

		timeout := e.timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		artifact, err := e.generate(callCtx, req)
		cancel()

		if err == nil {
			e.recordSuccess()
			r.sink.Emit("provider_call_succeeded", map[string]any{
				"provider": e.name, "elapsed_ms": time.Since(start).Milliseconds(),
			})
			if artifact.Provenance == "" {
				artifact.Provenance = e.name
			}
			return artifact, nil
		}

		e.recordError(time.Now())
		lastErr = err
		failedOver = true
		r.sink.Emit("provider_call_failed", map[string]any{
			"provider": e.name, "error": err.Error(),
		})
	}

	if failedOver {
		r.fallbackTriggered.Add(1)
	}

	if artifact, ok := r.staticFallback(req); ok {
		r.sink.Emit("static_fallback_used", map[string]any{"concept": req.Concept})
		return artifact, nil
	}

	if lastErr == nil {
		lastErr = types.NewError(types.ErrAllProvidersFailed, "no candidate providers available").
			WithContext("concept", req.Concept)
	}
	return Artifact{}, types.NewError(types.ErrAllProvidersFailed, "all providers failed").
		WithCause(lastErr).WithContext("concept", req.Concept)
}

func (r *Router) staticFallback(req Request) (Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.fallback {
		if strings.Contains(req.Concept, rule.MatchSubstring) {
			a := rule.Artifact
			a.Provenance = "static"
			return a, true
		}
	}
	return Artifact{}, false
}

// FallbackTriggered returns the number of Generate calls that had to move
// past at least one failed provider, matching spec.md §4.3's
// fallbackTriggeredCounter and scenario #3 ("fallbackTriggered counter
// increments by 1" for a call where both P1 and P2 fail before the static
// rule matches — one increment per call, not per failed candidate).
func (r *Router) FallbackTriggered() int64 {
	return r.fallbackTriggered.Load()
}

// ProviderHealth returns a Health snapshot for every registered provider.
func (r *Router) ProviderHealth() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	out := make([]Health, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.health(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEnabled toggles whether a provider is a selection candidate.
func (r *Router) SetEnabled(providerName string, enabled bool) {
	if e := r.lookup(providerName); e != nil {
		e.setEnabled(enabled)
	}
}

// SetPriority changes a provider's selection rank.
func (r *Router) SetPriority(providerName string, rank int) {
	if e := r.lookup(providerName); e != nil {
		e.setPriority(rank)
	}
}

// ResetRateLimits clears every provider's rate-limit window.
func (r *Router) ResetRateLimits() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.resetRateLimit()
	}
}

// ClearErrorHistory clears every provider's recorded error history,
// releasing any cooldown.
func (r *Router) ClearErrorHistory() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.clearErrorHistory()
	}
}

func (r *Router) lookup(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}
