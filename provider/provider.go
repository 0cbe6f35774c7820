// Package provider implements the Provider Router (spec.md §4.3): a ranked,
// rate-limited, cooldown-aware failover chain ending in a static fallback
// table, grounded on llm/router/router.go's WeightedRouter and
// llm/circuitbreaker/breaker.go's failure accounting.
package provider

import (
	"context"
	"time"
)

// Request is the canonical generation request passed to a provider.
type Request struct {
	Concept    string
	Modality   string
	Complexity int
	Payload    any
}

// Artifact is the canonical generation result. Provenance is "static" only
// when synthesized by the fallback table; otherwise it names the provider
// that produced it.
type Artifact struct {
	Content    any
	Provenance string
	Complexity int
}

// Generator is the capability a Provider wraps. Implementations must
// respect ctx's deadline.
type Generator func(ctx context.Context, req Request) (Artifact, error)

// Status is the derived health classification from spec.md §4.3's table.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnstable    Status = "unstable"
	StatusCooldown    Status = "cooldown"
	StatusRateLimited Status = "rate_limited"
	StatusDisabled    Status = "disabled"
)

// Health is a point-in-time report for one provider.
type Health struct {
	Name            string
	Enabled         bool
	RateLimitedNow  bool
	InCooldown      bool
	RecentErrors    int
	UsageCount      int64
	Status          Status
}

const (
	cooldownWindow     = 2 * time.Minute
	cooldownThreshold  = 5
	errorAccountWindow = 5 * time.Minute
	rateLimitWindow    = 60 * time.Second
)
