package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysSucceed(content string) Generator {
	return func(ctx context.Context, req Request) (Artifact, error) {
		return Artifact{Content: content}, nil
	}
}

func alwaysFail(msg string) Generator {
	return func(ctx context.Context, req Request) (Artifact, error) {
		return Artifact{}, errors.New(msg)
	}
}

func TestRouter_SelectsHighestPriorityFirst(t *testing.T) {
	r := New(nil, []Config{
		{Name: "secondary", Priority: 2, Generate: alwaysSucceed("secondary")},
		{Name: "primary", Priority: 1, Generate: alwaysSucceed("primary")},
	})

	a, err := r.Generate(context.Background(), Request{Concept: "photosynthesis"})
	require.NoError(t, err)
	assert.Equal(t, "primary", a.Content)
	assert.Equal(t, "primary", a.Provenance)
}

func TestRouter_FailsOverOnError(t *testing.T) {
	r := New(nil, []Config{
		{Name: "primary", Priority: 1, Generate: alwaysFail("boom")},
		{Name: "secondary", Priority: 2, Generate: alwaysSucceed("secondary")},
	})

	a, err := r.Generate(context.Background(), Request{Concept: "photosynthesis"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", a.Content)
}

func TestRouter_StaticFallbackWhenAllFail(t *testing.T) {
	r := New(nil, []Config{
		{Name: "p1", Priority: 1, Generate: alwaysFail("boom")},
		{Name: "p2", Priority: 2, Generate: alwaysFail("boom")},
	})
	r.SetFallbackTable([]FallbackRule{
		{MatchSubstring: "photo", Artifact: Artifact{Content: "canned"}},
	})

	a, err := r.Generate(context.Background(), Request{Concept: "photosynthesis"})
	require.NoError(t, err)
	assert.Equal(t, "canned", a.Content)
	assert.Equal(t, "static", a.Provenance)
	assert.EqualValues(t, 1, r.FallbackTriggered(), "one increment for the call, regardless of how many candidates failed")
}

func TestRouter_ReturnsLastErrorWhenNoFallbackMatches(t *testing.T) {
	r := New(nil, []Config{
		{Name: "primary", Priority: 1, Generate: alwaysFail("boom")},
	})

	_, err := r.Generate(context.Background(), Request{Concept: "unrelated"})
	assert.Error(t, err)
}

func TestRouter_RateLimitSkipsExhaustedProvider(t *testing.T) {
	r := New(nil, []Config{
		{Name: "limited", Priority: 1, RateLimit: 1, Generate: alwaysSucceed("limited")},
		{Name: "fallback", Priority: 2, Generate: alwaysSucceed("fallback")},
	})

	a1, err := r.Generate(context.Background(), Request{Concept: "x"})
	require.NoError(t, err)
	assert.Equal(t, "limited", a1.Content)

	a2, err := r.Generate(context.Background(), Request{Concept: "x"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", a2.Content, "second call should skip the rate-limited provider")
}

func TestRouter_CooldownSkipsAfterFiveErrors(t *testing.T) {
	r := New(nil, []Config{
		{Name: "flaky", Priority: 1, Generate: alwaysFail("boom")},
		{Name: "backup", Priority: 2, Generate: alwaysSucceed("backup")},
	})

	for i := 0; i < 5; i++ {
		_, _ = r.Generate(context.Background(), Request{Concept: "x"})
	}

	health := r.ProviderHealth()
	var flaky Health
	for _, h := range health {
		if h.Name == "flaky" {
			flaky = h
		}
	}
	assert.True(t, flaky.InCooldown)
	assert.Equal(t, StatusCooldown, flaky.Status)
}

func TestRouter_StatusDerivation(t *testing.T) {
	tests := []struct {
		name         string
		enabled      bool
		rateLimited  bool
		cooldown     bool
		recentErrors int
		want         Status
	}{
		{"disabled wins", false, true, true, 10, StatusDisabled},
		{"rate limited", true, true, false, 0, StatusRateLimited},
		{"cooldown", true, false, true, 0, StatusCooldown},
		{"unstable", true, false, false, 4, StatusUnstable},
		{"degraded", true, false, false, 1, StatusDegraded},
		{"healthy", true, false, false, 0, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveStatus(tt.enabled, tt.rateLimited, tt.cooldown, tt.recentErrors)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_AdminOperations(t *testing.T) {
	r := New(nil, []Config{
		{Name: "a", Priority: 1, RateLimit: 1, Generate: alwaysFail("boom")},
		{Name: "b", Priority: 2, Generate: alwaysSucceed("b")},
	})

	r.SetEnabled("b", false)
	_, err := r.Generate(context.Background(), Request{Concept: "x"})
	assert.Error(t, err, "only provider a remains a candidate, and it fails")

	r.SetEnabled("b", true)
	r.SetPriority("b", 0)
	a, err := r.Generate(context.Background(), Request{Concept: "x"})
	require.NoError(t, err)
	assert.Equal(t, "b", a.Content, "b now outranks a")

	r.ResetRateLimits()
	r.ClearErrorHistory()
	for _, h := range r.ProviderHealth() {
		assert.False(t, h.InCooldown)
		assert.False(t, h.RateLimitedNow)
	}
}

func TestRouter_RateLimitWindowResetsAfterExpiry(t *testing.T) {
	e := newEntry(Config{Name: "p", RateLimit: 1})
	now := time.Now()
	assert.True(t, e.checkAndConsumeRateLimit(now))
	assert.False(t, e.checkAndConsumeRateLimit(now))

	later := now.Add(61 * time.Second)
	assert.True(t, e.checkAndConsumeRateLimit(later))
}
