// Package mocks holds call-recording test doubles for the core components'
// collaborator interfaces, grounded on the teacher's mocks.MockProvider
// builder style.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/substrate/provider"
)

// GeneratorCall records one invocation of a MockGenerator.
type GeneratorCall struct {
	Request  provider.Request
	Artifact provider.Artifact
	Err      error
}

// MockGenerator is a builder-style stand-in for a provider.Generator,
// mirroring the teacher's MockProvider: fixed responses, error injection,
// artificial delay, and fail-after-N-calls, with every call recorded for
// later assertions.
type MockGenerator struct {
	mu sync.Mutex

	artifact     provider.Artifact
	err          error
	delay        time.Duration
	failAfter    int
	callCount    int
	generateFunc func(ctx context.Context, req provider.Request) (provider.Artifact, error)

	calls []GeneratorCall
}

// NewMockGenerator creates a MockGenerator that echoes the request's
// concept back as its artifact content and its complexity as the
// artifact's Complexity.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// WithArtifact sets the fixed artifact returned by every call.
func (m *MockGenerator) WithArtifact(a provider.Artifact) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifact = a
	return m
}

// WithError sets an error returned by every call.
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay sets an artificial latency observed before each call returns,
// useful for exercising the admission queue's timeout and cancellation
// paths.
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter makes the generator fail starting with the (n+1)th call,
// for exercising cooldown and circuit-breaker thresholds.
func (m *MockGenerator) WithFailAfter(n int) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithGenerateFunc overrides the default behavior entirely with a custom
// function.
func (m *MockGenerator) WithGenerateFunc(fn func(ctx context.Context, req provider.Request) (provider.Artifact, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateFunc = fn
	return m
}

// Generate implements provider.Generator.
func (m *MockGenerator) Generate(ctx context.Context, req provider.Request) (provider.Artifact, error) {
	m.mu.Lock()
	m.callCount++
	failAfter := m.failAfter
	count := m.callCount
	delay := m.delay
	fn := m.generateFunc
	presetErr := m.err
	artifact := m.artifact
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err := ctx.Err()
			m.record(req, provider.Artifact{}, err)
			return provider.Artifact{}, err
		}
	}

	if failAfter > 0 && count > failAfter {
		err := &mockExhaustedError{}
		m.record(req, provider.Artifact{}, err)
		return provider.Artifact{}, err
	}
	if presetErr != nil {
		m.record(req, provider.Artifact{}, presetErr)
		return provider.Artifact{}, presetErr
	}
	if fn != nil {
		a, err := fn(ctx, req)
		m.record(req, a, err)
		return a, err
	}

	if artifact.Content == nil {
		artifact = provider.Artifact{Content: req.Concept, Provenance: "mock", Complexity: req.Complexity}
	}
	m.record(req, artifact, nil)
	return artifact, nil
}

func (m *MockGenerator) record(req provider.Request, a provider.Artifact, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, GeneratorCall{Request: req, Artifact: a, Err: err})
}

// Calls returns a copy of every recorded call.
func (m *MockGenerator) Calls() []GeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GeneratorCall{}, m.calls...)
}

// CallCount returns the number of times Generate has been invoked.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears call history and counters, keeping configured behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}

type mockExhaustedError struct{}

func (e *mockExhaustedError) Error() string { return "mock generator: configured to fail after N calls" }

// NewFlakyGenerator creates a generator that succeeds with the given
// artifact until failAfter calls, then fails on every subsequent call —
// the shape needed to drive a provider.Router's cooldown accounting in
// tests.
func NewFlakyGenerator(artifact provider.Artifact, failAfter int) *MockGenerator {
	return NewMockGenerator().WithArtifact(artifact).WithFailAfter(failAfter)
}

// NewErrorGenerator creates a generator that always fails with err.
func NewErrorGenerator(err error) *MockGenerator {
	return NewMockGenerator().WithError(err)
}
