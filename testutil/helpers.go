// Package testutil provides shared test helpers used across the core
// component test suites, grounded on the teacher's testutil/helpers.go:
// context helpers, eventually-true polling, and equality assertions.
package testutil

import (
	"context"
	"reflect"
	"testing"
	"time"
)

// Context returns a context with a generous timeout, canceled automatically
// when the test completes.
func Context(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ContextWithTimeout is Context with a caller-supplied timeout.
func ContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns an already-canceled context, for exercising
// cancellation-handling paths.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// WaitFor polls condition every 10ms until it returns true or timeout
// elapses, reporting which happened first.
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// AssertEventuallyTrue fails the test if condition does not become true
// within timeout.
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// AssertEventuallyEqual fails the test if getter() does not settle on
// expected within timeout.
func AssertEventuallyEqual(t *testing.T, expected any, getter func() any, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last any
	for time.Now().Before(deadline) {
		last = getter()
		if reflect.DeepEqual(expected, last) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("value did not become %v within %v, last value: %v", expected, timeout, last)
}

// WaitForChannel receives from ch or reports timed-out false.
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
