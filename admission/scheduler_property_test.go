package admission

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/agentmesh/substrate/types"
)

// TestScheduler_InFlightNeverExceedsMax exercises the scheduler with a
// random number of concurrently-submitted tasks and asserts the
// inFlight <= maxConcurrentAdmissions invariant from spec.md §8 holds
// throughout, regardless of submission order or count.
func TestScheduler_InFlightNeverExceedsMax(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		max := rapid.IntRange(1, 4).Draw(rt, "max")
		n := rapid.IntRange(0, 20).Draw(rt, "n")

		cfg := testConfig()
		cfg.MaxConcurrentAdmissions = max
		s := New(cfg, nil)
		defer s.Close()

		var violated atomic.Bool
		producer := func(ctx context.Context) (any, error) {
			if int(s.inFlight.Load()) > max {
				violated.Store(true)
			}
			time.Sleep(time.Millisecond)
			return nil, nil
		}

		var handles []*Handle
		for i := 0; i < n; i++ {
			h, err := s.Submit(Task{
				ID:                rapid.StringN(1, 8, 8).Draw(rt, "id") + string(rune('a'+i%26)),
				Priority:          types.PriorityMedium,
				EstimatedDuration: 50 * time.Millisecond,
				Producer:          producer,
			})
			if err != nil {
				rt.Fatalf("submit: %v", err)
			}
			handles = append(handles, h)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, h := range handles {
			_, _ = h.Wait(ctx)
		}

		if violated.Load() {
			rt.Fatal("inFlight exceeded maxConcurrentAdmissions")
		}
	})
}
