package provider

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRouter_SucceedsWheneverAnyCandidateWould verifies the router's
// monotonic-fallback invariant: as long as at least one enabled,
// non-rate-limited, non-cooldown provider would succeed, Generate succeeds,
// regardless of how many providers precede it in priority order and fail.
func TestRouter_SucceedsWheneverAnyCandidateWould(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("generate succeeds iff at least one provider succeeds", prop.ForAll(
		func(outcomes []bool) bool {
			if len(outcomes) == 0 {
				return true
			}
			configs := make([]Config, len(outcomes))
			anySucceeds := false
			for i, ok := range outcomes {
				ok := ok
				name := fmt.Sprintf("p%d", i)
				if ok {
					anySucceeds = true
					configs[i] = Config{Name: name, Priority: i, Generate: alwaysSucceed(name)}
				} else {
					configs[i] = Config{Name: name, Priority: i, Generate: alwaysFail("fail")}
				}
			}

			r := New(nil, configs)
			_, err := r.Generate(context.Background(), Request{Concept: "x"})
			return (err == nil) == anySucceeds
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
