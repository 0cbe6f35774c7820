package cache

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/agentmesh/substrate/config"
)

// TestCache_NeverExceedsBudget exercises Put with random keys and value
// sizes and asserts currentBytes <= budget holds after every call, the
// invariant from spec.md §8 for pre-eviction-before-insert.
func TestCache_NeverExceedsBudget(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := config.Default()
		cfg.CacheBudgetBytes = int64(rapid.IntRange(16, 512).Draw(rt, "budget"))
		c := New(cfg, nil)
		defer c.Destroy()

		n := rapid.IntRange(0, 50).Draw(rt, "n")
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("k%d", rapid.IntRange(0, 10).Draw(rt, "key"))
			value := rapid.StringN(0, 64, -1).Draw(rt, "value")
			// Put rejects an entry too large for the whole budget outright
			// (spec.md §8): that is not a violation of I4, it is how I4 is
			// upheld for the oversized case.
			_ = c.Put(key, value, 0)
			if c.Stats().TotalBytes > cfg.CacheBudgetBytes {
				rt.Fatalf("currentBytes %d exceeds budget %d with %d entries",
					c.Stats().TotalBytes, cfg.CacheBudgetBytes, c.Stats().EntryCount)
			}
		}
	})
}
