package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/agentmesh/substrate/types"
)

func TestHoldingArea_PopOrdersByPriorityThenArrival(t *testing.T) {
	ha := newHoldingArea()
	now := time.Now()

	push := func(seq uint64, p types.Priority) {
		ha.push(newEnvelope(types.Message{Priority: p}, seq, now))
	}

	push(1, types.PriorityLow)
	push(2, types.PriorityCritical)
	push(3, types.PriorityMedium)
	push(4, types.PriorityCritical)
	push(5, types.PriorityHigh)

	var order []uint64
	for ha.len() > 0 {
		order = append(order, ha.pop().seq)
	}

	assert.Equal(t, []uint64{2, 4, 5, 3, 1}, order)
}

func TestHoldingArea_PopNeverIncreasesPriority(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ha := newHoldingArea()
		now := time.Now()

		n := rapid.IntRange(0, 64).Draw(rt, "n")
		priorities := []types.Priority{types.PriorityLow, types.PriorityMedium, types.PriorityHigh, types.PriorityCritical}
		for i := 0; i < n; i++ {
			p := priorities[rapid.IntRange(0, len(priorities)-1).Draw(rt, "p")]
			ha.push(newEnvelope(types.Message{Priority: p}, uint64(i), now))
		}

		last := types.Priority(1 << 30)
		for ha.len() > 0 {
			e := ha.pop()
			if e.msg.Priority > last {
				rt.Fatalf("priority increased: got %v after %v", e.msg.Priority, last)
			}
			last = e.msg.Priority
		}
	})
}
