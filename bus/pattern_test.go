package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/substrate/types"
)

func TestBus_BroadcastPatternReachesSubscribers(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Close()

	h := &recordingHandler{}
	b.Subscribe("agent-a", h)

	require.NoError(t, b.Broadcast("coordinator", types.KindEvent, types.PriorityHigh, "go"))
	waitUntil(t, time.Second, func() bool { return h.callCount() == 1 })
}

func TestBus_PipelineSharesCorrelationID(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Close()

	var mu sync.Mutex
	var seen []types.Message
	h := HandlerFunc(func(_ context.Context, msg types.Message) error {
		mu.Lock()
		seen = append(seen, msg)
		mu.Unlock()
		return nil
	})
	b.Subscribe("stage-a", h)
	b.Subscribe("stage-b", h)

	require.NoError(t, b.Pipeline("coordinator", []string{"stage-a", "stage-b"}, types.PriorityMedium, "payload"))
	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, seen[0].CorrelationID, seen[1].CorrelationID)
	assert.NotEmpty(t, seen[0].CorrelationID)
}

func TestBus_PipelineRejectsEmptyStages(t *testing.T) {
	b := New(testConfig(), nil)
	defer b.Close()

	err := b.Pipeline("coordinator", nil, types.PriorityMedium, "payload")
	assert.Error(t, err)
}
