package admission

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/substrate/config"
	"github.com/agentmesh/substrate/types"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaxConcurrentAdmissions = 2
	cfg.MaxRetries = 1
	return cfg
}

func TestScheduler_SubmitRunsProducer(t *testing.T) {
	s := New(testConfig(), nil)
	defer s.Close()

	h, err := s.Submit(Task{
		ID: "t1", Priority: types.PriorityMedium, EstimatedDuration: 10 * time.Millisecond,
		Producer: func(ctx context.Context) (any, error) { return 42, nil },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestScheduler_BoundsConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentAdmissions = 2
	s := New(cfg, nil)
	defer s.Close()

	var current, maxSeen atomic.Int64
	release := make(chan struct{})

	producer := func(ctx context.Context) (any, error) {
		n := current.Add(1)
		for {
			old := maxSeen.Load()
			if n <= old || maxSeen.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return nil, nil
	}

	var handles []*Handle
	for i := 0; i < 5; i++ {
		h, err := s.Submit(Task{
			ID: "t" + string(rune('a'+i)), Priority: types.PriorityMedium,
			EstimatedDuration: time.Second, Producer: producer,
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, maxSeen.Load(), int64(2))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, h := range handles {
		_, _ = h.Wait(ctx)
	}
}

func TestScheduler_RetriesThenFails(t *testing.T) {
	s := New(testConfig(), nil)
	defer s.Close()

	var attempts atomic.Int64
	h, err := s.Submit(Task{
		ID: "t1", Priority: types.PriorityHigh, EstimatedDuration: 10 * time.Millisecond,
		Producer: func(ctx context.Context) (any, error) {
			attempts.Add(1)
			return nil, types.NewError(types.ErrProviderError, "transient")
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = h.Wait(ctx)
	assert.Error(t, err)
	assert.GreaterOrEqual(t, attempts.Load(), int64(2))
}

func TestScheduler_PauseStopsAdmission(t *testing.T) {
	s := New(testConfig(), nil)
	defer s.Close()
	s.Pause()

	var ran atomic.Bool
	_, err := s.Submit(Task{
		ID: "t1", Priority: types.PriorityMedium, EstimatedDuration: 10 * time.Millisecond,
		Producer: func(ctx context.Context) (any, error) { ran.Store(true); return nil, nil },
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())

	s.Resume()
	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestScheduler_SetPriorityForUserReprioritizesQueued(t *testing.T) {
	s := New(testConfig(), nil)
	defer s.Close()
	s.Pause()

	for i := 0; i < 3; i++ {
		_, err := s.Submit(Task{
			ID: "t" + string(rune('a'+i)), OriginatorID: "user-1", Priority: types.PriorityLow,
			EstimatedDuration: time.Millisecond, Producer: func(ctx context.Context) (any, error) { return nil, nil },
		})
		require.NoError(t, err)
	}

	changed := s.SetPriorityForUser("user-1", types.PriorityCritical)
	assert.Equal(t, 3, changed)

	for _, d := range s.Details() {
		assert.Equal(t, types.PriorityCritical, d.Priority)
	}
}
