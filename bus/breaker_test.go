package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantBreaker_TripsAfterThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		failures  int
		wantState breakerState
	}{
		{"below threshold stays closed", 3, 2, breakerClosed},
		{"at threshold trips open", 3, 3, breakerOpen},
		{"past threshold stays open", 3, 5, breakerOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newParticipantBreaker(tt.threshold, time.Minute)
			now := time.Now()
			for i := 0; i < tt.failures; i++ {
				// Calls pass until the breaker trips; once open, they fail fast.
				require.Equal(t, i < tt.threshold, b.allow(now))
				b.recordFailure(now)
			}
			assert.Equal(t, tt.wantState, b.state)
		})
	}
}

func TestParticipantBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := newParticipantBreaker(1, 10*time.Millisecond)
	now := time.Now()

	require.True(t, b.allow(now))
	b.recordFailure(now)
	assert.Equal(t, breakerOpen, b.state)

	assert.False(t, b.allow(now), "still inside recovery window")

	later := now.Add(20 * time.Millisecond)
	assert.True(t, b.allow(later), "recovery window elapsed, probe allowed")
	assert.Equal(t, breakerHalfOpen, b.state)

	assert.False(t, b.allow(later), "second concurrent probe fails fast")

	b.recordSuccess()
	assert.Equal(t, breakerClosed, b.state)
}

func TestParticipantBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newParticipantBreaker(1, 10*time.Millisecond)
	now := time.Now()
	b.allow(now)
	b.recordFailure(now)

	later := now.Add(20 * time.Millisecond)
	require.True(t, b.allow(later))
	b.recordFailure(later)

	assert.Equal(t, breakerOpen, b.state)
}
