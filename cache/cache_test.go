package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/substrate/config"
	"github.com/agentmesh/substrate/types"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CacheBudgetBytes = 1024
	cfg.DefaultEntryTTL = time.Hour
	cfg.ReaperInterval = time.Hour
	return cfg
}

func TestCache_PutThenGet(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Destroy()

	require.NoError(t, c.Put("a", map[string]string{"v": "1"}, 0))
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"v": "1"}, v)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Destroy()

	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestCache_ExpiredEntryIsMissAndRemoved(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Destroy()

	require.NoError(t, c.Put("a", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.False(t, c.Has("a"))
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestCache_EvictsLRUUnderBudget(t *testing.T) {
	cfg := testConfig()
	cfg.CacheBudgetBytes = 30 // fits exactly two 12-byte entries, forcing eviction on the third
	c := New(cfg, nil)
	defer c.Destroy()

	require.NoError(t, c.Put("a", "aaaaaaaaaa", 0))
	require.NoError(t, c.Put("b", "bbbbbbbbbb", 0))
	_, _ = c.Get("a") // touch a so b is the LRU victim
	require.NoError(t, c.Put("c", "cccccccccc", 0))

	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))
	assert.False(t, c.Has("b"), "b was least-recently-used and should have been evicted")
}

func TestCache_RejectsEntryLargerThanBudget(t *testing.T) {
	cfg := testConfig()
	cfg.CacheBudgetBytes = 10
	c := New(cfg, nil)
	defer c.Destroy()

	require.NoError(t, c.Put("small", "x", 0))
	err := c.Put("big", "this value serializes to well over ten bytes", 0)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidationError, types.CodeOf(err))
	assert.True(t, c.Has("small"), "rejecting the oversized entry must not disturb existing entries")
	assert.False(t, c.Has("big"))
}

func TestCache_OptimizeDropsLeastAccessedQuarter(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Destroy()

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, c.Put(k, k, 0))
	}
	// Touch everything but "a" so it is the clear least-accessed entry.
	c.Get("b")
	c.Get("c")
	c.Get("d")

	dropped := c.Optimize()
	assert.Equal(t, 1, dropped)
	assert.False(t, c.Has("a"))
}

func TestCache_SnapshotRestoreRoundTrip(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Destroy()

	require.NoError(t, c.Put("a", map[string]any{"x": 1.0}, 0))
	data, err := c.Snapshot()
	require.NoError(t, err)

	c2 := New(testConfig(), nil)
	defer c2.Destroy()
	require.NoError(t, c2.Restore(data))

	assert.True(t, c2.Has("a"))
}

func TestCache_SnapshotExcludesExpiredEntries(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Destroy()

	require.NoError(t, c.Put("a", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	data, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestCache_PreloadInsertsPlaceholders(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Destroy()

	require.NoError(t, c.Preload([]string{"photosynthesis"}, []string{"text"}))
	assert.True(t, c.Has(DeriveLLMKey("photosynthesis", "text", 0)))
}

func TestDeriveKey_NormalizesWhitespaceAndCase(t *testing.T) {
	k := DeriveKey("Cell   Biology", "Text", 3, "User One", 2)
	assert.Equal(t, "cell_biology:text:3:user_one:2", k)
}

func TestDerivePrimerKey_DistinctFromLevelZero(t *testing.T) {
	primer := DerivePrimerKey("photosynthesis", "text", "user-1")
	level0 := DeriveKey("photosynthesis", "text", 1, "user-1", 0)
	assert.NotEqual(t, primer, level0)
}
