package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisPersister_SaveLoadRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	p := NewRedisPersister(client, "substrate:cache:snapshot")

	c := New(testConfig(), nil)
	defer c.Destroy()
	require.NoError(t, c.Put("a", "v", 0))

	require.NoError(t, SaveSnapshot(ctx, c, p))

	c2 := New(testConfig(), nil)
	defer c2.Destroy()
	require.NoError(t, LoadSnapshot(ctx, c2, p))

	require.True(t, c2.Has("a"))
}

func TestRedisPersister_LoadMissingKeyIsNoop(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	p := NewRedisPersister(client, "substrate:cache:missing")

	c := New(testConfig(), nil)
	defer c.Destroy()
	require.NoError(t, LoadSnapshot(ctx, c, p))
	require.Equal(t, 0, c.Stats().EntryCount)
}
