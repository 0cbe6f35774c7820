package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPersister mirrors internal/cache/manager.go's Redis-backed Manager,
// giving Cache.Snapshot/Restore an optional second tier so a warm-started
// instance can recover state across process restarts, the way
// llm/cache/prompt_cache.go's MultiLevelCache layers a local LRU over Redis.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister wraps an existing *redis.Client. The snapshot is stored
// as a single opaque blob under redisKey.
func NewRedisPersister(client *redis.Client, redisKey string) *RedisPersister {
	return &RedisPersister{client: client, key: redisKey}
}

// Save writes a Cache.Snapshot() blob to Redis.
func (p *RedisPersister) Save(ctx context.Context, data []byte) error {
	return p.client.Set(ctx, p.key, data, 0).Err()
}

// Load reads a previously Save-d blob, suitable for Cache.Restore. A missing
// key returns (nil, nil): there is simply nothing to warm-start from.
func (p *RedisPersister) Load(ctx context.Context) ([]byte, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SaveSnapshot snapshots c and persists it through p in one call.
func SaveSnapshot(ctx context.Context, c *Cache, p *RedisPersister) error {
	data, err := c.Snapshot()
	if err != nil {
		return err
	}
	return p.Save(ctx, data)
}

// LoadSnapshot loads a persisted snapshot through p and restores it into c.
// It is a no-op if nothing was persisted.
func LoadSnapshot(ctx context.Context, c *Cache, p *RedisPersister) error {
	data, err := p.Load(ctx)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	return c.Restore(data)
}
