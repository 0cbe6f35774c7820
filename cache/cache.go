// Package cache implements the Content Cache (spec.md §4.4): a
// byte-budgeted, TTL-aware, strict-LRU store for generated artifacts, with
// snapshot export/import for warm start. Grounded on
// llm/cache/prompt_cache.go's LRUCache (hand-rolled doubly-linked list) and
// MultiLevelCache (optional second persistence tier).
package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/agentmesh/substrate/config"
	"github.com/agentmesh/substrate/observability"
	"github.com/agentmesh/substrate/types"
)

// Stats is a point-in-time snapshot of cache occupancy and effectiveness.
type Stats struct {
	EntryCount int
	HitRate    float64
	TotalBytes int64
	Budget     int64
	Oldest     time.Time
	Newest     time.Time
}

// persistedEntry is the snapshot wire format for one non-expired entry.
type persistedEntry struct {
	Key         string          `json:"key"`
	Artifact    json.RawMessage `json:"artifact"`
	SizeBytes   int64           `json:"size_bytes"`
	CreatedAt   time.Time       `json:"created_at"`
	LastAccess  time.Time       `json:"last_access"`
	AccessCount int64           `json:"access_count"`
	TTLMillis   int64           `json:"ttl_millis"`
}

// Cache is the Content Cache.
type Cache struct {
	cfg  *config.Config
	sink observability.Sink

	mu           sync.Mutex
	list         *lruList
	index        map[string]*node
	currentBytes int64
	hits, misses int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Cache bounded at cfg.CacheBudgetBytes, with a background
// reaper ticking every cfg.ReaperInterval.
func New(cfg *config.Config, sink observability.Sink) *Cache {
	if sink == nil {
		sink = observability.NopSink{}
	}
	c := &Cache{
		cfg:    cfg,
		sink:   sink,
		list:   newLRUList(),
		index:  make(map[string]*node),
		stopCh: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.reap()
	return c
}

// Get returns the artifact stored under key, bumping its access count and
// last-access instant on hit. A stale entry is evicted and reported as a
// miss.
func (c *Cache) Get(key string) (any, bool) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.index[key]
	if !ok {
		c.misses++
		c.sink.Emit("cache_miss", map[string]any{"key": key})
		return nil, false
	}
	if n.expired(now) {
		c.removeLocked(n)
		c.misses++
		c.sink.Emit("cache_miss", map[string]any{"key": key})
		return nil, false
	}
	n.accessCount++
	n.lastAccess = now
	c.list.moveToHead(n)
	c.hits++
	c.sink.Emit("cache_hit", map[string]any{"key": key})
	return n.artifact, true
}

// Has reports whether key is present and not stale, without affecting hit
// rate or recency.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.index[key]
	return ok && !n.expired(time.Now())
}

// Put stores artifact under key. If ttl is zero, cfg.DefaultEntryTTL is
// used. Pre-eviction happens before insertion: LRU entries are dropped
// until the new entry fits the byte budget.
func (c *Cache) Put(key string, artifact any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultEntryTTL
	}
	size, err := estimateSize(artifact)
	if err != nil {
		return err
	}

	budget := c.cfg.CacheBudgetBytes
	if budget > 0 && size > budget {
		return types.NewError(types.ErrValidationError, "artifact exceeds cache byte budget").
			WithContext("size_bytes", size).WithContext("budget_bytes", budget).WithRetryable(false)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.index[key]; ok {
		c.removeLocked(existing)
	}

	for c.currentBytes+size > budget {
		victim := c.list.evictTail()
		if victim == nil {
			break
		}
		delete(c.index, victim.key)
		c.currentBytes -= victim.sizeBytes
		c.sink.Emit("cache_evicted", map[string]any{"key": victim.key})
	}

	now := time.Now()
	n := &node{key: key, artifact: artifact, sizeBytes: size, createdAt: now, lastAccess: now, ttl: ttl}
	c.list.addToHead(n)
	c.index[key] = n
	c.currentBytes += size
	c.sink.Emit("cache_put", map[string]any{"key": key, "size_bytes": size})
	return nil
}

func (c *Cache) removeLocked(n *node) {
	c.list.remove(n)
	delete(c.index, n.key)
	c.currentBytes -= n.sizeBytes
}

// Preload inserts placeholder artifacts for every concept x modality pair,
// with an extended TTL (7x the default) so warm-start content survives
// longer than normally-generated entries.
func (c *Cache) Preload(concepts, modalities []string) error {
	extended := 7 * c.cfg.DefaultEntryTTL
	for _, concept := range concepts {
		for _, modality := range modalities {
			key := DeriveLLMKey(concept, modality, 0)
			placeholder := map[string]any{"placeholder": true, "concept": concept, "modality": modality}
			if err := c.Put(key, placeholder, extended); err != nil {
				return err
			}
		}
	}
	return nil
}

// Optimize drops the least-accessed 25% of entries, ties broken by oldest
// last-access instant.
func (c *Cache) Optimize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := make([]*node, 0, len(c.index))
	for _, n := range c.index {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].accessCount != all[j].accessCount {
			return all[i].accessCount < all[j].accessCount
		}
		return all[i].lastAccess.Before(all[j].lastAccess)
	})

	drop := (len(all) + 3) / 4 // ceil(25%)
	for i := 0; i < drop; i++ {
		c.removeLocked(all[i])
	}
	return drop
}

// Stats returns entry count, hit rate, occupancy, and age bounds.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldest, newest time.Time
	for _, n := range c.index {
		if oldest.IsZero() || n.createdAt.Before(oldest) {
			oldest = n.createdAt
		}
		if newest.IsZero() || n.createdAt.After(newest) {
			newest = n.createdAt
		}
	}

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		EntryCount: len(c.index),
		HitRate:    hitRate,
		TotalBytes: c.currentBytes,
		Budget:     c.cfg.CacheBudgetBytes,
		Oldest:     oldest,
		Newest:     newest,
	}
}

// Snapshot serializes every non-expired entry for warm-start restore.
func (c *Cache) Snapshot() ([]byte, error) {
	now := time.Now()
	c.mu.Lock()
	out := make([]persistedEntry, 0, len(c.index))
	for _, n := range c.index {
		if n.expired(now) {
			continue
		}
		raw, err := json.Marshal(n.artifact)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		out = append(out, persistedEntry{
			Key: n.key, Artifact: raw, SizeBytes: n.sizeBytes, CreatedAt: n.createdAt,
			LastAccess: n.lastAccess, AccessCount: n.accessCount, TTLMillis: n.ttl.Milliseconds(),
		})
	}
	c.mu.Unlock()

	return json.Marshal(out)
}

// Restore replaces the cache's contents with the non-expired entries
// encoded in data, evaluating staleness against their original CreatedAt.
// Restored artifacts come back as json.RawMessage; callers that need the
// original Go type must unmarshal it themselves.
func (c *Cache) Restore(data []byte) error {
	var persisted []persistedEntry
	if err := json.Unmarshal(data, &persisted); err != nil {
		return err
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list = newLRUList()
	c.index = make(map[string]*node)
	c.currentBytes = 0

	for _, p := range persisted {
		ttl := time.Duration(p.TTLMillis) * time.Millisecond
		n := &node{
			key: p.Key, artifact: p.Artifact, sizeBytes: p.SizeBytes,
			createdAt: p.CreatedAt, lastAccess: p.LastAccess, accessCount: p.AccessCount, ttl: ttl,
		}
		if n.expired(now) {
			continue
		}
		c.list.addToHead(n)
		c.index[p.Key] = n
		c.currentBytes += p.SizeBytes
	}
	return nil
}

// Destroy stops the background reaper and clears all state. The Cache must
// not be used afterward.
func (c *Cache) Destroy() {
	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = newLRUList()
	c.index = make(map[string]*node)
	c.currentBytes = 0
}

func (c *Cache) reap() {
	defer c.wg.Done()
	interval := c.cfg.ReaperInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*node
	c.list.forEachFromTail(func(n *node) bool {
		if n.expired(now) {
			expired = append(expired, n)
		}
		return true
	})
	for _, n := range expired {
		c.removeLocked(n)
	}
	if len(expired) > 0 {
		c.sink.Emit("cache_reaped", map[string]any{"count": len(expired)})
	}
}

func estimateSize(artifact any) (int64, error) {
	data, err := json.Marshal(artifact)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}
