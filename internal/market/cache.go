package market

import (
	"context"
	"strings"
	"sync"
	"time"

	logx "signalbot/pkg/logx"
)

// Cache stores snapshots by pair for a bounded time.
type Cache interface {
	Get(ctx context.Context, pair string) (*Snapshot, bool, error)
	Set(ctx context.Context, pair string, snap *Snapshot, ttl time.Duration) error
}

type memEntry struct {
	snap    Snapshot
	expires time.Time
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: map[string]memEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, pair string) (*Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[pair]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expires) {
		delete(c.m, pair)
		return nil, false, nil
	}
	snap := e.snap
	return &snap, true, nil
}

func (c *MemoryCache) Set(_ context.Context, pair string, snap *Snapshot, ttl time.Duration) error {
	if snap == nil {
		return nil
	}
	c.mu.Lock()
	c.m[pair] = memEntry{snap: *snap, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Cached wraps a Source; only non-empty snapshots are stored.
type Cached struct {
	src   Source
	cache Cache
	ttl   time.Duration
	log   logx.Logger

	hits, misses func()
}

type CachedOption func(*Cached)

// WithCounters installs hit/miss callbacks, typically metric increments.
func WithCounters(hit, miss func()) CachedOption {
	return func(c *Cached) { c.hits, c.misses = hit, miss }
}

func NewCached(src Source, cache Cache, ttl time.Duration, log logx.Logger, opts ...CachedOption) *Cached {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Cached{src: src, cache: cache, ttl: ttl, log: log, hits: func() {}, misses: func() {}}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cached) Snapshot(ctx context.Context, pair string) (*Snapshot, error) {
	key := strings.ToUpper(strings.TrimSpace(pair))
	if snap, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("snapshot cache read failed", logx.String("pair", key), logx.Err(err))
	} else if ok {
		c.hits()
		return snap, nil
	}
	c.misses()

	snap, err := c.src.Snapshot(ctx, key)
	if err != nil || snap.Empty() {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, snap, c.ttl); err != nil {
		c.log.Warn("snapshot cache write failed", logx.String("pair", key), logx.Err(err))
	}
	return snap, nil
}
