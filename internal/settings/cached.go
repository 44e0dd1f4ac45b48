package settings

import (
	"context"
	"time"

	"github.com/wonny/argos/pkg/redis"
)

// CachedStore is a read-through redis decorator over a settings store.
// The scheduler polls every 30 seconds; the short TTL keeps those reads
// off the database without letting edits go stale for long.
type CachedStore struct {
	inner Store
	cache *redis.Cache
	ttl   time.Duration
}

// NewCachedStore wraps a store with the redis read path
func NewCachedStore(inner Store, cache *redis.Cache) *CachedStore {
	return &CachedStore{inner: inner, cache: cache, ttl: redis.TTLShort}
}

// Get returns the cached row, falling through to the inner store
func (c *CachedStore) Get(ctx context.Context) (*ScheduleSettings, error) {
	var cached ScheduleSettings
	if found, err := c.cache.Get(ctx, redis.ScheduleKey(), &cached); err == nil && found {
		return &cached, nil
	}

	s, err := c.inner.Get(ctx)
	if err != nil || s == nil {
		return s, err
	}

	// Best-effort population; a cache write failure never blocks reads
	_ = c.cache.Set(ctx, redis.ScheduleKey(), s, c.ttl)
	return s, nil
}

// Save writes through and drops the cached copy
func (c *CachedStore) Save(ctx context.Context, s *ScheduleSettings) error {
	if err := c.inner.Save(ctx, s); err != nil {
		return err
	}
	_ = c.cache.Delete(ctx, redis.ScheduleKey())
	return nil
}

// MarkRan writes through and drops the cached copy so the next poll
// sees the fresh marker
func (c *CachedStore) MarkRan(ctx context.Context, date string) error {
	if err := c.inner.MarkRan(ctx, date); err != nil {
		return err
	}
	_ = c.cache.Delete(ctx, redis.ScheduleKey())
	return nil
}
