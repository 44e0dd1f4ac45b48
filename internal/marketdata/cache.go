package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/argos/internal/contracts"
)

// CachedPrices wraps a PriceRepository with an in-memory TTL cache.
// Repair passes read the same bars over and over; historical bars never
// change, so short-lived memoization keeps them off the database.
// Absent bars are not cached: a close missing now may arrive tonight.
// ⭐ SSOT: 시세 조회 캐싱은 이 구조체에서만
type CachedPrices struct {
	mu    sync.RWMutex
	inner contracts.PriceRepository
	bars  map[string]cachedBar
	ttl   time.Duration
}

type cachedBar struct {
	bar      *contracts.DailyPrice
	cachedAt time.Time
}

// NewCachedPrices creates a caching layer over the given repository
func NewCachedPrices(inner contracts.PriceRepository, ttl time.Duration) *CachedPrices {
	return &CachedPrices{
		inner: inner,
		bars:  make(map[string]cachedBar),
		ttl:   ttl,
	}
}

// CloseOn returns the bar exactly on the given date
func (c *CachedPrices) CloseOn(ctx context.Context, symbol string, date time.Time) (*contracts.DailyPrice, error) {
	key := fmt.Sprintf("on:%s:%s", symbol, contracts.DateOnly(date).Format("2006-01-02"))

	if bar, ok := c.lookup(key); ok {
		return bar, nil
	}

	bar, err := c.inner.CloseOn(ctx, symbol, date)
	if err != nil {
		return nil, err
	}
	if bar != nil {
		c.store(key, bar)
	}

	return bar, nil
}

// FirstCloseOnOrAfter returns the first bar at or after the given date
func (c *CachedPrices) FirstCloseOnOrAfter(ctx context.Context, symbol string, from time.Time) (*contracts.DailyPrice, error) {
	key := fmt.Sprintf("after:%s:%s", symbol, contracts.DateOnly(from).Format("2006-01-02"))

	if bar, ok := c.lookup(key); ok {
		return bar, nil
	}

	bar, err := c.inner.FirstCloseOnOrAfter(ctx, symbol, from)
	if err != nil {
		return nil, err
	}
	if bar != nil {
		c.store(key, bar)
	}

	return bar, nil
}

// SaveDailyPrices writes through and drops the cache, since new bars can
// change what a forward scan finds
func (c *CachedPrices) SaveDailyPrices(ctx context.Context, bars []contracts.DailyPrice) error {
	if err := c.inner.SaveDailyPrices(ctx, bars); err != nil {
		return err
	}

	c.mu.Lock()
	c.bars = make(map[string]cachedBar)
	c.mu.Unlock()

	return nil
}

// Len returns the number of cached entries
func (c *CachedPrices) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.bars)
}

// CleanStale removes entries older than the TTL and returns how many
func (c *CachedPrices) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	count := 0

	for key, entry := range c.bars {
		if now.Sub(entry.cachedAt) > c.ttl {
			delete(c.bars, key)
			count++
		}
	}

	return count
}

func (c *CachedPrices) lookup(key string) (*contracts.DailyPrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.bars[key]
	if !ok || time.Since(entry.cachedAt) > c.ttl {
		return nil, false
	}

	return entry.bar, true
}

func (c *CachedPrices) store(key string, bar *contracts.DailyPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bars[key] = cachedBar{bar: bar, cachedAt: time.Now()}
}
