package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/argos/internal/contracts"
)

// MemoryPrices is an in-memory PriceRepository used by tests and by the
// engine smoke command when no database is configured.
type MemoryPrices struct {
	mu   sync.RWMutex
	bars map[string][]contracts.DailyPrice
}

// NewMemoryPrices creates an empty in-memory price store
func NewMemoryPrices() *MemoryPrices {
	return &MemoryPrices{bars: make(map[string][]contracts.DailyPrice)}
}

// CloseOn returns the bar exactly on the given date
func (m *MemoryPrices) CloseOn(_ context.Context, symbol string, date time.Time) (*contracts.DailyPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := contracts.DateOnly(date)
	for _, bar := range m.bars[symbol] {
		if bar.TradeDate.Equal(day) {
			b := bar
			return &b, nil
		}
	}

	return nil, nil
}

// FirstCloseOnOrAfter returns the first bar at or after the given date,
// bounded the same way the database repository bounds its scan
func (m *MemoryPrices) FirstCloseOnOrAfter(_ context.Context, symbol string, from time.Time) (*contracts.DailyPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := contracts.DateOnly(from)
	end := start.AddDate(0, 0, maxForwardScanDays)

	for _, bar := range m.bars[symbol] {
		if !bar.TradeDate.Before(start) && !bar.TradeDate.After(end) {
			b := bar
			return &b, nil
		}
	}

	return nil, nil
}

// SaveDailyPrices upserts bars, keeping each symbol's bars date-sorted
func (m *MemoryPrices) SaveDailyPrices(_ context.Context, bars []contracts.DailyPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, bar := range bars {
		bar.TradeDate = contracts.DateOnly(bar.TradeDate)

		existing := m.bars[bar.Symbol]
		replaced := false
		for i := range existing {
			if existing[i].TradeDate.Equal(bar.TradeDate) {
				existing[i] = bar
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, bar)
		}

		sort.Slice(existing, func(i, j int) bool {
			return existing[i].TradeDate.Before(existing[j].TradeDate)
		})
		m.bars[bar.Symbol] = existing
	}

	return nil
}
