package backtest

import (
	"context"
	"sort"
	"sync"

	"github.com/wonny/argos/internal/contracts"
)

// MemoryRows is an in-memory BacktestRepository for tests
type MemoryRows struct {
	mu   sync.RWMutex
	rows map[string]*contracts.BacktestRow
}

// NewMemoryRows creates an empty in-memory backtest store
func NewMemoryRows() *MemoryRows {
	return &MemoryRows{rows: make(map[string]*contracts.BacktestRow)}
}

func rowKey(taskID, symbol string) string {
	return taskID + "|" + symbol
}

// SaveRow upserts one evaluation
func (m *MemoryRows) SaveRow(_ context.Context, row *contracts.BacktestRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *row
	m.rows[rowKey(row.TaskID, row.Symbol)] = &copied
	return nil
}

// RowsByTask returns a task's evaluations ordered by symbol
func (m *MemoryRows) RowsByTask(_ context.Context, taskID string) ([]*contracts.BacktestRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.BacktestRow, 0)
	for _, row := range m.rows {
		if row.TaskID == taskID {
			copied := *row
			out = append(out, &copied)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// AllRows returns every evaluation
func (m *MemoryRows) AllRows(_ context.Context) ([]*contracts.BacktestRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.BacktestRow, 0, len(m.rows))
	for _, row := range m.rows {
		copied := *row
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PredictionDate.Equal(out[j].PredictionDate) {
			return out[i].PredictionDate.Before(out[j].PredictionDate)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// DeleteRow purges one evaluation
func (m *MemoryRows) DeleteRow(_ context.Context, taskID, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rows, rowKey(taskID, symbol))
	return nil
}

// SetCorrect backfills correctness on an existing row
func (m *MemoryRows) SetCorrect(_ context.Context, taskID, symbol string, correct bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row, ok := m.rows[rowKey(taskID, symbol)]; ok {
		c := correct
		row.Correct = &c
	}
	return nil
}
