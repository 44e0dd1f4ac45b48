package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/argos/internal/contracts"
)

// MemoryStore is an in-memory TaskRepository and ResultRepository.
// Tests and database-less smoke runs use it in place of PostgreSQL;
// it mirrors the SQL repository's semantics, including the rule that
// terminal task rows never change status again.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]*contracts.Task
	results   map[string]*contracts.SymbolResult
	summaries map[string]*contracts.RecommendationSummary
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]*contracts.Task),
		results:   make(map[string]*contracts.SymbolResult),
		summaries: make(map[string]*contracts.RecommendationSummary),
	}
}

func resultKey(taskID, symbol string) string {
	return taskID + "|" + symbol
}

// CreateTask inserts a new row with its initial status
func (m *MemoryStore) CreateTask(_ context.Context, task *contracts.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}

	copied := *task
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	m.tasks[task.ID] = &copied
	return nil
}

// GetTask returns (nil, nil) when the id is unknown
func (m *MemoryStore) GetTask(_ context.Context, id string) (*contracts.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

// LatestTaskForSymbol returns the newest task touching the symbol
func (m *MemoryStore) LatestTaskForSymbol(_ context.Context, symbol string) (*contracts.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *contracts.Task
	for _, task := range m.tasks {
		if task.Symbol != symbol {
			continue
		}
		if latest == nil || task.CreatedAt.After(latest.CreatedAt) {
			latest = task
		}
	}

	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// UpdateTaskStatus moves the row unless it is already terminal
func (m *MemoryStore) UpdateTaskStatus(_ context.Context, id string, status contracts.TaskStatus, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if task.Status.IsTerminal() {
		return nil
	}

	now := time.Now()
	task.Status = status
	if errText != "" {
		task.Error = errText
	}
	if status == contracts.StatusRunning && task.StartedAt == nil {
		task.StartedAt = &now
	}
	if status.IsTerminal() && task.CompletedAt == nil {
		task.CompletedAt = &now
	}
	return nil
}

// UpdateTaskCounters overwrites the bulk progress counters
func (m *MemoryStore) UpdateTaskCounters(_ context.Context, id string, c contracts.Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	task.Counters = c
	return nil
}

// ListTasks returns newest-first, optionally filtered by kind
func (m *MemoryStore) ListTasks(_ context.Context, kind contracts.TaskKind, limit int) ([]*contracts.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if kind != "" && task.Kind != kind {
			continue
		}
		copied := *task
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveResult upserts one verdict keyed by (task, symbol)
func (m *MemoryStore) SaveResult(_ context.Context, res *contracts.SymbolResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *res
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	m.results[resultKey(res.TaskID, res.Symbol)] = &copied
	return nil
}

// ResultsByTask returns a task's verdicts, ranked rows first
func (m *MemoryStore) ResultsByTask(_ context.Context, taskID string) ([]*contracts.SymbolResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.SymbolResult, 0)
	for _, res := range m.results {
		if res.TaskID == taskID {
			copied := *res
			out = append(out, &copied)
		}
	}

	sortResults(out)
	return out, nil
}

// AllResults returns every stored verdict
func (m *MemoryStore) AllResults(_ context.Context) ([]*contracts.SymbolResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.SymbolResult, 0, len(m.results))
	for _, res := range m.results {
		copied := *res
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TaskID != out[j].TaskID {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// SaveRanks writes back the rank of each given result
func (m *MemoryStore) SaveRanks(_ context.Context, taskID string, results []*contracts.SymbolResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, res := range results {
		if stored, ok := m.results[resultKey(taskID, res.Symbol)]; ok && res.Rank != nil {
			rank := *res.Rank
			stored.Rank = &rank
		}
	}
	return nil
}

// SaveSummary replaces the task's summary wholesale
func (m *MemoryStore) SaveSummary(_ context.Context, summary *contracts.RecommendationSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *summary
	copied.TopPicks = append([]contracts.TopPick(nil), summary.TopPicks...)
	copied.AvoidList = append([]contracts.AvoidEntry(nil), summary.AvoidList...)
	m.summaries[summary.TaskID] = &copied
	return nil
}

// GetSummary returns (nil, nil) when the task has no summary yet
func (m *MemoryStore) GetSummary(_ context.Context, taskID string) (*contracts.RecommendationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary, ok := m.summaries[taskID]
	if !ok {
		return nil, nil
	}
	copied := *summary
	return &copied, nil
}

// LatestSummary returns the newest summary across all tasks
func (m *MemoryStore) LatestSummary(_ context.Context) (*contracts.RecommendationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *contracts.RecommendationSummary
	for _, summary := range m.summaries {
		if latest == nil || summary.GeneratedAt.After(latest.GeneratedAt) {
			latest = summary
		}
	}

	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// sortResults orders ranked rows first by ascending rank, then the rest
// by symbol
func sortResults(out []*contracts.SymbolResult) {
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		switch {
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		}
		return out[i].Symbol < out[j].Symbol
	})
}
