package contracts

import (
	"encoding/json"
	"time"
)

// TaskKind classifies what a task row represents
type TaskKind string

const (
	// KindSingle is one symbol analyzed by one engine call
	KindSingle TaskKind = "single"

	// KindBulk is a parent task fanning a universe out over a worker pool
	KindBulk TaskKind = "bulk"

	// KindBackfill is the audit record a backtest repair pass leaves behind
	KindBackfill TaskKind = "backfill"
)

// IsValid checks whether the kind is known
func (k TaskKind) IsValid() bool {
	return k == KindSingle || k == KindBulk || k == KindBackfill
}

// TaskStatus is one station in the task lifecycle.
// The machine is one-directional: a terminal status never changes again.
type TaskStatus string

const (
	// StatusPending: row persisted, worker not yet started
	StatusPending TaskStatus = "PENDING"

	// StatusInitializing: accepted for execution, visible before the worker spawns
	StatusInitializing TaskStatus = "INITIALIZING"

	// StatusRunning: the worker is executing
	StatusRunning TaskStatus = "RUNNING"

	// StatusCompleted: finished with results persisted
	StatusCompleted TaskStatus = "COMPLETED"

	// StatusFailed: finished with an error recorded
	StatusFailed TaskStatus = "FAILED"

	// StatusCancelled: stopped at a checkpoint, partial work discarded
	StatusCancelled TaskStatus = "CANCELLED"

	// StatusTimeout: a supervisor gave up waiting on the task
	StatusTimeout TaskStatus = "TIMEOUT"

	// StatusNotFound is a view-only status for unknown task ids, never persisted
	StatusNotFound TaskStatus = "NOT_FOUND"
)

// String returns the status as stored
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status can never change again
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// IsActive reports whether the task occupies its symbol's execution slot
func (s TaskStatus) IsActive() bool {
	return s == StatusInitializing || s == StatusRunning
}

// CanTransitionTo enforces the one-directional lifecycle
// ⭐ SSOT: 상태 전이 규칙은 여기서만 판정
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInitializing || next.IsTerminal()
	case StatusInitializing:
		return next == StatusRunning || next.IsTerminal()
	case StatusRunning:
		return next.IsTerminal()
	}
	return false
}

// Counters track bulk run progress. All zero for single tasks.
type Counters struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Done reports whether every dispatched symbol has been accounted for
func (c Counters) Done() bool {
	return c.Completed+c.Failed+c.Skipped >= c.Total
}

// Task is one orchestration record: a single analysis, a bulk parent,
// a bulk child, or a repair audit entry.
type Task struct {
	ID           string          `json:"id"`
	Kind         TaskKind        `json:"kind"`
	Symbol       string          `json:"symbol,omitempty"`
	ParentID     string          `json:"parent_id,omitempty"`
	AnalysisDate time.Time       `json:"analysis_date"`
	Status       TaskStatus      `json:"status"`
	Error        string          `json:"error,omitempty"`
	Counters     Counters        `json:"counters"`
	Config       json.RawMessage `json:"config,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// StatusView is what a status query returns. Source distinguishes a live
// in-process registry entry from a row reconstructed out of storage.
type StatusView struct {
	TaskID       string     `json:"task_id"`
	Kind         TaskKind   `json:"kind"`
	Symbol       string     `json:"symbol,omitempty"`
	Status       TaskStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
	Counters     Counters   `json:"counters"`
	Active       []string   `json:"active_symbols,omitempty"`
	AnalysisDate time.Time  `json:"analysis_date"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Source       string     `json:"source"`
}

// View sources
const (
	SourceRegistry = "registry"
	SourceStore    = "store"
	SourceNone     = "not_found"
)
