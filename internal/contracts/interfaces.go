// Package contracts defines the data types and interfaces every component
// of the orchestrator shares. Implementations live in their own packages;
// anything crossing a package boundary is declared here.
//
// ⭐ SSOT: 컴포넌트 간 계약은 이 패키지가 유일한 기준
package contracts

import (
	"context"
	"time"
)

// Engine is the external analysis service. One call per symbol; the call
// itself is never interrupted, cancellation is honored between calls.
// ⭐ SSOT: LLM 분석 엔진 호출 계약
type Engine interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}

// TaskRepository persists task lifecycle rows
// ⭐ SSOT: 태스크 저장소 계약
type TaskRepository interface {
	// CreateTask inserts a new row with its initial status
	CreateTask(ctx context.Context, task *Task) error

	// GetTask returns (nil, nil) when the id is unknown
	GetTask(ctx context.Context, id string) (*Task, error)

	// LatestTaskForSymbol returns the newest task touching the symbol,
	// (nil, nil) when the symbol has never been analyzed
	LatestTaskForSymbol(ctx context.Context, symbol string) (*Task, error)

	// UpdateTaskStatus moves the row and stamps started_at / completed_at
	// as the status dictates. Terminal rows must never move again.
	UpdateTaskStatus(ctx context.Context, id string, status TaskStatus, errText string) error

	// UpdateTaskCounters overwrites the bulk progress counters
	UpdateTaskCounters(ctx context.Context, id string, c Counters) error

	// ListTasks returns newest-first, optionally filtered by kind ("" = all)
	ListTasks(ctx context.Context, kind TaskKind, limit int) ([]*Task, error)
}

// ResultRepository persists per-symbol verdicts and the ranked summary
// ⭐ SSOT: 분석 결과 저장소 계약
type ResultRepository interface {
	// SaveResult upserts one verdict keyed by (task, symbol)
	SaveResult(ctx context.Context, res *SymbolResult) error

	// ResultsByTask returns a task's verdicts, ranked rows first
	ResultsByTask(ctx context.Context, taskID string) ([]*SymbolResult, error)

	// AllResults returns every stored verdict, for repair passes
	AllResults(ctx context.Context) ([]*SymbolResult, error)

	// SaveRanks writes back the rank of each given result
	SaveRanks(ctx context.Context, taskID string, results []*SymbolResult) error

	// SaveSummary replaces the task's summary wholesale
	SaveSummary(ctx context.Context, summary *RecommendationSummary) error

	// GetSummary returns (nil, nil) when the task has no summary yet
	GetSummary(ctx context.Context, taskID string) (*RecommendationSummary, error)

	// LatestSummary returns the newest summary across all tasks, (nil, nil)
	// when nothing has ever been summarized
	LatestSummary(ctx context.Context) (*RecommendationSummary, error)
}

// BacktestRepository persists prediction-versus-market rows
// ⭐ SSOT: 백테스트 저장소 계약
type BacktestRepository interface {
	// SaveRow upserts one evaluation keyed by (task, symbol)
	SaveRow(ctx context.Context, row *BacktestRow) error

	// RowsByTask returns a task's evaluations ordered by symbol
	RowsByTask(ctx context.Context, taskID string) ([]*BacktestRow, error)

	// AllRows returns every evaluation, for accuracy and repair passes
	AllRows(ctx context.Context) ([]*BacktestRow, error)

	// DeleteRow purges one evaluation
	DeleteRow(ctx context.Context, taskID, symbol string) error

	// SetCorrect backfills correctness without touching the returns
	SetCorrect(ctx context.Context, taskID, symbol string, correct bool) error
}

// PriceRepository reads and writes daily bars. Point-in-time reads return
// (nil, nil) when the market has no bar, never an error.
// ⭐ SSOT: 시세 저장소 계약
type PriceRepository interface {
	// CloseOn returns the bar exactly on the given date
	CloseOn(ctx context.Context, symbol string, date time.Time) (*DailyPrice, error)

	// FirstCloseOnOrAfter returns the first bar at or after the given date,
	// skipping weekends and holidays forward
	FirstCloseOnOrAfter(ctx context.Context, symbol string, from time.Time) (*DailyPrice, error)

	// SaveDailyPrices upserts a batch of bars
	SaveDailyPrices(ctx context.Context, bars []DailyPrice) error
}
