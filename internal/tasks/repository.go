package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/argos/internal/contracts"
)

// Schema for task, result and summary tables
const tasksSchema = `
CREATE SCHEMA IF NOT EXISTS tasks;

CREATE TABLE IF NOT EXISTS tasks.analysis_tasks (
    id            TEXT PRIMARY KEY,
    kind          TEXT NOT NULL,
    symbol        TEXT NOT NULL DEFAULT '',
    parent_id     TEXT NOT NULL DEFAULT '',
    analysis_date DATE NOT NULL,
    status        TEXT NOT NULL,
    error         TEXT NOT NULL DEFAULT '',
    total         INT NOT NULL DEFAULT 0,
    completed     INT NOT NULL DEFAULT 0,
    failed        INT NOT NULL DEFAULT 0,
    skipped       INT NOT NULL DEFAULT 0,
    config        JSONB,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    started_at    TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_analysis_tasks_symbol ON tasks.analysis_tasks(symbol, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analysis_tasks_kind ON tasks.analysis_tasks(kind, created_at DESC);

CREATE TABLE IF NOT EXISTS tasks.symbol_results (
    task_id       TEXT NOT NULL,
    symbol        TEXT NOT NULL,
    decision      TEXT NOT NULL,
    confidence    TEXT NOT NULL DEFAULT '',
    risk          TEXT NOT NULL DEFAULT '',
    hold_days     INT NOT NULL DEFAULT 0,
    rationale     TEXT NOT NULL DEFAULT '',
    rank          INT,
    analysis_date DATE NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (task_id, symbol)
);

CREATE TABLE IF NOT EXISTS tasks.recommendation_summaries (
    task_id      TEXT PRIMARY KEY,
    total        INT NOT NULL DEFAULT 0,
    buy_count    INT NOT NULL DEFAULT 0,
    sell_count   INT NOT NULL DEFAULT 0,
    hold_count   INT NOT NULL DEFAULT 0,
    top_picks    JSONB NOT NULL DEFAULT '[]',
    avoid_list   JSONB NOT NULL DEFAULT '[]',
    generated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Repository persists tasks, results and summaries in PostgreSQL
// ⭐ SSOT: 태스크/결과/요약 저장은 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new task repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InitSchema ensures the tasks schema and tables exist
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, tasksSchema); err != nil {
		return fmt.Errorf("failed to init tasks schema: %w", err)
	}
	return nil
}

// CreateTask inserts a new row with its initial status
func (r *Repository) CreateTask(ctx context.Context, task *contracts.Task) error {
	query := `
		INSERT INTO tasks.analysis_tasks (
			id, kind, symbol, parent_id, analysis_date, status, error,
			total, completed, failed, skipped, config,
			created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	var config interface{}
	if len(task.Config) > 0 {
		config = []byte(task.Config)
	}

	_, err := r.pool.Exec(ctx, query,
		task.ID, string(task.Kind), task.Symbol, task.ParentID,
		contracts.DateOnly(task.AnalysisDate), string(task.Status), task.Error,
		task.Counters.Total, task.Counters.Completed, task.Counters.Failed, task.Counters.Skipped,
		config, task.CreatedAt, task.StartedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// GetTask returns (nil, nil) when the id is unknown
func (r *Repository) GetTask(ctx context.Context, id string) (*contracts.Task, error) {
	query := selectTasks + ` WHERE id = $1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	return task, nil
}

// LatestTaskForSymbol returns the newest task touching the symbol
func (r *Repository) LatestTaskForSymbol(ctx context.Context, symbol string) (*contracts.Task, error) {
	query := selectTasks + ` WHERE symbol = $1 ORDER BY created_at DESC LIMIT 1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, symbol))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest task for %s: %w", symbol, err)
	}

	return task, nil
}

// UpdateTaskStatus moves the row and stamps timestamps as the status
// dictates. Rows already terminal are left untouched.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id string, status contracts.TaskStatus, errText string) error {
	query := `
		UPDATE tasks.analysis_tasks SET
			status = $2,
			error = CASE WHEN $3 <> '' THEN $3 ELSE error END,
			started_at = CASE
				WHEN $2 = 'RUNNING' AND started_at IS NULL THEN NOW()
				ELSE started_at
			END,
			completed_at = CASE
				WHEN $2 IN ('COMPLETED', 'FAILED', 'CANCELLED', 'TIMEOUT') AND completed_at IS NULL THEN NOW()
				ELSE completed_at
			END
		WHERE id = $1
		  AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED', 'TIMEOUT')
	`

	_, err := r.pool.Exec(ctx, query, id, string(status), errText)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	return nil
}

// UpdateTaskCounters overwrites the bulk progress counters
func (r *Repository) UpdateTaskCounters(ctx context.Context, id string, c contracts.Counters) error {
	query := `
		UPDATE tasks.analysis_tasks SET
			total = $2, completed = $3, failed = $4, skipped = $5
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, c.Total, c.Completed, c.Failed, c.Skipped)
	if err != nil {
		return fmt.Errorf("failed to update task counters: %w", err)
	}

	return nil
}

// ListTasks returns newest-first, optionally filtered by kind
func (r *Repository) ListTasks(ctx context.Context, kind contracts.TaskKind, limit int) ([]*contracts.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	query := selectTasks + `
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*contracts.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// SaveResult upserts one verdict keyed by (task, symbol)
func (r *Repository) SaveResult(ctx context.Context, res *contracts.SymbolResult) error {
	query := `
		INSERT INTO tasks.symbol_results (
			task_id, symbol, decision, confidence, risk,
			hold_days, rationale, rank, analysis_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (task_id, symbol) DO UPDATE SET
			decision = EXCLUDED.decision,
			confidence = EXCLUDED.confidence,
			risk = EXCLUDED.risk,
			hold_days = EXCLUDED.hold_days,
			rationale = EXCLUDED.rationale,
			analysis_date = EXCLUDED.analysis_date,
			created_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		res.TaskID, res.Symbol, string(res.Decision), string(res.Confidence), string(res.Risk),
		res.HoldDays, res.Rationale, res.Rank, contracts.DateOnly(res.AnalysisDate),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}

	return nil
}

// ResultsByTask returns a task's verdicts, ranked rows first
func (r *Repository) ResultsByTask(ctx context.Context, taskID string) ([]*contracts.SymbolResult, error) {
	query := selectResults + ` WHERE task_id = $1 ORDER BY rank ASC NULLS LAST, symbol ASC`

	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// AllResults returns every stored verdict, for repair passes
func (r *Repository) AllResults(ctx context.Context) ([]*contracts.SymbolResult, error) {
	query := selectResults + ` ORDER BY task_id ASC, symbol ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// SaveRanks writes back the rank of each given result in one transaction
func (r *Repository) SaveRanks(ctx context.Context, taskID string, results []*contracts.SymbolResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE tasks.symbol_results SET rank = $3 WHERE task_id = $1 AND symbol = $2`

	for _, res := range results {
		if res.Rank == nil {
			continue
		}
		if _, err := tx.Exec(ctx, query, taskID, res.Symbol, *res.Rank); err != nil {
			return fmt.Errorf("failed to update rank for %s: %w", res.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SaveSummary replaces the task's summary wholesale
func (r *Repository) SaveSummary(ctx context.Context, summary *contracts.RecommendationSummary) error {
	topPicks, err := json.Marshal(summary.TopPicks)
	if err != nil {
		return fmt.Errorf("failed to marshal top picks: %w", err)
	}
	avoidList, err := json.Marshal(summary.AvoidList)
	if err != nil {
		return fmt.Errorf("failed to marshal avoid list: %w", err)
	}

	query := `
		INSERT INTO tasks.recommendation_summaries (
			task_id, total, buy_count, sell_count, hold_count,
			top_picks, avoid_list, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (task_id) DO UPDATE SET
			total = EXCLUDED.total,
			buy_count = EXCLUDED.buy_count,
			sell_count = EXCLUDED.sell_count,
			hold_count = EXCLUDED.hold_count,
			top_picks = EXCLUDED.top_picks,
			avoid_list = EXCLUDED.avoid_list,
			generated_at = EXCLUDED.generated_at
	`

	_, err = r.pool.Exec(ctx, query,
		summary.TaskID, summary.Total, summary.BuyCount, summary.SellCount, summary.HoldCount,
		topPicks, avoidList, summary.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}

	return nil
}

// GetSummary returns (nil, nil) when the task has no summary yet
func (r *Repository) GetSummary(ctx context.Context, taskID string) (*contracts.RecommendationSummary, error) {
	query := selectSummaries + ` WHERE task_id = $1`

	summary, err := scanSummary(r.pool.QueryRow(ctx, query, taskID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for task %s: %w", taskID, err)
	}

	return summary, nil
}

// LatestSummary returns the newest summary across all tasks
func (r *Repository) LatestSummary(ctx context.Context) (*contracts.RecommendationSummary, error) {
	query := selectSummaries + ` ORDER BY generated_at DESC LIMIT 1`

	summary, err := scanSummary(r.pool.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest summary: %w", err)
	}

	return summary, nil
}

const selectTasks = `
	SELECT id, kind, symbol, parent_id, analysis_date, status, error,
	       total, completed, failed, skipped, config,
	       created_at, started_at, completed_at
	FROM tasks.analysis_tasks
`

const selectResults = `
	SELECT task_id, symbol, decision, confidence, risk,
	       hold_days, rationale, rank, analysis_date, created_at
	FROM tasks.symbol_results
`

const selectSummaries = `
	SELECT task_id, total, buy_count, sell_count, hold_count,
	       top_picks, avoid_list, generated_at
	FROM tasks.recommendation_summaries
`

func scanTask(row pgx.Row) (*contracts.Task, error) {
	var task contracts.Task
	var kind, status string
	var config []byte

	err := row.Scan(
		&task.ID, &kind, &task.Symbol, &task.ParentID, &task.AnalysisDate, &status, &task.Error,
		&task.Counters.Total, &task.Counters.Completed, &task.Counters.Failed, &task.Counters.Skipped,
		&config, &task.CreatedAt, &task.StartedAt, &task.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Kind = contracts.TaskKind(kind)
	task.Status = contracts.TaskStatus(status)
	task.Config = config
	return &task, nil
}

func scanResults(rows pgx.Rows) ([]*contracts.SymbolResult, error) {
	results := make([]*contracts.SymbolResult, 0)

	for rows.Next() {
		var res contracts.SymbolResult
		var decision, confidence, risk string

		err := rows.Scan(
			&res.TaskID, &res.Symbol, &decision, &confidence, &risk,
			&res.HoldDays, &res.Rationale, &res.Rank, &res.AnalysisDate, &res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		res.Decision = contracts.Decision(decision)
		res.Confidence = contracts.Confidence(confidence)
		res.Risk = contracts.Risk(risk)
		results = append(results, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}

	return results, nil
}

func scanSummary(row pgx.Row) (*contracts.RecommendationSummary, error) {
	var summary contracts.RecommendationSummary
	var topPicks, avoidList []byte

	err := row.Scan(
		&summary.TaskID, &summary.Total, &summary.BuyCount, &summary.SellCount, &summary.HoldCount,
		&topPicks, &avoidList, &summary.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(topPicks, &summary.TopPicks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal top picks: %w", err)
	}
	if err := json.Unmarshal(avoidList, &summary.AvoidList); err != nil {
		return nil, fmt.Errorf("failed to unmarshal avoid list: %w", err)
	}

	return &summary, nil
}
