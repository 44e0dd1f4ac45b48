package backtest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/argos/internal/contracts"
)

// Schema for backtest evaluation rows
const backtestSchema = `
CREATE SCHEMA IF NOT EXISTS backtest;

CREATE TABLE IF NOT EXISTS backtest.results (
    task_id            TEXT NOT NULL,
    symbol             TEXT NOT NULL,
    decision           TEXT NOT NULL DEFAULT '',
    hold_days          INT NOT NULL DEFAULT 0,
    prediction_date    DATE NOT NULL,
    base_price         DOUBLE PRECISION NOT NULL,
    return_1d          DOUBLE PRECISION,
    return_1w          DOUBLE PRECISION,
    return_1m          DOUBLE PRECISION,
    return_at_hold     DOUBLE PRECISION,
    prediction_correct BOOLEAN,
    evaluated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (task_id, symbol)
);

CREATE INDEX IF NOT EXISTS idx_backtest_results_date ON backtest.results(prediction_date);
`

// Repository persists backtest rows in PostgreSQL
// ⭐ SSOT: 백테스트 행 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new backtest repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InitSchema ensures the backtest schema and tables exist
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, backtestSchema); err != nil {
		return fmt.Errorf("failed to init backtest schema: %w", err)
	}
	return nil
}

// SaveRow upserts one evaluation keyed by (task, symbol)
func (r *Repository) SaveRow(ctx context.Context, row *contracts.BacktestRow) error {
	query := `
		INSERT INTO backtest.results (
			task_id, symbol, decision, hold_days, prediction_date, base_price,
			return_1d, return_1w, return_1m, return_at_hold,
			prediction_correct, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (task_id, symbol) DO UPDATE SET
			decision = EXCLUDED.decision,
			hold_days = EXCLUDED.hold_days,
			prediction_date = EXCLUDED.prediction_date,
			base_price = EXCLUDED.base_price,
			return_1d = EXCLUDED.return_1d,
			return_1w = EXCLUDED.return_1w,
			return_1m = EXCLUDED.return_1m,
			return_at_hold = EXCLUDED.return_at_hold,
			prediction_correct = EXCLUDED.prediction_correct,
			evaluated_at = EXCLUDED.evaluated_at
	`

	_, err := r.pool.Exec(ctx, query,
		row.TaskID, row.Symbol, row.Decision, row.HoldDays,
		contracts.DateOnly(row.PredictionDate), row.BasePrice,
		row.Return1D, row.Return1W, row.Return1M, row.ReturnAtHold,
		row.Correct, row.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert backtest row: %w", err)
	}

	return nil
}

// RowsByTask returns a task's evaluations ordered by symbol
func (r *Repository) RowsByTask(ctx context.Context, taskID string) ([]*contracts.BacktestRow, error) {
	query := selectRows + ` WHERE task_id = $1 ORDER BY symbol ASC`

	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest rows: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// AllRows returns every evaluation, oldest prediction first
func (r *Repository) AllRows(ctx context.Context) ([]*contracts.BacktestRow, error) {
	query := selectRows + ` ORDER BY prediction_date ASC, symbol ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest rows: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// DeleteRow purges one evaluation
func (r *Repository) DeleteRow(ctx context.Context, taskID, symbol string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM backtest.results WHERE task_id = $1 AND symbol = $2`,
		taskID, symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to delete backtest row: %w", err)
	}
	return nil
}

// SetCorrect backfills correctness without touching the returns
func (r *Repository) SetCorrect(ctx context.Context, taskID, symbol string, correct bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE backtest.results SET prediction_correct = $3 WHERE task_id = $1 AND symbol = $2`,
		taskID, symbol, correct,
	)
	if err != nil {
		return fmt.Errorf("failed to set prediction_correct: %w", err)
	}
	return nil
}

const selectRows = `
	SELECT task_id, symbol, decision, hold_days, prediction_date, base_price,
	       return_1d, return_1w, return_1m, return_at_hold,
	       prediction_correct, evaluated_at
	FROM backtest.results
`

func scanRows(rows pgx.Rows) ([]*contracts.BacktestRow, error) {
	results := make([]*contracts.BacktestRow, 0)

	for rows.Next() {
		var row contracts.BacktestRow
		err := rows.Scan(
			&row.TaskID, &row.Symbol, &row.Decision, &row.HoldDays,
			&row.PredictionDate, &row.BasePrice,
			&row.Return1D, &row.Return1W, &row.Return1M, &row.ReturnAtHold,
			&row.Correct, &row.EvaluatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest row: %w", err)
		}
		results = append(results, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backtest rows: %w", err)
	}

	return results, nil
}
