package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/argos/internal/contracts"
)

// How far past the requested date a forward scan will look for a bar.
// Covers weekends plus the longest exchange holiday runs.
const maxForwardScanDays = 10

// Schema for the daily bar table
const pricesSchema = `
CREATE SCHEMA IF NOT EXISTS market;

CREATE TABLE IF NOT EXISTS market.daily_prices (
    symbol      TEXT NOT NULL,
    trade_date  DATE NOT NULL,
    open        DOUBLE PRECISION NOT NULL,
    high        DOUBLE PRECISION NOT NULL,
    low         DOUBLE PRECISION NOT NULL,
    close       DOUBLE PRECISION NOT NULL,
    volume      BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (symbol, trade_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON market.daily_prices(trade_date);
`

// Repository reads and writes daily bars in PostgreSQL
// ⭐ SSOT: 일봉 데이터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new price repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InitSchema ensures the market schema and tables exist
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, pricesSchema); err != nil {
		return fmt.Errorf("failed to init market schema: %w", err)
	}
	return nil
}

// CloseOn returns the bar exactly on the given date, (nil, nil) when the
// market produced none
func (r *Repository) CloseOn(ctx context.Context, symbol string, date time.Time) (*contracts.DailyPrice, error) {
	query := `
		SELECT symbol, trade_date, open, high, low, close, volume
		FROM market.daily_prices
		WHERE symbol = $1 AND trade_date = $2
	`

	bar, err := r.scanBar(r.pool.QueryRow(ctx, query, symbol, contracts.DateOnly(date)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get close for %s on %s: %w", symbol, date.Format("2006-01-02"), err)
	}

	return bar, nil
}

// FirstCloseOnOrAfter returns the first bar at or after the given date.
// The scan is bounded so a delisted symbol cannot walk the whole table.
func (r *Repository) FirstCloseOnOrAfter(ctx context.Context, symbol string, from time.Time) (*contracts.DailyPrice, error) {
	start := contracts.DateOnly(from)
	end := start.AddDate(0, 0, maxForwardScanDays)

	query := `
		SELECT symbol, trade_date, open, high, low, close, volume
		FROM market.daily_prices
		WHERE symbol = $1 AND trade_date >= $2 AND trade_date <= $3
		ORDER BY trade_date ASC
		LIMIT 1
	`

	bar, err := r.scanBar(r.pool.QueryRow(ctx, query, symbol, start, end))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan forward for %s from %s: %w", symbol, from.Format("2006-01-02"), err)
	}

	return bar, nil
}

// SaveDailyPrices upserts a batch of bars in one transaction
func (r *Repository) SaveDailyPrices(ctx context.Context, bars []contracts.DailyPrice) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO market.daily_prices (
			symbol, trade_date, open, high, low, close, volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	for _, bar := range bars {
		_, err := tx.Exec(ctx, query,
			bar.Symbol, contracts.DateOnly(bar.TradeDate),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert bar %s/%s: %w", bar.Symbol, bar.TradeDate.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *Repository) scanBar(row pgx.Row) (*contracts.DailyPrice, error) {
	var bar contracts.DailyPrice
	err := row.Scan(
		&bar.Symbol, &bar.TradeDate,
		&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume,
	)
	if err != nil {
		return nil, err
	}
	return &bar, nil
}
