package settings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const settingsSchema = `
CREATE SCHEMA IF NOT EXISTS scheduler;

CREATE TABLE IF NOT EXISTS scheduler.settings (
	id            INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	enabled       BOOLEAN NOT NULL DEFAULT FALSE,
	run_at        TEXT NOT NULL,
	timezone      TEXT NOT NULL,
	workers       INT NOT NULL,
	universe      TEXT[] NOT NULL DEFAULT '{}',
	last_run_date TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Repository is the persisted settings row, one per deployment
// ⭐ SSOT: 스케줄 설정 영속화는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a settings repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InitSchema creates the scheduler schema and settings table
func (r *Repository) InitSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, settingsSchema); err != nil {
		return fmt.Errorf("failed to initialize scheduler schema: %w", err)
	}
	return nil
}

// Get returns the settings row, or nil when none has been saved yet
func (r *Repository) Get(ctx context.Context) (*ScheduleSettings, error) {
	query := `
		SELECT enabled, run_at, timezone, workers, universe, last_run_date, updated_at
		FROM scheduler.settings
		WHERE id = 1`

	var s ScheduleSettings
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.Enabled, &s.RunAt, &s.Timezone, &s.Workers,
		&s.Universe, &s.LastRunDate, &s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule settings: %w", err)
	}
	return &s, nil
}

// Save validates and upserts the user-editable fields. The last-run
// marker is scheduler-owned and deliberately left untouched.
func (r *Repository) Save(ctx context.Context, s *ScheduleSettings) error {
	s.normalize()
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO scheduler.settings (id, enabled, run_at, timezone, workers, universe, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			enabled    = EXCLUDED.enabled,
			run_at     = EXCLUDED.run_at,
			timezone   = EXCLUDED.timezone,
			workers    = EXCLUDED.workers,
			universe   = EXCLUDED.universe,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		s.Enabled, s.RunAt, s.Timezone, s.Workers, s.Universe,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule settings: %w", err)
	}
	return nil
}

// MarkRan records the calendar day of the latest auto trigger
func (r *Repository) MarkRan(ctx context.Context, date string) error {
	query := `
		UPDATE scheduler.settings
		SET last_run_date = $1, updated_at = NOW()
		WHERE id = 1`

	tag, err := r.pool.Exec(ctx, query, date)
	if err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no schedule settings row to mark")
	}
	return nil
}
