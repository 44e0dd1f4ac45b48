// Package jobs holds the scheduled jobs the argos scheduler runs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/internal/settings"
	"github.com/wonny/argos/internal/tasks"
	"github.com/wonny/argos/pkg/logger"
)

// triggerWindow is how far a late wakeup may drift past the target
// time and still fire. The persisted last-run marker, not the window,
// is what makes the trigger at-most-once per day.
const triggerWindow = time.Minute

// BulkTrigger starts bulk runs and reports whether one is in flight
type BulkTrigger interface {
	Submit(ctx context.Context, req tasks.BulkRequest) (*contracts.Task, error)
	Active() (contracts.StatusView, bool)
}

// DailyAnalysisJob is the auto-scheduler probe: every 30 seconds it
// compares local time in the configured timezone against the persisted
// schedule and fires at most one bulk run per calendar day. The marker
// is written before triggering so a crash mid-trigger skips the day
// rather than doubling it.
// ⭐ SSOT: 일일 자동 분석 트리거는 이 Job에서만
type DailyAnalysisJob struct {
	settings settings.Store
	bulk     BulkTrigger
	logger   *logger.Logger
	now      func() time.Time
}

// NewDailyAnalysisJob creates the auto-analysis tick
func NewDailyAnalysisJob(store settings.Store, bulk BulkTrigger, log *logger.Logger) *DailyAnalysisJob {
	return &DailyAnalysisJob{
		settings: store,
		bulk:     bulk,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock replaces the job's clock, for tests
func (j *DailyAnalysisJob) WithClock(now func() time.Time) *DailyAnalysisJob {
	j.now = now
	return j
}

// Name returns the job name
func (j *DailyAnalysisJob) Name() string {
	return "daily_analysis"
}

// Schedule returns the probe cadence
func (j *DailyAnalysisJob) Schedule() string {
	return "@every 30s"
}

// NonRetryable: the next tick is 30 seconds away, that is the retry
func (j *DailyAnalysisJob) NonRetryable() {}

// Run fires the daily bulk run when it is due
func (j *DailyAnalysisJob) Run(ctx context.Context) error {
	s, err := j.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedule settings: %w", err)
	}
	if s == nil || !s.Due(j.now(), triggerWindow) {
		return nil
	}

	if view, active := j.bulk.Active(); active {
		j.logger.WithField("active_task", view.TaskID).Warn("Skipping auto analysis, bulk run already active")
		return nil
	}

	// Mark first: at-most-once-per-day beats firing-at-all-costs
	today := s.LocalDate(j.now())
	if err := j.settings.MarkRan(ctx, today); err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}

	task, err := j.bulk.Submit(ctx, tasks.BulkRequest{
		Symbols: s.Universe,
		Workers: s.Workers,
		Date:    j.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to start auto analysis: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"task_id": task.ID,
		"symbols": len(s.Universe),
		"workers": s.Workers,
		"date":    today,
	}).Info("Auto analysis triggered")

	return nil
}
