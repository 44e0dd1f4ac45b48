package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/logger"
)

// Repairer runs the backtest integrity pass
type Repairer interface {
	Repair(ctx context.Context) (*contracts.RepairReport, error)
}

// BacktestRepairJob re-evaluates stored predictions nightly, after the
// day's closes have landed: purges degenerate rows, backfills
// correctness for closed hold windows. The pass is idempotent, so the
// scheduler's retry wrapper is safe.
// ⭐ SSOT: 야간 백테스트 복구 스케줄은 이 Job에서만
type BacktestRepairJob struct {
	engine Repairer
	logger *logger.Logger
}

// NewBacktestRepairJob creates the nightly repair job
func NewBacktestRepairJob(engine Repairer, log *logger.Logger) *BacktestRepairJob {
	return &BacktestRepairJob{engine: engine, logger: log}
}

// Name returns the job name
func (j *BacktestRepairJob) Name() string {
	return "backtest_repair"
}

// Schedule returns the cron schedule: 18:30 daily, after settlement
func (j *BacktestRepairJob) Schedule() string {
	return "0 30 18 * * *"
}

// Run executes the repair pass
func (j *BacktestRepairJob) Run(ctx context.Context) error {
	report, err := j.engine.Repair(ctx)
	if err != nil {
		return fmt.Errorf("backtest repair failed: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"examined":    report.Examined,
		"reevaluated": report.Reevaluated,
		"purged":      report.Purged,
		"backfilled":  report.Backfilled,
	}).Info("Nightly backtest repair finished")

	return nil
}
