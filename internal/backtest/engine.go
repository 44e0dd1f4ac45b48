package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/metrics"
)

// Engine turns stored predictions into forward returns and correctness
// judgments. All price reads go through the point-in-time repository,
// scanning forward only, so no evaluation ever sees data from before
// its own horizon date.
// ⭐ SSOT: 백테스트 수익률 계산과 정합성 복구는 여기서만
type Engine struct {
	rows    contracts.BacktestRepository
	results contracts.ResultRepository
	tasks   contracts.TaskRepository
	prices  contracts.PriceRepository
	logger  *logger.Logger
	now     func() time.Time
}

// NewEngine creates a backtest engine
func NewEngine(
	rows contracts.BacktestRepository,
	results contracts.ResultRepository,
	tasks contracts.TaskRepository,
	prices contracts.PriceRepository,
	log *logger.Logger,
) *Engine {
	return &Engine{
		rows:    rows,
		results: results,
		tasks:   tasks,
		prices:  prices,
		logger:  log,
		now:     time.Now,
	}
}

// WithClock replaces the engine's clock, for tests that need to move time
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// EvaluateResult computes and stores the backtest row for one prediction.
// Nothing is written while no horizon has produced a close yet; the
// nightly repair pass re-evaluates once the market catches up.
func (e *Engine) EvaluateResult(ctx context.Context, res *contracts.SymbolResult) error {
	row, err := e.evaluate(ctx, res)
	if err != nil {
		return err
	}
	if row == nil {
		e.logger.WithFields(map[string]interface{}{
			"task_id": res.TaskID,
			"symbol":  res.Symbol,
		}).Debug("No market data for backtest yet")
		return nil
	}

	if err := e.rows.SaveRow(ctx, row); err != nil {
		return fmt.Errorf("failed to save backtest row: %w", err)
	}

	return nil
}

// evaluate builds the row from market data, or nil when no horizon is
// computable yet
func (e *Engine) evaluate(ctx context.Context, res *contracts.SymbolResult) (*contracts.BacktestRow, error) {
	date := contracts.DateOnly(res.AnalysisDate)

	baseBar, err := e.prices.FirstCloseOnOrAfter(ctx, res.Symbol, date)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base price for %s: %w", res.Symbol, err)
	}
	if baseBar == nil {
		return nil, nil
	}
	base := baseBar.Close

	row := &contracts.BacktestRow{
		TaskID:         res.TaskID,
		Symbol:         res.Symbol,
		Decision:       string(res.Decision),
		HoldDays:       res.HoldDays,
		PredictionDate: date,
		BasePrice:      base,
		EvaluatedAt:    e.now(),
	}

	if row.Return1D, err = e.returnFrom(ctx, res.Symbol, date.AddDate(0, 0, 1), base); err != nil {
		return nil, err
	}
	if row.Return1W, err = e.returnFrom(ctx, res.Symbol, date.AddDate(0, 0, 7), base); err != nil {
		return nil, err
	}
	if row.Return1M, err = e.returnFrom(ctx, res.Symbol, date.AddDate(0, 1, 0), base); err != nil {
		return nil, err
	}
	if res.HoldDays > 0 {
		if row.ReturnAtHold, err = e.returnFrom(ctx, res.Symbol, date.AddDate(0, 0, res.HoldDays), base); err != nil {
			return nil, err
		}
	}

	if row.Return1D == nil && row.Return1W == nil && row.Return1M == nil && row.ReturnAtHold == nil {
		return nil, nil
	}

	// A position cannot be judged before its own stated exit
	if primary := row.PrimaryReturn(); primary != nil && !row.HoldActive(e.now()) {
		correct := judge(contracts.SanitizeDecision(row.Decision), *primary)
		row.Correct = &correct
	}

	return row, nil
}

// returnFrom computes the percentage return against base at the first
// close on or after the horizon date, nil while the market has none
func (e *Engine) returnFrom(ctx context.Context, symbol string, horizon time.Time, base float64) (*float64, error) {
	bar, err := e.prices.FirstCloseOnOrAfter(ctx, symbol, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s close after %s: %w", symbol, horizon.Format("2006-01-02"), err)
	}
	if bar == nil || base == 0 {
		return nil, nil
	}

	ret := (bar.Close - base) / base * 100
	return &ret, nil
}

// judge applies the sign rule: BUY and HOLD are right when the position
// gained, SELL is right when it fell
func judge(decision contracts.Decision, primaryReturn float64) bool {
	if decision == contracts.DecisionSell {
		return primaryReturn < 0
	}
	return primaryReturn > 0
}

// Repair is the idempotent integrity pass: re-evaluates every stored
// prediction against current market data, purges degenerate rows, and
// backfills correctness where the hold window has since closed. Leaves
// an audit task behind so repairs show up in task history.
func (e *Engine) Repair(ctx context.Context) (*contracts.RepairReport, error) {
	report := &contracts.RepairReport{}

	results, err := e.results.AllResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for repair: %w", err)
	}
	report.Examined = len(results)

	for _, res := range results {
		row, err := e.evaluate(ctx, res)
		if err != nil {
			// One symbol's data trouble must not abort the pass
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"task_id": res.TaskID,
				"symbol":  res.Symbol,
			}).Warn("Failed to re-evaluate prediction")
			continue
		}
		if row == nil {
			continue
		}
		if err := e.rows.SaveRow(ctx, row); err != nil {
			e.logger.WithError(err).Warn("Failed to save re-evaluated row")
			continue
		}
		report.Reevaluated++
	}

	rows, err := e.rows.AllRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest rows for repair: %w", err)
	}

	now := e.now()
	for _, row := range rows {
		if isDegenerate(row) {
			if err := e.rows.DeleteRow(ctx, row.TaskID, row.Symbol); err != nil {
				e.logger.WithError(err).Warn("Failed to purge degenerate row")
				continue
			}
			report.Purged++
			continue
		}

		primary := row.PrimaryReturn()
		if row.Correct == nil && primary != nil && !row.HoldActive(now) {
			correct := judge(contracts.SanitizeDecision(row.Decision), *primary)
			if err := e.rows.SetCorrect(ctx, row.TaskID, row.Symbol, correct); err != nil {
				e.logger.WithError(err).Warn("Failed to backfill correctness")
				continue
			}
			report.Backfilled++
		}
	}

	metrics.RecordRepair("reevaluated", report.Reevaluated)
	metrics.RecordRepair("purged", report.Purged)
	metrics.RecordRepair("backfilled", report.Backfilled)

	if err := e.recordAudit(ctx, report); err != nil {
		e.logger.WithError(err).Warn("Failed to record repair audit task")
	}

	e.logger.WithFields(map[string]interface{}{
		"examined":    report.Examined,
		"reevaluated": report.Reevaluated,
		"purged":      report.Purged,
		"backfilled":  report.Backfilled,
	}).Info("Backtest repair pass finished")

	return report, nil
}

// isDegenerate identifies rows carrying no real signal: either every
// return is null, or the prediction date resolved to the same trading
// day so the 1-day return is a meaningless zero
func isDegenerate(row *contracts.BacktestRow) bool {
	if row.Return1D == nil && row.Return1W == nil && row.Return1M == nil && row.ReturnAtHold == nil {
		return true
	}

	if row.Return1D == nil || *row.Return1D != 0 {
		return false
	}
	for _, ret := range []*float64{row.Return1W, row.Return1M, row.ReturnAtHold} {
		if ret != nil && *ret != 0 {
			return false
		}
	}
	return true
}

// recordAudit leaves a completed backfill task whose counters carry the
// repair tallies: total examined, completed backfilled, skipped purged
func (e *Engine) recordAudit(ctx context.Context, report *contracts.RepairReport) error {
	now := e.now()
	task := &contracts.Task{
		ID:           uuid.NewString(),
		Kind:         contracts.KindBackfill,
		AnalysisDate: contracts.DateOnly(now),
		Status:       contracts.StatusCompleted,
		Counters: contracts.Counters{
			Total:     report.Examined,
			Completed: report.Backfilled,
			Skipped:   report.Purged,
		},
		CreatedAt:   now,
		CompletedAt: &now,
	}

	return e.tasks.CreateTask(ctx, task)
}

// Accuracy aggregates correctness over every row whose primary return
// exists and whose hold window has closed. An empty qualifying set is a
// zero report, not an error.
func (e *Engine) Accuracy(ctx context.Context) (*contracts.AccuracyReport, error) {
	rows, err := e.rows.AllRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest rows: %w", err)
	}

	report := &contracts.AccuracyReport{
		ByDecision: make(map[contracts.Decision]contracts.DecisionAccuracy),
	}

	now := e.now()
	for _, row := range rows {
		primary := row.PrimaryReturn()
		if primary == nil || row.HoldActive(now) {
			continue
		}

		decision := contracts.SanitizeDecision(row.Decision)
		correct := judge(decision, *primary)

		report.Total++
		slice := report.ByDecision[decision]
		slice.Total++
		if correct {
			report.Correct++
			slice.Correct++
		}
		slice.Accuracy = float64(slice.Correct) / float64(slice.Total)
		report.ByDecision[decision] = slice
	}

	if report.Total > 0 {
		report.Overall = float64(report.Correct) / float64(report.Total)
	}

	return report, nil
}
