package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/metrics"
)

// Ranker recomputes a task's ranking after a result lands
type Ranker interface {
	Recompute(ctx context.Context, taskID string) error
}

// Backtester evaluates a freshly persisted result against market data
type Backtester interface {
	EvaluateResult(ctx context.Context, res *contracts.SymbolResult) error
}

// EventSink receives task lifecycle views for live streaming
type EventSink interface {
	PublishTask(view contracts.StatusView)
}

// SubmitRequest asks for one symbol to be analyzed
type SubmitRequest struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Orchestrator drives single-symbol runs: it owns the lifecycle from
// submit through the engine call to the persisted result, honoring
// cancellation at fixed checkpoints only. The engine call itself is
// never interrupted.
// ⭐ SSOT: 단일 종목 분석 실행은 여기서만
type Orchestrator struct {
	store    contracts.TaskRepository
	results  contracts.ResultRepository
	engine   contracts.Engine
	registry *Registry
	logger   *logger.Logger

	ranker   Ranker
	backtest Backtester
	events   EventSink
}

// NewOrchestrator creates an orchestrator over the given collaborators
func NewOrchestrator(
	store contracts.TaskRepository,
	results contracts.ResultRepository,
	engine contracts.Engine,
	registry *Registry,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		results:  results,
		engine:   engine,
		registry: registry,
		logger:   log,
	}
}

// WithRanker wires ranking recomputation into the completion path
func (o *Orchestrator) WithRanker(r Ranker) *Orchestrator {
	o.ranker = r
	return o
}

// WithBacktester wires opportunistic backtest evaluation into the
// completion path
func (o *Orchestrator) WithBacktester(b Backtester) *Orchestrator {
	o.backtest = b
	return o
}

// WithEvents wires a sink for live status broadcasts
func (o *Orchestrator) WithEvents(sink EventSink) *Orchestrator {
	o.events = sink
	return o
}

// Submit accepts one symbol for analysis and returns once the task is
// persisted and visible as INITIALIZING; the run itself is asynchronous.
// A symbol with an active run is rejected and nothing is created.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*contracts.Task, error) {
	return o.submit(ctx, req, "", nil)
}

// submit is the shared path for both public submits and bulk children.
// Children derive their run context from the parent so a global cancel
// reaches every in-flight child.
func (o *Orchestrator) submit(ctx context.Context, req SubmitRequest, parentID string, parentCtx context.Context) (*contracts.Task, error) {
	symbol := NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}

	task := &contracts.Task{
		ID:           uuid.NewString(),
		Kind:         contracts.KindSingle,
		Symbol:       symbol,
		ParentID:     parentID,
		AnalysisDate: contracts.DateOnly(date),
		Status:       contracts.StatusPending,
		Config:       req.Config,
		CreatedAt:    time.Now(),
	}

	base := parentCtx
	if base == nil {
		base = context.Background()
	}
	runCtx, cancel := context.WithCancel(base)

	existing, ok := o.registry.Reserve(task, cancel)
	if !ok {
		cancel()
		return nil, &AlreadyRunningError{Existing: *existing}
	}

	if err := o.store.CreateTask(ctx, task); err != nil {
		o.registry.Remove(task.ID)
		cancel()
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	// Accepted-to-visible is synchronous: the INITIALIZING transition
	// lands before the worker spawns, so no poller sees a gap
	o.transition(ctx, task, contracts.StatusInitializing, "")

	metrics.RecordTaskStarted(string(task.Kind))
	o.logger.WithFields(map[string]interface{}{
		"task_id": task.ID,
		"symbol":  symbol,
		"date":    task.AnalysisDate.Format("2006-01-02"),
	}).Info("Task submitted")

	go o.run(runCtx, task)

	return task, nil
}

// run executes one analysis. Cancellation checkpoints sit before the
// engine call and immediately after it returns; a cancel landing at the
// second checkpoint discards the computed result.
func (o *Orchestrator) run(ctx context.Context, task *contracts.Task) {
	start := time.Now()
	defer o.registry.Remove(task.ID)

	if cancelled(ctx) {
		o.finish(task, contracts.StatusCancelled, "cancelled before analysis started", start)
		return
	}

	o.transition(context.Background(), task, contracts.StatusRunning, "")

	res, err := o.engine.Analyze(context.WithoutCancel(ctx), contracts.AnalysisRequest{
		Symbol: task.Symbol,
		Date:   task.AnalysisDate,
		Config: task.Config,
	})
	if err != nil {
		o.finish(task, contracts.StatusFailed, err.Error(), start)
		return
	}

	if cancelled(ctx) {
		// Cancellation wins over finished work: the computed result is
		// discarded, not persisted
		o.finish(task, contracts.StatusCancelled, "cancelled after analysis, result discarded", start)
		return
	}

	owner := task.ID
	if task.ParentID != "" {
		owner = task.ParentID
	}

	result := &contracts.SymbolResult{
		TaskID:       owner,
		Symbol:       task.Symbol,
		Decision:     contracts.SanitizeDecision(res.Decision),
		Confidence:   contracts.Confidence(strings.ToUpper(strings.TrimSpace(res.Confidence))),
		Risk:         contracts.Risk(strings.ToUpper(strings.TrimSpace(res.Risk))),
		HoldDays:     res.HoldDays,
		Rationale:    res.Rationale,
		AnalysisDate: task.AnalysisDate,
		CreatedAt:    time.Now(),
	}

	if err := o.results.SaveResult(context.Background(), result); err != nil {
		o.finish(task, contracts.StatusFailed, fmt.Sprintf("failed to persist result: %v", err), start)
		return
	}

	if o.ranker != nil {
		if err := o.ranker.Recompute(context.Background(), owner); err != nil {
			o.logger.WithError(err).WithField("task_id", owner).Warn("Failed to recompute ranking")
		}
	}
	if o.backtest != nil {
		if err := o.backtest.EvaluateResult(context.Background(), result); err != nil {
			o.logger.WithError(err).WithField("symbol", task.Symbol).Warn("Failed to evaluate backtest")
		}
	}

	o.finish(task, contracts.StatusCompleted, "", start)
}

// finish moves the task to a terminal status and records metrics
func (o *Orchestrator) finish(task *contracts.Task, status contracts.TaskStatus, errText string, start time.Time) {
	o.transition(context.Background(), task, status, errText)
	metrics.RecordTaskFinished(string(task.Kind), strings.ToLower(string(status)), time.Since(start))

	log := o.logger.WithFields(map[string]interface{}{
		"task_id": task.ID,
		"symbol":  task.Symbol,
		"status":  string(status),
	})
	if errText != "" {
		log = log.WithField("error", errText)
	}
	log.Info("Task finished")
}

// transition writes the status to the store and the registry. Store
// failures on incidental updates are logged and swallowed; the registry
// stays authoritative for the rest of the process lifetime.
func (o *Orchestrator) transition(ctx context.Context, task *contracts.Task, status contracts.TaskStatus, errText string) {
	if err := o.store.UpdateTaskStatus(ctx, task.ID, status, errText); err != nil {
		o.logger.WithError(err).WithFields(map[string]interface{}{
			"task_id": task.ID,
			"status":  string(status),
		}).Warn("Failed to persist status transition")
	}

	o.registry.SetStatus(task.ID, status, errText)
	task.Status = status

	if o.events != nil {
		if view, ok := o.registry.Get(task.ID); ok {
			o.events.PublishTask(view)
		}
	}
}

// Status resolves a task id or symbol to a best-effort snapshot: the
// live registry first, then the persisted row, then a distinct
// not-found view. Never an error for an unknown reference.
func (o *Orchestrator) Status(ctx context.Context, ref string) (*contracts.StatusView, error) {
	if view, ok := o.registry.Get(ref); ok {
		return &view, nil
	}
	if view, ok := o.registry.GetBySymbol(NormalizeSymbol(ref)); ok {
		return &view, nil
	}

	task, err := o.store.GetTask(ctx, ref)
	if err != nil {
		return nil, err
	}
	if task == nil {
		task, err = o.store.LatestTaskForSymbol(ctx, NormalizeSymbol(ref))
		if err != nil {
			return nil, err
		}
	}
	if task == nil {
		return &contracts.StatusView{
			TaskID: ref,
			Status: contracts.StatusNotFound,
			Source: contracts.SourceNone,
		}, nil
	}

	view := ViewFromTask(task)
	return &view, nil
}

// Cancel requests cooperative cancellation by task id or symbol.
// Returns false when nothing active matches; already-finished work is
// not cancellable.
func (o *Orchestrator) Cancel(ref string) bool {
	if o.registry.Cancel(ref) {
		return true
	}
	return o.registry.Cancel(NormalizeSymbol(ref))
}

// NormalizeSymbol uppercases and trims a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ViewFromTask builds a status view out of a persisted row
func ViewFromTask(task *contracts.Task) contracts.StatusView {
	return contracts.StatusView{
		TaskID:       task.ID,
		Kind:         task.Kind,
		Symbol:       task.Symbol,
		Status:       task.Status,
		Error:        task.Error,
		Counters:     task.Counters,
		AnalysisDate: task.AnalysisDate,
		CreatedAt:    task.CreatedAt,
		StartedAt:    task.StartedAt,
		CompletedAt:  task.CompletedAt,
		Source:       contracts.SourceStore,
	}
}

// cancelled is the checkpoint probe
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
