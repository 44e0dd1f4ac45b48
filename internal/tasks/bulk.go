package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/metrics"
)

const (
	// DefaultWorkers is the pool size when the caller does not choose one
	DefaultWorkers = 3

	// MinWorkers and MaxWorkers bound the pool; the engine behind it is
	// rate-limited and more concurrency only queues calls
	MinWorkers = 1
	MaxWorkers = 5

	defaultPollInterval = 2 * time.Second
	defaultWatchdog     = 600 * time.Second
)

// BulkRequest asks for a whole universe to be analyzed
type BulkRequest struct {
	Symbols []string        `json:"symbols"`
	Date    time.Time       `json:"date"`
	Workers int             `json:"workers"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Reporter receives the settled parent task after a bulk run drains
type Reporter interface {
	BulkFinished(task *contracts.Task)
}

// BulkRunner fans a symbol universe out over a bounded worker pool,
// one child task per symbol, and aggregates progress onto a parent
// task. One bulk run at a time per process.
// ⭐ SSOT: 대량 분석 실행은 여기서만
type BulkRunner struct {
	orch     *Orchestrator
	store    contracts.TaskRepository
	registry *Registry
	logger   *logger.Logger
	reporter Reporter

	poll     time.Duration
	watchdog time.Duration

	mu      sync.Mutex
	current string
}

// NewBulkRunner creates a bulk runner over the given orchestrator
func NewBulkRunner(orch *Orchestrator, store contracts.TaskRepository, registry *Registry, log *logger.Logger) *BulkRunner {
	return &BulkRunner{
		orch:     orch,
		store:    store,
		registry: registry,
		logger:   log,
		poll:     defaultPollInterval,
		watchdog: defaultWatchdog,
	}
}

// WithIntervals overrides the supervision intervals, for tests
func (b *BulkRunner) WithIntervals(poll, watchdog time.Duration) *BulkRunner {
	b.poll = poll
	b.watchdog = watchdog
	return b
}

// WithReporter wires a completion report hook
func (b *BulkRunner) WithReporter(r Reporter) *BulkRunner {
	b.reporter = r
	return b
}

// Active returns the live parent view when a bulk run is in flight
func (b *BulkRunner) Active() (contracts.StatusView, bool) {
	b.mu.Lock()
	current := b.current
	b.mu.Unlock()

	if current == "" {
		return contracts.StatusView{}, false
	}
	return b.registry.Get(current)
}

// Submit accepts a universe for analysis and returns once the parent
// task is persisted and visible; dispatch runs asynchronously. A second
// bulk run while one is active is rejected with the active view.
func (b *BulkRunner) Submit(ctx context.Context, req BulkRequest) (*contracts.Task, error) {
	symbols := NormalizeUniverse(req.Symbols)
	workers := ClampWorkers(req.Workers)

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}

	parent := &contracts.Task{
		ID:           uuid.NewString(),
		Kind:         contracts.KindBulk,
		AnalysisDate: contracts.DateOnly(date),
		Status:       contracts.StatusPending,
		Counters:     contracts.Counters{Total: len(symbols)},
		Config:       req.Config,
		CreatedAt:    time.Now(),
	}

	runCtx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	if b.current != "" {
		if view, ok := b.registry.Get(b.current); ok {
			b.mu.Unlock()
			cancel()
			return nil, &AlreadyRunningError{Existing: view}
		}
		b.current = ""
	}
	if _, ok := b.registry.Reserve(parent, cancel); !ok {
		// Parent tasks carry no symbol, so this cannot collide
		b.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("failed to register bulk task")
	}
	b.current = parent.ID
	b.mu.Unlock()

	if err := b.store.CreateTask(ctx, parent); err != nil {
		b.release(parent.ID)
		b.registry.Remove(parent.ID)
		cancel()
		return nil, fmt.Errorf("failed to persist bulk task: %w", err)
	}

	b.transition(parent, contracts.StatusInitializing, "")

	metrics.RecordTaskStarted(string(parent.Kind))
	b.logger.WithFields(map[string]interface{}{
		"task_id": parent.ID,
		"symbols": len(symbols),
		"workers": workers,
	}).Info("Bulk run submitted")

	go b.supervise(runCtx, parent, symbols, workers, req.Config)

	return parent, nil
}

// Cancel requests cooperative cancellation of the active bulk run:
// in-flight children receive the signal, undispatched symbols are
// counted as skipped.
func (b *BulkRunner) Cancel() bool {
	b.mu.Lock()
	current := b.current
	b.mu.Unlock()

	if current == "" {
		return false
	}
	return b.registry.Cancel(current)
}

// supervise dispatches the universe and waits for every symbol to
// resolve, then settles the parent.
func (b *BulkRunner) supervise(ctx context.Context, parent *contracts.Task, symbols []string, workers int, config json.RawMessage) {
	start := time.Now()
	defer b.release(parent.ID)
	defer b.registry.Remove(parent.ID)

	b.transition(parent, contracts.StatusRunning, "")

	var (
		mu       sync.Mutex
		resolved = make(map[string]bool)
		counters = parent.Counters
	)

	updateActive := func() {
		mu.Lock()
		active := make([]string, 0, workers)
		for _, symbol := range symbols {
			if !resolved[symbol] {
				active = append(active, symbol)
				if len(active) == workers {
					break
				}
			}
		}
		mu.Unlock()
		b.registry.SetActive(parent.ID, active)
	}

	resolve := func(symbol, outcome string) {
		mu.Lock()
		if resolved[symbol] {
			mu.Unlock()
			return
		}
		resolved[symbol] = true
		switch outcome {
		case "completed":
			counters.Completed++
		case "skipped":
			counters.Skipped++
		default:
			counters.Failed++
		}
		snapshot := counters
		mu.Unlock()

		b.registry.SetCounters(parent.ID, snapshot)
		updateActive()

		// Counter writes are best-effort; the registry stays authoritative
		if err := b.store.UpdateTaskCounters(context.Background(), parent.ID, snapshot); err != nil {
			b.logger.WithError(err).WithField("task_id", parent.ID).Warn("Failed to persist bulk counters")
		}
	}

	updateActive()

	queue := make(chan string)
	var wg sync.WaitGroup

	metrics.UpdateBulkWorkers(workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range queue {
				b.runSymbol(ctx, parent, symbol, config, resolve)
			}
		}()
	}

	for _, symbol := range symbols {
		select {
		case queue <- symbol:
		case <-ctx.Done():
			resolve(symbol, "skipped")
		}
	}
	close(queue)
	wg.Wait()
	metrics.UpdateBulkWorkers(0)

	final := contracts.StatusCompleted
	errText := ""
	if ctx.Err() != nil {
		final = contracts.StatusCancelled
		errText = "bulk run cancelled"
	}

	mu.Lock()
	snapshot := counters
	mu.Unlock()
	if err := b.store.UpdateTaskCounters(context.Background(), parent.ID, snapshot); err != nil {
		b.logger.WithError(err).WithField("task_id", parent.ID).Warn("Failed to persist final bulk counters")
	}
	parent.Counters = snapshot

	b.transition(parent, final, errText)
	metrics.RecordTaskFinished(string(parent.Kind), strings.ToLower(string(final)), time.Since(start))

	b.logger.WithFields(map[string]interface{}{
		"task_id":   parent.ID,
		"status":    string(final),
		"total":     snapshot.Total,
		"completed": snapshot.Completed,
		"failed":    snapshot.Failed,
		"skipped":   snapshot.Skipped,
		"duration":  time.Since(start).String(),
	}).Info("Bulk run finished")

	if b.reporter != nil {
		go b.reporter.BulkFinished(parent)
	}
}

// runSymbol dispatches one child and supervises it to resolution.
// A child outliving the watchdog is counted as failed without being
// stopped; its run may still finish and persist later.
func (b *BulkRunner) runSymbol(ctx context.Context, parent *contracts.Task, symbol string, config json.RawMessage, resolve func(string, string)) {
	if ctx.Err() != nil {
		resolve(symbol, "skipped")
		return
	}

	child, err := b.orch.submit(context.Background(), SubmitRequest{
		Symbol: symbol,
		Date:   parent.AnalysisDate,
		Config: config,
	}, parent.ID, ctx)
	if err != nil {
		var already *AlreadyRunningError
		if errors.As(err, &already) {
			b.logger.WithFields(map[string]interface{}{
				"symbol":      symbol,
				"occupied_by": already.Existing.TaskID,
				"parent_task": parent.ID,
			}).Debug("Symbol already active, skipping")
			resolve(symbol, "skipped")
			return
		}
		b.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to dispatch symbol")
		resolve(symbol, "failed")
		return
	}

	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	deadline := time.NewTimer(b.watchdog)
	defer deadline.Stop()

	for {
		view, err := b.orch.Status(context.Background(), child.ID)
		if err == nil && view.Status.IsTerminal() {
			if view.Status == contracts.StatusCompleted {
				resolve(symbol, "completed")
			} else {
				// FAILED, CANCELLED and TIMEOUT all land in the failed
				// counter; skipped is reserved for never-started work
				resolve(symbol, "failed")
			}
			return
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			b.logger.WithFields(map[string]interface{}{
				"symbol":  symbol,
				"task_id": child.ID,
			}).Warn("Symbol supervision timed out, run continues unsupervised")
			resolve(symbol, "failed")
			return
		}
	}
}

// transition writes the parent's status to store and registry
func (b *BulkRunner) transition(parent *contracts.Task, status contracts.TaskStatus, errText string) {
	if err := b.store.UpdateTaskStatus(context.Background(), parent.ID, status, errText); err != nil {
		b.logger.WithError(err).WithFields(map[string]interface{}{
			"task_id": parent.ID,
			"status":  string(status),
		}).Warn("Failed to persist bulk status transition")
	}
	b.registry.SetStatus(parent.ID, status, errText)
	parent.Status = status

	if b.orch.events != nil {
		if view, ok := b.registry.Get(parent.ID); ok {
			b.orch.events.PublishTask(view)
		}
	}
}

// release clears the active-run slot
func (b *BulkRunner) release(taskID string) {
	b.mu.Lock()
	if b.current == taskID {
		b.current = ""
	}
	b.mu.Unlock()
}

// NormalizeUniverse uppercases, trims, and dedupes a symbol list,
// preserving first-seen order
func NormalizeUniverse(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))

	for _, raw := range symbols {
		symbol := NormalizeSymbol(raw)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	return out
}

// ClampWorkers bounds the worker count to 1..MaxWorkers, defaulting
// when unset
func ClampWorkers(workers int) int {
	if workers <= 0 {
		return DefaultWorkers
	}
	if workers > MaxWorkers {
		return MaxWorkers
	}
	return workers
}
