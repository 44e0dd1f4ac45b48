package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/metrics"
)

// Registry is the process-local view of live runs: which task ids exist
// right now and which symbols are occupied. Authoritative only for
// "is this running here, now"; everything durable lives in the store.
// ⭐ SSOT: 실행 중 태스크의 인메모리 상태는 여기서만
type Registry struct {
	mu       sync.RWMutex
	byTask   map[string]*entry
	bySymbol map[string]string
}

type entry struct {
	taskID       string
	kind         contracts.TaskKind
	symbol       string
	parentID     string
	analysisDate time.Time
	createdAt    time.Time
	startedAt    *time.Time
	completedAt  *time.Time
	status       contracts.TaskStatus
	errText      string
	counters     contracts.Counters
	active       []string
	cancel       context.CancelFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byTask:   make(map[string]*entry),
		bySymbol: make(map[string]string),
	}
}

// Reserve atomically claims the task's symbol slot and registers the
// entry as INITIALIZING. When the symbol is already occupied it returns
// the occupant's view and false, and registers nothing.
func (r *Registry) Reserve(task *contracts.Task, cancel context.CancelFunc) (*contracts.StatusView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task.Symbol != "" {
		if occupantID, ok := r.bySymbol[task.Symbol]; ok {
			view := r.byTask[occupantID].view()
			return &view, false
		}
	}

	e := &entry{
		taskID:       task.ID,
		kind:         task.Kind,
		symbol:       task.Symbol,
		parentID:     task.ParentID,
		analysisDate: task.AnalysisDate,
		createdAt:    task.CreatedAt,
		status:       contracts.StatusInitializing,
		counters:     task.Counters,
		cancel:       cancel,
	}

	r.byTask[task.ID] = e
	if task.Symbol != "" {
		r.bySymbol[task.Symbol] = task.ID
	}
	metrics.UpdateRegistryEntries(len(r.byTask))

	view := e.view()
	return &view, true
}

// SetStatus moves a live entry through the lifecycle. Terminal statuses
// release the symbol slot immediately so the symbol can be resubmitted
// before the entry is removed.
func (r *Registry) SetStatus(taskID string, status contracts.TaskStatus, errText string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byTask[taskID]
	if !ok || e.status.IsTerminal() {
		return
	}

	now := time.Now()
	e.status = status
	if errText != "" {
		e.errText = errText
	}
	if status == contracts.StatusRunning && e.startedAt == nil {
		e.startedAt = &now
	}
	if status.IsTerminal() {
		e.completedAt = &now
		if e.symbol != "" && r.bySymbol[e.symbol] == taskID {
			delete(r.bySymbol, e.symbol)
		}
	}
}

// SetCounters replaces a live entry's progress counters
func (r *Registry) SetCounters(taskID string, c contracts.Counters) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byTask[taskID]; ok {
		e.counters = c
	}
}

// SetActive replaces the display-only list of currently active symbols
func (r *Registry) SetActive(taskID string, symbols []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byTask[taskID]; ok {
		e.active = append([]string(nil), symbols...)
	}
}

// Cancel fires the cancellation signal of the entry matching the given
// task id or symbol. Idempotent; a second call on the same entry is a
// no-op, and entries already terminal cannot be cancelled.
func (r *Registry) Cancel(ref string) bool {
	r.mu.RLock()
	e, ok := r.byTask[ref]
	if !ok {
		if id, found := r.bySymbol[ref]; found {
			e, ok = r.byTask[id]
		}
	}
	// Entry fields may only be read while the lock is held; capture the
	// cancel func and fire it after release
	var cancel context.CancelFunc
	if ok && !e.status.IsTerminal() {
		cancel = e.cancel
	}
	r.mu.RUnlock()

	if cancel == nil {
		return false
	}

	cancel()
	return true
}

// Get returns a live entry's view by task id
func (r *Registry) Get(taskID string) (contracts.StatusView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byTask[taskID]
	if !ok {
		return contracts.StatusView{}, false
	}
	return e.view(), true
}

// GetBySymbol returns the view of the task occupying the symbol's slot
func (r *Registry) GetBySymbol(symbol string) (contracts.StatusView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if symbol == "" {
		return contracts.StatusView{}, false
	}

	id, ok := r.bySymbol[symbol]
	if !ok {
		return contracts.StatusView{}, false
	}
	return r.byTask[id].view(), true
}

// Remove drops the entry and releases its symbol slot
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byTask[taskID]
	if !ok {
		return
	}

	delete(r.byTask, taskID)
	if e.symbol != "" && r.bySymbol[e.symbol] == taskID {
		delete(r.bySymbol, e.symbol)
	}
	metrics.UpdateRegistryEntries(len(r.byTask))
}

// Len returns the number of live entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byTask)
}

// ActiveSymbols returns every symbol currently holding a slot
func (r *Registry) ActiveSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func (e *entry) view() contracts.StatusView {
	return contracts.StatusView{
		TaskID:       e.taskID,
		Kind:         e.kind,
		Symbol:       e.symbol,
		Status:       e.status,
		Error:        e.errText,
		Counters:     e.counters,
		Active:       append([]string(nil), e.active...),
		AnalysisDate: e.analysisDate,
		CreatedAt:    e.createdAt,
		StartedAt:    e.startedAt,
		CompletedAt:  e.completedAt,
		Source:       contracts.SourceRegistry,
	}
}
