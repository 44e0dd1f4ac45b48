package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/internal/settings"
	"github.com/wonny/argos/internal/tasks"
	"github.com/wonny/argos/pkg/logger"
)

// TaskHandler exposes task submission, status, and cancellation
// ⭐ SSOT: 태스크 API 핸들러는 이 구조체에서만
type TaskHandler struct {
	orch     *tasks.Orchestrator
	bulk     *tasks.BulkRunner
	store    contracts.TaskRepository
	results  contracts.ResultRepository
	schedule settings.Store
	logger   *logger.Logger
}

// NewTaskHandler creates a task handler
func NewTaskHandler(
	orch *tasks.Orchestrator,
	bulk *tasks.BulkRunner,
	store contracts.TaskRepository,
	results contracts.ResultRepository,
	schedule settings.Store,
	log *logger.Logger,
) *TaskHandler {
	return &TaskHandler{
		orch:     orch,
		bulk:     bulk,
		store:    store,
		results:  results,
		schedule: schedule,
		logger:   log,
	}
}

// analyzeRequest is the wire form of a single submission
type analyzeRequest struct {
	Symbol string          `json:"symbol"`
	Date   string          `json:"date,omitempty"` // YYYY-MM-DD, default today
	Config json.RawMessage `json:"config,omitempty"`
}

// bulkRequest is the wire form of a bulk submission. Omitted fields
// fall back to the persisted schedule settings.
type bulkRequest struct {
	Symbols []string        `json:"symbols,omitempty"`
	Workers int             `json:"workers,omitempty"`
	Date    string          `json:"date,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Analyze submits one symbol
// POST /api/v1/analyze
func (h *TaskHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	task, err := h.orch.Submit(r.Context(), tasks.SubmitRequest{
		Symbol: req.Symbol,
		Date:   date,
		Config: req.Config,
	})
	if err != nil {
		var already *tasks.AlreadyRunningError
		if errors.As(err, &already) {
			respondJSON(w, http.StatusConflict, already.Existing)
			return
		}
		h.logger.WithError(err).WithField("symbol", req.Symbol).Error("Failed to submit analysis")
		respondError(w, http.StatusInternalServerError, "Failed to submit analysis")
		return
	}

	respondJSON(w, http.StatusAccepted, tasks.ViewFromTask(task))
}

// AnalyzeBulk starts a bulk run over the given or configured universe
// POST /api/v1/analyze/bulk
func (h *TaskHandler) AnalyzeBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Symbols) == 0 || req.Workers == 0 {
		s, err := h.schedule.Get(r.Context())
		if err != nil {
			h.logger.WithError(err).Error("Failed to load schedule settings")
			respondError(w, http.StatusInternalServerError, "Failed to load schedule settings")
			return
		}
		if s != nil {
			if len(req.Symbols) == 0 {
				req.Symbols = s.Universe
			}
			if req.Workers == 0 {
				req.Workers = s.Workers
			}
		}
	}
	if len(req.Symbols) == 0 {
		respondError(w, http.StatusBadRequest, "symbols are required (none given, none configured)")
		return
	}

	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	task, err := h.bulk.Submit(r.Context(), tasks.BulkRequest{
		Symbols: req.Symbols,
		Workers: req.Workers,
		Date:    date,
		Config:  req.Config,
	})
	if err != nil {
		var already *tasks.AlreadyRunningError
		if errors.As(err, &already) {
			respondJSON(w, http.StatusConflict, already.Existing)
			return
		}
		h.logger.WithError(err).Error("Failed to start bulk run")
		respondError(w, http.StatusInternalServerError, "Failed to start bulk run")
		return
	}

	respondJSON(w, http.StatusAccepted, tasks.ViewFromTask(task))
}

// CancelBulk requests cancellation of the active bulk run
// POST /api/v1/analyze/bulk/cancel
func (h *TaskHandler) CancelBulk(w http.ResponseWriter, r *http.Request) {
	cancelled := h.bulk.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// List returns recent tasks, newest first
// GET /api/v1/tasks?kind=bulk&limit=20
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := contracts.TaskKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.IsValid() {
		respondError(w, http.StatusBadRequest, "unknown task kind")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	list, err := h.store.ListTasks(r.Context(), kind, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list tasks")
		respondError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// Status resolves a task id or symbol to a snapshot. Unknown
// references resolve to a NOT_FOUND view, never an error.
// GET /api/v1/tasks/{ref}
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]

	view, err := h.orch.Status(r.Context(), ref)
	if err != nil {
		h.logger.WithError(err).WithField("ref", ref).Error("Failed to resolve status")
		respondError(w, http.StatusInternalServerError, "Failed to resolve status")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// Cancel requests cooperative cancellation by task id or symbol.
// Idempotent: cancelling finished or unknown work reports false.
// POST /api/v1/tasks/{ref}/cancel
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]
	cancelled := h.orch.Cancel(ref)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ref":       ref,
		"cancelled": cancelled,
	})
}

// Results returns a task's per-symbol verdicts, ranked rows first
// GET /api/v1/tasks/{ref}/results
func (h *TaskHandler) Results(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["ref"]

	results, err := h.results.ResultsByTask(r.Context(), taskID)
	if err != nil {
		h.logger.WithError(err).WithField("task_id", taskID).Error("Failed to load results")
		respondError(w, http.StatusInternalServerError, "Failed to load results")
		return
	}

	respondJSON(w, http.StatusOK, results)
}

// parseDate parses an optional YYYY-MM-DD field, writing the 400 itself
func parseDate(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (expected YYYY-MM-DD)")
		return time.Time{}, false
	}
	return date, true
}
