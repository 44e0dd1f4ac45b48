package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/argos/internal/backtest"
	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/redis"
)

// BacktestHandler serves backtest rows, the accuracy report, and the
// manual repair trigger
type BacktestHandler struct {
	engine *backtest.Engine
	rows   contracts.BacktestRepository
	cache  *redis.Cache
	logger *logger.Logger
}

// NewBacktestHandler creates a backtest handler
func NewBacktestHandler(engine *backtest.Engine, rows contracts.BacktestRepository, cache *redis.Cache, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{engine: engine, rows: rows, cache: cache, logger: log}
}

// Rows returns a task's backtest evaluations
// GET /api/v1/backtest/{taskId}
func (h *BacktestHandler) Rows(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]

	rows, err := h.rows.RowsByTask(r.Context(), taskID)
	if err != nil {
		h.logger.WithError(err).WithField("task_id", taskID).Error("Failed to load backtest rows")
		respondError(w, http.StatusInternalServerError, "Failed to load backtest rows")
		return
	}

	respondJSON(w, http.StatusOK, rows)
}

// Accuracy returns the aggregated prediction accuracy report
// GET /api/v1/backtest/accuracy
func (h *BacktestHandler) Accuracy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cached contracts.AccuracyReport
	if found, err := h.cache.Get(ctx, redis.AccuracyKey(), &cached); err == nil && found {
		respondJSON(w, http.StatusOK, &cached)
		return
	}

	report, err := h.engine.Accuracy(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute accuracy")
		respondError(w, http.StatusInternalServerError, "Failed to compute accuracy")
		return
	}

	_ = h.cache.Set(ctx, redis.AccuracyKey(), report, redis.TTLLong)
	respondJSON(w, http.StatusOK, report)
}

// Repair triggers the integrity pass and returns its report
// POST /api/v1/backtest/repair
func (h *BacktestHandler) Repair(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Repair(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Backtest repair failed")
		respondError(w, http.StatusInternalServerError, "Backtest repair failed")
		return
	}

	// The report changed the rows the cached accuracy was computed over
	_ = h.cache.Delete(r.Context(), redis.AccuracyKey())

	respondJSON(w, http.StatusOK, report)
}
