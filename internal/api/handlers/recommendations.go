package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/redis"
)

// RecommendationHandler serves ranked summaries. Reads go through the
// redis cache; a recompute invalidates nothing, the short TTL bounds
// staleness instead.
type RecommendationHandler struct {
	results contracts.ResultRepository
	cache   *redis.Cache
	logger  *logger.Logger
}

// NewRecommendationHandler creates a recommendation handler
func NewRecommendationHandler(results contracts.ResultRepository, cache *redis.Cache, log *logger.Logger) *RecommendationHandler {
	return &RecommendationHandler{results: results, cache: cache, logger: log}
}

// Get returns one task's summary
// GET /api/v1/recommendations/{taskId}
func (h *RecommendationHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]
	ctx := r.Context()

	var cached contracts.RecommendationSummary
	if found, err := h.cache.Get(ctx, redis.RecommendationKey(taskID), &cached); err == nil && found {
		respondJSON(w, http.StatusOK, &cached)
		return
	}

	summary, err := h.results.GetSummary(ctx, taskID)
	if err != nil {
		h.logger.WithError(err).WithField("task_id", taskID).Error("Failed to load summary")
		respondError(w, http.StatusInternalServerError, "Failed to load summary")
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "No summary for this task")
		return
	}

	_ = h.cache.Set(ctx, redis.RecommendationKey(taskID), summary, redis.TTLMedium)
	respondJSON(w, http.StatusOK, summary)
}

// Latest returns the newest summary across all tasks
// GET /api/v1/recommendations/latest
func (h *RecommendationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	summary, err := h.results.LatestSummary(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load latest summary")
		respondError(w, http.StatusInternalServerError, "Failed to load latest summary")
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "No summaries yet")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
