package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wonny/argos/internal/settings"
	"github.com/wonny/argos/pkg/logger"
)

// ScheduleHandler serves the auto-analysis schedule settings
type ScheduleHandler struct {
	store  settings.Store
	logger *logger.Logger
}

// NewScheduleHandler creates a schedule handler
func NewScheduleHandler(store settings.Store, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{store: store, logger: log}
}

// Get returns the persisted schedule, or the defaults when none was
// ever saved
// GET /api/v1/schedule
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load schedule settings")
		respondError(w, http.StatusInternalServerError, "Failed to load schedule settings")
		return
	}
	if s == nil {
		s = settings.Defaults()
	}

	respondJSON(w, http.StatusOK, s)
}

// Update validates and replaces the schedule. The last-run marker is
// scheduler-owned and survives the save.
// PUT /api/v1/schedule
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var s settings.ScheduleSettings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.store.Save(r.Context(), &s); err != nil {
		if validationErr := s.Validate(); validationErr != nil {
			respondError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to save schedule settings")
		respondError(w, http.StatusInternalServerError, "Failed to save schedule settings")
		return
	}

	saved, err := h.store.Get(r.Context())
	if err != nil || saved == nil {
		respondJSON(w, http.StatusOK, &s)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
