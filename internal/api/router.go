package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/argos/internal/api/handlers"
	"github.com/wonny/argos/pkg/database"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/metrics"
	"github.com/wonny/argos/pkg/redis"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Tasks           *handlers.TaskHandler
	Recommendations *handlers.RecommendationHandler
	Backtest        *handlers.BacktestHandler
	Schedule        *handlers.ScheduleHandler
	Stream          http.HandlerFunc
}

// NewRouter wires the HTTP surface
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, db *database.DB, cache *redis.Client, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler(db, cache)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if h.Stream != nil {
		r.HandleFunc("/ws/tasks", h.Stream).Methods("GET")
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/analyze", h.Tasks.Analyze).Methods("POST")
	api.HandleFunc("/analyze/bulk", h.Tasks.AnalyzeBulk).Methods("POST")
	api.HandleFunc("/analyze/bulk/cancel", h.Tasks.CancelBulk).Methods("POST")

	api.HandleFunc("/tasks", h.Tasks.List).Methods("GET")
	api.HandleFunc("/tasks/{ref}", h.Tasks.Status).Methods("GET")
	api.HandleFunc("/tasks/{ref}/cancel", h.Tasks.Cancel).Methods("POST")
	api.HandleFunc("/tasks/{ref}/results", h.Tasks.Results).Methods("GET")

	api.HandleFunc("/recommendations/latest", h.Recommendations.Latest).Methods("GET")
	api.HandleFunc("/recommendations/{taskId}", h.Recommendations.Get).Methods("GET")

	api.HandleFunc("/backtest/accuracy", h.Backtest.Accuracy).Methods("GET")
	api.HandleFunc("/backtest/repair", h.Backtest.Repair).Methods("POST")
	api.HandleFunc("/backtest/{taskId}", h.Backtest.Rows).Methods("GET")

	api.HandleFunc("/schedule", h.Schedule.Get).Methods("GET")
	api.HandleFunc("/schedule", h.Schedule.Update).Methods("PUT")

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthHandler reports process liveness plus backing-store health.
// The db and redis checks tolerate nil dependencies so test routers
// mount without infrastructure.
func healthHandler(db *database.DB, cache *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]interface{}{
			"status":  "ok",
			"service": "argos-api",
		}
		healthy := true

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				status["database"] = "down"
				healthy = false
			} else {
				status["database"] = "up"
			}
		}
		if cache != nil && cache.Enabled() {
			if err := cache.Redis().Ping(ctx).Err(); err != nil {
				status["redis"] = "down"
				healthy = false
			} else {
				status["redis"] = "up"
			}
		}

		code := http.StatusOK
		if !healthy {
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}

// statusRecorder captures the response code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs and measures every request
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			endpoint := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					endpoint = tmpl
				}
			}
			metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(rec.status), duration)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": duration.String(),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware converts handler panics into 500 envelopes
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]interface{}{
						"success": false,
						"error":   "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
