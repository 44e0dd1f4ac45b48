// Package metrics provides Prometheus metrics for the analysis pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argos_tasks_started_total",
			Help: "Total number of analysis tasks started",
		},
		[]string{"kind"},
	)
	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argos_tasks_finished_total",
			Help: "Total number of analysis tasks that reached a terminal status",
		},
		[]string{"kind", "status"},
	)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argos_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind", "status"},
	)
	EngineCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argos_engine_call_duration_seconds",
			Help:    "Analysis engine call duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)
	BacktestRowsRepaired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argos_backtest_rows_repaired_total",
			Help: "Total number of backtest rows touched by integrity repair",
		},
		[]string{"action"},
	)
	BulkWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argos_bulk_workers_active",
			Help: "Number of currently active bulk workers",
		},
	)
	RegistryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argos_registry_entries",
			Help: "Number of live entries in the task registry",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argos_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTaskStarted(kind string) {
	TasksStarted.WithLabelValues(kind).Inc()
}

func RecordTaskFinished(kind, status string, duration time.Duration) {
	TasksFinished.WithLabelValues(kind, status).Inc()
	TaskDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

func RecordEngineCall(status string, duration time.Duration) {
	EngineCallDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordRepair(action string, rows int) {
	BacktestRowsRepaired.WithLabelValues(action).Add(float64(rows))
}

func UpdateBulkWorkers(count int) {
	BulkWorkersActive.Set(float64(count))
}

func UpdateRegistryEntries(count int) {
	RegistryEntries.Set(float64(count))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
