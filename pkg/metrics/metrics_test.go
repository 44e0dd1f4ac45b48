package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTaskStarted(t *testing.T) {
	TasksStarted.Reset()

	RecordTaskStarted("single")
	RecordTaskStarted("single")
	RecordTaskStarted("bulk")

	assert.Equal(t, 2.0, getCounterValue(t, TasksStarted, "single"))
	assert.Equal(t, 1.0, getCounterValue(t, TasksStarted, "bulk"))
}

func TestRecordTaskFinished(t *testing.T) {
	TasksFinished.Reset()
	TaskDuration.Reset()

	RecordTaskFinished("single", "completed", 3*time.Second)
	RecordTaskFinished("single", "failed", 500*time.Millisecond)

	assert.Equal(t, 1.0, getCounterValue(t, TasksFinished, "single", "completed"))
	assert.Equal(t, 1.0, getCounterValue(t, TasksFinished, "single", "failed"))

	sum := getHistogramSum(t, TaskDuration, "single", "completed")
	assert.Equal(t, 3.0, sum, "duration should be recorded")
}

func TestRecordEngineCall(t *testing.T) {
	EngineCallDuration.Reset()

	RecordEngineCall("ok", 90*time.Second)
	RecordEngineCall("error", 2*time.Second)

	assert.Equal(t, 90.0, getHistogramSum(t, EngineCallDuration, "ok"))
	assert.Equal(t, 2.0, getHistogramSum(t, EngineCallDuration, "error"))
}

func TestRecordRepair(t *testing.T) {
	BacktestRowsRepaired.Reset()

	RecordRepair("purged", 4)
	RecordRepair("backfilled", 7)

	assert.Equal(t, 4.0, getCounterValue(t, BacktestRowsRepaired, "purged"))
	assert.Equal(t, 7.0, getCounterValue(t, BacktestRowsRepaired, "backfilled"))
}

func TestUpdateBulkWorkers(t *testing.T) {
	counts := []int{0, 1, 3, 5}

	for _, count := range counts {
		UpdateBulkWorkers(count)

		metric := &dto.Metric{}
		err := BulkWorkersActive.Write(metric)
		require.NoError(t, err)

		assert.Equal(t, float64(count), metric.Gauge.GetValue())
	}
}

func TestUpdateRegistryEntries(t *testing.T) {
	UpdateRegistryEntries(12)

	metric := &dto.Metric{}
	err := RegistryEntries.Write(metric)
	require.NoError(t, err)

	assert.Equal(t, 12.0, metric.Gauge.GetValue())
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/v1/analyze", "202", 20*time.Millisecond)

	count := getCounterValue(t, HTTPRequestsTotal, "POST", "/api/v1/analyze", "202")
	assert.Equal(t, 1.0, count)

	sum := getHistogramSum(t, HTTPRequestDuration, "POST", "/api/v1/analyze")
	assert.Greater(t, sum, 0.0)
}

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := counter.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	err = observer.Write(metric)
	require.NoError(t, err)
	return metric.Counter.GetValue()
}

func getHistogramSum(t *testing.T, histogram *prometheus.HistogramVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := histogram.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	h := observer.(prometheus.Histogram)
	err = h.Write(metric)
	require.NoError(t, err)
	return metric.Histogram.GetSampleSum()
}
