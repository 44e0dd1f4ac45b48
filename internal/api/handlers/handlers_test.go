package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/argos/internal/api"
	"github.com/wonny/argos/internal/api/handlers"
	"github.com/wonny/argos/internal/backtest"
	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/internal/marketdata"
	"github.com/wonny/argos/internal/ranking"
	"github.com/wonny/argos/internal/settings"
	"github.com/wonny/argos/internal/tasks"
	"github.com/wonny/argos/pkg/config"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/redis"
)

type engineFunc func(ctx context.Context, req contracts.AnalysisRequest) (*contracts.AnalysisResult, error)

func (f engineFunc) Analyze(ctx context.Context, req contracts.AnalysisRequest) (*contracts.AnalysisResult, error) {
	return f(ctx, req)
}

type fixture struct {
	router   http.Handler
	store    *tasks.MemoryStore
	orch     *tasks.Orchestrator
	schedule settings.Store
}

func newFixture(t *testing.T, engine contracts.Engine) *fixture {
	t.Helper()

	log := logger.Nop()
	store := tasks.NewMemoryStore()
	registry := tasks.NewRegistry()
	rows := backtest.NewMemoryRows()
	prices := marketdata.NewMemoryPrices()
	schedule := settings.NewMemoryStore()

	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	cache := redis.NewCache(client, "argos-test")

	orch := tasks.NewOrchestrator(store, store, engine, registry, log).
		WithRanker(ranking.NewEngine(store, log))
	bulk := tasks.NewBulkRunner(orch, store, registry, log).
		WithIntervals(5*time.Millisecond, time.Second)
	engineBT := backtest.NewEngine(rows, store, store, prices, log)

	router := api.NewRouter(api.Handlers{
		Tasks:           handlers.NewTaskHandler(orch, bulk, store, store, schedule, log),
		Recommendations: handlers.NewRecommendationHandler(store, cache, log),
		Backtest:        handlers.NewBacktestHandler(engineBT, rows, cache, log),
		Schedule:        handlers.NewScheduleHandler(schedule, log),
	}, nil, client, log)

	return &fixture{router: router, store: store, orch: orch, schedule: schedule}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func okEngine() contracts.Engine {
	return engineFunc(func(context.Context, contracts.AnalysisRequest) (*contracts.AnalysisResult, error) {
		return &contracts.AnalysisResult{
			Decision:   "BUY",
			Confidence: "HIGH",
			Risk:       "LOW",
			HoldDays:   5,
			Rationale:  "strong momentum",
		}, nil
	})
}

func waitTerminal(t *testing.T, f *fixture, ref string) contracts.StatusView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		view, err := f.orch.Status(context.Background(), ref)
		require.NoError(t, err)
		if view.Status.IsTerminal() {
			return *view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal status", ref)
	return contracts.StatusView{}
}

func TestAnalyzeEndpoint(t *testing.T) {
	f := newFixture(t, okEngine())

	rec, env := f.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"symbol": "aapl"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, env.Success)

	var view contracts.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "AAPL", view.Symbol)
	assert.NotEmpty(t, view.TaskID)

	final := waitTerminal(t, f, view.TaskID)
	assert.Equal(t, contracts.StatusCompleted, final.Status)
}

func TestAnalyzeValidation(t *testing.T) {
	f := newFixture(t, okEngine())

	rec, env := f.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"symbol": "AAPL", "date": "03/02/2026"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeConflictOnActiveSymbol(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, engineFunc(func(context.Context, contracts.AnalysisRequest) (*contracts.AnalysisResult, error) {
		<-release
		return &contracts.AnalysisResult{Decision: "HOLD"}, nil
	}))
	defer close(release)

	rec, _ := f.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"symbol": "AAPL"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, env := f.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"symbol": "AAPL"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var view contracts.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.True(t, view.Status.IsActive())
}

func TestStatusUnknownReference(t *testing.T) {
	f := newFixture(t, okEngine())

	rec, env := f.do(t, http.MethodGet, "/api/v1/tasks/no-such-task", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view contracts.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, contracts.StatusNotFound, view.Status)
	assert.Equal(t, contracts.SourceNone, view.Source)
}

func TestBulkUsesConfiguredUniverse(t *testing.T) {
	f := newFixture(t, okEngine())

	require.NoError(t, f.schedule.Save(context.Background(), &settings.ScheduleSettings{
		Enabled:  true,
		RunAt:    "06:30",
		Timezone: "UTC",
		Workers:  2,
		Universe: []string{"AAPL", "MSFT"},
	}))

	rec, env := f.do(t, http.MethodPost, "/api/v1/analyze/bulk", map[string]interface{}{})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var view contracts.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, contracts.KindBulk, view.Kind)
	assert.Equal(t, 2, view.Counters.Total)

	waitTerminal(t, f, view.TaskID)
}

func TestBulkWithoutUniverse(t *testing.T) {
	f := newFixture(t, okEngine())

	rec, env := f.do(t, http.MethodPost, "/api/v1/analyze/bulk", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestRecommendationsEndpoint(t *testing.T) {
	f := newFixture(t, okEngine())

	rec, _ := f.do(t, http.MethodGet, "/api/v1/recommendations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env := f.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"symbol": "NVDA"})
	var view contracts.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	waitTerminal(t, f, view.TaskID)

	rec, env = f.do(t, http.MethodGet, "/api/v1/recommendations/"+view.TaskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary contracts.RecommendationSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.BuyCount)
	require.Len(t, summary.TopPicks, 1)
	assert.Equal(t, "NVDA", summary.TopPicks[0].Symbol)
}

func TestAccuracyEmpty(t *testing.T) {
	f := newFixture(t, okEngine())

	rec, env := f.do(t, http.MethodGet, "/api/v1/backtest/accuracy", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report contracts.AccuracyReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Zero(t, report.Total)
	assert.Zero(t, report.Overall)
}

func TestScheduleRoundTrip(t *testing.T) {
	f := newFixture(t, okEngine())

	// Unsaved: defaults come back
	rec, env := f.do(t, http.MethodGet, "/api/v1/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var s settings.ScheduleSettings
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.False(t, s.Enabled)

	rec, _ = f.do(t, http.MethodPut, "/api/v1/schedule", settings.ScheduleSettings{
		Enabled:  true,
		RunAt:    "07:00",
		Timezone: "America/New_York",
		Workers:  3,
		Universe: []string{"AAPL"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/api/v1/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.True(t, s.Enabled)
	assert.Equal(t, "07:00", s.RunAt)
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t, okEngine())

	rec, env := f.do(t, http.MethodPut, "/api/v1/schedule", settings.ScheduleSettings{
		Enabled:  true,
		RunAt:    "25:99",
		Timezone: "UTC",
		Workers:  3,
		Universe: []string{"AAPL"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "run_at")
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, okEngine())

	rec, _ := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
