package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/internal/settings"
	"github.com/wonny/argos/internal/tasks"
	"github.com/wonny/argos/pkg/logger"
)

// fakeBulk records submissions without running anything
type fakeBulk struct {
	mu       sync.Mutex
	requests []tasks.BulkRequest
	active   bool
	err      error
}

func (f *fakeBulk) Submit(_ context.Context, req tasks.BulkRequest) (*contracts.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &contracts.Task{ID: "bulk-1", Kind: contracts.KindBulk}, nil
}

func (f *fakeBulk) Active() (contracts.StatusView, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return contracts.StatusView{TaskID: "bulk-0"}, f.active
}

func (f *fakeBulk) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newSchedule(t *testing.T, enabled bool) settings.Store {
	t.Helper()
	store := settings.NewMemoryStore()
	err := store.Save(context.Background(), &settings.ScheduleSettings{
		Enabled:  enabled,
		RunAt:    "06:30",
		Timezone: "Asia/Seoul",
		Workers:  2,
		Universe: []string{"AAPL", "MSFT"},
	})
	require.NoError(t, err)
	return store
}

// seoulTime builds an instant at the given wall clock in the schedule's
// timezone
func seoulTime(t *testing.T, day string, hhmm string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	at, err := time.ParseInLocation("2006-01-02 15:04", day+" "+hhmm, loc)
	require.NoError(t, err)
	return at
}

func TestDailyAnalysisFiresOncePerDay(t *testing.T) {
	ctx := context.Background()
	store := newSchedule(t, true)
	bulk := &fakeBulk{}

	now := seoulTime(t, "2026-03-02", "06:30")
	job := NewDailyAnalysisJob(store, bulk, logger.Nop()).WithClock(func() time.Time { return now })

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, bulk.submissions())

	// The same window again: the marker must suppress the second fire
	now = now.Add(30 * time.Second)
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, bulk.submissions())

	s, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", s.LastRunDate)

	// Next calendar day fires again
	now = seoulTime(t, "2026-03-03", "06:30")
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 2, bulk.submissions())
}

func TestDailyAnalysisPassesScheduleToBulk(t *testing.T) {
	store := newSchedule(t, true)
	bulk := &fakeBulk{}

	now := seoulTime(t, "2026-03-02", "06:30")
	job := NewDailyAnalysisJob(store, bulk, logger.Nop()).WithClock(func() time.Time { return now })

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, bulk.requests, 1)
	assert.Equal(t, []string{"AAPL", "MSFT"}, bulk.requests[0].Symbols)
	assert.Equal(t, 2, bulk.requests[0].Workers)
}

func TestDailyAnalysisOutsideWindow(t *testing.T) {
	store := newSchedule(t, true)
	bulk := &fakeBulk{}

	for _, hhmm := range []string{"06:28", "06:32", "12:00"} {
		now := seoulTime(t, "2026-03-02", hhmm)
		job := NewDailyAnalysisJob(store, bulk, logger.Nop()).WithClock(func() time.Time { return now })
		require.NoError(t, job.Run(context.Background()))
	}
	assert.Equal(t, 0, bulk.submissions())
}

func TestDailyAnalysisDisabled(t *testing.T) {
	store := newSchedule(t, false)
	bulk := &fakeBulk{}

	now := seoulTime(t, "2026-03-02", "06:30")
	job := NewDailyAnalysisJob(store, bulk, logger.Nop()).WithClock(func() time.Time { return now })

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, bulk.submissions())
}

func TestDailyAnalysisSkipsWhileBulkActive(t *testing.T) {
	ctx := context.Background()
	store := newSchedule(t, true)
	bulk := &fakeBulk{active: true}

	now := seoulTime(t, "2026-03-02", "06:30")
	job := NewDailyAnalysisJob(store, bulk, logger.Nop()).WithClock(func() time.Time { return now })

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 0, bulk.submissions())

	// The skip must not consume the day: once the run clears, the same
	// window still fires
	bulk.mu.Lock()
	bulk.active = false
	bulk.mu.Unlock()

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, bulk.submissions())
}

func TestDailyAnalysisUnconfigured(t *testing.T) {
	bulk := &fakeBulk{}
	job := NewDailyAnalysisJob(settings.NewMemoryStore(), bulk, logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, bulk.submissions())
}
