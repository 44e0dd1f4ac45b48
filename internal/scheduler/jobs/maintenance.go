package jobs

import (
	"context"

	"github.com/wonny/argos/internal/marketdata"
	"github.com/wonny/argos/internal/tasks"
	"github.com/wonny/argos/pkg/logger"
)

// MaintenanceJob is the hourly sweep: evicts expired entries from the
// price cache and reports registry occupancy so a leak shows up in the
// logs before it shows up in memory.
type MaintenanceJob struct {
	prices   *marketdata.CachedPrices
	registry *tasks.Registry
	logger   *logger.Logger
}

// NewMaintenanceJob creates the maintenance sweep
func NewMaintenanceJob(prices *marketdata.CachedPrices, registry *tasks.Registry, log *logger.Logger) *MaintenanceJob {
	return &MaintenanceJob{prices: prices, registry: registry, logger: log}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Schedule returns the cron schedule: top of every hour
func (j *MaintenanceJob) Schedule() string {
	return "0 0 * * * *"
}

// Run executes the sweep
func (j *MaintenanceJob) Run(ctx context.Context) error {
	evicted := 0
	if j.prices != nil {
		evicted = j.prices.CleanStale()
	}

	j.logger.WithFields(map[string]interface{}{
		"cache_evicted":    evicted,
		"registry_entries": j.registry.Len(),
		"active_symbols":   len(j.registry.ActiveSymbols()),
	}).Debug("Maintenance sweep finished")

	return nil
}
