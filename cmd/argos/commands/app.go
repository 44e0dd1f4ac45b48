package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/argos/internal/backtest"
	"github.com/wonny/argos/internal/engine"
	"github.com/wonny/argos/internal/marketdata"
	"github.com/wonny/argos/internal/notify"
	"github.com/wonny/argos/internal/ranking"
	"github.com/wonny/argos/internal/realtime"
	"github.com/wonny/argos/internal/settings"
	"github.com/wonny/argos/internal/tasks"
	"github.com/wonny/argos/pkg/config"
	"github.com/wonny/argos/pkg/database"
	"github.com/wonny/argos/pkg/httputil"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/redis"
)

// priceCacheTTL bounds how long a daily close stays in process memory
const priceCacheTTL = 15 * time.Minute

// app wires every component once per command invocation
// ⭐ SSOT: 컴포넌트 조립은 이 함수에서만
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	redis *redis.Client

	taskRepo *tasks.Repository
	btRepo   *backtest.Repository
	prices   *marketdata.CachedPrices
	schedule settings.Store

	registry *tasks.Registry
	orch     *tasks.Orchestrator
	bulk     *tasks.BulkRunner
	ranking  *ranking.Engine
	backtest *backtest.Engine
	hub      *realtime.Hub
	cache    *redis.Cache
}

// newApp loads config, connects the stores, and builds the engine graph
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	a := &app{
		cfg:   cfg,
		log:   log,
		db:    db,
		redis: redisClient,
		cache: redis.NewCache(redisClient, "argos"),
	}

	a.taskRepo = tasks.NewRepository(db.Pool)
	a.btRepo = backtest.NewRepository(db.Pool)
	priceRepo := marketdata.NewRepository(db.Pool)
	settingsRepo := settings.NewRepository(db.Pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.initSchemas(ctx, priceRepo, settingsRepo); err != nil {
		a.Close()
		return nil, err
	}

	a.prices = marketdata.NewCachedPrices(priceRepo, priceCacheTTL)
	a.schedule = settings.NewCachedStore(settingsRepo, a.cache)
	if err := a.seedSchedule(ctx); err != nil {
		a.Close()
		return nil, err
	}

	httpClient := httputil.NewWithTimeout(cfg, log, cfg.Engine.Timeout)
	engineClient := engine.NewClient(cfg.Engine, httpClient, log)

	a.registry = tasks.NewRegistry()
	a.hub = realtime.NewHub(log)
	a.ranking = ranking.NewEngine(a.taskRepo, log)
	a.backtest = backtest.NewEngine(a.btRepo, a.taskRepo, a.taskRepo, a.prices, log)

	a.orch = tasks.NewOrchestrator(a.taskRepo, a.taskRepo, engineClient, a.registry, log).
		WithRanker(a.ranking).
		WithBacktester(a.backtest).
		WithEvents(a.hub)

	mailer := notify.NewMailer(cfg.Notify, a.taskRepo, log)
	a.bulk = tasks.NewBulkRunner(a.orch, a.taskRepo, a.registry, log).
		WithReporter(mailer)

	return a, nil
}

// initSchemas runs the idempotent bootstrap of every schema
func (a *app) initSchemas(ctx context.Context, prices *marketdata.Repository, sched *settings.Repository) error {
	for name, init := range map[string]func(context.Context) error{
		"tasks":     a.taskRepo.InitSchema,
		"backtest":  a.btRepo.InitSchema,
		"prices":    prices.InitSchema,
		"scheduler": sched.InitSchema,
	} {
		if err := init(ctx); err != nil {
			return fmt.Errorf("init %s schema: %w", name, err)
		}
	}
	return nil
}

// seedSchedule writes the bootstrap settings row when none exists yet
func (a *app) seedSchedule(ctx context.Context) error {
	existing, err := a.schedule.Get(ctx)
	if err != nil {
		return fmt.Errorf("read schedule settings: %w", err)
	}
	if existing != nil {
		return nil
	}

	defaults, err := settings.LoadDefaults(a.cfg.Scheduler.DefaultsFile)
	if err != nil {
		return err
	}
	defaults.Timezone = a.cfg.Scheduler.Timezone

	if err := a.schedule.Save(ctx, defaults); err != nil {
		return fmt.Errorf("seed schedule settings: %w", err)
	}
	a.log.Info("Seeded default schedule settings")
	return nil
}

// Close releases the store connections
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
