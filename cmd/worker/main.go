// Package main - entry point for the points engine background worker.
//
// The worker runs the periodic maintenance the API server must not block on:
// expiring stale referrals, reconciling balance aggregates against the ledger
// and keeping the leaderboard cache warm.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/classpoints/points-engine/config"
	"github.com/classpoints/points-engine/internal/infrastructure/messaging"
	"github.com/classpoints/points-engine/internal/infrastructure/persistence/postgres"
	"github.com/classpoints/points-engine/internal/infrastructure/persistence/redis"
	"github.com/classpoints/points-engine/internal/infrastructure/scheduler"
	"github.com/classpoints/points-engine/internal/infrastructure/scheduler/jobs"
	"github.com/classpoints/points-engine/internal/infrastructure/service"
	"github.com/classpoints/points-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, nothing to run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	log := logger.New(opts).With(logger.Component("worker"))

	log.Info("starting points engine worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Int("tenants", len(cfg.Scheduler.Tenants)),
	)

	if len(cfg.Scheduler.Tenants) == 0 {
		log.Warn("SCHEDULER_TENANTS is empty, tenant-scoped jobs will be no-ops")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional, for the leaderboard warmer)
	// ─────────────────────────────────────────────────────────────────────────
	var leaderboardCache *redis.LeaderboardCache

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, leaderboard warmer disabled", logger.Err(err))
		} else {
			defer redisCache.Close()
			leaderboardCache = redis.NewLeaderboardCache(redisCache)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	// Worker events (expiry notices, divergence alerts) only need local
	// handlers; cross-instance fan-out is the API server's concern.
	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	defer func() { _ = bus.Close() }()

	uow := service.NewPostgresUnitOfWork(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(log)

	expireJob := jobs.NewExpireReferralsJob(uow, bus, log, jobs.ExpireReferralsConfig{
		Retention: cfg.Scheduler.ReferralRetention,
		BatchSize: cfg.Scheduler.ExpireBatchSize,
		Timeout:   cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(expireJob, scheduler.Every(cfg.Scheduler.ExpireReferralsInterval)); err != nil {
		return fmt.Errorf("failed to register expiry job: %w", err)
	}

	reconcileJob := jobs.NewReconcileAggregatesJob(uow, bus, log, jobs.ReconcileAggregatesConfig{
		Tenants:    cfg.Scheduler.Tenants,
		StaleAfter: cfg.Scheduler.ReconcileStaleAfter,
		BatchSize:  cfg.Scheduler.ReconcileBatchSize,
		LevelSize:  cfg.Engine.LevelSize,
		AutoRepair: cfg.Features.IsEnabled(config.FeatureOpsAutoRepair, nil),
		Timeout:    cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(reconcileJob, scheduler.Every(cfg.Scheduler.ReconcileInterval)); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	if leaderboardCache != nil {
		rebuildJob := jobs.NewRebuildLeaderboardJob(uow.Repos().Aggregates, leaderboardCache, log, jobs.RebuildLeaderboardConfig{
			Tenants: cfg.Scheduler.Tenants,
			TopN:    cfg.Scheduler.LeaderboardTopN,
			TTL:     cfg.Scheduler.RebuildLeaderboardInterval + cfg.Engine.LeaderboardCacheTTL,
		})
		if err := sched.Register(rebuildJob, scheduler.Every(cfg.Scheduler.RebuildLeaderboardInterval)); err != nil {
			return fmt.Errorf("failed to register leaderboard job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. START + SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	for _, info := range sched.ListJobs() {
		log.Info("job registered",
			logger.String("job", info.Name),
			logger.String("schedule", info.Schedule),
		)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("stopping scheduler")
	sched.Stop()
	log.Info("shutdown completed")

	return nil
}

func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.Host = cfg.Database.Host
	pgCfg.Port = cfg.Database.Port
	pgCfg.Database = cfg.Database.Name
	pgCfg.User = cfg.Database.User
	pgCfg.Password = cfg.Database.Password
	pgCfg.SSLMode = cfg.Database.SSLMode
	pgCfg.MaxConns = cfg.Database.MaxConns
	pgCfg.MinConns = cfg.Database.MinConns

	return postgres.NewConnection(ctx, pgCfg)
}
