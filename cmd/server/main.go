// Package main - entry point for the points engine API server.
//
// The engine keeps an append-only ledger of point and coin movements and
// derives everything else from it: per-student balance aggregates, the
// leaderboard, achievement unlocks, reward redemptions and referral bonuses.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: pure business logic without external dependencies
// - Application: use case orchestration (Commands/Queries)
// - Infrastructure: repositories, external APIs, the commit pipeline
// - Interface: HTTP API handlers
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/classpoints/points-engine/config"
	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/application/eventhandler"
	"github.com/classpoints/points-engine/internal/application/query"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/internal/infrastructure/external/directory"
	"github.com/classpoints/points-engine/internal/infrastructure/messaging"
	"github.com/classpoints/points-engine/internal/infrastructure/persistence/postgres"
	"github.com/classpoints/points-engine/internal/infrastructure/persistence/redis"
	"github.com/classpoints/points-engine/internal/infrastructure/service"
	httpserver "github.com/classpoints/points-engine/internal/interface/http"
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

// eventBus is the surface the server needs from either bus implementation.
type eventBus interface {
	Publish(event shared.Event) error
	Subscribe(eventType shared.EventType, handler shared.EventHandler) error
	Close() error
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting points engine API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// slog handler for infrastructure components that log through slog
	slogger := setupSlog(cfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database", logger.String("host", cfg.Database.Host))
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.MigrateOnStart {
		log.Info("running database migrations")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var leaderboardCache *redis.LeaderboardCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis", logger.String("host", cfg.Redis.Host))
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			leaderboardCache = redis.NewLeaderboardCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus")
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = slogger

	var bus eventBus
	if redisCache != nil {
		// Cross-instance fan-out through Redis pub/sub; local handlers
		// still run on the embedded in-memory bus.
		bus, err = messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewCacheRedisClient(redisCache),
			LocalBusConfig: busConfig,
			Logger:         slogger,
		})
		if err != nil {
			return fmt.Errorf("failed to create event bus: %w", err)
		}
	} else {
		bus = messaging.NewInMemoryEventBus(busConfig)
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	var directoryClient command.DirectoryClient
	if cfg.Directory.BaseURL != "" {
		log.Info("initializing directory client", logger.String("base_url", cfg.Directory.BaseURL))
		dirConfig := directory.DefaultClientConfig(cfg.Directory.BaseURL)
		dirConfig.APIKey = cfg.Directory.APIKey
		dirConfig.Timeout = cfg.Directory.RequestTimeout
		dirConfig.Logger = slogger
		dirConfig.Debug = cfg.App.Debug
		directoryClient = service.NewDirectoryAdapter(directory.NewClient(dirConfig))
	} else {
		log.Info("directory verification disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. COMMIT PIPELINE
	// ─────────────────────────────────────────────────────────────────────────
	uow := service.NewPostgresUnitOfWork(dbConn)

	var rankingCache *redis.LeaderboardCache
	if cfg.Features.IsEnabled(config.FeatureOpsLeaderboardCache, nil) {
		rankingCache = leaderboardCache
	}

	ledgerService := service.NewLedgerService(uow, bus, cacheOrNil(rankingCache), log, service.LedgerServiceConfig{
		LevelSize:           cfg.Engine.LevelSize,
		AchievementsEnabled: cfg.Features.IsEnabled(config.FeatureAchievements, nil),
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 9. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer")

	awardPoints := command.NewAwardPointsHandler(ledgerService, uow, directoryClient, bus, command.AwardPointsHandlerConfig{
		ApprovalThreshold: shared.Points(cfg.Engine.ApprovalThreshold),
	})
	bulkAwardPoints := command.NewBulkAwardPointsHandler(awardPoints)
	decideApproval := command.NewDecideApprovalHandler(ledgerService, uow, bus)
	reverseTransaction := command.NewReverseTransactionHandler(ledgerService, uow, bus)
	deleteTransaction := command.NewDeleteTransactionHandler(ledgerService)
	redeemReward := command.NewRedeemRewardHandler(ledgerService, uow, directoryClient, bus)
	resolveRedemption := command.NewResolveRedemptionHandler(ledgerService, uow)
	submitReferral := command.NewSubmitReferralHandler(uow, directoryClient, bus)
	contactReferral := command.NewContactReferralHandler(uow, bus)
	declineReferral := command.NewDeclineReferralHandler(uow, bus)
	enrollReferral := command.NewEnrollReferralHandler(ledgerService, uow, bus, command.EnrollReferralHandlerConfig{
		BasePoints: shared.Points(cfg.Engine.ReferralBasePoints),
	})
	createAchievement := command.NewCreateAchievementHandler(uow)
	setAchievementActive := command.NewSetAchievementActiveHandler(uow)
	createReward := command.NewCreateRewardHandler(uow)
	updateReward := command.NewUpdateRewardHandler(uow)
	createCampaign := command.NewCreateCampaignHandler(uow)

	repos := uow.Repos()
	getLeaderboard := query.NewGetLeaderboardHandler(repos.Aggregates, cacheOrNil(rankingCache), query.GetLeaderboardHandlerConfig{
		CacheTTL: cfg.Engine.LeaderboardCacheTTL,
	})
	getHistory := query.NewGetHistoryHandler(repos.Ledger)
	getPendingApprovals := query.NewGetPendingApprovalsHandler(repos.Approvals)
	getStudentStats := query.NewGetStudentStatsHandler(
		repos.Aggregates,
		repos.Ledger,
		repos.Achievements,
		repos.Referrals,
		query.GetStudentStatsHandlerConfig{LevelSize: cfg.Engine.LevelSize},
	)
	getReferralFunnel := query.NewGetReferralFunnelHandler(repos.Referrals)
	listRewards := query.NewListRewardsHandler(repos.Rewards)
	getRedemptionHistory := query.NewGetRedemptionHistoryHandler(repos.Rewards)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers")

	notifier := eventhandler.NewLogNotifier(log)
	onLevelUp := eventhandler.NewOnLevelUpHandler(notifier, log)
	onUnlocked := eventhandler.NewOnAchievementUnlockedHandler(notifier, log)
	onEnrolled := eventhandler.NewOnReferralEnrolledHandler(notifier, log)
	onDivergence := eventhandler.NewOnAggregateDivergenceHandler(log)

	if err := bus.Subscribe(shared.EventLevelUp, onLevelUp.Handle); err != nil {
		return fmt.Errorf("failed to subscribe level-up handler: %w", err)
	}
	if err := bus.Subscribe(shared.EventAchievementUnlocked, onUnlocked.Handle); err != nil {
		return fmt.Errorf("failed to subscribe unlock handler: %w", err)
	}
	if err := bus.Subscribe(shared.EventReferralEnrolled, onEnrolled.Handle); err != nil {
		return fmt.Errorf("failed to subscribe enrollment handler: %w", err)
	}
	if err := bus.Subscribe(shared.EventAggregateDivergence, onDivergence.Handle); err != nil {
		return fmt.Errorf("failed to subscribe divergence handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	httpDeps := httpserver.Dependencies{
		AwardPoints:          awardPoints,
		BulkAwardPoints:      bulkAwardPoints,
		DecideApproval:       decideApproval,
		ReverseTransaction:   reverseTransaction,
		DeleteTransaction:    deleteTransaction,
		RedeemReward:         redeemReward,
		ResolveRedemption:    resolveRedemption,
		SubmitReferral:       submitReferral,
		ContactReferral:      contactReferral,
		DeclineReferral:      declineReferral,
		EnrollReferral:       enrollReferral,
		CreateAchievement:    createAchievement,
		SetAchievementActive: setAchievementActive,
		CreateReward:         createReward,
		UpdateReward:         updateReward,
		CreateCampaign:       createCampaign,
		GetLeaderboard:       getLeaderboard,
		GetHistory:           getHistory,
		GetPendingApprovals:  getPendingApprovals,
		GetStudentStats:      getStudentStats,
		GetReferralFunnel:    getReferralFunnel,
		ListRewards:          listRewards,
		GetRedemptionHistory: getRedemptionHistory,
		Health:               &dbHealthChecker{conn: dbConn},
		Logger:               log,
	}

	server := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 12. START + GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)

	go func() {
		log.Info("starting HTTP server",
			logger.String("host", cfg.HTTP.Host),
			logger.Int("port", cfg.HTTP.Port),
		)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}

func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
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
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	return postgres.NewConnection(ctx, pgCfg)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// cacheOrNil avoids handing a typed-nil pointer to code that checks the
// interface against nil.
func cacheOrNil(c *redis.LeaderboardCache) ranking.Cache {
	if c == nil {
		return nil
	}
	return c
}

// dbHealthChecker reports liveness from the database pool.
type dbHealthChecker struct {
	conn *postgres.Connection
}

func (h *dbHealthChecker) Healthy(ctx context.Context) error {
	return h.conn.Ping(ctx)
}
