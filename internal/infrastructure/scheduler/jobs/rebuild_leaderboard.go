package jobs

import (
	"context"
	"time"

	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// Keeps the leaderboard cache warm so the first request after an
// invalidation does not pay the ranking query.
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardJob recomputes and caches the top standings per tenant.
type RebuildLeaderboardJob struct {
	aggregates ranking.Repository
	cache      ranking.Cache
	log        *logger.Logger
	config     RebuildLeaderboardConfig
}

// RebuildLeaderboardConfig contains configuration for the cache warmer.
type RebuildLeaderboardConfig struct {
	// Tenants lists the tenant IDs to warm.
	Tenants []string

	// TopN is how many standings to cache per tenant.
	TopN int

	// TTL is the cache entry lifetime. Kept slightly above the rebuild
	// interval so the cache never goes cold between runs.
	TTL time.Duration
}

// DefaultRebuildLeaderboardConfig returns the default configuration.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		TopN: 100,
		TTL:  45 * time.Second,
	}
}

// NewRebuildLeaderboardJob creates the cache warmer job.
func NewRebuildLeaderboardJob(aggregates ranking.Repository, cache ranking.Cache, log *logger.Logger, config RebuildLeaderboardConfig) *RebuildLeaderboardJob {
	if config.TopN <= 0 {
		defaults := DefaultRebuildLeaderboardConfig()
		defaults.Tenants = config.Tenants
		config = defaults
	}
	if log == nil {
		log = logger.Default()
	}
	return &RebuildLeaderboardJob{
		aggregates: aggregates,
		cache:      cache,
		log:        log.With(logger.Component("rebuild_leaderboard")),
		config:     config,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string { return "rebuild_leaderboard" }

// Description returns the job description.
func (j *RebuildLeaderboardJob) Description() string {
	return "recomputes and caches the top standings per tenant"
}

// Run executes one warming pass.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	for _, tenant := range j.config.Tenants {
		tenantID, err := shared.NewTenantID(tenant)
		if err != nil {
			continue
		}

		entries, err := j.aggregates.GetRanked(ctx, tenantID, shared.Page{Limit: j.config.TopN})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}

		if err := j.cache.SetTop(ctx, tenantID, entries, j.config.TTL); err != nil {
			j.log.Warn("cache fill failed",
				logger.TenantID(tenantID.String()),
				logger.Err(err),
			)
		}
	}
	return nil
}
