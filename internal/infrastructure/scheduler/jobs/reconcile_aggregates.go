package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE AGGREGATES JOB
// The ledger is the source of truth; the aggregate is a derived read model.
// This job replays the ledger for aggregates that have not been written
// recently and reports any divergence it finds. A divergence means a bug
// somewhere in the commit path, so it is reported loudly; rewriting the
// aggregate from replay is opt-in per deployment.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileAggregatesJob verifies stored aggregates against ledger replay.
type ReconcileAggregatesJob struct {
	uow       command.UnitOfWork
	publisher shared.EventPublisher
	log       *logger.Logger
	config    ReconcileAggregatesConfig
}

// ReconcileAggregatesConfig contains configuration for the reconcile job.
type ReconcileAggregatesConfig struct {
	// Tenants lists the tenant IDs to reconcile.
	Tenants []string

	// StaleAfter selects aggregates not written for at least this long.
	// Recently written aggregates are skipped; an active writer would
	// just make the comparison race.
	StaleAfter time.Duration

	// BatchSize caps aggregates checked per tenant per run.
	BatchSize int

	// LevelSize is the points per level, for recomputing the level on repair.
	LevelSize int

	// AutoRepair rewrites diverged aggregates from replay. Off, the job
	// only reports divergence.
	AutoRepair bool

	// Timeout bounds one run.
	Timeout time.Duration
}

// DefaultReconcileAggregatesConfig returns the default configuration.
func DefaultReconcileAggregatesConfig() ReconcileAggregatesConfig {
	return ReconcileAggregatesConfig{
		StaleAfter: 24 * time.Hour,
		BatchSize:  100,
		LevelSize:  ranking.DefaultLevelSize,
		Timeout:    5 * time.Minute,
	}
}

// NewReconcileAggregatesJob creates the reconcile job.
func NewReconcileAggregatesJob(uow command.UnitOfWork, publisher shared.EventPublisher, log *logger.Logger, config ReconcileAggregatesConfig) *ReconcileAggregatesJob {
	if config.StaleAfter <= 0 {
		defaults := DefaultReconcileAggregatesConfig()
		defaults.Tenants = config.Tenants
		defaults.AutoRepair = config.AutoRepair
		config = defaults
	}
	if log == nil {
		log = logger.Default()
	}
	return &ReconcileAggregatesJob{
		uow:       uow,
		publisher: publisher,
		log:       log.With(logger.Component("reconcile_aggregates")),
		config:    config,
	}
}

// Name returns the job name.
func (j *ReconcileAggregatesJob) Name() string { return "reconcile_aggregates" }

// Description returns the job description.
func (j *ReconcileAggregatesJob) Description() string {
	return "replays the ledger for stale aggregates and repairs divergence"
}

// Run executes one reconcile pass over all configured tenants.
func (j *ReconcileAggregatesJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	for _, tenant := range j.config.Tenants {
		tenantID, err := shared.NewTenantID(tenant)
		if err != nil {
			j.log.Warn("skipping invalid tenant", logger.String("tenant", tenant))
			continue
		}
		if err := j.reconcileTenant(ctx, tenantID); err != nil {
			return err
		}
	}
	return nil
}

func (j *ReconcileAggregatesJob) reconcileTenant(ctx context.Context, tenantID shared.TenantID) error {
	repos := j.uow.Repos()
	cutoff := time.Now().Add(-j.config.StaleAfter)

	stale, err := repos.Aggregates.ListStale(ctx, tenantID, cutoff, j.config.BatchSize)
	if err != nil {
		return err
	}

	checked, repaired := 0, 0
	for _, agg := range stale {
		replayed, err := repos.Ledger.Replay(ctx, agg.StudentID, tenantID)
		if err != nil {
			return err
		}
		checked++

		if agg.TotalPoints == replayed.TotalPoints && agg.AvailableCoins == replayed.AvailableCoins {
			continue
		}

		j.log.Error("aggregate diverged from ledger",
			logger.StudentID(agg.StudentID.String()),
			logger.Int("stored_points", agg.TotalPoints.Int()),
			logger.Int("replayed_points", replayed.TotalPoints.Int()),
			logger.Int("stored_coins", agg.AvailableCoins.Int()),
			logger.Int("replayed_coins", replayed.AvailableCoins.Int()),
		)

		if j.publisher != nil {
			_ = j.publisher.Publish(shared.NewAggregateDivergenceEvent(
				agg.StudentID.String(),
				tenantID.String(),
				agg.TotalPoints.Int(),
				replayed.TotalPoints.Int(),
				agg.AvailableCoins.Int(),
				replayed.AvailableCoins.Int(),
			))
		}

		if !j.config.AutoRepair {
			continue
		}
		if err := j.repair(ctx, agg.StudentID, tenantID); err != nil {
			if errors.Is(err, shared.ErrOptimisticLock) {
				// A writer touched the aggregate mid-repair; it is no
				// longer stale and the next pass re-verifies it.
				continue
			}
			return err
		}
		repaired++
	}

	if checked > 0 {
		j.log.Info("reconcile pass finished",
			logger.TenantID(tenantID.String()),
			logger.Int("checked", checked),
			logger.Int("repaired", repaired),
		)
	}
	return nil
}

// repair rewrites the aggregate from a fresh replay inside one transaction,
// re-reading under the same snapshot so the CAS catches concurrent writers.
func (j *ReconcileAggregatesJob) repair(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) error {
	return j.uow.Run(ctx, func(ctx context.Context, repos command.Repos) error {
		agg, err := repos.Aggregates.Get(ctx, studentID, tenantID)
		if err != nil {
			return err
		}
		replayed, err := repos.Ledger.Replay(ctx, studentID, tenantID)
		if err != nil {
			return err
		}

		agg.TotalPoints = replayed.TotalPoints
		agg.AvailableCoins = replayed.AvailableCoins
		agg.SpentCoins = replayed.SpentCoins
		agg.Level = ranking.ComputeLevel(replayed.TotalPoints, j.config.LevelSize)
		agg.UpdatedAt = time.Now().UTC()

		return repos.Aggregates.Save(ctx, agg)
	})
}
