// Package jobs contains the engine's scheduled maintenance jobs.
package jobs

import (
	"context"
	"time"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/logger"
	"github.com/classpoints/points-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE REFERRALS JOB
// Closes funnel records that sat in pending or contacted past the retention
// window. Expiry is terminal: an expired prospect re-enters as a fresh
// submission if they come back.
// ══════════════════════════════════════════════════════════════════════════════

// ExpireReferralsJob sweeps stale open referrals into the expired state.
type ExpireReferralsJob struct {
	uow       command.UnitOfWork
	publisher shared.EventPublisher
	log       *logger.Logger
	config    ExpireReferralsConfig
}

// ExpireReferralsConfig contains configuration for the expiry sweep.
type ExpireReferralsConfig struct {
	// Retention is how long an open record may sit before expiring.
	Retention time.Duration

	// BatchSize caps the records processed per sweep; the remainder is
	// picked up by the next run.
	BatchSize int

	// Timeout bounds one sweep.
	Timeout time.Duration
}

// DefaultExpireReferralsConfig returns the default configuration.
func DefaultExpireReferralsConfig() ExpireReferralsConfig {
	return ExpireReferralsConfig{
		Retention: 30 * 24 * time.Hour,
		BatchSize: 200,
		Timeout:   2 * time.Minute,
	}
}

// NewExpireReferralsJob creates the expiry sweep job.
func NewExpireReferralsJob(uow command.UnitOfWork, publisher shared.EventPublisher, log *logger.Logger, config ExpireReferralsConfig) *ExpireReferralsJob {
	if config.Retention <= 0 {
		config = DefaultExpireReferralsConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &ExpireReferralsJob{
		uow:       uow,
		publisher: publisher,
		log:       log.With(logger.Component("expire_referrals")),
		config:    config,
	}
}

// Name returns the job name.
func (j *ExpireReferralsJob) Name() string { return "expire_referrals" }

// Description returns the job description.
func (j *ExpireReferralsJob) Description() string {
	return "closes open referrals older than the retention window"
}

// Run executes one sweep.
func (j *ExpireReferralsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	repos := j.uow.Repos()
	// Cutoff snaps to a school-day boundary so a record expires at the same
	// local time regardless of when in the day the sweep fires.
	cutoff := timeutil.StartOfDay(timeutil.Now().Add(-j.config.Retention))

	stale, err := repos.Referrals.ListOpenOlderThan(ctx, cutoff, j.config.BatchSize)
	if err != nil {
		return err
	}

	expired := 0
	for _, record := range stale {
		from := record.Status
		if err := record.Expire(); err != nil {
			continue
		}
		if err := repos.Referrals.Transition(ctx, record, from); err != nil {
			// Lost a race with a staff decision on the same record.
			// The record is no longer open, so there is nothing to expire.
			j.log.Debug("expiry transition lost",
				logger.String("referral_id", record.ID),
				logger.Err(err),
			)
			continue
		}
		expired++

		if j.publisher != nil {
			_ = j.publisher.Publish(shared.NewReferralStatusChangedEvent(
				shared.EventReferralExpired,
				record.ID,
				record.ReferrerID.String(),
				string(from),
				string(referral.StatusExpired),
				"system",
			))
		}
	}

	if expired > 0 || len(stale) > 0 {
		j.log.Info("expiry sweep finished",
			logger.Int("candidates", len(stale)),
			logger.Int("expired", expired),
		)
	}
	return nil
}
