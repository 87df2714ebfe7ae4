package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/logger"
	"github.com/classpoints/points-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER SERVICE
// The commit pipeline every point and coin movement goes through: append the
// transaction, fold it into the aggregate under version CAS, evaluate
// achievement predicates, and grant their bonuses - all inside one storage
// transaction. Lost CAS races retry the whole read-apply-save cycle.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerServiceConfig holds the pipeline tunables.
type LedgerServiceConfig struct {
	// LevelSize - points per level for the step function.
	LevelSize int

	// AchievementsEnabled - gates predicate evaluation entirely.
	AchievementsEnabled bool
}

// DefaultLedgerServiceConfig returns the default pipeline configuration.
func DefaultLedgerServiceConfig() LedgerServiceConfig {
	return LedgerServiceConfig{
		LevelSize:           ranking.DefaultLevelSize,
		AchievementsEnabled: true,
	}
}

// LedgerService owns the transactional commit pipeline. It implements
// command.Committer.
type LedgerService struct {
	uow       command.UnitOfWork
	publisher shared.EventPublisher
	cache     ranking.Cache
	log       *logger.Logger
	retrier   *retry.Retrier
	config    LedgerServiceConfig
}

// NewLedgerService creates the commit pipeline. The cache may be nil when the
// leaderboard cache is disabled.
func NewLedgerService(uow command.UnitOfWork, publisher shared.EventPublisher, cache ranking.Cache, log *logger.Logger, cfg LedgerServiceConfig) *LedgerService {
	if cfg.LevelSize <= 0 {
		cfg.LevelSize = ranking.DefaultLevelSize
	}
	if log == nil {
		log = logger.Default()
	}

	return &LedgerService{
		uow:       uow,
		publisher: publisher,
		cache:     cache,
		log:       log.With(logger.Component("ledger_service")),
		retrier:   retry.OptimisticLockRetrier(),
		config:    cfg,
	}
}

// Commit runs the full pipeline for one transaction. Hooks execute inside the
// same storage transaction, after the aggregate save. On a lost aggregate CAS
// race the rolled-back cycle is retried with backoff; every other error is
// final. Events are published and the leaderboard cache invalidated only
// after the storage transaction commits.
func (s *LedgerService) Commit(ctx context.Context, tx *ledger.Transaction, hooks ...command.TxHook) (*command.CommitResult, error) {
	return s.CommitDerived(ctx, func(context.Context, command.Repos) (*ledger.Transaction, error) {
		return tx, nil
	}, hooks...)
}

// CommitDerived runs the pipeline for a transaction the factory builds inside
// the storage transaction. The factory re-runs on every retry attempt, so
// payouts derived from repository reads are recomputed against the state the
// commit lands on: a concurrent writer to the same aggregate forces a lost
// CAS, a fresh read, and a fresh transaction.
func (s *LedgerService) CommitDerived(ctx context.Context, build command.TxFactory, hooks ...command.TxHook) (*command.CommitResult, error) {
	var result *command.CommitResult

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		res, err := s.commitOnce(ctx, build, hooks)
		if err != nil {
			if errors.Is(err, shared.ErrOptimisticLock) {
				s.log.Debug("aggregate version race, retrying commit")
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, result)
	return result, nil
}

// commitOnce is one attempt of the pipeline inside a single storage transaction.
func (s *LedgerService) commitOnce(ctx context.Context, build command.TxFactory, hooks []command.TxHook) (*command.CommitResult, error) {
	result := &command.CommitResult{}

	err := s.uow.Run(ctx, func(ctx context.Context, repos command.Repos) error {
		tx, err := build(ctx, repos)
		if err != nil {
			return err
		}
		result.Transaction = tx

		// No ledger write this attempt; the hooks still need the
		// transactional boundary.
		if tx == nil {
			for _, hook := range hooks {
				if err := hook(ctx, repos); err != nil {
					return err
				}
			}
			return nil
		}

		if err := repos.Ledger.Append(ctx, tx); err != nil {
			return fmt.Errorf("ledger_service: append: %w", err)
		}

		agg, err := s.loadAggregate(ctx, repos, tx.StudentID, tx.TenantID)
		if err != nil {
			return err
		}
		result.PreviousLevel = agg.Level

		if _, err := agg.ApplyDelta(tx.Points, tx.Coins, s.config.LevelSize); err != nil {
			return err
		}

		unlocks, err := s.evaluateAchievements(ctx, repos, tx, agg)
		if err != nil {
			return err
		}
		result.Unlocks = unlocks

		if err := repos.Aggregates.Save(ctx, agg); err != nil {
			return err
		}

		for _, hook := range hooks {
			if err := hook(ctx, repos); err != nil {
				return err
			}
		}

		result.Aggregate = agg
		result.LeveledUp = agg.Level > result.PreviousLevel
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// loadAggregate fetches the aggregate or starts a fresh one for a student
// without a row yet.
func (s *LedgerService) loadAggregate(ctx context.Context, repos command.Repos, studentID shared.StudentID, tenantID shared.TenantID) (*ranking.Aggregate, error) {
	agg, err := repos.Aggregates.Get(ctx, studentID, tenantID)
	if err == nil {
		return agg, nil
	}
	if shared.IsNotFound(err) {
		return ranking.NewAggregate(studentID, tenantID, s.config.LevelSize)
	}
	return nil, err
}

// evaluateAchievements checks every active, not-yet-unlocked achievement
// against a facts snapshot taken after the triggering transaction. Bonuses
// granted here do not re-enter evaluation: one triggering event runs exactly
// one pass, and achievement-category transactions never trigger at all.
func (s *LedgerService) evaluateAchievements(ctx context.Context, repos command.Repos, tx *ledger.Transaction, agg *ranking.Aggregate) ([]command.Unlock, error) {
	if !s.config.AchievementsEnabled || tx.Category == ledger.CategoryAchievement {
		return nil, nil
	}

	active, err := repos.Achievements.ListActive(ctx, tx.TenantID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}

	unlockedIDs, err := repos.Achievements.ListUnlocked(ctx, tx.StudentID, tx.TenantID)
	if err != nil {
		return nil, err
	}
	unlocked := make(map[string]bool, len(unlockedIDs))
	for _, id := range unlockedIDs {
		unlocked[id] = true
	}

	candidates := make([]*achievement.Achievement, 0, len(active))
	needEnrolled := false
	for _, a := range active {
		if unlocked[a.ID] {
			continue
		}
		candidates = append(candidates, a)
		if a.Predicate.Type == achievement.PredicateEnrolledReferrals {
			needEnrolled = true
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	facts, err := s.collectFacts(ctx, repos, tx, agg, needEnrolled)
	if err != nil {
		return nil, err
	}

	var unlocks []command.Unlock
	for _, a := range candidates {
		if !a.Predicate.Holds(facts) {
			continue
		}

		unlock, err := s.grantUnlock(ctx, repos, a, tx, agg)
		if err != nil {
			if errors.Is(err, shared.ErrAlreadyUnlocked) {
				// Lost the race to a concurrent commit; the other writer
				// granted it.
				continue
			}
			return nil, err
		}
		unlocks = append(unlocks, *unlock)
	}

	return unlocks, nil
}

// collectFacts assembles the predicate inputs inside the committing
// transaction, so evaluation sees the triggering append.
func (s *LedgerService) collectFacts(ctx context.Context, repos command.Repos, tx *ledger.Transaction, agg *ranking.Aggregate, needEnrolled bool) (achievement.Facts, error) {
	counts, err := repos.Ledger.CountByCategory(ctx, tx.StudentID, tx.TenantID)
	if err != nil {
		return achievement.Facts{}, err
	}

	byCategory := make(map[string]int, len(counts))
	for cat, n := range counts {
		byCategory[string(cat)] = n
	}

	facts := achievement.Facts{
		TotalPoints:                agg.TotalPoints,
		TransactionCountByCategory: byCategory,
	}

	if needEnrolled {
		enrolled, err := repos.Referrals.CountEnrolled(ctx, tx.StudentID, tx.TenantID)
		if err != nil {
			return achievement.Facts{}, err
		}
		facts.EnrolledReferrals = enrolled
	}

	return facts, nil
}

// grantUnlock records the unlock row first - the unique constraint is what
// makes unlocks at-most-once - and only then appends the bonus transaction
// and folds its deltas into the aggregate.
func (s *LedgerService) grantUnlock(ctx context.Context, repos command.Repos, a *achievement.Achievement, trigger *ledger.Transaction, agg *ranking.Aggregate) (*command.Unlock, error) {
	sa, err := achievement.NewStudentAchievement(trigger.StudentID, trigger.TenantID, a.ID)
	if err != nil {
		return nil, err
	}

	var bonusTx *ledger.Transaction
	if a.HasBonus() {
		bonusTx, err = ledger.NewTransaction(ledger.NewTransactionParams{
			ID:        uuid.NewString(),
			StudentID: trigger.StudentID,
			TenantID:  trigger.TenantID,
			Kind:      ledger.KindBonus,
			Points:    a.BonusPoints,
			Coins:     a.BonusCoins,
			Reason:    fmt.Sprintf("Achievement unlocked: %s", a.Name),
			Category:  ledger.CategoryAchievement,
			AwardedBy: "system",
			Reference: a.ID,
		})
		if err != nil {
			return nil, err
		}
		sa.BonusTransactionID = bonusTx.ID
	}

	if err := repos.Achievements.RecordUnlock(ctx, sa); err != nil {
		return nil, err
	}

	if bonusTx != nil {
		if err := repos.Ledger.Append(ctx, bonusTx); err != nil {
			return nil, err
		}
		if _, err := agg.ApplyDelta(bonusTx.Points, bonusTx.Coins, s.config.LevelSize); err != nil {
			return nil, err
		}
	}

	return &command.Unlock{Achievement: a, Record: sa, BonusTransaction: bonusTx}, nil
}

// afterCommit publishes the post-commit events and drops the cached
// leaderboard. Failures here are logged, never surfaced - the commit
// already happened.
func (s *LedgerService) afterCommit(ctx context.Context, res *command.CommitResult) {
	tx := res.Transaction
	if tx == nil {
		return
	}

	s.publish(shared.NewTransactionCommittedEvent(
		tx.ID,
		tx.StudentID.String(),
		tx.TenantID.String(),
		string(tx.Kind),
		string(tx.Category),
		tx.Points.Int(),
		tx.Coins.Int(),
		res.Aggregate.TotalPoints.Int(),
		tx.AwardedBy,
	))

	if res.LeveledUp {
		s.publish(shared.NewLevelUpEvent(
			tx.StudentID.String(),
			tx.TenantID.String(),
			res.PreviousLevel,
			res.Aggregate.Level,
			res.Aggregate.TotalPoints.Int(),
		))
	}

	for _, unlock := range res.Unlocks {
		s.publish(shared.NewAchievementUnlockedEvent(
			tx.StudentID.String(),
			tx.TenantID.String(),
			unlock.Achievement.ID,
			unlock.Achievement.Name,
			unlock.Achievement.BonusPoints.Int(),
			unlock.Achievement.BonusCoins.Int(),
		))
	}

	s.invalidateLeaderboard(ctx, tx.TenantID)
}

// Delete soft-deletes a transaction and removes its deltas from the aggregate
// in the same storage transaction, keeping the aggregate equal to the replay
// of non-deleted rows. History keeps the row; only replays exclude it.
func (s *LedgerService) Delete(ctx context.Context, transactionID, actor string) (*ledger.Transaction, error) {
	var deleted *ledger.Transaction

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		err := s.uow.Run(ctx, func(ctx context.Context, repos command.Repos) error {
			tx, err := repos.Ledger.GetByID(ctx, transactionID)
			if err != nil {
				return err
			}
			if tx.IsDeleted() {
				return shared.ErrAlreadyDeleted
			}

			if err := repos.Ledger.SoftDelete(ctx, tx.ID, actor); err != nil {
				return err
			}

			agg, err := s.loadAggregate(ctx, repos, tx.StudentID, tx.TenantID)
			if err != nil {
				return err
			}
			if _, err := agg.ApplyDelta(-tx.Points, -tx.Coins, s.config.LevelSize); err != nil {
				return err
			}
			if err := repos.Aggregates.Save(ctx, agg); err != nil {
				return err
			}

			deleted = tx
			return nil
		})
		if err != nil {
			if errors.Is(err, shared.ErrOptimisticLock) {
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(shared.NewTransactionDeletedEvent(deleted.ID, deleted.StudentID.String(), actor))
	s.invalidateLeaderboard(ctx, deleted.TenantID)

	s.log.Info("transaction soft-deleted",
		logger.TransactionID(deleted.ID),
		logger.StudentID(deleted.StudentID.String()),
		logger.ActorID(actor),
	)
	return deleted, nil
}

func (s *LedgerService) publish(event shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.log.Warn("event publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}

func (s *LedgerService) invalidateLeaderboard(ctx context.Context, tenantID shared.TenantID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenantID); err != nil {
		s.log.Warn("leaderboard cache invalidation failed",
			logger.TenantID(tenantID.String()),
			logger.Err(err),
		)
	}
}
