// Package service wires the domain repositories into the transactional
// use-case pipelines and adapts external infrastructure (entity directory,
// caches) to the ports the application layer defines.
package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// The one hard transactional boundary of the engine: a ledger append and every
// derived write it triggers (aggregate CAS, unlock rows, redemption records,
// approval decisions, referral transitions) commit or roll back together.
// ══════════════════════════════════════════════════════════════════════════════

// PostgresUnitOfWork implements command.UnitOfWork on the pgx connection pool.
// Each Run opens a read-committed transaction and rebinds every repository
// to it.
type PostgresUnitOfWork struct {
	conn         *postgres.Connection
	ledger       *postgres.LedgerRepository
	aggregates   *postgres.RankingRepository
	approvals    *postgres.ApprovalRepository
	achievements *postgres.AchievementRepository
	rewards      *postgres.RewardRepository
	referrals    *postgres.ReferralRepository
}

// NewPostgresUnitOfWork creates a unit of work over the connection pool.
func NewPostgresUnitOfWork(conn *postgres.Connection) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{
		conn:         conn,
		ledger:       postgres.NewLedgerRepository(conn),
		aggregates:   postgres.NewRankingRepository(conn),
		approvals:    postgres.NewApprovalRepository(conn),
		achievements: postgres.NewAchievementRepository(conn),
		rewards:      postgres.NewRewardRepository(conn),
		referrals:    postgres.NewReferralRepository(conn),
	}
}

// Run implements command.UnitOfWork.
func (u *PostgresUnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, repos command.Repos) error) error {
	return u.conn.WithTx(ctx, postgres.DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, command.Repos{
			Ledger:       u.ledger.WithTx(tx),
			Aggregates:   u.aggregates.WithTx(tx),
			Approvals:    u.approvals.WithTx(tx),
			Achievements: u.achievements.WithTx(tx),
			Rewards:      u.rewards.WithTx(tx),
			Referrals:    u.referrals.WithTx(tx),
		})
	})
}

// Repos implements command.UnitOfWork.
func (u *PostgresUnitOfWork) Repos() command.Repos {
	return command.Repos{
		Ledger:       u.ledger,
		Aggregates:   u.aggregates,
		Approvals:    u.approvals,
		Achievements: u.achievements,
		Rewards:      u.rewards,
		Referrals:    u.referrals,
	}
}
