// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"

	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/approval"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/reward"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// Interfaces the command handlers depend on. Implementations live in the
// infrastructure layer (postgres unit of work, ledger service, directory
// adapter); tests substitute in-memory fakes.
// ══════════════════════════════════════════════════════════════════════════════

// DirectoryClient resolves references against the external entity directory.
// Students, tenants and staff accounts live there; the engine stores only
// their identifiers and must refuse writes against unresolved or archived
// references.
type DirectoryClient interface {
	// VerifyStudent checks the student exists, is active and belongs to the
	// tenant. Returns shared.ErrNotFound semantics otherwise.
	VerifyStudent(ctx context.Context, studentID, tenantID string) error

	// VerifyActor checks the acting staff account exists and is active
	// within the tenant.
	VerifyActor(ctx context.Context, actorID, tenantID string) error
}

// Repos bundles the repositories bound to one storage transaction.
type Repos struct {
	Ledger       ledger.Repository
	Aggregates   ranking.Repository
	Approvals    approval.Repository
	Achievements achievement.Repository
	Rewards      reward.Repository
	Referrals    referral.Repository
}

// UnitOfWork runs a function against repositories bound to a single storage
// transaction. If fn returns an error the transaction rolls back and none of
// the writes survive.
type UnitOfWork interface {
	// Run executes fn inside one transaction.
	Run(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error

	// Repos returns pool-bound repositories for reads and standalone writes
	// that do not need the transactional boundary.
	Repos() Repos
}

// TxHook runs extra writes inside the same storage transaction as a commit.
// Redemption records, approval decisions and referral transitions use hooks
// to stay atomic with their ledger append; a hook error rolls everything back.
type TxHook func(ctx context.Context, repos Repos) error

// TxFactory builds a commit's transaction inside the storage transaction,
// after its repository reads. The factory re-runs on every retry attempt,
// so point values derived from reads (enrolled counts, tier bonuses) stay
// consistent with the state the commit actually lands on. Returning a nil
// transaction commits the hooks alone, with no ledger write.
type TxFactory func(ctx context.Context, repos Repos) (*ledger.Transaction, error)

// Unlock describes one achievement granted during a commit.
type Unlock struct {
	// Achievement - the catalog entry that unlocked.
	Achievement *achievement.Achievement

	// Record - the persisted unlock row.
	Record *achievement.StudentAchievement

	// BonusTransaction - the bonus ledger entry, nil when the achievement
	// carries no deltas.
	BonusTransaction *ledger.Transaction
}

// CommitResult reports everything a single commit did.
type CommitResult struct {
	// Transaction - the committed ledger entry.
	Transaction *ledger.Transaction

	// Aggregate - the aggregate after the commit, bonuses included.
	Aggregate *ranking.Aggregate

	// LeveledUp / PreviousLevel - overall level change across the commit.
	LeveledUp     bool
	PreviousLevel int

	// Unlocks - achievements granted by this commit.
	Unlocks []Unlock
}

// Committer is the transactional commit pipeline. One call spans the ledger
// append, the aggregate CAS, synchronous achievement evaluation and any
// hooks, then publishes events and invalidates caches after the storage
// transaction commits.
type Committer interface {
	// Commit runs the full pipeline for one transaction.
	Commit(ctx context.Context, tx *ledger.Transaction, hooks ...TxHook) (*CommitResult, error)

	// CommitDerived runs the pipeline for a transaction built by the
	// factory inside the storage transaction.
	CommitDerived(ctx context.Context, build TxFactory, hooks ...TxHook) (*CommitResult, error)

	// Delete soft-deletes a transaction and removes its deltas from the
	// aggregate in the same storage transaction.
	Delete(ctx context.Context, transactionID, actor string) (*ledger.Transaction, error)
}
