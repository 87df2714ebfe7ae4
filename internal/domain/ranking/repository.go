// Package ranking contains the balance aggregate derived from the ledger.
package ranking

import (
	"context"
	"time"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the contract for aggregate storage. The implementation
// lives in the infrastructure layer (PostgreSQL).
//
// The write contract is strict: Save performs a compare-and-swap on the
// version column and returns shared.ErrOptimisticLock when the stored version
// no longer matches the version the aggregate was read at. Callers retry the
// whole read-apply-save cycle; they never retry Save alone.
type Repository interface {
	// ──────────────────────────────────────────────────────────────────────────
	// WRITE PATH
	// ──────────────────────────────────────────────────────────────────────────

	// Get returns the aggregate for a student within a tenant.
	// Returns shared.ErrAggregateNotFound when the student has no row yet;
	// callers then start from NewAggregate.
	Get(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (*Aggregate, error)

	// Save persists the aggregate via version CAS. A version-0 aggregate is
	// inserted; any other version updates the row WHERE version matches and
	// stores version+1. Returns shared.ErrOptimisticLock on a lost race.
	Save(ctx context.Context, agg *Aggregate) error

	// ──────────────────────────────────────────────────────────────────────────
	// RANKING QUERIES (read model)
	// ──────────────────────────────────────────────────────────────────────────

	// GetRanked returns one page of the leaderboard for a tenant, ordered by
	// TotalPoints descending with dense ranks assigned in SQL.
	GetRanked(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]RankedEntry, error)

	// GetStudentRank returns the single ranked entry of one student.
	// Returns shared.ErrAggregateNotFound if the student has no aggregate.
	GetStudentRank(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (*RankedEntry, error)

	// CountStudents returns the number of aggregates in a tenant.
	CountStudents(ctx context.Context, tenantID shared.TenantID) (int, error)

	// ──────────────────────────────────────────────────────────────────────────
	// RECONCILIATION
	// ──────────────────────────────────────────────────────────────────────────

	// ListStale returns aggregates not touched since the cutoff, for the
	// reconcile job that replays the ledger and repairs divergence.
	ListStale(ctx context.Context, tenantID shared.TenantID, updatedBefore time.Time, limit int) ([]*Aggregate, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Cache defines the contract for the short-TTL leaderboard cache.
// Separated from the repository so Redis and in-memory implementations
// are interchangeable. Staleness up to the TTL is acceptable.
type Cache interface {
	// GetTop returns the cached top-N for a tenant, or nil on a miss.
	GetTop(ctx context.Context, tenantID shared.TenantID, limit int) ([]RankedEntry, error)

	// SetTop stores the top-N for a tenant with a TTL.
	SetTop(ctx context.Context, tenantID shared.TenantID, entries []RankedEntry, ttl time.Duration) error

	// Invalidate drops the cached leaderboard for a tenant.
	Invalidate(ctx context.Context, tenantID shared.TenantID) error
}
