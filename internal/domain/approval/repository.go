// Package approval contains the moderation queue for large point awards.
package approval

import (
	"context"
	"time"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPROVAL REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the contract for the approval queue. The implementation
// lives in the infrastructure layer (PostgreSQL).
//
// Decide is the concurrency-critical operation: it persists a decision with a
// compare-and-swap on decision='pending', so two racing moderators cannot both
// win. The loser receives shared.ErrApprovalAlreadyDecided.
type Repository interface {
	// Create inserts a new pending approval.
	Create(ctx context.Context, a *PendingApproval) error

	// GetByID returns one approval by its id.
	// Returns shared.ErrApprovalNotFound if absent.
	GetByID(ctx context.Context, id string) (*PendingApproval, error)

	// Decide persists a terminal decision guarded by WHERE decision='pending'.
	// Returns shared.ErrApprovalAlreadyDecided when another decision landed
	// first, and shared.ErrApprovalNotFound when the id does not exist.
	Decide(ctx context.Context, a *PendingApproval) error

	// ListPending returns one page of undecided approvals for a tenant,
	// ordered by priority descending, then oldest first.
	ListPending(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]*PendingApproval, error)

	// CountPending returns the number of undecided approvals in a tenant.
	CountPending(ctx context.Context, tenantID shared.TenantID) (int, error)

	// ListDecidedSince returns approvals decided after the cutoff, newest
	// first, for audit views.
	ListDecidedSince(ctx context.Context, tenantID shared.TenantID, since time.Time, page shared.Page) ([]*PendingApproval, error)
}
