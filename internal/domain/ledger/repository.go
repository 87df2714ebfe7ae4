package ledger

import (
	"context"
	"time"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the storage contract for the ledger.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the ledger storage contract. Append is the only write
// path for history; there is deliberately no Update method.
type Repository interface {
	// Append persists a new transaction.
	// Returns shared.ErrAlreadyExists if the ID is already present.
	Append(ctx context.Context, tx *Transaction) error

	// GetByID returns a transaction by ID, deleted or not.
	// Returns shared.ErrTransactionNotFound if absent.
	GetByID(ctx context.Context, id string) (*Transaction, error)

	// ListByStudent returns a student's transactions in append order,
	// filtered by opts. Restartable via offset pagination.
	ListByStudent(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, opts ListOptions) ([]*Transaction, error)

	// CountByStudent returns the number of matching transactions.
	CountByStudent(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, opts ListOptions) (int, error)

	// SoftDelete sets the delete marker on a transaction.
	// Returns shared.ErrTransactionNotFound if absent or already deleted.
	// The numeric deltas of the row are never touched.
	SoftDelete(ctx context.Context, id, actor string) error

	// Replay recomputes the authoritative balance from non-deleted rows.
	Replay(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (ReplayResult, error)

	// CountByCategory returns per-category counts of the student's
	// non-deleted transactions. Used by achievement predicates.
	CountByCategory(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (map[Category]int, error)
}

// ListOptions contains filters and pagination for transaction listings.
type ListOptions struct {
	// Kind filters by transaction kind (empty = all).
	Kind Kind

	// Category filters by category (empty = all).
	Category Category

	// Range restricts CreatedAt to a time window.
	Range shared.TimeRange

	// IncludeDeleted includes soft-deleted rows (audit views only).
	IncludeDeleted bool

	// NewestFirst flips the ordering for history views. Replay callers
	// leave it false to get append order.
	NewestFirst bool

	// Offset/Limit - standard pagination. Limit <= 0 means no limit.
	Offset int
	Limit  int
}

// DefaultListOptions returns the options used by history views.
func DefaultListOptions() ListOptions {
	return ListOptions{
		NewestFirst: true,
		Limit:       50,
	}
}

// HistoryEntry pairs a transaction with its running balance, for statement
// style history views.
type HistoryEntry struct {
	Transaction  *Transaction
	RunningTotal shared.Points
	OccurredAt   time.Time
}
