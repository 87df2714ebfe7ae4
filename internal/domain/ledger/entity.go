// Package ledger contains the append-only transaction ledger - the single
// source of truth for every point and coin movement in the system.
// No update-in-place of committed deltas is ever permitted; reversal happens
// through compensating transactions, deletion through soft-delete markers.
package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Kind classifies the direction and origin of a transaction.
type Kind string

const (
	// KindEarned - points/coins earned through regular activity.
	KindEarned Kind = "earned"
	// KindDeducted - points removed by staff (behavior penalties etc.).
	KindDeducted Kind = "deducted"
	// KindBonus - system-originated rewards: achievements, referrals, compensations.
	KindBonus Kind = "bonus"
	// KindRedemption - coins spent against the reward catalog.
	KindRedemption Kind = "redemption"
)

// IsValid checks that the kind is one of the known values.
func (k Kind) IsValid() bool {
	switch k {
	case KindEarned, KindDeducted, KindBonus, KindRedemption:
		return true
	default:
		return false
	}
}

// Category describes what the transaction was awarded for.
type Category string

const (
	CategoryHomework    Category = "homework"
	CategoryAttendance  Category = "attendance"
	CategoryBehavior    Category = "behavior"
	CategoryAchievement Category = "achievement"
	CategoryReferral    Category = "referral"
	CategoryManual      Category = "manual"
	CategoryRedemption  Category = "redemption"
)

// IsValid checks that the category is one of the known values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryHomework, CategoryAttendance, CategoryBehavior,
		CategoryAchievement, CategoryReferral, CategoryManual, CategoryRedemption:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

// Transaction is an immutable ledger entry. Once committed, Points, Coins and
// Kind are never mutated - only a delete marker may be added.
type Transaction struct {
	// ID - unique identifier (UUID in string form).
	ID string

	// StudentID - the student whose balance the entry affects.
	StudentID shared.StudentID

	// TenantID - the owning organization.
	TenantID shared.TenantID

	// Kind - earned, deducted, bonus or redemption.
	Kind Kind

	// Points - signed point delta.
	Points shared.Points

	// Coins - signed coin delta.
	Coins shared.Coins

	// Reason - free-text justification, always required.
	Reason string

	// Category - what the entry was awarded for.
	Category Category

	// AwardedBy - identifier of the acting staff member or "system".
	AwardedBy string

	// Reference - optional identifier of a related record: the original
	// transaction for compensations, the redemption for cancellations,
	// the referral for enrollment bonuses.
	Reference string

	// CreatedAt - commit time.
	CreatedAt time.Time

	// DeletedAt / DeletedBy - soft-delete marker. A deleted transaction is
	// excluded from replay but never removed from history.
	DeletedAt *time.Time
	DeletedBy string
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrMissingID - transaction without identifier.
	ErrMissingID = errors.New("transaction id is required")

	// ErrMissingStudent - transaction without student reference.
	ErrMissingStudent = errors.New("student id is required")

	// ErrMissingTenant - transaction without tenant reference.
	ErrMissingTenant = errors.New("tenant id is required")

	// ErrMissingReason - every ledger entry needs a human-readable reason.
	ErrMissingReason = errors.New("transaction reason is required")

	// ErrZeroDeltas - a transaction must move points or coins.
	ErrZeroDeltas = errors.New("transaction must carry a non-zero point or coin delta")

	// ErrUnknownKind - kind outside the enum.
	ErrUnknownKind = errors.New("unknown transaction kind")

	// ErrUnknownCategory - category outside the enum.
	ErrUnknownCategory = errors.New("unknown transaction category")

	// ErrAlreadyDeleted - soft delete applied twice.
	ErrAlreadyDeleted = errors.New("transaction is already deleted")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewTransactionParams contains the parameters for creating a transaction.
type NewTransactionParams struct {
	ID        string
	StudentID shared.StudentID
	TenantID  shared.TenantID
	Kind      Kind
	Points    shared.Points
	Coins     shared.Coins
	Reason    string
	Category  Category
	AwardedBy string
	Reference string
}

// NewTransaction creates a new transaction with all fields validated.
// The entry is not yet committed - the ledger repository owns persistence.
func NewTransaction(params NewTransactionParams) (*Transaction, error) {
	if params.ID == "" {
		return nil, ErrMissingID
	}
	if params.StudentID.IsEmpty() {
		return nil, ErrMissingStudent
	}
	if params.TenantID.IsEmpty() {
		return nil, ErrMissingTenant
	}
	if !params.Kind.IsValid() {
		return nil, ErrUnknownKind
	}
	if !params.Category.IsValid() {
		return nil, ErrUnknownCategory
	}

	reason := strings.TrimSpace(params.Reason)
	if reason == "" {
		return nil, ErrMissingReason
	}
	if params.Points == 0 && params.Coins == 0 {
		return nil, ErrZeroDeltas
	}
	if params.AwardedBy == "" {
		return nil, errors.New("awarding actor is required")
	}

	return &Transaction{
		ID:        params.ID,
		StudentID: params.StudentID,
		TenantID:  params.TenantID,
		Kind:      params.Kind,
		Points:    params.Points,
		Coins:     params.Coins,
		Reason:    reason,
		Category:  params.Category,
		AwardedBy: params.AwardedBy,
		Reference: params.Reference,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// IsDeleted reports whether a soft-delete marker is present.
func (t *Transaction) IsDeleted() bool {
	return t.DeletedAt != nil
}

// MarkDeleted adds the soft-delete marker. The numeric deltas stay untouched;
// the row is merely excluded from future replays.
func (t *Transaction) MarkDeleted(actor string) error {
	if t.IsDeleted() {
		return ErrAlreadyDeleted
	}
	now := time.Now().UTC()
	t.DeletedAt = &now
	t.DeletedBy = actor
	return nil
}

// Compensation builds the reversal entry for this transaction: same
// magnitudes with flipped signs, bonus kind, referencing the original.
func (t *Transaction) Compensation(id, actor, reason string) (*Transaction, error) {
	return NewTransaction(NewTransactionParams{
		ID:        id,
		StudentID: t.StudentID,
		TenantID:  t.TenantID,
		Kind:      KindBonus,
		Points:    -t.Points,
		Coins:     -t.Coins,
		Reason:    reason,
		Category:  t.Category,
		AwardedBy: actor,
		Reference: t.ID,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REPLAY
// ══════════════════════════════════════════════════════════════════════════════

// ReplayResult is the outcome of replaying a student's non-deleted
// transactions in append order. It is the authoritative balance.
type ReplayResult struct {
	TotalPoints    shared.Points
	AvailableCoins shared.Coins
	SpentCoins     shared.Coins
	Transactions   int
}

// Replay folds a sequence of transactions into totals, skipping deleted rows.
// The slice must be in append order, though the fold itself is order-independent.
func Replay(txs []*Transaction) ReplayResult {
	var res ReplayResult
	for _, tx := range txs {
		if tx.IsDeleted() {
			continue
		}
		res.Transactions++
		res.TotalPoints += tx.Points
		if tx.Coins >= 0 {
			res.AvailableCoins += tx.Coins
		} else {
			res.AvailableCoins += tx.Coins
			res.SpentCoins += -tx.Coins
		}
	}
	return res
}
