// Package achievement contains the auto-unlock engine catalog. Achievements
// are predicates over a student's activity; when one becomes true the engine
// unlocks it at most once and grants a bonus through the ledger. Unlocks are
// permanent - a later drop below the threshold never revokes one.
package achievement

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREDICATES
// ══════════════════════════════════════════════════════════════════════════════

// PredicateType names the family of condition an achievement checks.
type PredicateType string

const (
	// PredicateTransactionCount - at least N non-deleted transactions in a
	// category (e.g. "10 homework completions").
	PredicateTransactionCount PredicateType = "transaction_count"
	// PredicateTotalPoints - lifetime total points of at least N.
	PredicateTotalPoints PredicateType = "total_points"
	// PredicateEnrolledReferrals - at least N referrals reaching enrolled.
	PredicateEnrolledReferrals PredicateType = "enrolled_referrals"
)

// IsValid checks that the predicate type is known.
func (p PredicateType) IsValid() bool {
	switch p {
	case PredicateTransactionCount, PredicateTotalPoints, PredicateEnrolledReferrals:
		return true
	default:
		return false
	}
}

// Predicate is the unlock condition of one achievement.
type Predicate struct {
	// Type - family of condition.
	Type PredicateType

	// Category - ledger category filter, only for transaction_count.
	Category string

	// Threshold - the "at least N" bound, always positive.
	Threshold int
}

// Validate checks the predicate is well-formed.
func (p Predicate) Validate() error {
	if !p.Type.IsValid() {
		return shared.ErrInvalidPredicate
	}
	if p.Threshold <= 0 {
		return shared.ErrInvalidPredicate
	}
	if p.Type == PredicateTransactionCount && strings.TrimSpace(p.Category) == "" {
		return shared.ErrInvalidPredicate
	}
	return nil
}

// Facts is the snapshot of a student's activity a predicate is evaluated
// against. The caller assembles it inside the same unit of work as the
// triggering transaction, so evaluation sees consistent state.
type Facts struct {
	// TotalPoints - lifetime point total after the triggering commit.
	TotalPoints shared.Points

	// TransactionCountByCategory - non-deleted transaction counts keyed by
	// category.
	TransactionCountByCategory map[string]int

	// EnrolledReferrals - referrals of the student that reached enrolled.
	EnrolledReferrals int
}

// Holds evaluates the predicate against the facts.
func (p Predicate) Holds(f Facts) bool {
	switch p.Type {
	case PredicateTransactionCount:
		return f.TransactionCountByCategory[p.Category] >= p.Threshold
	case PredicateTotalPoints:
		return int(f.TotalPoints) >= p.Threshold
	case PredicateEnrolledReferrals:
		return f.EnrolledReferrals >= p.Threshold
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT (catalog entry)
// ══════════════════════════════════════════════════════════════════════════════

// Achievement is one catalog entry: a predicate plus the bonus it grants.
type Achievement struct {
	// ID - unique identifier of the catalog entry.
	ID string

	// TenantID - tenant the achievement belongs to.
	TenantID shared.TenantID

	// Name - short display name ("Homework Hero").
	Name string

	// Description - what the student did to earn it.
	Description string

	// Predicate - the unlock condition.
	Predicate Predicate

	// BonusPoints - points granted on unlock (may be zero).
	BonusPoints shared.Points

	// BonusCoins - coins granted on unlock (may be zero).
	BonusCoins shared.Coins

	// Active - inactive achievements are never evaluated.
	Active bool

	// CreatedAt - time the entry was authored.
	CreatedAt time.Time
}

// NewAchievement creates a catalog entry with validation.
func NewAchievement(tenantID shared.TenantID, name, description string, pred Predicate, bonusPoints shared.Points, bonusCoins shared.Coins) (*Achievement, error) {
	if !tenantID.IsValid() {
		return nil, shared.ErrTenantUnresolved
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("achievement", "Validate", shared.ErrEmptyValue, "achievement name is required")
	}
	if err := pred.Validate(); err != nil {
		return nil, err
	}
	if bonusPoints < 0 || bonusCoins < 0 {
		return nil, shared.NewDomainError("achievement", "Validate", shared.ErrValueOutOfRange, "bonus deltas cannot be negative")
	}

	return &Achievement{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Predicate:   pred,
		BonusPoints: bonusPoints,
		BonusCoins:  bonusCoins,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// HasBonus reports whether unlocking grants any ledger deltas.
func (a *Achievement) HasBonus() bool {
	return a.BonusPoints != 0 || a.BonusCoins != 0
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT ACHIEVEMENT (unlock record)
// ══════════════════════════════════════════════════════════════════════════════

// StudentAchievement is the permanent record of one unlock. The storage layer
// enforces uniqueness on (student, achievement), which is what makes unlocks
// at-most-once even under concurrent triggers.
type StudentAchievement struct {
	// ID - unique identifier of the unlock.
	ID string

	// StudentID - student who unlocked.
	StudentID shared.StudentID

	// TenantID - tenant scope.
	TenantID shared.TenantID

	// AchievementID - the catalog entry unlocked.
	AchievementID string

	// BonusTransactionID - ledger transaction of the bonus, if any.
	BonusTransactionID string

	// UnlockedAt - time of the unlock.
	UnlockedAt time.Time
}

// NewStudentAchievement records an unlock.
func NewStudentAchievement(studentID shared.StudentID, tenantID shared.TenantID, achievementID string) (*StudentAchievement, error) {
	if !studentID.IsValid() {
		return nil, shared.ErrStudentUnresolved
	}
	if !tenantID.IsValid() {
		return nil, shared.ErrTenantUnresolved
	}
	if achievementID == "" {
		return nil, shared.ErrAchievementNotFound
	}

	return &StudentAchievement{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		TenantID:      tenantID,
		AchievementID: achievementID,
		UnlockedAt:    time.Now().UTC(),
	}, nil
}
