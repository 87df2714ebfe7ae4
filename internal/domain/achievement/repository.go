// Package achievement contains the auto-unlock engine catalog.
package achievement

import (
	"context"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the contract for the achievement catalog and unlock
// records. The implementation lives in the infrastructure layer (PostgreSQL).
type Repository interface {
	// ──────────────────────────────────────────────────────────────────────────
	// CATALOG
	// ──────────────────────────────────────────────────────────────────────────

	// CreateAchievement inserts a catalog entry.
	CreateAchievement(ctx context.Context, a *Achievement) error

	// GetAchievement returns one catalog entry by id.
	// Returns shared.ErrAchievementNotFound if absent.
	GetAchievement(ctx context.Context, id string) (*Achievement, error)

	// ListActive returns all active achievements of a tenant, for the
	// evaluation pass after a commit.
	ListActive(ctx context.Context, tenantID shared.TenantID) ([]*Achievement, error)

	// SetActive toggles whether an achievement is evaluated.
	SetActive(ctx context.Context, id string, active bool) error

	// ──────────────────────────────────────────────────────────────────────────
	// UNLOCKS
	// ──────────────────────────────────────────────────────────────────────────

	// RecordUnlock inserts an unlock record. The unique constraint on
	// (student, achievement) makes the insert the at-most-once gate:
	// a duplicate returns shared.ErrAlreadyUnlocked.
	RecordUnlock(ctx context.Context, sa *StudentAchievement) error

	// ListUnlocked returns the achievement ids a student already holds,
	// so the evaluation pass skips them without racing.
	ListUnlocked(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) ([]string, error)

	// ListUnlocks returns the full unlock records of a student, newest first.
	ListUnlocks(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) ([]*StudentAchievement, error)
}
