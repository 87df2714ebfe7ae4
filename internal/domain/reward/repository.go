// Package reward contains the coin shop catalog and redemption records.
package reward

import (
	"context"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the contract for the reward catalog and redemptions.
// The implementation lives in the infrastructure layer (PostgreSQL).
type Repository interface {
	// ──────────────────────────────────────────────────────────────────────────
	// CATALOG
	// ──────────────────────────────────────────────────────────────────────────

	// CreateReward inserts a catalog entry.
	CreateReward(ctx context.Context, r *Reward) error

	// GetReward returns one catalog entry by id.
	// Returns shared.ErrRewardNotFound if absent.
	GetReward(ctx context.Context, id string) (*Reward, error)

	// ListActive returns redeemable rewards of a tenant, cheapest first.
	ListActive(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]*Reward, error)

	// UpdateReward persists catalog edits (stock, active flag, price).
	// Returns shared.ErrRewardNotFound if absent.
	UpdateReward(ctx context.Context, r *Reward) error

	// DecrementStock takes one unit of a tracked reward as a relative
	// UPDATE guarded by WHERE stock > 0. Two racing redemptions of the
	// last item cannot both succeed: the loser gets
	// shared.ErrRewardInactive. Unlimited-stock rewards pass untouched.
	DecrementStock(ctx context.Context, id string) error

	// ──────────────────────────────────────────────────────────────────────────
	// REDEMPTIONS
	// ──────────────────────────────────────────────────────────────────────────

	// CreateRedemption inserts a redemption record.
	CreateRedemption(ctx context.Context, rd *Redemption) error

	// GetRedemption returns one redemption by id.
	// Returns shared.ErrRedemptionNotFound if absent.
	GetRedemption(ctx context.Context, id string) (*Redemption, error)

	// UpdateRedemptionStatus persists a fulfillment transition guarded by
	// WHERE status='pending_fulfillment'. A lost race returns
	// shared.ErrTerminalState.
	UpdateRedemptionStatus(ctx context.Context, rd *Redemption) error

	// ListRedemptions returns a student's redemptions, newest first.
	ListRedemptions(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, page shared.Page) ([]*Redemption, error)
}
