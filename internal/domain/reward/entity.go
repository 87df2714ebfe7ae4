// Package reward contains the coin shop: the catalog of redeemable rewards
// and the redemption records. Points measure standing and are never spendable;
// only coins buy rewards, and a redemption is just a negative-coin ledger
// transaction plus a fulfillment record.
package reward

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD (catalog entry)
// ══════════════════════════════════════════════════════════════════════════════

// StockUnlimited marks a reward with no quantity limit.
const StockUnlimited = -1

// Reward is one entry of the redeemable catalog.
type Reward struct {
	// ID - unique identifier of the catalog entry.
	ID string

	// TenantID - tenant the reward belongs to.
	TenantID shared.TenantID

	// Name - short display name ("Homework pass").
	Name string

	// Description - what the student receives.
	Description string

	// CoinCost - price in coins, always positive.
	CoinCost shared.Coins

	// Stock - remaining quantity; StockUnlimited disables tracking.
	Stock int

	// Active - inactive rewards cannot be redeemed.
	Active bool

	// CreatedAt - time the entry was authored.
	CreatedAt time.Time
}

// NewReward creates a catalog entry with validation.
func NewReward(tenantID shared.TenantID, name, description string, cost shared.Coins, stock int) (*Reward, error) {
	if !tenantID.IsValid() {
		return nil, shared.ErrTenantUnresolved
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("reward", "Validate", shared.ErrEmptyValue, "reward name is required")
	}
	if cost <= 0 {
		return nil, shared.NewDomainError("reward", "Validate", shared.ErrValueOutOfRange, "coin cost must be positive")
	}
	if stock < StockUnlimited {
		return nil, shared.NewDomainError("reward", "Validate", shared.ErrValueOutOfRange, "stock cannot be below -1")
	}

	return &Reward{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CoinCost:    cost,
		Stock:       stock,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// IsRedeemable reports whether the reward can currently be redeemed.
func (r *Reward) IsRedeemable() bool {
	if !r.Active {
		return false
	}
	return r.Stock == StockUnlimited || r.Stock > 0
}

// ConsumeStock decrements tracked stock. Unlimited rewards are untouched.
func (r *Reward) ConsumeStock() error {
	if !r.IsRedeemable() {
		return shared.ErrRewardInactive
	}
	if r.Stock != StockUnlimited {
		r.Stock--
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDEMPTION
// ══════════════════════════════════════════════════════════════════════════════

// RedemptionStatus tracks fulfillment of a redeemed reward.
type RedemptionStatus string

const (
	// RedemptionPendingFulfillment - paid for, not yet handed out.
	RedemptionPendingFulfillment RedemptionStatus = "pending_fulfillment"
	// RedemptionFulfilled - the student received the reward.
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	// RedemptionCancelled - fulfillment cancelled, coins refunded by a
	// compensating transaction.
	RedemptionCancelled RedemptionStatus = "cancelled"
)

// IsValid checks that the status is known.
func (s RedemptionStatus) IsValid() bool {
	switch s {
	case RedemptionPendingFulfillment, RedemptionFulfilled, RedemptionCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the redemption can no longer change.
func (s RedemptionStatus) IsTerminal() bool {
	return s == RedemptionFulfilled || s == RedemptionCancelled
}

// Redemption records one purchase from the catalog. The coins already left
// the balance through TransactionID when this record exists.
type Redemption struct {
	// ID - unique identifier of the redemption.
	ID string

	// StudentID - student who redeemed.
	StudentID shared.StudentID

	// TenantID - tenant scope.
	TenantID shared.TenantID

	// RewardID - the catalog entry purchased.
	RewardID string

	// CoinCost - price at redemption time (catalog may change later).
	CoinCost shared.Coins

	// TransactionID - the negative-coin ledger transaction.
	TransactionID string

	// Status - fulfillment state.
	Status RedemptionStatus

	// CreatedAt - time of redemption.
	CreatedAt time.Time

	// ResolvedAt - time of fulfillment or cancellation.
	ResolvedAt *time.Time
}

// NewRedemption records a purchase.
func NewRedemption(studentID shared.StudentID, tenantID shared.TenantID, rewardID string, cost shared.Coins, transactionID string) (*Redemption, error) {
	if !studentID.IsValid() {
		return nil, shared.ErrStudentUnresolved
	}
	if !tenantID.IsValid() {
		return nil, shared.ErrTenantUnresolved
	}
	if rewardID == "" {
		return nil, shared.ErrRewardNotFound
	}
	if cost <= 0 {
		return nil, shared.NewDomainError("reward", "Redeem", shared.ErrValueOutOfRange, "coin cost must be positive")
	}
	if transactionID == "" {
		return nil, shared.NewDomainError("reward", "Redeem", shared.ErrInvalidInput, "redemption requires its ledger transaction")
	}

	return &Redemption{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		TenantID:      tenantID,
		RewardID:      rewardID,
		CoinCost:      cost,
		TransactionID: transactionID,
		Status:        RedemptionPendingFulfillment,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Fulfill marks the reward as handed out.
func (r *Redemption) Fulfill() error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("reward", "Fulfill", shared.ErrTerminalState, "redemption already resolved")
	}
	now := time.Now().UTC()
	r.Status = RedemptionFulfilled
	r.ResolvedAt = &now
	return nil
}

// Cancel marks the redemption cancelled. The coin refund is a separate
// compensating transaction the caller commits in the same unit of work.
func (r *Redemption) Cancel() error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("reward", "Cancel", shared.ErrTerminalState, "redemption already resolved")
	}
	now := time.Now().UTC()
	r.Status = RedemptionCancelled
	r.ResolvedAt = &now
	return nil
}
