package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/reward"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVE REDEMPTION COMMAND
// Fulfillment bookkeeping after a redemption. Fulfilling only flips the
// status; cancelling additionally refunds the coins through a compensating
// positive-coin transaction referencing the original - the original rows are
// never mutated.
// ══════════════════════════════════════════════════════════════════════════════

// ResolveRedemptionCommand resolves one pending redemption.
type ResolveRedemptionCommand struct {
	// RedemptionID is the record being resolved.
	RedemptionID string

	// Fulfill is true to mark handed out, false to cancel and refund.
	Fulfill bool

	// Actor is the resolving staff member.
	Actor shared.Actor
}

// Validate validates the command.
func (c ResolveRedemptionCommand) Validate() error {
	if c.RedemptionID == "" {
		return shared.NewDomainError("command", "ResolveRedemption", shared.ErrEmptyValue, "redemption id is required")
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "ResolveRedemption", shared.ErrInvalidInput, "acting identity is invalid")
	}
	return nil
}

// ResolveRedemptionResult contains the resolution outcome.
type ResolveRedemptionResult struct {
	// Redemption is the resolved record.
	Redemption *reward.Redemption

	// Refund is the compensating transaction, set on cancellation.
	Refund *ledger.Transaction
}

// ResolveRedemptionHandler handles the ResolveRedemptionCommand.
type ResolveRedemptionHandler struct {
	committer Committer
	uow       UnitOfWork
}

// NewResolveRedemptionHandler creates a new ResolveRedemptionHandler.
func NewResolveRedemptionHandler(committer Committer, uow UnitOfWork) *ResolveRedemptionHandler {
	return &ResolveRedemptionHandler{committer: committer, uow: uow}
}

// Handle executes the resolve redemption command. A redemption already in a
// terminal state fails with conflict semantics from the status CAS.
func (h *ResolveRedemptionHandler) Handle(ctx context.Context, cmd ResolveRedemptionCommand) (*ResolveRedemptionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("resolve_redemption: validation failed: %w", err)
	}

	rd, err := h.uow.Repos().Rewards.GetRedemption(ctx, cmd.RedemptionID)
	if err != nil {
		return nil, err
	}

	if cmd.Fulfill {
		if err := rd.Fulfill(); err != nil {
			return nil, err
		}
		if err := h.uow.Repos().Rewards.UpdateRedemptionStatus(ctx, rd); err != nil {
			return nil, err
		}
		return &ResolveRedemptionResult{Redemption: rd}, nil
	}

	if err := rd.Cancel(); err != nil {
		return nil, err
	}

	refund, err := ledger.NewTransaction(ledger.NewTransactionParams{
		ID:        uuid.NewString(),
		StudentID: rd.StudentID,
		TenantID:  rd.TenantID,
		Kind:      ledger.KindBonus,
		Coins:     rd.CoinCost,
		Reason:    "Redemption cancelled, coins refunded",
		Category:  ledger.CategoryRedemption,
		AwardedBy: cmd.Actor.ID,
		Reference: rd.ID,
	})
	if err != nil {
		return nil, err
	}

	// The status CAS rides in the refund commit: a concurrent resolver makes
	// the hook fail and the refund rolls back with it.
	if _, err := h.committer.Commit(ctx, refund, func(ctx context.Context, repos Repos) error {
		return repos.Rewards.UpdateRedemptionStatus(ctx, rd)
	}); err != nil {
		return nil, err
	}

	return &ResolveRedemptionResult{Redemption: rd, Refund: refund}, nil
}
