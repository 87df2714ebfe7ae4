package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/reward"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDEEM REWARD COMMAND
// Spends coins against the catalog. The balance check happens inside the
// committing transaction - never as a pre-check - so two simultaneous
// redemptions that together exceed the balance cannot both succeed. Stock
// decrements ride the same transaction with their own guarded update.
// ══════════════════════════════════════════════════════════════════════════════

// RedeemRewardCommand contains one redemption request.
type RedeemRewardCommand struct {
	// StudentID is the redeeming student.
	StudentID string

	// TenantID is the owning organization.
	TenantID string

	// RewardID is the catalog entry being redeemed.
	RewardID string

	// Actor is the caller recording the redemption (staff or the student's
	// own session surfaced through the interface layer).
	Actor shared.Actor
}

// Validate validates the command.
func (c RedeemRewardCommand) Validate() error {
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewTenantID(c.TenantID); err != nil {
		return err
	}
	if c.RewardID == "" {
		return shared.ErrRewardNotFound
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "RedeemReward", shared.ErrInvalidInput, "acting identity is invalid")
	}
	return nil
}

// RedeemRewardResult contains the redemption outcome.
type RedeemRewardResult struct {
	// Redemption is the created fulfillment record.
	Redemption *reward.Redemption

	// Reward is the catalog entry at redemption time.
	Reward *reward.Reward

	// Commit is the pipeline outcome of the coin spend.
	Commit *CommitResult
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RedeemRewardHandler handles the RedeemRewardCommand.
type RedeemRewardHandler struct {
	committer Committer
	uow       UnitOfWork
	directory DirectoryClient
	publisher shared.EventPublisher
}

// NewRedeemRewardHandler creates a new RedeemRewardHandler.
func NewRedeemRewardHandler(committer Committer, uow UnitOfWork, directory DirectoryClient, publisher shared.EventPublisher) *RedeemRewardHandler {
	return &RedeemRewardHandler{
		committer: committer,
		uow:       uow,
		directory: directory,
		publisher: publisher,
	}
}

// Handle executes the redeem reward command.
func (h *RedeemRewardHandler) Handle(ctx context.Context, cmd RedeemRewardCommand) (*RedeemRewardResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("redeem_reward: validation failed: %w", err)
	}

	studentID, _ := shared.NewStudentID(cmd.StudentID)
	tenantID, _ := shared.NewTenantID(cmd.TenantID)

	if h.directory != nil {
		if err := h.directory.VerifyStudent(ctx, cmd.StudentID, cmd.TenantID); err != nil {
			return nil, fmt.Errorf("redeem_reward: student reference: %w", err)
		}
	}

	rw, err := h.uow.Repos().Rewards.GetReward(ctx, cmd.RewardID)
	if err != nil {
		return nil, err
	}
	if rw.TenantID != tenantID {
		return nil, shared.ErrRewardNotFound
	}
	if !rw.IsRedeemable() {
		return nil, shared.ErrRewardInactive
	}

	txID := uuid.NewString()
	redemption, err := reward.NewRedemption(studentID, tenantID, rw.ID, rw.CoinCost, txID)
	if err != nil {
		return nil, err
	}

	tx, err := ledger.NewTransaction(ledger.NewTransactionParams{
		ID:        txID,
		StudentID: studentID,
		TenantID:  tenantID,
		Kind:      ledger.KindRedemption,
		Coins:     -rw.CoinCost,
		Reason:    fmt.Sprintf("Redeemed reward: %s", rw.Name),
		Category:  ledger.CategoryRedemption,
		AwardedBy: cmd.Actor.ID,
		Reference: redemption.ID,
	})
	if err != nil {
		return nil, err
	}

	res, err := h.committer.Commit(ctx, tx,
		func(ctx context.Context, repos Repos) error {
			return repos.Rewards.DecrementStock(ctx, rw.ID)
		},
		func(ctx context.Context, repos Repos) error {
			return repos.Rewards.CreateRedemption(ctx, redemption)
		},
	)
	if err != nil {
		if errors.Is(err, ranking.ErrNegativeCoins) {
			return nil, shared.ErrNotEnoughCoins
		}
		return nil, err
	}

	if h.publisher != nil {
		_ = h.publisher.Publish(shared.NewRewardRedeemedEvent(
			redemption.ID,
			studentID.String(),
			rw.ID,
			rw.CoinCost.Int(),
			tx.ID,
		))
	}

	return &RedeemRewardResult{Redemption: redemption, Reward: rw, Commit: res}, nil
}
