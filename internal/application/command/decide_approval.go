package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/approval"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DECIDE APPROVAL COMMAND
// Resolves one pending approval exactly once. Approving materializes the
// intercepted award as a ledger transaction in the same unit of work as the
// decision CAS; rejecting records the reason and nothing reaches the ledger.
// ══════════════════════════════════════════════════════════════════════════════

// DecideApprovalCommand contains one approval decision.
type DecideApprovalCommand struct {
	// ApprovalID is the queue entry being decided.
	ApprovalID string

	// Approve is true to accept, false to reject.
	Approve bool

	// Note is the approver comment; mandatory for rejections.
	Note string

	// Actor is the deciding staff member; must be elevated.
	Actor shared.Actor
}

// Validate validates the command.
func (c DecideApprovalCommand) Validate() error {
	if c.ApprovalID == "" {
		return shared.NewDomainError("command", "DecideApproval", shared.ErrEmptyValue, "approval id is required")
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "DecideApproval", shared.ErrInvalidInput, "deciding actor is invalid")
	}
	if !c.Actor.IsElevated() {
		return shared.ErrElevatedActorRequired
	}
	return nil
}

// DecideApprovalResult contains the decision outcome.
type DecideApprovalResult struct {
	// Approval is the decided entry.
	Approval *approval.PendingApproval

	// Commit is the pipeline outcome of an approved award, nil on rejection.
	Commit *CommitResult
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// DecideApprovalHandler handles the DecideApprovalCommand.
type DecideApprovalHandler struct {
	committer Committer
	uow       UnitOfWork
	publisher shared.EventPublisher
}

// NewDecideApprovalHandler creates a new DecideApprovalHandler.
func NewDecideApprovalHandler(committer Committer, uow UnitOfWork, publisher shared.EventPublisher) *DecideApprovalHandler {
	return &DecideApprovalHandler{
		committer: committer,
		uow:       uow,
		publisher: publisher,
	}
}

// Handle executes the decide approval command. A second decision on the same
// entry fails with conflict semantics from the decision CAS, regardless of
// which process won the first one.
func (h *DecideApprovalHandler) Handle(ctx context.Context, cmd DecideApprovalCommand) (*DecideApprovalResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("decide_approval: validation failed: %w", err)
	}

	pending, err := h.uow.Repos().Approvals.GetByID(ctx, cmd.ApprovalID)
	if err != nil {
		return nil, err
	}

	if cmd.Approve {
		return h.approve(ctx, cmd, pending)
	}
	return h.reject(ctx, cmd, pending)
}

func (h *DecideApprovalHandler) approve(ctx context.Context, cmd DecideApprovalCommand, pending *approval.PendingApproval) (*DecideApprovalResult, error) {
	tx, err := ledger.NewTransaction(ledger.NewTransactionParams{
		ID:        uuid.NewString(),
		StudentID: pending.StudentID,
		TenantID:  pending.TenantID,
		Kind:      kindForDeltas(pending.Points, pending.Coins),
		Points:    pending.Points,
		Coins:     pending.Coins,
		Reason:    pending.Reason,
		Category:  ledger.Category(pending.Category),
		AwardedBy: pending.RequestedBy.ID,
		Reference: pending.ID,
	})
	if err != nil {
		return nil, err
	}

	if err := pending.Approve(cmd.Actor, cmd.Note, tx.ID); err != nil {
		return nil, err
	}

	// The decision CAS rides in the commit transaction: if another decider
	// already won, the hook fails and the ledger append rolls back with it.
	res, err := h.committer.Commit(ctx, tx, func(ctx context.Context, repos Repos) error {
		return repos.Approvals.Decide(ctx, pending)
	})
	if err != nil {
		return nil, err
	}

	h.publishDecision(pending, tx.ID)
	return &DecideApprovalResult{Approval: pending, Commit: res}, nil
}

func (h *DecideApprovalHandler) reject(ctx context.Context, cmd DecideApprovalCommand, pending *approval.PendingApproval) (*DecideApprovalResult, error) {
	if err := pending.Reject(cmd.Actor, cmd.Note); err != nil {
		return nil, err
	}

	if err := h.uow.Repos().Approvals.Decide(ctx, pending); err != nil {
		return nil, err
	}

	h.publishDecision(pending, "")
	return &DecideApprovalResult{Approval: pending}, nil
}

func (h *DecideApprovalHandler) publishDecision(pending *approval.PendingApproval, txID string) {
	if h.publisher == nil {
		return
	}

	event := shared.NewApprovalDecidedEvent(
		pending.ID,
		pending.StudentID.String(),
		string(pending.Decision),
		pending.DecidedBy.ID,
		pending.DecisionNote,
	)
	if txID != "" {
		event = event.WithTransaction(txID)
	}
	_ = h.publisher.Publish(event)
}
