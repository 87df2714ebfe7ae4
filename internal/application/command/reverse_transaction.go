package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVERSE TRANSACTION COMMAND
// Undoes a transaction's net effect by appending a compensating entry with
// flipped signs. The original stays in history untouched - reversal and
// soft deletion are deliberately separate operations.
// ══════════════════════════════════════════════════════════════════════════════

// ReverseTransactionCommand contains one reversal request.
type ReverseTransactionCommand struct {
	// TransactionID is the entry being reversed.
	TransactionID string

	// Reason explains the reversal; mandatory like any ledger entry.
	Reason string

	// Actor is the staff member reversing; must be elevated.
	Actor shared.Actor
}

// Validate validates the command.
func (c ReverseTransactionCommand) Validate() error {
	if c.TransactionID == "" {
		return shared.NewDomainError("command", "ReverseTransaction", shared.ErrEmptyValue, "transaction id is required")
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "ReverseTransaction", shared.ErrInvalidInput, "acting identity is invalid")
	}
	if !c.Actor.IsElevated() {
		return shared.NewDomainError("command", "ReverseTransaction", shared.ErrForbidden, "reversal requires an elevated actor")
	}
	return nil
}

// ReverseTransactionResult contains the reversal outcome.
type ReverseTransactionResult struct {
	// Original is the reversed entry.
	Original *ledger.Transaction

	// Commit is the pipeline outcome of the compensating entry.
	Commit *CommitResult
}

// ReverseTransactionHandler handles the ReverseTransactionCommand.
type ReverseTransactionHandler struct {
	committer Committer
	uow       UnitOfWork
	publisher shared.EventPublisher
}

// NewReverseTransactionHandler creates a new ReverseTransactionHandler.
func NewReverseTransactionHandler(committer Committer, uow UnitOfWork, publisher shared.EventPublisher) *ReverseTransactionHandler {
	return &ReverseTransactionHandler{committer: committer, uow: uow, publisher: publisher}
}

// Handle executes the reverse transaction command. Reversing a soft-deleted
// entry is refused: its deltas are already out of the replay, and a
// compensation on top would double the correction.
func (h *ReverseTransactionHandler) Handle(ctx context.Context, cmd ReverseTransactionCommand) (*ReverseTransactionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("reverse_transaction: validation failed: %w", err)
	}

	original, err := h.uow.Repos().Ledger.GetByID(ctx, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	if original.IsDeleted() {
		return nil, shared.ErrAlreadyDeleted
	}

	compensation, err := original.Compensation(uuid.NewString(), cmd.Actor.ID, cmd.Reason)
	if err != nil {
		return nil, err
	}

	res, err := h.committer.Commit(ctx, compensation)
	if err != nil {
		return nil, err
	}

	return &ReverseTransactionResult{Original: original, Commit: res}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE TRANSACTION COMMAND
// Marks a transaction deleted so replays exclude it; the row and its numeric
// deltas stay in history for audit. The aggregate loses the deltas in the
// same unit of work.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteTransactionCommand contains one soft-delete request.
type DeleteTransactionCommand struct {
	// TransactionID is the entry being marked.
	TransactionID string

	// Actor is the staff member deleting; must be elevated.
	Actor shared.Actor
}

// Validate validates the command.
func (c DeleteTransactionCommand) Validate() error {
	if c.TransactionID == "" {
		return shared.NewDomainError("command", "DeleteTransaction", shared.ErrEmptyValue, "transaction id is required")
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "DeleteTransaction", shared.ErrInvalidInput, "acting identity is invalid")
	}
	if !c.Actor.IsElevated() {
		return shared.NewDomainError("command", "DeleteTransaction", shared.ErrForbidden, "deletion requires an elevated actor")
	}
	return nil
}

// DeleteTransactionHandler handles the DeleteTransactionCommand.
type DeleteTransactionHandler struct {
	committer Committer
}

// NewDeleteTransactionHandler creates a new DeleteTransactionHandler.
func NewDeleteTransactionHandler(committer Committer) *DeleteTransactionHandler {
	return &DeleteTransactionHandler{committer: committer}
}

// Handle executes the delete transaction command.
func (h *DeleteTransactionHandler) Handle(ctx context.Context, cmd DeleteTransactionCommand) (*ledger.Transaction, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("delete_transaction: validation failed: %w", err)
	}
	return h.committer.Delete(ctx, cmd.TransactionID, cmd.Actor.ID)
}
