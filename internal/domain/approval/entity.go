// Package approval contains the moderation queue for large point awards.
// Awards whose magnitude crosses the configured threshold do not touch the
// ledger directly; they become pending approvals that an elevated actor
// decides exactly once. Only an approval creates the actual transaction.
package approval

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Decision is the state of a pending approval.
type Decision string

const (
	// DecisionPending - waiting for an elevated actor.
	DecisionPending Decision = "pending"
	// DecisionApproved - award accepted; a ledger transaction was created.
	DecisionApproved Decision = "approved"
	// DecisionRejected - award declined; nothing reaches the ledger.
	DecisionRejected Decision = "rejected"
)

// IsValid checks that the decision is one of the known values.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionPending, DecisionApproved, DecisionRejected:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the approval can no longer change.
func (d Decision) IsTerminal() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Priority orders the review queue. Derived from the award magnitude so the
// largest awards surface first; ties break by age (oldest first) at query time.
type Priority int

// PriorityFor computes the queue priority of an award.
func PriorityFor(points shared.Points) Priority {
	return Priority(points.Abs())
}

// ══════════════════════════════════════════════════════════════════════════════
// PENDING APPROVAL
// ══════════════════════════════════════════════════════════════════════════════

// PendingApproval is a point award intercepted by the moderation threshold.
// It carries everything needed to materialize the transaction on approval.
type PendingApproval struct {
	// ID - unique identifier of the queue entry.
	ID string

	// StudentID - student the award targets.
	StudentID shared.StudentID

	// TenantID - tenant scope of the award.
	TenantID shared.TenantID

	// Points - the intercepted point delta (sign preserved).
	Points shared.Points

	// Coins - the intercepted coin delta.
	Coins shared.Coins

	// Reason - human-readable justification from the requester.
	Reason string

	// Category - ledger category the transaction will carry.
	Category string

	// RequestedBy - actor who attempted the award.
	RequestedBy shared.Actor

	// Priority - |Points|, largest first in the queue.
	Priority Priority

	// Decision - current state; terminal once decided.
	Decision Decision

	// DecidedBy - elevated actor who decided, set on decision.
	DecidedBy *shared.Actor

	// DecisionNote - approver comment; required for rejections.
	DecisionNote string

	// TransactionID - ledger transaction created on approval.
	TransactionID string

	// CreatedAt - time the award was intercepted.
	CreatedAt time.Time

	// DecidedAt - time of the decision.
	DecidedAt *time.Time
}

// NewPendingApprovalParams carries the inputs for queueing an award.
type NewPendingApprovalParams struct {
	StudentID   shared.StudentID
	TenantID    shared.TenantID
	Points      shared.Points
	Coins       shared.Coins
	Reason      string
	Category    string
	RequestedBy shared.Actor
}

// NewPendingApproval queues an intercepted award with validation.
func NewPendingApproval(p NewPendingApprovalParams) (*PendingApproval, error) {
	if !p.StudentID.IsValid() {
		return nil, shared.ErrStudentUnresolved
	}
	if !p.TenantID.IsValid() {
		return nil, shared.ErrTenantUnresolved
	}
	if p.Points == 0 && p.Coins == 0 {
		return nil, shared.ErrZeroDeltas
	}
	if strings.TrimSpace(p.Reason) == "" {
		return nil, shared.ErrEmptyReason
	}
	if !p.RequestedBy.IsValid() {
		return nil, shared.NewDomainError("approval", "Queue", shared.ErrInvalidInput, "requesting actor is invalid")
	}

	return &PendingApproval{
		ID:          uuid.NewString(),
		StudentID:   p.StudentID,
		TenantID:    p.TenantID,
		Points:      p.Points,
		Coins:       p.Coins,
		Reason:      strings.TrimSpace(p.Reason),
		Category:    p.Category,
		RequestedBy: p.RequestedBy,
		Priority:    PriorityFor(p.Points),
		Decision:    DecisionPending,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Approve marks the approval accepted. Fails if already decided or the
// actor lacks elevation. The caller links the created transaction via
// transactionID after committing it in the same unit of work.
func (a *PendingApproval) Approve(decidedBy shared.Actor, note, transactionID string) error {
	if a.Decision.IsTerminal() {
		return shared.ErrApprovalAlreadyDecided
	}
	if !decidedBy.IsElevated() {
		return shared.ErrElevatedActorRequired
	}

	now := time.Now().UTC()
	a.Decision = DecisionApproved
	a.DecidedBy = &decidedBy
	a.DecisionNote = strings.TrimSpace(note)
	a.TransactionID = transactionID
	a.DecidedAt = &now
	return nil
}

// Reject marks the approval declined. A non-empty reason is mandatory so the
// requester learns why; fails if already decided or the actor lacks elevation.
func (a *PendingApproval) Reject(decidedBy shared.Actor, reason string) error {
	if a.Decision.IsTerminal() {
		return shared.ErrApprovalAlreadyDecided
	}
	if !decidedBy.IsElevated() {
		return shared.ErrElevatedActorRequired
	}
	if strings.TrimSpace(reason) == "" {
		return shared.ErrRejectReasonRequired
	}

	now := time.Now().UTC()
	a.Decision = DecisionRejected
	a.DecidedBy = &decidedBy
	a.DecisionNote = strings.TrimSpace(reason)
	a.DecidedAt = &now
	return nil
}

// IsPending returns true while the approval awaits a decision.
func (a *PendingApproval) IsPending() bool {
	return a.Decision == DecisionPending
}

// Age returns how long the approval has been waiting.
func (a *PendingApproval) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}
