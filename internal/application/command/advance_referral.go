package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFERRAL FUNNEL COMMANDS
// Contact and Decline are plain state transitions. Enroll is the paying step:
// the reward is computed from the pinned campaign, the bonus transaction and
// the status transition commit atomically, and the transition CAS guarantees
// a record enrolls at most once.
// ══════════════════════════════════════════════════════════════════════════════

// ──────────────────────────────────────────────────────────────────────────────
// CONTACT
// ──────────────────────────────────────────────────────────────────────────────

// ContactReferralCommand marks a pending referral as contacted.
type ContactReferralCommand struct {
	// ReferralID is the record to advance.
	ReferralID string

	// Actor is the staff member who reached out.
	Actor shared.Actor
}

// Validate validates the command.
func (c ContactReferralCommand) Validate() error {
	if c.ReferralID == "" {
		return shared.NewDomainError("command", "ContactReferral", shared.ErrEmptyValue, "referral id is required")
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "ContactReferral", shared.ErrInvalidInput, "acting identity is invalid")
	}
	return nil
}

// ContactReferralHandler handles the ContactReferralCommand.
type ContactReferralHandler struct {
	uow       UnitOfWork
	publisher shared.EventPublisher
}

// NewContactReferralHandler creates a new ContactReferralHandler.
func NewContactReferralHandler(uow UnitOfWork, publisher shared.EventPublisher) *ContactReferralHandler {
	return &ContactReferralHandler{uow: uow, publisher: publisher}
}

// Handle executes the contact referral command.
func (h *ContactReferralHandler) Handle(ctx context.Context, cmd ContactReferralCommand) (*referral.ReferralRecord, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("contact_referral: validation failed: %w", err)
	}

	repos := h.uow.Repos()

	record, err := repos.Referrals.GetByID(ctx, cmd.ReferralID)
	if err != nil {
		return nil, err
	}

	from := record.Status
	if err := record.Contact(); err != nil {
		return nil, err
	}
	if err := repos.Referrals.Transition(ctx, record, from); err != nil {
		return nil, err
	}

	publishFunnelEvent(h.publisher, shared.EventReferralContacted, record, from, cmd.Actor)
	return record, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// DECLINE
// ──────────────────────────────────────────────────────────────────────────────

// DeclineReferralCommand closes a referral whose prospect said no.
type DeclineReferralCommand struct {
	// ReferralID is the record to close.
	ReferralID string

	// Reason is the decline reason, stored on the record.
	Reason string

	// Actor is the staff member recording the outcome.
	Actor shared.Actor
}

// Validate validates the command.
func (c DeclineReferralCommand) Validate() error {
	if c.ReferralID == "" {
		return shared.NewDomainError("command", "DeclineReferral", shared.ErrEmptyValue, "referral id is required")
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "DeclineReferral", shared.ErrInvalidInput, "acting identity is invalid")
	}
	return nil
}

// DeclineReferralHandler handles the DeclineReferralCommand.
type DeclineReferralHandler struct {
	uow       UnitOfWork
	publisher shared.EventPublisher
}

// NewDeclineReferralHandler creates a new DeclineReferralHandler.
func NewDeclineReferralHandler(uow UnitOfWork, publisher shared.EventPublisher) *DeclineReferralHandler {
	return &DeclineReferralHandler{uow: uow, publisher: publisher}
}

// Handle executes the decline referral command.
func (h *DeclineReferralHandler) Handle(ctx context.Context, cmd DeclineReferralCommand) (*referral.ReferralRecord, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("decline_referral: validation failed: %w", err)
	}

	repos := h.uow.Repos()

	record, err := repos.Referrals.GetByID(ctx, cmd.ReferralID)
	if err != nil {
		return nil, err
	}

	from := record.Status
	if err := record.Decline(cmd.Reason); err != nil {
		return nil, err
	}
	if err := repos.Referrals.Transition(ctx, record, from); err != nil {
		return nil, err
	}

	publishFunnelEvent(h.publisher, shared.EventReferralDeclined, record, from, cmd.Actor)
	return record, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ENROLL
// ──────────────────────────────────────────────────────────────────────────────

// EnrollReferralCommand pays out a contacted referral whose prospect enrolled.
type EnrollReferralCommand struct {
	// ReferralID is the record to enroll.
	ReferralID string

	// Actor is the staff member confirming the enrollment.
	Actor shared.Actor
}

// Validate validates the command.
func (c EnrollReferralCommand) Validate() error {
	if c.ReferralID == "" {
		return shared.NewDomainError("command", "EnrollReferral", shared.ErrEmptyValue, "referral id is required")
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "EnrollReferral", shared.ErrInvalidInput, "acting identity is invalid")
	}
	return nil
}

// EnrollReferralResult contains the enrollment outcome.
type EnrollReferralResult struct {
	// Record is the enrolled referral with its reward breakdown.
	Record *referral.ReferralRecord

	// Commit is the bonus commit, nil when the computed reward was zero.
	Commit *CommitResult
}

// EnrollReferralHandlerConfig contains configuration for the handler.
type EnrollReferralHandlerConfig struct {
	// BasePoints is the payout per enrollment when no campaign covers it.
	BasePoints shared.Points
}

// DefaultEnrollReferralHandlerConfig returns the default configuration.
func DefaultEnrollReferralHandlerConfig() EnrollReferralHandlerConfig {
	return EnrollReferralHandlerConfig{BasePoints: 25}
}

// EnrollReferralHandler handles the EnrollReferralCommand.
type EnrollReferralHandler struct {
	committer Committer
	uow       UnitOfWork
	publisher shared.EventPublisher
	config    EnrollReferralHandlerConfig
}

// NewEnrollReferralHandler creates a new EnrollReferralHandler.
func NewEnrollReferralHandler(committer Committer, uow UnitOfWork, publisher shared.EventPublisher, config EnrollReferralHandlerConfig) *EnrollReferralHandler {
	if config.BasePoints <= 0 {
		config = DefaultEnrollReferralHandlerConfig()
	}
	return &EnrollReferralHandler{
		committer: committer,
		uow:       uow,
		publisher: publisher,
		config:    config,
	}
}

// Handle executes the enroll referral command.
func (h *EnrollReferralHandler) Handle(ctx context.Context, cmd EnrollReferralCommand) (*EnrollReferralResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll_referral: validation failed: %w", err)
	}

	var (
		record    *referral.ReferralRecord
		from      referral.Status
		breakdown referral.RewardBreakdown
	)

	// Everything the payout depends on is read inside the committing
	// transaction and rebuilt on every retry attempt: a concurrent
	// enrollment for the same referrer loses the aggregate CAS, and this
	// attempt re-reads the enrolled count it pays tiers against.
	build := func(ctx context.Context, repos Repos) (*ledger.Transaction, error) {
		var err error
		record, err = repos.Referrals.GetByID(ctx, cmd.ReferralID)
		if err != nil {
			return nil, err
		}
		from = record.Status

		// The campaign pinned at submission is the only one consulted;
		// it pays only while its window still covers the enrollment
		// instant.
		var campaign *referral.Campaign
		if record.CampaignID != "" {
			campaign, err = repos.Referrals.GetCampaign(ctx, record.CampaignID)
			if err != nil && !shared.IsNotFound(err) {
				return nil, err
			}
		}

		enrolled, err := repos.Referrals.CountEnrolled(ctx, record.ReferrerID, record.TenantID)
		if err != nil {
			return nil, err
		}

		// Tier selection counts the enrollment being paid.
		breakdown = referral.ComputeReward(h.config.BasePoints, campaign, enrolled+1, time.Now().UTC())

		if breakdown.Total <= 0 {
			if err := record.Enroll(breakdown, ""); err != nil {
				return nil, err
			}
			return nil, nil
		}

		txID := uuid.NewString()
		if err := record.Enroll(breakdown, txID); err != nil {
			return nil, err
		}

		return ledger.NewTransaction(ledger.NewTransactionParams{
			ID:        txID,
			StudentID: record.ReferrerID,
			TenantID:  record.TenantID,
			Kind:      ledger.KindBonus,
			Points:    breakdown.Total,
			Reason:    fmt.Sprintf("Referral enrolled: %s", record.Prospect.Name),
			Category:  ledger.CategoryReferral,
			AwardedBy: cmd.Actor.ID,
			Reference: record.ID,
		})
	}

	// The funnel transition rides the bonus commit: a concurrent
	// enrollment loses the CAS and rolls the bonus back with it.
	commit, err := h.committer.CommitDerived(ctx, build, func(ctx context.Context, txRepos Repos) error {
		return txRepos.Referrals.Transition(ctx, record, from)
	})
	if err != nil {
		return nil, err
	}

	result := &EnrollReferralResult{Record: record}
	if commit.Transaction != nil {
		result.Commit = commit
	}

	if h.publisher != nil {
		_ = h.publisher.Publish(shared.NewReferralEnrolledEvent(
			record.ID,
			record.ReferrerID.String(),
			record.TenantID.String(),
			record.CampaignID,
			breakdown.Total.Int(),
			0,
			breakdown.TierBonus.Int(),
			breakdown.EnrolledCount,
		))
	}

	return result, nil
}

// publishFunnelEvent emits a status change, nil-safe on the publisher.
func publishFunnelEvent(publisher shared.EventPublisher, eventType shared.EventType, record *referral.ReferralRecord, from referral.Status, actor shared.Actor) {
	if publisher == nil {
		return
	}
	_ = publisher.Publish(shared.NewReferralStatusChangedEvent(
		eventType,
		record.ID,
		record.ReferrerID.String(),
		string(from),
		string(record.Status),
		actor.ID,
	))
}
