package command

import (
	"context"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT REFERRAL COMMAND
// A student refers a prospect into the funnel. The campaign active at
// submission time is pinned to the record, so the payout rules a referrer was
// promised survive the campaign window closing before enrollment.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitReferralCommand contains one referral submission.
type SubmitReferralCommand struct {
	// ReferrerID is the referring student.
	ReferrerID string

	// TenantID is the owning organization.
	TenantID string

	// ProspectName, ProspectPhone, ProspectEmail - contact details of the
	// referred person. At least one channel is required.
	ProspectName  string
	ProspectPhone string
	ProspectEmail string

	// Actor is the caller recording the submission.
	Actor shared.Actor
}

// Validate validates the command.
func (c SubmitReferralCommand) Validate() error {
	if _, err := shared.NewStudentID(c.ReferrerID); err != nil {
		return err
	}
	if _, err := shared.NewTenantID(c.TenantID); err != nil {
		return err
	}
	if !c.Actor.IsValid() {
		return shared.NewDomainError("command", "SubmitReferral", shared.ErrInvalidInput, "acting identity is invalid")
	}
	return nil
}

// SubmitReferralHandler handles the SubmitReferralCommand.
type SubmitReferralHandler struct {
	uow       UnitOfWork
	directory DirectoryClient
	publisher shared.EventPublisher
}

// NewSubmitReferralHandler creates a new SubmitReferralHandler.
func NewSubmitReferralHandler(uow UnitOfWork, directory DirectoryClient, publisher shared.EventPublisher) *SubmitReferralHandler {
	return &SubmitReferralHandler{
		uow:       uow,
		directory: directory,
		publisher: publisher,
	}
}

// Handle executes the submit referral command.
func (h *SubmitReferralHandler) Handle(ctx context.Context, cmd SubmitReferralCommand) (*referral.ReferralRecord, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_referral: validation failed: %w", err)
	}

	referrerID, _ := shared.NewStudentID(cmd.ReferrerID)
	tenantID, _ := shared.NewTenantID(cmd.TenantID)

	if h.directory != nil {
		if err := h.directory.VerifyStudent(ctx, cmd.ReferrerID, cmd.TenantID); err != nil {
			return nil, fmt.Errorf("submit_referral: referrer reference: %w", err)
		}
	}

	repos := h.uow.Repos()

	// Pin the currently active campaign, if any. No campaign is fine - the
	// enrollment then pays the plain base reward.
	campaignID := ""
	campaign, err := repos.Referrals.GetActiveCampaign(ctx, tenantID, time.Now())
	if err == nil {
		campaignID = campaign.ID
	} else if !shared.IsNotFound(err) {
		return nil, err
	}

	record, err := referral.NewReferralRecord(referrerID, tenantID, referral.Prospect{
		Name:  cmd.ProspectName,
		Phone: cmd.ProspectPhone,
		Email: cmd.ProspectEmail,
	}, campaignID)
	if err != nil {
		return nil, err
	}

	if err := repos.Referrals.Create(ctx, record); err != nil {
		return nil, err
	}

	if h.publisher != nil {
		_ = h.publisher.Publish(shared.NewReferralStatusChangedEvent(
			shared.EventReferralSubmitted,
			record.ID,
			referrerID.String(),
			"",
			string(referral.StatusPending),
			cmd.Actor.ID,
		))
	}

	return record, nil
}
