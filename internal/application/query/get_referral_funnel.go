package query

import (
	"context"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET REFERRAL FUNNEL QUERY
// Tenant-wide funnel counts plus, optionally, one referrer's own records.
// ══════════════════════════════════════════════════════════════════════════════

// GetReferralFunnelQuery contains the funnel request parameters.
type GetReferralFunnelQuery struct {
	// TenantID scopes the funnel.
	TenantID string

	// ReferrerID, when set, also returns that student's records.
	ReferrerID string

	// Limit and Offset page the referrer's records (default 20, max 100).
	Limit  int
	Offset int
}

// Validate validates the query.
func (q GetReferralFunnelQuery) Validate() error {
	if _, err := shared.NewTenantID(q.TenantID); err != nil {
		return err
	}
	if q.ReferrerID != "" {
		if _, err := shared.NewStudentID(q.ReferrerID); err != nil {
			return err
		}
	}
	return nil
}

// ReferralRecordDTO is one funnel record for transport.
type ReferralRecordDTO struct {
	// ReferralID - the record.
	ReferralID string `json:"referral_id"`

	// ProspectName - who was referred.
	ProspectName string `json:"prospect_name"`

	// Status - funnel position.
	Status string `json:"status"`

	// CampaignID - campaign pinned at submission, if any.
	CampaignID string `json:"campaign_id,omitempty"`

	// RewardPoints - payout of the enrollment, 0 before enrolled.
	RewardPoints int `json:"reward_points"`

	// SubmittedAt - when the prospect entered the funnel.
	SubmittedAt time.Time `json:"submitted_at"`
}

// GetReferralFunnelResult contains the funnel view.
type GetReferralFunnelResult struct {
	// CountsByStatus - tenant-wide counts keyed by funnel status.
	CountsByStatus map[string]int `json:"counts_by_status"`

	// Records - the referrer's records, newest first; empty unless a
	// referrer was requested.
	Records []ReferralRecordDTO `json:"records,omitempty"`
}

// GetReferralFunnelHandler handles funnel requests.
type GetReferralFunnelHandler struct {
	referrals referral.Repository
}

// NewGetReferralFunnelHandler creates a new GetReferralFunnelHandler.
func NewGetReferralFunnelHandler(referrals referral.Repository) *GetReferralFunnelHandler {
	return &GetReferralFunnelHandler{referrals: referrals}
}

// Handle executes the funnel query.
func (h *GetReferralFunnelHandler) Handle(ctx context.Context, q GetReferralFunnelQuery) (*GetReferralFunnelResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_referral_funnel: validation failed: %w", err)
	}

	tenantID, _ := shared.NewTenantID(q.TenantID)

	stats, err := h.referrals.FunnelStats(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &GetReferralFunnelResult{CountsByStatus: map[string]int{}}
	for status, n := range stats {
		result.CountsByStatus[string(status)] = n
	}

	if q.ReferrerID == "" {
		return result, nil
	}

	referrerID, _ := shared.NewStudentID(q.ReferrerID)
	page := shared.Page{Limit: q.Limit, Offset: q.Offset}.Normalize(20, 100)

	records, err := h.referrals.ListByReferrer(ctx, referrerID, tenantID, page)
	if err != nil {
		return nil, err
	}

	result.Records = make([]ReferralRecordDTO, len(records))
	for i, r := range records {
		dto := ReferralRecordDTO{
			ReferralID:   r.ID,
			ProspectName: r.Prospect.Name,
			Status:       string(r.Status),
			CampaignID:   r.CampaignID,
			SubmittedAt:  r.SubmittedAt,
		}
		if r.Reward != nil {
			dto.RewardPoints = r.Reward.Total.Int()
		}
		result.Records[i] = dto
	}

	return result, nil
}
