// Package referral contains the referral-to-enrollment funnel.
package referral

import (
	"context"
	"time"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFERRAL REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the contract for referral records and campaigns.
// The implementation lives in the infrastructure layer (PostgreSQL).
//
// Terminal transitions persist via compare-and-swap on the previous status,
// so a record reaches enrolled/declined/expired exactly once even under
// concurrent actors and the sweep job.
type Repository interface {
	// ──────────────────────────────────────────────────────────────────────────
	// RECORDS
	// ──────────────────────────────────────────────────────────────────────────

	// Create inserts a freshly submitted record.
	Create(ctx context.Context, r *ReferralRecord) error

	// GetByID returns one record by id.
	// Returns shared.ErrReferralNotFound if absent.
	GetByID(ctx context.Context, id string) (*ReferralRecord, error)

	// Transition persists a status change guarded by WHERE status=<previous>.
	// Returns shared.ErrReferralTerminal when the guard fails because the
	// record already reached a terminal state.
	Transition(ctx context.Context, r *ReferralRecord, from Status) error

	// ListByReferrer returns a referrer's records, newest first.
	ListByReferrer(ctx context.Context, referrerID shared.StudentID, tenantID shared.TenantID, page shared.Page) ([]*ReferralRecord, error)

	// CountEnrolled returns how many of a referrer's records reached
	// enrolled. Used for tier selection and achievement predicates.
	CountEnrolled(ctx context.Context, referrerID shared.StudentID, tenantID shared.TenantID) (int, error)

	// ListOpenOlderThan returns pending/contacted records submitted before
	// the cutoff, for the expiry sweep.
	ListOpenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*ReferralRecord, error)

	// FunnelStats returns per-status counts for a tenant.
	FunnelStats(ctx context.Context, tenantID shared.TenantID) (map[Status]int, error)

	// ──────────────────────────────────────────────────────────────────────────
	// CAMPAIGNS
	// ──────────────────────────────────────────────────────────────────────────

	// CreateCampaign inserts a campaign.
	CreateCampaign(ctx context.Context, c *Campaign) error

	// GetCampaign returns one campaign by id.
	// Returns shared.ErrCampaignNotFound if absent.
	GetCampaign(ctx context.Context, id string) (*Campaign, error)

	// GetActiveCampaign returns the campaign whose window covers the
	// instant, or shared.ErrCampaignNotFound when none does.
	GetActiveCampaign(ctx context.Context, tenantID shared.TenantID, at time.Time) (*Campaign, error)
}
