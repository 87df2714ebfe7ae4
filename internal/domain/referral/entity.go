// Package referral contains the referral-to-enrollment funnel: a state
// machine per referred prospect, plus the campaign rules that turn a
// successful enrollment into a tiered, multiplied bonus payout.
//
// The funnel owns status transitions exclusively. Terminal states are
// enrolled, declined and expired; only enrolled pays out, exactly once.
package referral

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the funnel position of a referral record.
type Status string

const (
	// StatusPending - submitted, nobody reached out yet.
	StatusPending Status = "pending"
	// StatusContacted - a staff member talked to the prospect.
	StatusContacted Status = "contacted"
	// StatusEnrolled - the prospect enrolled; the referrer was paid.
	StatusEnrolled Status = "enrolled"
	// StatusDeclined - the prospect said no.
	StatusDeclined Status = "declined"
	// StatusExpired - swept after sitting too long without resolution.
	StatusExpired Status = "expired"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusContacted, StatusEnrolled, StatusDeclined, StatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the record can no longer transition.
func (s Status) IsTerminal() bool {
	return s == StatusEnrolled || s == StatusDeclined || s == StatusExpired
}

// ══════════════════════════════════════════════════════════════════════════════
// CAMPAIGN
// ══════════════════════════════════════════════════════════════════════════════

// Tier maps a minimum enrolled-referral count to a bonus amount.
type Tier struct {
	// MinEnrolled - the count that unlocks this tier, inclusive.
	MinEnrolled int

	// Bonus - extra points granted on top of the multiplied base.
	Bonus shared.Points
}

// Campaign defines the payout rules effective within its time window.
// Campaigns are read-only inputs to reward computation; a referral keeps
// the campaign it was submitted under even if the campaign ends before
// enrollment.
type Campaign struct {
	// ID - unique identifier of the campaign.
	ID string

	// TenantID - tenant scope.
	TenantID shared.TenantID

	// Name - display name ("Spring enrollment drive").
	Name string

	// BasePoints - the base referral reward before multiplication.
	BasePoints shared.Points

	// Multiplier - factor applied to BasePoints while the campaign covers
	// the enrollment. 1.0 means no boost.
	Multiplier float64

	// Tiers - ordered thresholds; the highest MinEnrolled met wins.
	Tiers []Tier

	// StartsAt, EndsAt - the effective window.
	StartsAt time.Time
	EndsAt   time.Time
}

// NewCampaign creates a campaign with validation. Tiers are stored sorted
// by MinEnrolled ascending.
func NewCampaign(tenantID shared.TenantID, name string, basePoints shared.Points, multiplier float64, tiers []Tier, startsAt, endsAt time.Time) (*Campaign, error) {
	if !tenantID.IsValid() {
		return nil, shared.ErrTenantUnresolved
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("referral", "Validate", shared.ErrEmptyValue, "campaign name is required")
	}
	if basePoints < 0 {
		return nil, shared.NewDomainError("referral", "Validate", shared.ErrValueOutOfRange, "base points cannot be negative")
	}
	if multiplier <= 0 {
		return nil, shared.NewDomainError("referral", "Validate", shared.ErrValueOutOfRange, "multiplier must be positive")
	}
	if !endsAt.After(startsAt) {
		return nil, shared.NewDomainError("referral", "Validate", shared.ErrInvalidInput, "campaign window must end after it starts")
	}
	for _, tier := range tiers {
		if tier.MinEnrolled <= 0 || tier.Bonus < 0 {
			return nil, shared.NewDomainError("referral", "Validate", shared.ErrValueOutOfRange, "tier thresholds must be positive and bonuses non-negative")
		}
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinEnrolled < sorted[j].MinEnrolled })

	return &Campaign{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Name:       strings.TrimSpace(name),
		BasePoints: basePoints,
		Multiplier: multiplier,
		Tiers:      sorted,
		StartsAt:   startsAt.UTC(),
		EndsAt:     endsAt.UTC(),
	}, nil
}

// Covers reports whether the campaign window contains the instant.
func (c *Campaign) Covers(at time.Time) bool {
	return !at.Before(c.StartsAt) && at.Before(c.EndsAt)
}

// TierBonus selects the bonus for an enrolled-referral count: the highest
// MinEnrolled threshold the count meets. Zero if no tier is met.
func (c *Campaign) TierBonus(enrolledCount int) shared.Points {
	var bonus shared.Points
	for _, tier := range c.Tiers {
		if enrolledCount >= tier.MinEnrolled {
			bonus = tier.Bonus
		}
	}
	return bonus
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD COMPUTATION
// ══════════════════════════════════════════════════════════════════════════════

// RewardBreakdown explains how an enrollment payout was computed,
// kept on the record for audit.
type RewardBreakdown struct {
	// BasePoints - base reward before multiplication.
	BasePoints shared.Points

	// Multiplier - campaign factor applied (1.0 without a covering campaign).
	Multiplier float64

	// TierBonus - extra points from the highest tier met.
	TierBonus shared.Points

	// EnrolledCount - the referrer's enrolled count used for tier selection,
	// inclusive of the enrollment being paid.
	EnrolledCount int

	// Total - the single bonus transaction's point delta.
	Total shared.Points
}

// ComputeReward derives the payout for one enrollment. The campaign applies
// only if it covers the enrollment instant; otherwise the plain base pays
// with no multiplier and no tier bonus. enrolledCount includes the
// enrollment being rewarded.
func ComputeReward(basePoints shared.Points, campaign *Campaign, enrolledCount int, at time.Time) RewardBreakdown {
	bd := RewardBreakdown{
		BasePoints:    basePoints,
		Multiplier:    1.0,
		EnrolledCount: enrolledCount,
	}

	if campaign != nil && campaign.Covers(at) {
		bd.BasePoints = campaign.BasePoints
		bd.Multiplier = campaign.Multiplier
		bd.TierBonus = campaign.TierBonus(enrolledCount)
	}

	bd.Total = shared.Points(float64(bd.BasePoints)*bd.Multiplier) + bd.TierBonus
	return bd
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERRAL RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Prospect holds the contact details of the person being referred.
type Prospect struct {
	// Name - how to address the prospect.
	Name string

	// Phone, Email - at least one contact channel is required.
	Phone string
	Email string
}

// IsComplete checks the prospect is reachable.
func (p Prospect) IsComplete() bool {
	return strings.TrimSpace(p.Name) != "" &&
		(strings.TrimSpace(p.Phone) != "" || strings.TrimSpace(p.Email) != "")
}

// ReferralRecord tracks one prospect through the funnel.
type ReferralRecord struct {
	// ID - unique identifier of the record.
	ID string

	// ReferrerID - student who made the referral.
	ReferrerID shared.StudentID

	// TenantID - tenant scope.
	TenantID shared.TenantID

	// Prospect - who was referred.
	Prospect Prospect

	// CampaignID - campaign in effect at submission, empty if none.
	CampaignID string

	// Status - funnel position.
	Status Status

	// Reward - payout breakdown, set on enrollment.
	Reward *RewardBreakdown

	// TransactionID - the bonus transaction, set on enrollment.
	TransactionID string

	// DeclineReason - why the prospect said no, set on decline.
	DeclineReason string

	// SubmittedAt, ContactedAt, ResolvedAt - transition timestamps.
	SubmittedAt time.Time
	ContactedAt *time.Time
	ResolvedAt  *time.Time
}

// NewReferralRecord submits a prospect into the funnel.
func NewReferralRecord(referrerID shared.StudentID, tenantID shared.TenantID, prospect Prospect, campaignID string) (*ReferralRecord, error) {
	if !referrerID.IsValid() {
		return nil, shared.ErrStudentUnresolved
	}
	if !tenantID.IsValid() {
		return nil, shared.ErrTenantUnresolved
	}
	if !prospect.IsComplete() {
		return nil, shared.ErrProspectIncomplete
	}

	return &ReferralRecord{
		ID:          uuid.NewString(),
		ReferrerID:  referrerID,
		TenantID:    tenantID,
		Prospect:    prospect,
		CampaignID:  campaignID,
		Status:      StatusPending,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// Contact moves pending -> contacted.
func (r *ReferralRecord) Contact() error {
	if r.Status.IsTerminal() {
		return shared.ErrReferralTerminal
	}
	if r.Status != StatusPending {
		return shared.ErrInvalidTransition
	}

	now := time.Now().UTC()
	r.Status = StatusContacted
	r.ContactedAt = &now
	return nil
}

// Enroll moves contacted -> enrolled and records the payout. The caller
// computes the breakdown and commits the bonus transaction in the same unit
// of work; an already-terminal record fails with ConflictError semantics and
// must produce no ledger write.
func (r *ReferralRecord) Enroll(reward RewardBreakdown, transactionID string) error {
	if r.Status == StatusEnrolled {
		return shared.ErrReferralEnrolled
	}
	if r.Status.IsTerminal() {
		return shared.ErrReferralTerminal
	}
	if r.Status != StatusContacted {
		return shared.ErrInvalidTransition
	}

	now := time.Now().UTC()
	r.Status = StatusEnrolled
	r.Reward = &reward
	r.TransactionID = transactionID
	r.ResolvedAt = &now
	return nil
}

// Decline moves contacted -> declined. No payout.
func (r *ReferralRecord) Decline(reason string) error {
	if r.Status.IsTerminal() {
		return shared.ErrReferralTerminal
	}
	if r.Status != StatusContacted {
		return shared.ErrInvalidTransition
	}

	now := time.Now().UTC()
	r.Status = StatusDeclined
	r.DeclineReason = strings.TrimSpace(reason)
	r.ResolvedAt = &now
	return nil
}

// Expire moves pending/contacted -> expired. Used only by the sweep job.
func (r *ReferralRecord) Expire() error {
	if r.Status.IsTerminal() {
		return shared.ErrReferralTerminal
	}

	now := time.Now().UTC()
	r.Status = StatusExpired
	r.ResolvedAt = &now
	return nil
}

// IsStale reports whether the sweep should expire the record: still open
// and older than the retention window.
func (r *ReferralRecord) IsStale(now time.Time, retention time.Duration) bool {
	return !r.Status.IsTerminal() && now.Sub(r.SubmittedAt) > retention
}
