package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFERRAL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ReferralRepository implements referral.Repository for PostgreSQL.
// Status transitions are guarded by WHERE status=<previous>, so a record
// reaches a terminal state exactly once. Campaign tiers live inline as JSONB.
type ReferralRepository struct {
	conn *Connection
	tx   pgx.Tx
}

// NewReferralRepository creates a new ReferralRepository.
func NewReferralRepository(conn *Connection) *ReferralRepository {
	return &ReferralRepository{conn: conn}
}

// WithTx returns a copy bound to an open transaction.
func (r *ReferralRepository) WithTx(tx pgx.Tx) *ReferralRepository {
	return &ReferralRepository{conn: r.conn, tx: tx}
}

func (r *ReferralRepository) q() Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.conn
}

const referralColumns = `
	id, referrer_id, tenant_id, prospect_name, prospect_phone, prospect_email,
	campaign_id, status, reward_base_points, reward_multiplier, reward_tier_bonus,
	reward_enrolled_count, reward_total, transaction_id, decline_reason,
	submitted_at, contacted_at, resolved_at
`

// ─────────────────────────────────────────────────────────────────────────────
// Records
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a freshly submitted record.
func (r *ReferralRepository) Create(ctx context.Context, rec *referral.ReferralRecord) error {
	query := `
		INSERT INTO referrals (
			id, referrer_id, tenant_id, prospect_name, prospect_phone, prospect_email,
			campaign_id, status, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, $8, $9)
	`

	_, err := r.q().Exec(ctx, query,
		rec.ID,
		string(rec.ReferrerID),
		string(rec.TenantID),
		rec.Prospect.Name,
		rec.Prospect.Phone,
		rec.Prospect.Email,
		rec.CampaignID,
		string(rec.Status),
		rec.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}

	return nil
}

// GetByID returns one record.
func (r *ReferralRepository) GetByID(ctx context.Context, id string) (*referral.ReferralRecord, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE id = $1`

	rec, err := r.scanReferral(r.q().QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}

	return rec, nil
}

// Transition persists a status change guarded by the previous status.
func (r *ReferralRepository) Transition(ctx context.Context, rec *referral.ReferralRecord, from referral.Status) error {
	query := `
		UPDATE referrals
		SET status = $1,
			reward_base_points = $2, reward_multiplier = $3, reward_tier_bonus = $4,
			reward_enrolled_count = $5, reward_total = $6,
			transaction_id = NULLIF($7, '')::uuid, decline_reason = NULLIF($8, ''),
			contacted_at = $9, resolved_at = $10
		WHERE id = $11 AND status = $12
	`

	var basePoints, tierBonus, enrolledCount, total *int
	var multiplier *float64
	if rec.Reward != nil {
		bp, tb, ec, tt := int(rec.Reward.BasePoints), int(rec.Reward.TierBonus), rec.Reward.EnrolledCount, int(rec.Reward.Total)
		mult := rec.Reward.Multiplier
		basePoints, tierBonus, enrolledCount, total = &bp, &tb, &ec, &tt
		multiplier = &mult
	}

	result, err := r.q().Exec(ctx, query,
		string(rec.Status),
		basePoints,
		multiplier,
		tierBonus,
		enrolledCount,
		total,
		rec.TransactionID,
		rec.DeclineReason,
		rec.ContactedAt,
		rec.ResolvedAt,
		rec.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to transition referral: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if checkErr := r.q().QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM referrals WHERE id = $1)`, rec.ID,
		).Scan(&exists); checkErr == nil && !exists {
			return shared.ErrReferralNotFound
		}
		return shared.ErrReferralTerminal
	}

	return nil
}

// ListByReferrer returns a referrer's records, newest first.
func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID shared.StudentID, tenantID shared.TenantID, page shared.Page) ([]*referral.ReferralRecord, error) {
	page = page.Normalize(20, 100)

	query := `SELECT ` + referralColumns + `
		FROM referrals
		WHERE referrer_id = $1 AND tenant_id = $2
		ORDER BY submitted_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.q().Query(ctx, query, string(referrerID), string(tenantID), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	return r.scanReferrals(rows)
}

// CountEnrolled returns how many of a referrer's records reached enrolled.
func (r *ReferralRepository) CountEnrolled(ctx context.Context, referrerID shared.StudentID, tenantID shared.TenantID) (int, error) {
	var count int
	err := r.q().QueryRow(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND tenant_id = $2 AND status = 'enrolled'`,
		string(referrerID), string(tenantID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count enrolled referrals: %w", err)
	}
	return count, nil
}

// ListOpenOlderThan returns pending/contacted records submitted before the
// cutoff, oldest first, for the expiry sweep.
func (r *ReferralRepository) ListOpenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*referral.ReferralRecord, error) {
	query := `SELECT ` + referralColumns + `
		FROM referrals
		WHERE status IN ('pending', 'contacted') AND submitted_at < $1
		ORDER BY submitted_at ASC
		LIMIT $2
	`

	rows, err := r.q().Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open referrals: %w", err)
	}
	defer rows.Close()

	return r.scanReferrals(rows)
}

// FunnelStats returns per-status counts for a tenant.
func (r *ReferralRepository) FunnelStats(ctx context.Context, tenantID shared.TenantID) (map[referral.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM referrals WHERE tenant_id = $1 GROUP BY status`

	rows, err := r.q().Query(ctx, query, string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to get funnel stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[referral.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan funnel stats: %w", err)
		}
		stats[referral.Status(status)] = count
	}

	return stats, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Campaigns
// ─────────────────────────────────────────────────────────────────────────────

// campaignTier is the JSONB shape of one tier row.
type campaignTier struct {
	MinEnrolled int `json:"min_enrolled"`
	Bonus       int `json:"bonus"`
}

// CreateCampaign inserts a campaign.
func (r *ReferralRepository) CreateCampaign(ctx context.Context, c *referral.Campaign) error {
	tiers := make([]campaignTier, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		tiers = append(tiers, campaignTier{MinEnrolled: t.MinEnrolled, Bonus: int(t.Bonus)})
	}
	tiersJSON, err := json.Marshal(tiers)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign tiers: %w", err)
	}

	query := `
		INSERT INTO campaigns (id, tenant_id, name, base_points, multiplier, tiers, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.q().Exec(ctx, query,
		c.ID,
		string(c.TenantID),
		c.Name,
		int(c.BasePoints),
		c.Multiplier,
		tiersJSON,
		c.StartsAt,
		c.EndsAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaign returns one campaign.
func (r *ReferralRepository) GetCampaign(ctx context.Context, id string) (*referral.Campaign, error) {
	query := `
		SELECT id, tenant_id, name, base_points, multiplier, tiers, starts_at, ends_at
		FROM campaigns
		WHERE id = $1
	`

	c, err := r.scanCampaign(r.q().QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return c, nil
}

// GetActiveCampaign returns the campaign whose window covers the instant.
// With overlapping windows the most recently started one wins.
func (r *ReferralRepository) GetActiveCampaign(ctx context.Context, tenantID shared.TenantID, at time.Time) (*referral.Campaign, error) {
	query := `
		SELECT id, tenant_id, name, base_points, multiplier, tiers, starts_at, ends_at
		FROM campaigns
		WHERE tenant_id = $1 AND starts_at <= $2 AND ends_at > $2
		ORDER BY starts_at DESC
		LIMIT 1
	`

	c, err := r.scanCampaign(r.q().QueryRow(ctx, query, string(tenantID), at))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get active campaign: %w", err)
	}

	return c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *ReferralRepository) scanReferral(row pgx.Row) (*referral.ReferralRecord, error) {
	var rec referral.ReferralRecord
	var referrerID, tenantID, status string
	var campaignID, transactionID, declineReason *string
	var rewardBase, rewardTierBonus, rewardEnrolled, rewardTotal *int
	var rewardMultiplier *float64

	err := row.Scan(
		&rec.ID,
		&referrerID,
		&tenantID,
		&rec.Prospect.Name,
		&rec.Prospect.Phone,
		&rec.Prospect.Email,
		&campaignID,
		&status,
		&rewardBase,
		&rewardMultiplier,
		&rewardTierBonus,
		&rewardEnrolled,
		&rewardTotal,
		&transactionID,
		&declineReason,
		&rec.SubmittedAt,
		&rec.ContactedAt,
		&rec.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ReferrerID = shared.StudentID(referrerID)
	rec.TenantID = shared.TenantID(tenantID)
	rec.Status = referral.Status(status)

	if campaignID != nil {
		rec.CampaignID = *campaignID
	}
	if transactionID != nil {
		rec.TransactionID = *transactionID
	}
	if declineReason != nil {
		rec.DeclineReason = *declineReason
	}
	if rewardTotal != nil {
		rec.Reward = &referral.RewardBreakdown{
			BasePoints:    shared.Points(*rewardBase),
			Multiplier:    *rewardMultiplier,
			TierBonus:     shared.Points(*rewardTierBonus),
			EnrolledCount: *rewardEnrolled,
			Total:         shared.Points(*rewardTotal),
		}
	}

	return &rec, nil
}

func (r *ReferralRepository) scanReferrals(rows pgx.Rows) ([]*referral.ReferralRecord, error) {
	records := make([]*referral.ReferralRecord, 0)
	for rows.Next() {
		rec, err := r.scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *ReferralRepository) scanCampaign(row pgx.Row) (*referral.Campaign, error) {
	var c referral.Campaign
	var tenantID string
	var basePoints int
	var tiersJSON []byte

	err := row.Scan(
		&c.ID,
		&tenantID,
		&c.Name,
		&basePoints,
		&c.Multiplier,
		&tiersJSON,
		&c.StartsAt,
		&c.EndsAt,
	)
	if err != nil {
		return nil, err
	}

	c.TenantID = shared.TenantID(tenantID)
	c.BasePoints = shared.Points(basePoints)

	var tiers []campaignTier
	if err := json.Unmarshal(tiersJSON, &tiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal campaign tiers: %w", err)
	}
	c.Tiers = make([]referral.Tier, 0, len(tiers))
	for _, t := range tiers {
		c.Tiers = append(c.Tiers, referral.Tier{MinEnrolled: t.MinEnrolled, Bonus: shared.Points(t.Bonus)})
	}

	return &c, nil
}
