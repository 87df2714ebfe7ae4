package query

import (
	"context"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/reward"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD CATALOG QUERIES
// The redeemable catalog of a tenant, plus one student's purchase history.
// ══════════════════════════════════════════════════════════════════════════════

// ListRewardsQuery contains the catalog request parameters.
type ListRewardsQuery struct {
	// TenantID scopes the catalog.
	TenantID string

	// Limit and Offset page the catalog (default 20, max 100).
	Limit  int
	Offset int
}

// Validate validates the query.
func (q ListRewardsQuery) Validate() error {
	_, err := shared.NewTenantID(q.TenantID)
	return err
}

// RewardDTO is one catalog entry for transport.
type RewardDTO struct {
	// RewardID - the catalog entry.
	RewardID string `json:"reward_id"`

	// Name and Description - shop listing.
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// CoinCost - price in coins.
	CoinCost int `json:"coin_cost"`

	// Stock - remaining quantity, -1 when untracked.
	Stock int `json:"stock"`
}

// ListRewardsHandler handles catalog requests.
type ListRewardsHandler struct {
	rewards reward.Repository
}

// NewListRewardsHandler creates a new ListRewardsHandler.
func NewListRewardsHandler(rewards reward.Repository) *ListRewardsHandler {
	return &ListRewardsHandler{rewards: rewards}
}

// Handle executes the catalog query.
func (h *ListRewardsHandler) Handle(ctx context.Context, q ListRewardsQuery) ([]RewardDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("list_rewards: validation failed: %w", err)
	}

	tenantID, _ := shared.NewTenantID(q.TenantID)
	page := shared.Page{Limit: q.Limit, Offset: q.Offset}.Normalize(20, 100)

	rewards, err := h.rewards.ListActive(ctx, tenantID, page)
	if err != nil {
		return nil, err
	}

	dtos := make([]RewardDTO, len(rewards))
	for i, r := range rewards {
		dtos[i] = RewardDTO{
			RewardID:    r.ID,
			Name:        r.Name,
			Description: r.Description,
			CoinCost:    r.CoinCost.Int(),
			Stock:       r.Stock,
		}
	}
	return dtos, nil
}

// GetRedemptionHistoryQuery contains the purchase history request.
type GetRedemptionHistoryQuery struct {
	// StudentID and TenantID identify the student.
	StudentID string
	TenantID  string

	// Limit and Offset page the history (default 20, max 100).
	Limit  int
	Offset int
}

// Validate validates the query.
func (q GetRedemptionHistoryQuery) Validate() error {
	if _, err := shared.NewStudentID(q.StudentID); err != nil {
		return err
	}
	_, err := shared.NewTenantID(q.TenantID)
	return err
}

// RedemptionDTO is one purchase for transport.
type RedemptionDTO struct {
	// RedemptionID - the purchase record.
	RedemptionID string `json:"redemption_id"`

	// RewardID - what was bought.
	RewardID string `json:"reward_id"`

	// CoinCost - price paid.
	CoinCost int `json:"coin_cost"`

	// TransactionID - the ledger row that took the coins.
	TransactionID string `json:"transaction_id"`

	// Status - fulfillment state.
	Status string `json:"status"`

	// RedeemedAt and ResolvedAt - lifecycle timestamps.
	RedeemedAt time.Time  `json:"redeemed_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// GetRedemptionHistoryHandler handles purchase history requests.
type GetRedemptionHistoryHandler struct {
	rewards reward.Repository
}

// NewGetRedemptionHistoryHandler creates a new GetRedemptionHistoryHandler.
func NewGetRedemptionHistoryHandler(rewards reward.Repository) *GetRedemptionHistoryHandler {
	return &GetRedemptionHistoryHandler{rewards: rewards}
}

// Handle executes the purchase history query.
func (h *GetRedemptionHistoryHandler) Handle(ctx context.Context, q GetRedemptionHistoryQuery) ([]RedemptionDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_redemption_history: validation failed: %w", err)
	}

	studentID, _ := shared.NewStudentID(q.StudentID)
	tenantID, _ := shared.NewTenantID(q.TenantID)
	page := shared.Page{Limit: q.Limit, Offset: q.Offset}.Normalize(20, 100)

	redemptions, err := h.rewards.ListRedemptions(ctx, studentID, tenantID, page)
	if err != nil {
		return nil, err
	}

	dtos := make([]RedemptionDTO, len(redemptions))
	for i, r := range redemptions {
		dtos[i] = RedemptionDTO{
			RedemptionID:  r.ID,
			RewardID:      r.RewardID,
			CoinCost:      r.CoinCost.Int(),
			TransactionID: r.TransactionID,
			Status:        string(r.Status),
			RedeemedAt:    r.CreatedAt,
			ResolvedAt:    r.ResolvedAt,
		}
	}
	return dtos, nil
}
