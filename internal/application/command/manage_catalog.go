package command

import (
	"context"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/reward"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG COMMANDS
// Authoring of achievements, rewards and referral campaigns. All of these
// require an elevated actor; the entities carry their own validation.
// ══════════════════════════════════════════════════════════════════════════════

func requireElevated(operation string, actor shared.Actor) error {
	if !actor.IsValid() {
		return shared.NewDomainError("command", operation, shared.ErrInvalidInput, "acting identity is invalid")
	}
	if !actor.IsElevated() {
		return shared.ErrElevatedActorRequired
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ACHIEVEMENTS
// ──────────────────────────────────────────────────────────────────────────────

// CreateAchievementCommand adds a catalog achievement.
type CreateAchievementCommand struct {
	// TenantID is the owning organization.
	TenantID string

	// Name and Description describe the achievement to students.
	Name        string
	Description string

	// Predicate is the unlock condition.
	Predicate achievement.Predicate

	// BonusPoints and BonusCoins are granted on unlock, either may be zero.
	BonusPoints shared.Points
	BonusCoins  shared.Coins

	// Actor must be elevated.
	Actor shared.Actor
}

// Validate validates the command.
func (c CreateAchievementCommand) Validate() error {
	if _, err := shared.NewTenantID(c.TenantID); err != nil {
		return err
	}
	return requireElevated("CreateAchievement", c.Actor)
}

// CreateAchievementHandler handles the CreateAchievementCommand.
type CreateAchievementHandler struct {
	uow UnitOfWork
}

// NewCreateAchievementHandler creates a new CreateAchievementHandler.
func NewCreateAchievementHandler(uow UnitOfWork) *CreateAchievementHandler {
	return &CreateAchievementHandler{uow: uow}
}

// Handle executes the create achievement command.
func (h *CreateAchievementHandler) Handle(ctx context.Context, cmd CreateAchievementCommand) (*achievement.Achievement, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_achievement: validation failed: %w", err)
	}

	tenantID, _ := shared.NewTenantID(cmd.TenantID)
	a, err := achievement.NewAchievement(tenantID, cmd.Name, cmd.Description, cmd.Predicate, cmd.BonusPoints, cmd.BonusCoins)
	if err != nil {
		return nil, err
	}
	if err := h.uow.Repos().Achievements.CreateAchievement(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SetAchievementActiveCommand toggles evaluation of an achievement.
type SetAchievementActiveCommand struct {
	// AchievementID is the catalog entry to toggle.
	AchievementID string

	// Active is the desired state.
	Active bool

	// Actor must be elevated.
	Actor shared.Actor
}

// Validate validates the command.
func (c SetAchievementActiveCommand) Validate() error {
	if c.AchievementID == "" {
		return shared.NewDomainError("command", "SetAchievementActive", shared.ErrEmptyValue, "achievement id is required")
	}
	return requireElevated("SetAchievementActive", c.Actor)
}

// SetAchievementActiveHandler handles the SetAchievementActiveCommand.
type SetAchievementActiveHandler struct {
	uow UnitOfWork
}

// NewSetAchievementActiveHandler creates a new SetAchievementActiveHandler.
func NewSetAchievementActiveHandler(uow UnitOfWork) *SetAchievementActiveHandler {
	return &SetAchievementActiveHandler{uow: uow}
}

// Handle executes the toggle.
func (h *SetAchievementActiveHandler) Handle(ctx context.Context, cmd SetAchievementActiveCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("set_achievement_active: validation failed: %w", err)
	}
	return h.uow.Repos().Achievements.SetActive(ctx, cmd.AchievementID, cmd.Active)
}

// ──────────────────────────────────────────────────────────────────────────────
// REWARDS
// ──────────────────────────────────────────────────────────────────────────────

// CreateRewardCommand adds a redeemable reward to the catalog.
type CreateRewardCommand struct {
	// TenantID is the owning organization.
	TenantID string

	// Name and Description describe the reward.
	Name        string
	Description string

	// CoinCost is the price in coins, must be positive.
	CoinCost shared.Coins

	// Stock is the remaining quantity, reward.StockUnlimited for untracked.
	Stock int

	// Actor must be elevated.
	Actor shared.Actor
}

// Validate validates the command.
func (c CreateRewardCommand) Validate() error {
	if _, err := shared.NewTenantID(c.TenantID); err != nil {
		return err
	}
	return requireElevated("CreateReward", c.Actor)
}

// CreateRewardHandler handles the CreateRewardCommand.
type CreateRewardHandler struct {
	uow UnitOfWork
}

// NewCreateRewardHandler creates a new CreateRewardHandler.
func NewCreateRewardHandler(uow UnitOfWork) *CreateRewardHandler {
	return &CreateRewardHandler{uow: uow}
}

// Handle executes the create reward command.
func (h *CreateRewardHandler) Handle(ctx context.Context, cmd CreateRewardCommand) (*reward.Reward, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_reward: validation failed: %w", err)
	}

	tenantID, _ := shared.NewTenantID(cmd.TenantID)
	r, err := reward.NewReward(tenantID, cmd.Name, cmd.Description, cmd.CoinCost, cmd.Stock)
	if err != nil {
		return nil, err
	}
	if err := h.uow.Repos().Rewards.CreateReward(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRewardCommand edits a catalog reward: price, stock, active flag.
type UpdateRewardCommand struct {
	// RewardID is the reward to edit.
	RewardID string

	// CoinCost, Stock, Active - the new values. Nil fields stay unchanged.
	CoinCost *shared.Coins
	Stock    *int
	Active   *bool

	// Actor must be elevated.
	Actor shared.Actor
}

// Validate validates the command.
func (c UpdateRewardCommand) Validate() error {
	if c.RewardID == "" {
		return shared.NewDomainError("command", "UpdateReward", shared.ErrEmptyValue, "reward id is required")
	}
	if c.CoinCost != nil && *c.CoinCost <= 0 {
		return shared.NewDomainError("command", "UpdateReward", shared.ErrInvalidInput, "coin cost must be positive")
	}
	return requireElevated("UpdateReward", c.Actor)
}

// UpdateRewardHandler handles the UpdateRewardCommand.
type UpdateRewardHandler struct {
	uow UnitOfWork
}

// NewUpdateRewardHandler creates a new UpdateRewardHandler.
func NewUpdateRewardHandler(uow UnitOfWork) *UpdateRewardHandler {
	return &UpdateRewardHandler{uow: uow}
}

// Handle executes the update reward command.
func (h *UpdateRewardHandler) Handle(ctx context.Context, cmd UpdateRewardCommand) (*reward.Reward, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_reward: validation failed: %w", err)
	}

	repos := h.uow.Repos()
	r, err := repos.Rewards.GetReward(ctx, cmd.RewardID)
	if err != nil {
		return nil, err
	}

	if cmd.CoinCost != nil {
		r.CoinCost = *cmd.CoinCost
	}
	if cmd.Stock != nil {
		r.Stock = *cmd.Stock
	}
	if cmd.Active != nil {
		r.Active = *cmd.Active
	}

	if err := repos.Rewards.UpdateReward(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// REFERRAL CAMPAIGNS
// ──────────────────────────────────────────────────────────────────────────────

// CreateCampaignCommand opens a referral campaign window.
type CreateCampaignCommand struct {
	// TenantID is the owning organization.
	TenantID string

	// Name labels the campaign.
	Name string

	// BasePoints is the per-enrollment base payout during the window.
	BasePoints shared.Points

	// Multiplier scales the base payout, must be at least 1.0.
	Multiplier float64

	// Tiers grant extra points once a referrer's enrolled count reaches
	// each threshold.
	Tiers []referral.Tier

	// StartsAt and EndsAt bound the campaign window.
	StartsAt time.Time
	EndsAt   time.Time

	// Actor must be elevated.
	Actor shared.Actor
}

// Validate validates the command.
func (c CreateCampaignCommand) Validate() error {
	if _, err := shared.NewTenantID(c.TenantID); err != nil {
		return err
	}
	return requireElevated("CreateCampaign", c.Actor)
}

// CreateCampaignHandler handles the CreateCampaignCommand.
type CreateCampaignHandler struct {
	uow UnitOfWork
}

// NewCreateCampaignHandler creates a new CreateCampaignHandler.
func NewCreateCampaignHandler(uow UnitOfWork) *CreateCampaignHandler {
	return &CreateCampaignHandler{uow: uow}
}

// Handle executes the create campaign command.
func (h *CreateCampaignHandler) Handle(ctx context.Context, cmd CreateCampaignCommand) (*referral.Campaign, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_campaign: validation failed: %w", err)
	}

	tenantID, _ := shared.NewTenantID(cmd.TenantID)
	campaign, err := referral.NewCampaign(tenantID, cmd.Name, cmd.BasePoints, cmd.Multiplier, cmd.Tiers, cmd.StartsAt, cmd.EndsAt)
	if err != nil {
		return nil, err
	}
	if err := h.uow.Repos().Referrals.CreateCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}
