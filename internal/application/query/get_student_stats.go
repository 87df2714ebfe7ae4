package query

import (
	"context"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT STATS QUERY
// One student's full profile: balances, level progress, rank, category
// activity, unlocked achievements and referral performance.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentStatsQuery contains the profile request parameters.
type GetStudentStatsQuery struct {
	// StudentID and TenantID identify the student.
	StudentID string
	TenantID  string
}

// Validate validates the query.
func (q GetStudentStatsQuery) Validate() error {
	if _, err := shared.NewStudentID(q.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewTenantID(q.TenantID); err != nil {
		return err
	}
	return nil
}

// UnlockedAchievementDTO is one earned achievement for transport.
type UnlockedAchievementDTO struct {
	// AchievementID - the catalog entry.
	AchievementID string `json:"achievement_id"`

	// Name and Description - catalog metadata, empty if the entry was
	// removed after the unlock.
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// BonusTransactionID - the bonus ledger row, if the unlock paid one.
	BonusTransactionID string `json:"bonus_transaction_id,omitempty"`

	// UnlockedAt - when it was earned.
	UnlockedAt time.Time `json:"unlocked_at"`
}

// GetStudentStatsResult contains the assembled profile.
type GetStudentStatsResult struct {
	// StudentID - the profiled student.
	StudentID string `json:"student_id"`

	// TotalPoints - lifetime points over non-deleted transactions.
	TotalPoints int `json:"total_points"`

	// AvailableCoins and SpentCoins - the coin balances.
	AvailableCoins int `json:"available_coins"`
	SpentCoins     int `json:"spent_coins"`

	// Level and PointsToNextLevel - level progress.
	Level             int `json:"level"`
	PointsToNextLevel int `json:"points_to_next_level"`

	// Rank - dense rank within the tenant, 0 when unranked.
	Rank int `json:"rank"`

	// TransactionCount - non-deleted ledger rows.
	TransactionCount int `json:"transaction_count"`

	// TransactionsByCategory - non-deleted rows keyed by category.
	TransactionsByCategory map[string]int `json:"transactions_by_category"`

	// Achievements - earned achievements, newest first.
	Achievements []UnlockedAchievementDTO `json:"achievements"`

	// EnrolledReferrals - referrals of the student that reached enrolled.
	EnrolledReferrals int `json:"enrolled_referrals"`
}

// GetStudentStatsHandlerConfig contains configuration for the handler.
type GetStudentStatsHandlerConfig struct {
	// LevelSize is the points per level used for progress math.
	LevelSize int
}

// DefaultGetStudentStatsHandlerConfig returns the default configuration.
func DefaultGetStudentStatsHandlerConfig() GetStudentStatsHandlerConfig {
	return GetStudentStatsHandlerConfig{LevelSize: ranking.DefaultLevelSize}
}

// GetStudentStatsHandler handles profile requests.
type GetStudentStatsHandler struct {
	aggregates   ranking.Repository
	transactions ledger.Repository
	achievements achievement.Repository
	referrals    referral.Repository
	config       GetStudentStatsHandlerConfig
}

// NewGetStudentStatsHandler creates a new GetStudentStatsHandler.
func NewGetStudentStatsHandler(
	aggregates ranking.Repository,
	transactions ledger.Repository,
	achievements achievement.Repository,
	referrals referral.Repository,
	config GetStudentStatsHandlerConfig,
) *GetStudentStatsHandler {
	if config.LevelSize <= 0 {
		config = DefaultGetStudentStatsHandlerConfig()
	}
	return &GetStudentStatsHandler{
		aggregates:   aggregates,
		transactions: transactions,
		achievements: achievements,
		referrals:    referrals,
		config:       config,
	}
}

// Handle executes the profile query.
func (h *GetStudentStatsHandler) Handle(ctx context.Context, q GetStudentStatsQuery) (*GetStudentStatsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_student_stats: validation failed: %w", err)
	}

	studentID, _ := shared.NewStudentID(q.StudentID)
	tenantID, _ := shared.NewTenantID(q.TenantID)

	result := &GetStudentStatsResult{
		StudentID:              studentID.String(),
		TransactionsByCategory: map[string]int{},
		Achievements:           []UnlockedAchievementDTO{},
	}

	// A student with no aggregate yet is a valid profile: zero balances,
	// level 0, unranked.
	agg, err := h.aggregates.Get(ctx, studentID, tenantID)
	switch {
	case err == nil:
		result.TotalPoints = agg.TotalPoints.Int()
		result.AvailableCoins = agg.AvailableCoins.Int()
		result.SpentCoins = agg.SpentCoins.Int()
		result.Level = agg.Level
		result.PointsToNextLevel = agg.PointsToNextLevel(h.config.LevelSize).Int()
	case shared.IsNotFound(err):
		fresh, freshErr := ranking.NewAggregate(studentID, tenantID, h.config.LevelSize)
		if freshErr != nil {
			return nil, freshErr
		}
		result.PointsToNextLevel = fresh.PointsToNextLevel(h.config.LevelSize).Int()
	default:
		return nil, err
	}

	if rank, err := h.aggregates.GetStudentRank(ctx, studentID, tenantID); err == nil {
		result.Rank = rank.Rank
	} else if !shared.IsNotFound(err) {
		return nil, err
	}

	count, err := h.transactions.CountByStudent(ctx, studentID, tenantID, ledger.ListOptions{})
	if err != nil {
		return nil, err
	}
	result.TransactionCount = count

	byCategory, err := h.transactions.CountByCategory(ctx, studentID, tenantID)
	if err != nil {
		return nil, err
	}
	for category, n := range byCategory {
		result.TransactionsByCategory[string(category)] = n
	}

	unlocks, err := h.achievements.ListUnlocks(ctx, studentID, tenantID)
	if err != nil {
		return nil, err
	}
	for _, u := range unlocks {
		dto := UnlockedAchievementDTO{
			AchievementID:      u.AchievementID,
			BonusTransactionID: u.BonusTransactionID,
			UnlockedAt:         u.UnlockedAt,
		}
		if a, err := h.achievements.GetAchievement(ctx, u.AchievementID); err == nil {
			dto.Name = a.Name
			dto.Description = a.Description
		}
		result.Achievements = append(result.Achievements, dto)
	}

	enrolled, err := h.referrals.CountEnrolled(ctx, studentID, tenantID)
	if err != nil {
		return nil, err
	}
	result.EnrolledReferrals = enrolled

	return result, nil
}
