package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/application/query"
	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Healthy(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER WRITES
// ══════════════════════════════════════════════════════════════════════════════

type awardPointsRequest struct {
	StudentID string `json:"student_id"`
	Points    int    `json:"points"`
	Coins     int    `json:"coins"`
	Reason    string `json:"reason"`
	Category  string `json:"category"`
}

func (s *Server) handleAwardPoints(w http.ResponseWriter, r *http.Request) {
	var req awardPointsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.AwardPoints.Handle(r.Context(), command.AwardPointsCommand{
		StudentID: req.StudentID,
		TenantID:  tenantFrom(r),
		Points:    req.Points,
		Coins:     req.Coins,
		Reason:    req.Reason,
		Category:  req.Category,
		Actor:     actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Queued {
		// The award is parked in the approval queue, not committed.
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

type bulkAwardPointsRequest struct {
	StudentIDs []string `json:"student_ids"`
	Points     int      `json:"points"`
	Coins      int      `json:"coins"`
	Reason     string   `json:"reason"`
	Category   string   `json:"category"`
}

func (s *Server) handleBulkAwardPoints(w http.ResponseWriter, r *http.Request) {
	var req bulkAwardPointsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.BulkAwardPoints.Handle(r.Context(), command.BulkAwardPointsCommand{
		StudentIDs: req.StudentIDs,
		TenantID:   tenantFrom(r),
		Points:     req.Points,
		Coins:      req.Coins,
		Reason:     req.Reason,
		Category:   req.Category,
		Actor:      actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type reverseTransactionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReverseTransaction(w http.ResponseWriter, r *http.Request) {
	var req reverseTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.ReverseTransaction.Handle(r.Context(), command.ReverseTransactionCommand{
		TransactionID: r.PathValue("id"),
		Reason:        req.Reason,
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.deps.DeleteTransaction.Handle(r.Context(), command.DeleteTransactionCommand{
		TransactionID: r.PathValue("id"),
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

// ══════════════════════════════════════════════════════════════════════════════
// APPROVALS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetPendingApprovals.Handle(r.Context(), query.GetPendingApprovalsQuery{
		TenantID: tenantFrom(r),
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type decideApprovalRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func (s *Server) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	var req decideApprovalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.DecideApproval.Handle(r.Context(), command.DecideApprovalCommand{
		ApprovalID: r.PathValue("id"),
		Approve:    req.Approve,
		Note:       req.Note,
		Actor:      actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ListRewards.Handle(r.Context(), query.ListRewardsQuery{
		TenantID: tenantFrom(r),
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createRewardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CoinCost    int    `json:"coin_cost"`
	Stock       int    `json:"stock"`
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req createRewardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	created, err := s.deps.CreateReward.Handle(r.Context(), command.CreateRewardCommand{
		TenantID:    tenantFrom(r),
		Name:        req.Name,
		Description: req.Description,
		CoinCost:    shared.Coins(req.CoinCost),
		Stock:       req.Stock,
		Actor:       actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type updateRewardRequest struct {
	CoinCost *int  `json:"coin_cost"`
	Stock    *int  `json:"stock"`
	Active   *bool `json:"active"`
}

func (s *Server) handleUpdateReward(w http.ResponseWriter, r *http.Request) {
	var req updateRewardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	cmd := command.UpdateRewardCommand{
		RewardID: r.PathValue("id"),
		Stock:    req.Stock,
		Active:   req.Active,
		Actor:    actorFrom(r),
	}
	if req.CoinCost != nil {
		cost := shared.Coins(*req.CoinCost)
		cmd.CoinCost = &cost
	}

	updated, err := s.deps.UpdateReward.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type redeemRewardRequest struct {
	StudentID string `json:"student_id"`
}

func (s *Server) handleRedeemReward(w http.ResponseWriter, r *http.Request) {
	var req redeemRewardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.RedeemReward.Handle(r.Context(), command.RedeemRewardCommand{
		StudentID: req.StudentID,
		TenantID:  tenantFrom(r),
		RewardID:  r.PathValue("id"),
		Actor:     actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type resolveRedemptionRequest struct {
	Fulfill bool `json:"fulfill"`
}

func (s *Server) handleResolveRedemption(w http.ResponseWriter, r *http.Request) {
	var req resolveRedemptionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.ResolveRedemption.Handle(r.Context(), command.ResolveRedemptionCommand{
		RedemptionID: r.PathValue("id"),
		Fulfill:      req.Fulfill,
		Actor:        actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERRALS
// ══════════════════════════════════════════════════════════════════════════════

type submitReferralRequest struct {
	ReferrerID    string `json:"referrer_id"`
	ProspectName  string `json:"prospect_name"`
	ProspectPhone string `json:"prospect_phone"`
	ProspectEmail string `json:"prospect_email"`
}

func (s *Server) handleSubmitReferral(w http.ResponseWriter, r *http.Request) {
	var req submitReferralRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	record, err := s.deps.SubmitReferral.Handle(r.Context(), command.SubmitReferralCommand{
		ReferrerID:    req.ReferrerID,
		TenantID:      tenantFrom(r),
		ProspectName:  req.ProspectName,
		ProspectPhone: req.ProspectPhone,
		ProspectEmail: req.ProspectEmail,
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleContactReferral(w http.ResponseWriter, r *http.Request) {
	record, err := s.deps.ContactReferral.Handle(r.Context(), command.ContactReferralCommand{
		ReferralID: r.PathValue("id"),
		Actor:      actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type declineReferralRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleDeclineReferral(w http.ResponseWriter, r *http.Request) {
	var req declineReferralRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	record, err := s.deps.DeclineReferral.Handle(r.Context(), command.DeclineReferralCommand{
		ReferralID: r.PathValue("id"),
		Reason:     req.Reason,
		Actor:      actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleEnrollReferral(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.EnrollReferral.Handle(r.Context(), command.EnrollReferralCommand{
		ReferralID: r.PathValue("id"),
		Actor:      actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetReferralFunnel(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetReferralFunnel.Handle(r.Context(), query.GetReferralFunnelQuery{
		TenantID:   tenantFrom(r),
		ReferrerID: r.URL.Query().Get("referrer_id"),
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

type createAchievementRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	PredicateType string `json:"predicate_type"`
	Category      string `json:"category"`
	Threshold     int    `json:"threshold"`
	BonusPoints   int    `json:"bonus_points"`
	BonusCoins    int    `json:"bonus_coins"`
}

func (s *Server) handleCreateAchievement(w http.ResponseWriter, r *http.Request) {
	var req createAchievementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	created, err := s.deps.CreateAchievement.Handle(r.Context(), command.CreateAchievementCommand{
		TenantID:    tenantFrom(r),
		Name:        req.Name,
		Description: req.Description,
		Predicate: achievement.Predicate{
			Type:      achievement.PredicateType(req.PredicateType),
			Category:  req.Category,
			Threshold: req.Threshold,
		},
		BonusPoints: shared.Points(req.BonusPoints),
		BonusCoins:  shared.Coins(req.BonusCoins),
		Actor:       actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetAchievementActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	err := s.deps.SetAchievementActive.Handle(r.Context(), command.SetAchievementActiveCommand{
		AchievementID: r.PathValue("id"),
		Active:        req.Active,
		Actor:         actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

type createCampaignRequest struct {
	Name       string    `json:"name"`
	BasePoints int       `json:"base_points"`
	Multiplier float64   `json:"multiplier"`
	Tiers      []tierDTO `json:"tiers"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
}

type tierDTO struct {
	MinEnrolled int `json:"min_enrolled"`
	Bonus       int `json:"bonus"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	tiers := make([]referral.Tier, len(req.Tiers))
	for i, t := range req.Tiers {
		tiers[i] = referral.Tier{
			MinEnrolled: t.MinEnrolled,
			Bonus:       shared.Points(t.Bonus),
		}
	}

	created, err := s.deps.CreateCampaign.Handle(r.Context(), command.CreateCampaignCommand{
		TenantID:   tenantFrom(r),
		Name:       req.Name,
		BasePoints: shared.Points(req.BasePoints),
		Multiplier: req.Multiplier,
		Tiers:      tiers,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
		Actor:      actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		TenantID: tenantFrom(r),
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statementRange resolves the time window of a history request. A period
// shortcut (day, week, month) wins over explicit from/to dates; dates are
// interpreted as whole school days.
func statementRange(r *http.Request) (shared.TimeRange, error) {
	if p := r.URL.Query().Get("period"); p != "" {
		period := timeutil.Period(p)
		if !period.IsValid() {
			return shared.TimeRange{}, fmt.Errorf("unknown period %q", p)
		}
		from, to := period.Bounds(timeutil.Now())
		return shared.TimeRange{From: from, To: to}, nil
	}

	var window shared.TimeRange
	if v := r.URL.Query().Get("from"); v != "" {
		day, err := timeutil.ParseDate(v)
		if err != nil {
			return shared.TimeRange{}, fmt.Errorf("invalid from date %q", v)
		}
		window.From = timeutil.StartOfDay(day)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		day, err := timeutil.ParseDate(v)
		if err != nil {
			return shared.TimeRange{}, fmt.Errorf("invalid to date %q", v)
		}
		window.To = timeutil.EndOfDay(day)
	}
	return window, nil
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	window, err := statementRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}
	result, err := s.deps.GetHistory.Handle(r.Context(), query.GetHistoryQuery{
		StudentID:      r.PathValue("id"),
		TenantID:       tenantFrom(r),
		Kind:           r.URL.Query().Get("kind"),
		Category:       r.URL.Query().Get("category"),
		Range:          window,
		IncludeDeleted: queryBool(r, "include_deleted"),
		Limit:          queryInt(r, "limit", 0),
		Offset:         queryInt(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetStudentStats(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetStudentStats.Handle(r.Context(), query.GetStudentStatsQuery{
		StudentID: r.PathValue("id"),
		TenantID:  tenantFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetRedemptionHistory(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetRedemptionHistory.Handle(r.Context(), query.GetRedemptionHistoryQuery{
		StudentID: r.PathValue("id"),
		TenantID:  tenantFrom(r),
		Limit:     queryInt(r, "limit", 0),
		Offset:    queryInt(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
