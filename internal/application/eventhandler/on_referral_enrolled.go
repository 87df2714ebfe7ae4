package eventhandler

import (
	"context"
	"fmt"

	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON REFERRAL ENROLLED HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// OnReferralEnrolledHandler tells a referrer their prospect enrolled and
// what the payout was.
type OnReferralEnrolledHandler struct {
	notifier Notifier
	log      *logger.Logger
}

// NewOnReferralEnrolledHandler creates the handler.
func NewOnReferralEnrolledHandler(notifier Notifier, log *logger.Logger) *OnReferralEnrolledHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnReferralEnrolledHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_referral_enrolled")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnReferralEnrolledHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.ReferralEnrolledEvent)
	if !ok {
		return nil
	}

	if h.notifier == nil {
		return nil
	}

	body := fmt.Sprintf("Your referral enrolled. You earned %d points.", e.RewardPoints)
	if e.TierBonus > 0 {
		body = fmt.Sprintf("Your referral enrolled. You earned %d points, including a %d point tier bonus for %d enrollments.",
			e.RewardPoints, e.TierBonus, e.EnrolledCount)
	}

	err := h.notifier.Notify(context.Background(), Notification{
		StudentID: e.ReferrerID,
		TenantID:  e.TenantID,
		Title:     "Referral enrolled",
		Body:      body,
	})
	if err != nil {
		h.log.Warn("referral notification failed",
			logger.StudentID(e.ReferrerID),
			logger.String("referral_id", e.ReferralID),
			logger.Err(err),
		)
	}
	return nil
}
