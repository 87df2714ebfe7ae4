package eventhandler

import (
	"context"
	"fmt"

	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// OnAchievementUnlockedHandler tells a student about a freshly earned
// achievement and its bonus.
type OnAchievementUnlockedHandler struct {
	notifier Notifier
	log      *logger.Logger
}

// NewOnAchievementUnlockedHandler creates the handler.
func NewOnAchievementUnlockedHandler(notifier Notifier, log *logger.Logger) *OnAchievementUnlockedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnAchievementUnlockedHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_achievement_unlocked")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		return nil
	}

	if h.notifier == nil {
		return nil
	}

	body := fmt.Sprintf("You earned %q!", e.Name)
	switch {
	case e.RewardPoints > 0 && e.RewardCoins > 0:
		body = fmt.Sprintf("You earned %q: +%d points and +%d coins.", e.Name, e.RewardPoints, e.RewardCoins)
	case e.RewardPoints > 0:
		body = fmt.Sprintf("You earned %q: +%d points.", e.Name, e.RewardPoints)
	case e.RewardCoins > 0:
		body = fmt.Sprintf("You earned %q: +%d coins.", e.Name, e.RewardCoins)
	}

	err := h.notifier.Notify(context.Background(), Notification{
		StudentID: e.StudentID,
		TenantID:  e.TenantID,
		Title:     "Achievement unlocked",
		Body:      body,
	})
	if err != nil {
		h.log.Warn("achievement notification failed",
			logger.StudentID(e.StudentID),
			logger.String("achievement_id", e.AchievementID),
			logger.Err(err),
		)
	}
	return nil
}
