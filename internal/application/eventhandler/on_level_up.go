package eventhandler

import (
	"context"
	"fmt"

	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON LEVEL UP HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// OnLevelUpHandler congratulates a student when their point total crosses
// a level boundary.
type OnLevelUpHandler struct {
	notifier Notifier
	log      *logger.Logger
}

// NewOnLevelUpHandler creates the handler.
func NewOnLevelUpHandler(notifier Notifier, log *logger.Logger) *OnLevelUpHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnLevelUpHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_level_up")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnLevelUpHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.LevelUpEvent)
	if !ok {
		return nil
	}

	if h.notifier == nil {
		return nil
	}

	err := h.notifier.Notify(context.Background(), Notification{
		StudentID: e.StudentID,
		TenantID:  e.TenantID,
		Title:     fmt.Sprintf("Level %d reached!", e.NewLevel),
		Body:      fmt.Sprintf("You moved from level %d to level %d with %d total points. Keep it up!", e.OldLevel, e.NewLevel, e.TotalPoints),
	})
	if err != nil {
		h.log.Warn("level-up notification failed",
			logger.StudentID(e.StudentID),
			logger.Err(err),
		)
	}
	return nil
}
