package eventhandler

import (
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON AGGREGATE DIVERGENCE HANDLER
// A divergence means the derived aggregate disagreed with the ledger replay,
// which points at a bug in the commit path. The reconcile job may repair the
// numbers when auto-repair is on; this handler makes sure an operator hears
// about it either way.
// ══════════════════════════════════════════════════════════════════════════════

// OnAggregateDivergenceHandler raises operator alerts on divergence events.
type OnAggregateDivergenceHandler struct {
	log *logger.Logger
}

// NewOnAggregateDivergenceHandler creates the handler.
func NewOnAggregateDivergenceHandler(log *logger.Logger) *OnAggregateDivergenceHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnAggregateDivergenceHandler{
		log: log.With(logger.Component("on_divergence")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnAggregateDivergenceHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.AggregateDivergenceEvent)
	if !ok {
		return nil
	}

	h.log.Error("ALERT: aggregate diverged from ledger",
		logger.StudentID(e.StudentID),
		logger.TenantID(e.TenantID),
		logger.Int("stored_points", e.StoredPoints),
		logger.Int("replayed_points", e.ReplayedPoints),
		logger.Int("stored_coins", e.StoredCoins),
		logger.Int("replayed_coins", e.ReplayedCoins),
	)
	return nil
}
