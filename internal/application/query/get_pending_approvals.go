package query

import (
	"context"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/approval"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PENDING APPROVALS QUERY
// The review queue: undecided approvals of a tenant, highest priority first.
// ══════════════════════════════════════════════════════════════════════════════

// GetPendingApprovalsQuery contains the queue request parameters.
type GetPendingApprovalsQuery struct {
	// TenantID scopes the queue.
	TenantID string

	// Limit is the page size (default 20, max 100).
	Limit int

	// Offset is the pagination offset.
	Offset int
}

// Validate validates the query.
func (q GetPendingApprovalsQuery) Validate() error {
	if _, err := shared.NewTenantID(q.TenantID); err != nil {
		return err
	}
	if q.Offset < 0 {
		return shared.NewDomainError("query", "GetPendingApprovals", shared.ErrInvalidInput, "offset cannot be negative")
	}
	return nil
}

// PendingApprovalDTO is one queue row for transport.
type PendingApprovalDTO struct {
	// ApprovalID - the queued request.
	ApprovalID string `json:"approval_id"`

	// StudentID - who the award is for.
	StudentID string `json:"student_id"`

	// Points and Coins - the proposed deltas.
	Points int `json:"points"`
	Coins  int `json:"coins"`

	// Reason - why the award was proposed.
	Reason string `json:"reason"`

	// Category - ledger category the award would land in.
	Category string `json:"category"`

	// RequestedBy - proposing actor.
	RequestedBy string `json:"requested_by"`

	// Priority - queue ordering weight, larger awards first.
	Priority int `json:"priority"`

	// RequestedAt - queueing time.
	RequestedAt time.Time `json:"requested_at"`
}

// GetPendingApprovalsResult contains one queue page.
type GetPendingApprovalsResult struct {
	// Entries - the requested page, highest priority first.
	Entries []PendingApprovalDTO `json:"entries"`

	// TotalPending - undecided requests across all pages.
	TotalPending int `json:"total_pending"`
}

// GetPendingApprovalsHandler handles review queue requests.
type GetPendingApprovalsHandler struct {
	approvals approval.Repository
}

// NewGetPendingApprovalsHandler creates a new GetPendingApprovalsHandler.
func NewGetPendingApprovalsHandler(approvals approval.Repository) *GetPendingApprovalsHandler {
	return &GetPendingApprovalsHandler{approvals: approvals}
}

// Handle executes the queue query.
func (h *GetPendingApprovalsHandler) Handle(ctx context.Context, q GetPendingApprovalsQuery) (*GetPendingApprovalsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_pending_approvals: validation failed: %w", err)
	}

	tenantID, _ := shared.NewTenantID(q.TenantID)
	page := shared.Page{Limit: q.Limit, Offset: q.Offset}.Normalize(20, 100)

	pending, err := h.approvals.ListPending(ctx, tenantID, page)
	if err != nil {
		return nil, err
	}

	total, err := h.approvals.CountPending(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	entries := make([]PendingApprovalDTO, len(pending))
	for i, p := range pending {
		entries[i] = PendingApprovalDTO{
			ApprovalID:  p.ID,
			StudentID:   p.StudentID.String(),
			Points:      p.Points.Int(),
			Coins:       p.Coins.Int(),
			Reason:      p.Reason,
			Category:    p.Category,
			RequestedBy: p.RequestedBy.ID,
			Priority:    int(p.Priority),
			RequestedAt: p.CreatedAt,
		}
	}

	return &GetPendingApprovalsResult{
		Entries:      entries,
		TotalPending: total,
	}, nil
}
