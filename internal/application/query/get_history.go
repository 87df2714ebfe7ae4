package query

import (
	"context"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HISTORY QUERY
// Statement style view of a student's ledger: newest first, each row carrying
// the running point total after it was applied.
// ══════════════════════════════════════════════════════════════════════════════

// GetHistoryQuery contains the history request parameters.
type GetHistoryQuery struct {
	// StudentID and TenantID scope the statement.
	StudentID string
	TenantID  string

	// Kind filters by transaction kind, empty for all.
	Kind string

	// Category filters by category, empty for all.
	Category string

	// Range restricts the statement to a time window.
	Range shared.TimeRange

	// IncludeDeleted includes soft-deleted rows, for audit views. Deleted
	// rows never move the running total.
	IncludeDeleted bool

	// Limit is the page size (default 50, max 200).
	Limit int

	// Offset is the pagination offset.
	Offset int
}

// Validate validates the query.
func (q GetHistoryQuery) Validate() error {
	if _, err := shared.NewStudentID(q.StudentID); err != nil {
		return err
	}
	if _, err := shared.NewTenantID(q.TenantID); err != nil {
		return err
	}
	if q.Kind != "" && !ledger.Kind(q.Kind).IsValid() {
		return shared.NewDomainError("query", "GetHistory", shared.ErrInvalidInput, "unknown transaction kind")
	}
	if q.Category != "" && !ledger.Category(q.Category).IsValid() {
		return shared.ErrInvalidCategory
	}
	if q.Offset < 0 {
		return shared.NewDomainError("query", "GetHistory", shared.ErrInvalidInput, "offset cannot be negative")
	}
	return nil
}

// HistoryEntryDTO is one statement row for transport.
type HistoryEntryDTO struct {
	// TransactionID - the ledger row.
	TransactionID string `json:"transaction_id"`

	// Kind and Category classify the row.
	Kind     string `json:"kind"`
	Category string `json:"category"`

	// Points and Coins - the deltas of the row.
	Points int `json:"points"`
	Coins  int `json:"coins"`

	// Reason - human readable cause.
	Reason string `json:"reason"`

	// AwardedBy - actor who caused the row.
	AwardedBy string `json:"awarded_by"`

	// Reference - related entity, if any.
	Reference string `json:"reference,omitempty"`

	// RunningTotal - point total after this row was applied.
	RunningTotal int `json:"running_total"`

	// Deleted - soft-delete marker, only visible on audit views.
	Deleted bool `json:"deleted,omitempty"`

	// OccurredAt - append time.
	OccurredAt time.Time `json:"occurred_at"`
}

// GetHistoryResult contains one statement page.
type GetHistoryResult struct {
	// Entries - the requested page, newest first.
	Entries []HistoryEntryDTO `json:"entries"`

	// TotalCount - matching rows across all pages.
	TotalCount int `json:"total_count"`

	// CurrentTotal - the student's point total over non-deleted rows.
	CurrentTotal int `json:"current_total"`
}

// GetHistoryHandler handles history requests.
type GetHistoryHandler struct {
	transactions ledger.Repository
}

// NewGetHistoryHandler creates a new GetHistoryHandler.
func NewGetHistoryHandler(transactions ledger.Repository) *GetHistoryHandler {
	return &GetHistoryHandler{transactions: transactions}
}

// Handle executes the history query.
func (h *GetHistoryHandler) Handle(ctx context.Context, q GetHistoryQuery) (*GetHistoryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_history: validation failed: %w", err)
	}

	studentID, _ := shared.NewStudentID(q.StudentID)
	tenantID, _ := shared.NewTenantID(q.TenantID)
	page := shared.Page{Limit: q.Limit, Offset: q.Offset}.Normalize(50, 200)

	opts := ledger.ListOptions{
		Kind:           ledger.Kind(q.Kind),
		Category:       ledger.Category(q.Category),
		Range:          q.Range,
		IncludeDeleted: q.IncludeDeleted,
		NewestFirst:    true,
		// Running totals are derived downward from the current total, so
		// the rows between the top of the statement and the requested page
		// have to be walked too.
		Limit: page.Offset + page.Limit,
	}

	txs, err := h.transactions.ListByStudent(ctx, studentID, tenantID, opts)
	if err != nil {
		return nil, err
	}

	total, err := h.transactions.CountByStudent(ctx, studentID, tenantID, opts)
	if err != nil {
		return nil, err
	}

	replayed, err := h.transactions.Replay(ctx, studentID, tenantID)
	if err != nil {
		return nil, err
	}

	entries := buildStatement(txs, replayed.TotalPoints)
	if page.Offset < len(entries) {
		end := page.Offset + page.Limit
		if end > len(entries) {
			end = len(entries)
		}
		entries = entries[page.Offset:end]
	} else {
		entries = []HistoryEntryDTO{}
	}

	return &GetHistoryResult{
		Entries:      entries,
		TotalCount:   total,
		CurrentTotal: replayed.TotalPoints.Int(),
	}, nil
}

// buildStatement walks a newest-first window assigning running totals.
// The newest non-deleted row carries the current total; each older row
// carries the total before the rows above it were applied.
func buildStatement(txs []*ledger.Transaction, currentTotal shared.Points) []HistoryEntryDTO {
	entries := make([]HistoryEntryDTO, len(txs))
	running := currentTotal

	for i, tx := range txs {
		entry := HistoryEntryDTO{
			TransactionID: tx.ID,
			Kind:          string(tx.Kind),
			Category:      string(tx.Category),
			Points:        tx.Points.Int(),
			Coins:         tx.Coins.Int(),
			Reason:        tx.Reason,
			AwardedBy:     tx.AwardedBy,
			Reference:     tx.Reference,
			Deleted:       tx.IsDeleted(),
			OccurredAt:    tx.CreatedAt,
		}
		if tx.IsDeleted() {
			// A deleted row never moved the balance.
			entry.RunningTotal = running.Int()
		} else {
			entry.RunningTotal = running.Int()
			running -= tx.Points
		}
		entries[i] = entry
	}

	return entries
}
