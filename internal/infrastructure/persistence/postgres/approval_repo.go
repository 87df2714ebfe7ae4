// Package postgres implements the PostgreSQL persistence layer of the points engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/classpoints/points-engine/internal/domain/approval"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPROVAL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ApprovalRepository implements approval.Repository for PostgreSQL.
// Decide updates WHERE decision='pending', so only one of two racing
// moderators ever lands a decision.
type ApprovalRepository struct {
	conn *Connection
	tx   pgx.Tx
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(conn *Connection) *ApprovalRepository {
	return &ApprovalRepository{conn: conn}
}

// WithTx returns a copy bound to an open transaction.
func (r *ApprovalRepository) WithTx(tx pgx.Tx) *ApprovalRepository {
	return &ApprovalRepository{conn: r.conn, tx: tx}
}

func (r *ApprovalRepository) q() Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.conn
}

const approvalColumns = `
	id, student_id, tenant_id, points, coins, reason, category,
	requested_by, requested_by_role, priority, decision,
	decided_by, decided_by_role, decision_note, transaction_id,
	created_at, decided_at
`

// Create inserts a new pending approval.
func (r *ApprovalRepository) Create(ctx context.Context, a *approval.PendingApproval) error {
	query := `
		INSERT INTO pending_approvals (
			id, student_id, tenant_id, points, coins, reason, category,
			requested_by, requested_by_role, priority, decision, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q().Exec(ctx, query,
		a.ID,
		string(a.StudentID),
		string(a.TenantID),
		int(a.Points),
		int(a.Coins),
		a.Reason,
		a.Category,
		a.RequestedBy.ID,
		string(a.RequestedBy.Role),
		int(a.Priority),
		string(a.Decision),
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pending approval: %w", err)
	}

	return nil
}

// GetByID returns one approval.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*approval.PendingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM pending_approvals WHERE id = $1`

	a, err := r.scanApproval(r.q().QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}

	return a, nil
}

// Decide persists a terminal decision with a CAS on the pending state.
func (r *ApprovalRepository) Decide(ctx context.Context, a *approval.PendingApproval) error {
	if a.DecidedBy == nil || a.DecidedAt == nil {
		return shared.NewDomainError("approval", "Decide", shared.ErrInvalidState, "decision fields are not set")
	}

	query := `
		UPDATE pending_approvals
		SET decision = $1, decided_by = $2, decided_by_role = $3,
			decision_note = $4, transaction_id = NULLIF($5, '')::uuid, decided_at = $6
		WHERE id = $7 AND decision = 'pending'
	`

	result, err := r.q().Exec(ctx, query,
		string(a.Decision),
		a.DecidedBy.ID,
		string(a.DecidedBy.Role),
		a.DecisionNote,
		a.TransactionID,
		*a.DecidedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to decide approval: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the row is gone or another decision landed first.
		var exists bool
		if checkErr := r.q().QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM pending_approvals WHERE id = $1)`, a.ID,
		).Scan(&exists); checkErr == nil && !exists {
			return shared.ErrApprovalNotFound
		}
		return shared.ErrApprovalAlreadyDecided
	}

	return nil
}

// ListPending returns the review queue page: priority first, then age.
func (r *ApprovalRepository) ListPending(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]*approval.PendingApproval, error) {
	page = page.Normalize(20, 100)

	query := `SELECT ` + approvalColumns + `
		FROM pending_approvals
		WHERE tenant_id = $1 AND decision = 'pending'
		ORDER BY priority DESC, created_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q().Query(ctx, query, string(tenantID), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	return r.scanApprovals(rows)
}

// CountPending returns the size of the review queue.
func (r *ApprovalRepository) CountPending(ctx context.Context, tenantID shared.TenantID) (int, error) {
	var count int
	err := r.q().QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_approvals WHERE tenant_id = $1 AND decision = 'pending'`,
		string(tenantID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	return count, nil
}

// ListDecidedSince returns decided approvals for audit views, newest first.
func (r *ApprovalRepository) ListDecidedSince(ctx context.Context, tenantID shared.TenantID, since time.Time, page shared.Page) ([]*approval.PendingApproval, error) {
	page = page.Normalize(20, 100)

	query := `SELECT ` + approvalColumns + `
		FROM pending_approvals
		WHERE tenant_id = $1 AND decision <> 'pending' AND decided_at >= $2
		ORDER BY decided_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.q().Query(ctx, query, string(tenantID), since, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list decided approvals: %w", err)
	}
	defer rows.Close()

	return r.scanApprovals(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *ApprovalRepository) scanApproval(row pgx.Row) (*approval.PendingApproval, error) {
	var a approval.PendingApproval
	var studentID, tenantID, decision, requestedByRole string
	var points, coins, priority int
	var decidedBy, decidedByRole, decisionNote, transactionID *string

	err := row.Scan(
		&a.ID,
		&studentID,
		&tenantID,
		&points,
		&coins,
		&a.Reason,
		&a.Category,
		&a.RequestedBy.ID,
		&requestedByRole,
		&priority,
		&decision,
		&decidedBy,
		&decidedByRole,
		&decisionNote,
		&transactionID,
		&a.CreatedAt,
		&a.DecidedAt,
	)
	if err != nil {
		return nil, err
	}

	a.StudentID = shared.StudentID(studentID)
	a.TenantID = shared.TenantID(tenantID)
	a.Points = shared.Points(points)
	a.Coins = shared.Coins(coins)
	a.Priority = approval.Priority(priority)
	a.Decision = approval.Decision(decision)
	a.RequestedBy.Role = shared.ActorRole(requestedByRole)
	a.RequestedBy.Tenant = a.TenantID

	if decidedBy != nil {
		actor := shared.Actor{ID: *decidedBy, Tenant: a.TenantID}
		if decidedByRole != nil {
			actor.Role = shared.ActorRole(*decidedByRole)
		}
		a.DecidedBy = &actor
	}
	if decisionNote != nil {
		a.DecisionNote = *decisionNote
	}
	if transactionID != nil {
		a.TransactionID = *transactionID
	}

	return &a, nil
}

func (r *ApprovalRepository) scanApprovals(rows pgx.Rows) ([]*approval.PendingApproval, error) {
	approvals := make([]*approval.PendingApproval, 0)
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
