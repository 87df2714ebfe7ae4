// Package postgres implements the PostgreSQL persistence layer of the points engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements ledger.Repository for PostgreSQL.
// All writes go through INSERT or a soft-delete UPDATE that only touches the
// delete marker; delta columns are never updated after commit.
type LedgerRepository struct {
	conn *Connection
	tx   pgx.Tx
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// WithTx returns a copy of the repository bound to an open transaction, so
// the commit pipeline can span ledger append and aggregate update in one
// unit of work.
func (r *LedgerRepository) WithTx(tx pgx.Tx) *LedgerRepository {
	return &LedgerRepository{conn: r.conn, tx: tx}
}

func (r *LedgerRepository) q() Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.conn
}

const transactionColumns = `
	id, student_id, tenant_id, kind, points, coins, reason, category,
	awarded_by, reference, created_at, deleted_at, deleted_by
`

// Append inserts one immutable transaction row.
func (r *LedgerRepository) Append(ctx context.Context, t *ledger.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, student_id, tenant_id, kind, points, coins, reason, category,
			awarded_by, reference, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
	`

	_, err := r.q().Exec(ctx, query,
		t.ID,
		string(t.StudentID),
		string(t.TenantID),
		string(t.Kind),
		int(t.Points),
		int(t.Coins),
		t.Reason,
		string(t.Category),
		t.AwardedBy,
		t.Reference,
		t.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("ledger", "Append", shared.ErrAlreadyExists, "transaction id already exists", err)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// GetByID returns one transaction, including soft-deleted rows.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := r.scanTransaction(r.q().QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return t, nil
}

// ListByStudent returns a filtered page of a student's history.
func (r *LedgerRepository) ListByStudent(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, opts ledger.ListOptions) ([]*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE student_id = $1 AND tenant_id = $2`
	args := []interface{}{string(studentID), string(tenantID)}

	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if opts.Kind != "" {
		args = append(args, string(opts.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if opts.Category != "" {
		args = append(args, string(opts.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if !opts.Range.From.IsZero() {
		args = append(args, opts.Range.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !opts.Range.To.IsZero() {
		args = append(args, opts.Range.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	if opts.NewestFirst {
		query += ` ORDER BY created_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at ASC, id ASC`
	}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return r.scanTransactions(rows)
}

// CountByStudent returns the number of rows ListByStudent would page over.
func (r *LedgerRepository) CountByStudent(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, opts ledger.ListOptions) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE student_id = $1 AND tenant_id = $2`
	args := []interface{}{string(studentID), string(tenantID)}

	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if opts.Kind != "" {
		args = append(args, string(opts.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if opts.Category != "" {
		args = append(args, string(opts.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}

	var count int
	if err := r.q().QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// SoftDelete sets the delete marker of a not-yet-deleted row. The delta
// columns stay untouched; the guard on deleted_at makes a double delete
// a NotFound, matching the domain rule.
func (r *LedgerRepository) SoftDelete(ctx context.Context, id, actor string) error {
	query := `
		UPDATE transactions
		SET deleted_at = $1, deleted_by = $2
		WHERE id = $3 AND deleted_at IS NULL
	`

	result, err := r.q().Exec(ctx, query, time.Now().UTC(), actor, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrTransactionNotFound
	}

	return nil
}

// Replay folds all non-deleted rows of a student into totals, in SQL.
// This is the authoritative balance; the aggregate row is only its cache.
func (r *LedgerRepository) Replay(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (ledger.ReplayResult, error) {
	query := `
		SELECT
			COALESCE(SUM(points), 0),
			COALESCE(SUM(coins), 0),
			COALESCE(SUM(CASE WHEN coins < 0 THEN -coins ELSE 0 END), 0),
			COUNT(*)
		FROM transactions
		WHERE student_id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`

	var res ledger.ReplayResult
	var points, coins, spent int
	err := r.q().QueryRow(ctx, query, string(studentID), string(tenantID)).
		Scan(&points, &coins, &spent, &res.Transactions)
	if err != nil {
		return ledger.ReplayResult{}, fmt.Errorf("failed to replay ledger: %w", err)
	}

	res.TotalPoints = shared.Points(points)
	res.AvailableCoins = shared.Coins(coins)
	res.SpentCoins = shared.Coins(spent)
	return res, nil
}

// CountByCategory returns per-category counts of a student's non-deleted
// rows, consumed by achievement predicate evaluation.
func (r *LedgerRepository) CountByCategory(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (map[ledger.Category]int, error) {
	query := `
		SELECT category, COUNT(*)
		FROM transactions
		WHERE student_id = $1 AND tenant_id = $2 AND deleted_at IS NULL
		GROUP BY category
	`

	rows, err := r.q().Query(ctx, query, string(studentID), string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to count by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[ledger.Category]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[ledger.Category(category)] = count
	}

	return counts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *LedgerRepository) scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var t ledger.Transaction
	var studentID, tenantID, kind, category string
	var points, coins int
	var reference *string
	var deletedBy *string

	err := row.Scan(
		&t.ID,
		&studentID,
		&tenantID,
		&kind,
		&points,
		&coins,
		&t.Reason,
		&category,
		&t.AwardedBy,
		&reference,
		&t.CreatedAt,
		&t.DeletedAt,
		&deletedBy,
	)
	if err != nil {
		return nil, err
	}

	t.StudentID = shared.StudentID(studentID)
	t.TenantID = shared.TenantID(tenantID)
	t.Kind = ledger.Kind(kind)
	t.Category = ledger.Category(category)
	t.Points = shared.Points(points)
	t.Coins = shared.Coins(coins)
	if reference != nil {
		t.Reference = *reference
	}
	if deletedBy != nil {
		t.DeletedBy = *deletedBy
	}

	return &t, nil
}

func (r *LedgerRepository) scanTransactions(rows pgx.Rows) ([]*ledger.Transaction, error) {
	transactions := make([]*ledger.Transaction, 0)
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
