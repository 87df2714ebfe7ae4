package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository for PostgreSQL.
// The unique constraint on (student_id, achievement_id) is the at-most-once
// gate: RecordUnlock maps a duplicate insert to shared.ErrAlreadyUnlocked.
type AchievementRepository struct {
	conn *Connection
	tx   pgx.Tx
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// WithTx returns a copy bound to an open transaction.
func (r *AchievementRepository) WithTx(tx pgx.Tx) *AchievementRepository {
	return &AchievementRepository{conn: r.conn, tx: tx}
}

func (r *AchievementRepository) q() Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.conn
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// CreateAchievement inserts a catalog entry.
func (r *AchievementRepository) CreateAchievement(ctx context.Context, a *achievement.Achievement) error {
	query := `
		INSERT INTO achievements (
			id, tenant_id, name, description,
			predicate_type, predicate_category, predicate_threshold,
			bonus_points, bonus_coins, active, created_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
	`

	_, err := r.q().Exec(ctx, query,
		a.ID,
		string(a.TenantID),
		a.Name,
		a.Description,
		string(a.Predicate.Type),
		a.Predicate.Category,
		a.Predicate.Threshold,
		int(a.BonusPoints),
		int(a.BonusCoins),
		a.Active,
		a.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("achievement", "CreateAchievement", shared.ErrAlreadyExists, "achievement id already exists", err)
		}
		return fmt.Errorf("failed to create achievement: %w", err)
	}

	return nil
}

// GetAchievement returns one catalog entry.
func (r *AchievementRepository) GetAchievement(ctx context.Context, id string) (*achievement.Achievement, error) {
	query := `
		SELECT id, tenant_id, name, description,
			predicate_type, predicate_category, predicate_threshold,
			bonus_points, bonus_coins, active, created_at
		FROM achievements
		WHERE id = $1
	`

	a, err := r.scanAchievement(r.q().QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAchievementNotFound
		}
		return nil, fmt.Errorf("failed to get achievement: %w", err)
	}

	return a, nil
}

// ListActive returns all achievements the evaluation pass should consider.
func (r *AchievementRepository) ListActive(ctx context.Context, tenantID shared.TenantID) ([]*achievement.Achievement, error) {
	query := `
		SELECT id, tenant_id, name, description,
			predicate_type, predicate_category, predicate_threshold,
			bonus_points, bonus_coins, active, created_at
		FROM achievements
		WHERE tenant_id = $1 AND active
		ORDER BY created_at ASC
	`

	rows, err := r.q().Query(ctx, query, string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to list active achievements: %w", err)
	}
	defer rows.Close()

	achievements := make([]*achievement.Achievement, 0)
	for rows.Next() {
		a, err := r.scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		achievements = append(achievements, a)
	}

	return achievements, rows.Err()
}

// SetActive toggles evaluation of a catalog entry.
func (r *AchievementRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.q().Exec(ctx,
		`UPDATE achievements SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set achievement active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrAchievementNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Unlocks
// ─────────────────────────────────────────────────────────────────────────────

// RecordUnlock inserts an unlock record; a duplicate for the same student
// and achievement returns shared.ErrAlreadyUnlocked.
func (r *AchievementRepository) RecordUnlock(ctx context.Context, sa *achievement.StudentAchievement) error {
	query := `
		INSERT INTO student_achievements (
			id, student_id, tenant_id, achievement_id, bonus_transaction_id, unlocked_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6)
	`

	_, err := r.q().Exec(ctx, query,
		sa.ID,
		string(sa.StudentID),
		string(sa.TenantID),
		sa.AchievementID,
		sa.BonusTransactionID,
		sa.UnlockedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyUnlocked
		}
		return fmt.Errorf("failed to record unlock: %w", err)
	}

	return nil
}

// ListUnlocked returns the achievement ids a student already holds.
func (r *AchievementRepository) ListUnlocked(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) ([]string, error) {
	query := `
		SELECT achievement_id FROM student_achievements
		WHERE student_id = $1 AND tenant_id = $2
	`

	rows, err := r.q().Query(ctx, query, string(studentID), string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocked achievements: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan achievement id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListUnlocks returns the full unlock records of a student, newest first.
func (r *AchievementRepository) ListUnlocks(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) ([]*achievement.StudentAchievement, error) {
	query := `
		SELECT id, student_id, tenant_id, achievement_id, bonus_transaction_id, unlocked_at
		FROM student_achievements
		WHERE student_id = $1 AND tenant_id = $2
		ORDER BY unlocked_at DESC
	`

	rows, err := r.q().Query(ctx, query, string(studentID), string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	defer rows.Close()

	unlocks := make([]*achievement.StudentAchievement, 0)
	for rows.Next() {
		var sa achievement.StudentAchievement
		var studentID, tenantID string
		var bonusTxID *string

		if err := rows.Scan(&sa.ID, &studentID, &tenantID, &sa.AchievementID, &bonusTxID, &sa.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}

		sa.StudentID = shared.StudentID(studentID)
		sa.TenantID = shared.TenantID(tenantID)
		if bonusTxID != nil {
			sa.BonusTransactionID = *bonusTxID
		}

		unlocks = append(unlocks, &sa)
	}

	return unlocks, rows.Err()
}

func (r *AchievementRepository) scanAchievement(row pgx.Row) (*achievement.Achievement, error) {
	var a achievement.Achievement
	var tenantID, predicateType string
	var predicateCategory *string

	err := row.Scan(
		&a.ID,
		&tenantID,
		&a.Name,
		&a.Description,
		&predicateType,
		&predicateCategory,
		&a.Predicate.Threshold,
		&a.BonusPoints,
		&a.BonusCoins,
		&a.Active,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.TenantID = shared.TenantID(tenantID)
	a.Predicate.Type = achievement.PredicateType(predicateType)
	if predicateCategory != nil {
		a.Predicate.Category = *predicateCategory
	}

	return &a, nil
}
