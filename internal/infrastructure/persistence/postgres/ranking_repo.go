// Package postgres implements the PostgreSQL persistence layer of the points engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RankingRepository implements ranking.Repository for PostgreSQL.
// Save is a compare-and-swap on the version column; rank is computed at read
// time with DENSE_RANK and never stored.
type RankingRepository struct {
	conn *Connection
	tx   pgx.Tx
}

// NewRankingRepository creates a new RankingRepository.
func NewRankingRepository(conn *Connection) *RankingRepository {
	return &RankingRepository{conn: conn}
}

// WithTx returns a copy bound to an open transaction.
func (r *RankingRepository) WithTx(tx pgx.Tx) *RankingRepository {
	return &RankingRepository{conn: r.conn, tx: tx}
}

func (r *RankingRepository) q() Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.conn
}

// Get returns the aggregate row of one student.
func (r *RankingRepository) Get(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (*ranking.Aggregate, error) {
	query := `
		SELECT student_id, tenant_id, total_points, available_coins, spent_coins,
			   level, version, updated_at
		FROM ranking_aggregates
		WHERE student_id = $1 AND tenant_id = $2
	`

	agg, err := r.scanAggregate(r.q().QueryRow(ctx, query, string(studentID), string(tenantID)))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAggregateNotFound
		}
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}

	return agg, nil
}

// Save persists the aggregate. Version 0 inserts the row (losing a racing
// insert surfaces as an optimistic lock failure too); any other version
// updates WHERE version matches and stores version+1. On success the
// in-memory aggregate carries the stored version.
func (r *RankingRepository) Save(ctx context.Context, agg *ranking.Aggregate) error {
	if agg.Version == 0 {
		query := `
			INSERT INTO ranking_aggregates (
				student_id, tenant_id, total_points, available_coins, spent_coins,
				level, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, 1, NOW(), $7)
		`

		_, err := r.q().Exec(ctx, query,
			string(agg.StudentID),
			string(agg.TenantID),
			int(agg.TotalPoints),
			int(agg.AvailableCoins),
			int(agg.SpentCoins),
			agg.Level,
			agg.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrAggregateConflict
			}
			return fmt.Errorf("failed to insert aggregate: %w", err)
		}

		agg.Version = 1
		return nil
	}

	query := `
		UPDATE ranking_aggregates
		SET total_points = $1, available_coins = $2, spent_coins = $3,
			level = $4, version = version + 1, updated_at = $5
		WHERE student_id = $6 AND tenant_id = $7 AND version = $8
	`

	result, err := r.q().Exec(ctx, query,
		int(agg.TotalPoints),
		int(agg.AvailableCoins),
		int(agg.SpentCoins),
		agg.Level,
		agg.UpdatedAt,
		string(agg.StudentID),
		string(agg.TenantID),
		int64(agg.Version),
	)
	if err != nil {
		return fmt.Errorf("failed to update aggregate: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrAggregateConflict
	}

	agg.Version = agg.Version.Next()
	return nil
}

// GetRanked returns one leaderboard page: aggregates ordered by points
// descending, dense-ranked over the whole tenant before pagination, ties
// broken by the age of the aggregate row.
func (r *RankingRepository) GetRanked(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]ranking.RankedEntry, error) {
	page = page.Normalize(20, 100)

	query := `
		SELECT rank, student_id, total_points, available_coins, level
		FROM (
			SELECT
				DENSE_RANK() OVER (ORDER BY total_points DESC) AS rank,
				student_id, total_points, available_coins, level, created_at
			FROM ranking_aggregates
			WHERE tenant_id = $1
		) ranked
		ORDER BY rank, created_at
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q().Query(ctx, query, string(tenantID), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]ranking.RankedEntry, 0, page.Limit)
	for rows.Next() {
		var e ranking.RankedEntry
		var studentID string
		var points, coins int
		if err := rows.Scan(&e.Rank, &studentID, &points, &coins, &e.Level); err != nil {
			return nil, fmt.Errorf("failed to scan ranked entry: %w", err)
		}
		e.StudentID = shared.StudentID(studentID)
		e.TotalPoints = shared.Points(points)
		e.AvailableCoins = shared.Coins(coins)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetStudentRank returns the dense rank of one student within the tenant.
func (r *RankingRepository) GetStudentRank(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (*ranking.RankedEntry, error) {
	query := `
		SELECT rank, student_id, total_points, available_coins, level
		FROM (
			SELECT
				DENSE_RANK() OVER (ORDER BY total_points DESC) AS rank,
				student_id, total_points, available_coins, level
			FROM ranking_aggregates
			WHERE tenant_id = $1
		) ranked
		WHERE student_id = $2
	`

	var e ranking.RankedEntry
	var sid string
	var points, coins int
	err := r.q().QueryRow(ctx, query, string(tenantID), string(studentID)).
		Scan(&e.Rank, &sid, &points, &coins, &e.Level)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAggregateNotFound
		}
		return nil, fmt.Errorf("failed to get student rank: %w", err)
	}

	e.StudentID = shared.StudentID(sid)
	e.TotalPoints = shared.Points(points)
	e.AvailableCoins = shared.Coins(coins)
	return &e, nil
}

// CountStudents returns the number of aggregates in a tenant.
func (r *RankingRepository) CountStudents(ctx context.Context, tenantID shared.TenantID) (int, error) {
	var count int
	err := r.q().QueryRow(ctx,
		`SELECT COUNT(*) FROM ranking_aggregates WHERE tenant_id = $1`,
		string(tenantID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return count, nil
}

// ListStale returns aggregates untouched since the cutoff, oldest first,
// for the reconcile job.
func (r *RankingRepository) ListStale(ctx context.Context, tenantID shared.TenantID, updatedBefore time.Time, limit int) ([]*ranking.Aggregate, error) {
	query := `
		SELECT student_id, tenant_id, total_points, available_coins, spent_coins,
			   level, version, updated_at
		FROM ranking_aggregates
		WHERE tenant_id = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := r.q().Query(ctx, query, string(tenantID), updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale aggregates: %w", err)
	}
	defer rows.Close()

	aggregates := make([]*ranking.Aggregate, 0)
	for rows.Next() {
		agg, err := r.scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggregates = append(aggregates, agg)
	}

	return aggregates, rows.Err()
}

func (r *RankingRepository) scanAggregate(row pgx.Row) (*ranking.Aggregate, error) {
	var agg ranking.Aggregate
	var studentID, tenantID string
	var points, coins, spent int
	var version int64

	err := row.Scan(
		&studentID,
		&tenantID,
		&points,
		&coins,
		&spent,
		&agg.Level,
		&version,
		&agg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	agg.StudentID = shared.StudentID(studentID)
	agg.TenantID = shared.TenantID(tenantID)
	agg.TotalPoints = shared.Points(points)
	agg.AvailableCoins = shared.Coins(coins)
	agg.SpentCoins = shared.Coins(spent)
	agg.Version = ranking.Version(version)
	return &agg, nil
}
