package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/classpoints/points-engine/internal/domain/reward"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RewardRepository implements reward.Repository for PostgreSQL. Stock
// decrements and fulfillment transitions are CAS-guarded updates, so two
// racing redemptions of the last item cannot both succeed.
type RewardRepository struct {
	conn *Connection
	tx   pgx.Tx
}

// NewRewardRepository creates a new RewardRepository.
func NewRewardRepository(conn *Connection) *RewardRepository {
	return &RewardRepository{conn: conn}
}

// WithTx returns a copy bound to an open transaction.
func (r *RewardRepository) WithTx(tx pgx.Tx) *RewardRepository {
	return &RewardRepository{conn: r.conn, tx: tx}
}

func (r *RewardRepository) q() Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.conn
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

// CreateReward inserts a catalog entry.
func (r *RewardRepository) CreateReward(ctx context.Context, rw *reward.Reward) error {
	query := `
		INSERT INTO rewards (id, tenant_id, name, description, coin_cost, stock, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q().Exec(ctx, query,
		rw.ID,
		string(rw.TenantID),
		rw.Name,
		rw.Description,
		int(rw.CoinCost),
		rw.Stock,
		rw.Active,
		rw.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("reward", "CreateReward", shared.ErrAlreadyExists, "reward id already exists", err)
		}
		return fmt.Errorf("failed to create reward: %w", err)
	}

	return nil
}

// GetReward returns one catalog entry.
func (r *RewardRepository) GetReward(ctx context.Context, id string) (*reward.Reward, error) {
	query := `
		SELECT id, tenant_id, name, description, coin_cost, stock, active, created_at
		FROM rewards
		WHERE id = $1
	`

	rw, err := r.scanReward(r.q().QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRewardNotFound
		}
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}

	return rw, nil
}

// ListActive returns redeemable rewards of a tenant, cheapest first.
func (r *RewardRepository) ListActive(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]*reward.Reward, error) {
	page = page.Normalize(20, 100)

	query := `
		SELECT id, tenant_id, name, description, coin_cost, stock, active, created_at
		FROM rewards
		WHERE tenant_id = $1 AND active AND stock <> 0
		ORDER BY coin_cost ASC, created_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q().Query(ctx, query, string(tenantID), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rewards: %w", err)
	}
	defer rows.Close()

	rewards := make([]*reward.Reward, 0)
	for rows.Next() {
		rw, err := r.scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, rw)
	}

	return rewards, rows.Err()
}

// UpdateReward persists catalog edits.
func (r *RewardRepository) UpdateReward(ctx context.Context, rw *reward.Reward) error {
	query := `
		UPDATE rewards
		SET name = $1, description = $2, coin_cost = $3, stock = $4, active = $5
		WHERE id = $6
	`

	result, err := r.q().Exec(ctx, query,
		rw.Name,
		rw.Description,
		int(rw.CoinCost),
		rw.Stock,
		rw.Active,
		rw.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrRewardNotFound
	}

	return nil
}

// DecrementStock takes one unit of a tracked reward. The relative update
// re-evaluates WHERE stock > 0 against the committed row, so the loser of
// a race on the last item lands zero rows and gets shared.ErrRewardInactive.
func (r *RewardRepository) DecrementStock(ctx context.Context, id string) error {
	query := `
		UPDATE rewards
		SET stock = stock - 1
		WHERE id = $1 AND active AND stock > 0
	`

	result, err := r.q().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to decrement reward stock: %w", err)
	}

	if result.RowsAffected() > 0 {
		return nil
	}

	// Unlimited-stock rewards have no counter to decrement.
	var stock int
	var active bool
	err = r.q().QueryRow(ctx, `SELECT stock, active FROM rewards WHERE id = $1`, id).Scan(&stock, &active)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrRewardNotFound
		}
		return fmt.Errorf("failed to check reward stock: %w", err)
	}
	if active && stock == reward.StockUnlimited {
		return nil
	}

	return shared.ErrRewardInactive
}

// ─────────────────────────────────────────────────────────────────────────────
// Redemptions
// ─────────────────────────────────────────────────────────────────────────────

// CreateRedemption inserts a redemption record.
func (r *RewardRepository) CreateRedemption(ctx context.Context, rd *reward.Redemption) error {
	query := `
		INSERT INTO redemptions (id, student_id, tenant_id, reward_id, coin_cost, transaction_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q().Exec(ctx, query,
		rd.ID,
		string(rd.StudentID),
		string(rd.TenantID),
		rd.RewardID,
		int(rd.CoinCost),
		rd.TransactionID,
		string(rd.Status),
		rd.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create redemption: %w", err)
	}

	return nil
}

// GetRedemption returns one redemption.
func (r *RewardRepository) GetRedemption(ctx context.Context, id string) (*reward.Redemption, error) {
	query := `
		SELECT id, student_id, tenant_id, reward_id, coin_cost, transaction_id, status, created_at, resolved_at
		FROM redemptions
		WHERE id = $1
	`

	rd, err := r.scanRedemption(r.q().QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("failed to get redemption: %w", err)
	}

	return rd, nil
}

// UpdateRedemptionStatus lands a fulfillment transition once: the CAS on
// the pending status means a second transition returns shared.ErrTerminalState.
func (r *RewardRepository) UpdateRedemptionStatus(ctx context.Context, rd *reward.Redemption) error {
	query := `
		UPDATE redemptions
		SET status = $1, resolved_at = $2
		WHERE id = $3 AND status = 'pending_fulfillment'
	`

	result, err := r.q().Exec(ctx, query, string(rd.Status), rd.ResolvedAt, rd.ID)
	if err != nil {
		return fmt.Errorf("failed to update redemption status: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if checkErr := r.q().QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM redemptions WHERE id = $1)`, rd.ID,
		).Scan(&exists); checkErr == nil && !exists {
			return shared.ErrRedemptionNotFound
		}
		return shared.NewDomainError("reward", "UpdateRedemptionStatus", shared.ErrTerminalState, "redemption already resolved")
	}

	return nil
}

// ListRedemptions returns a student's redemptions, newest first.
func (r *RewardRepository) ListRedemptions(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, page shared.Page) ([]*reward.Redemption, error) {
	page = page.Normalize(20, 100)

	query := `
		SELECT id, student_id, tenant_id, reward_id, coin_cost, transaction_id, status, created_at, resolved_at
		FROM redemptions
		WHERE student_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.q().Query(ctx, query, string(studentID), string(tenantID), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	defer rows.Close()

	redemptions := make([]*reward.Redemption, 0)
	for rows.Next() {
		rd, err := r.scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		redemptions = append(redemptions, rd)
	}

	return redemptions, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *RewardRepository) scanReward(row pgx.Row) (*reward.Reward, error) {
	var rw reward.Reward
	var tenantID string
	var coinCost int

	err := row.Scan(
		&rw.ID,
		&tenantID,
		&rw.Name,
		&rw.Description,
		&coinCost,
		&rw.Stock,
		&rw.Active,
		&rw.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rw.TenantID = shared.TenantID(tenantID)
	rw.CoinCost = shared.Coins(coinCost)

	return &rw, nil
}

func (r *RewardRepository) scanRedemption(row pgx.Row) (*reward.Redemption, error) {
	var rd reward.Redemption
	var studentID, tenantID, status string
	var coinCost int

	err := row.Scan(
		&rd.ID,
		&studentID,
		&tenantID,
		&rd.RewardID,
		&coinCost,
		&rd.TransactionID,
		&status,
		&rd.CreatedAt,
		&rd.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	rd.StudentID = shared.StudentID(studentID)
	rd.TenantID = shared.TenantID(tenantID)
	rd.CoinCost = shared.Coins(coinCost)
	rd.Status = reward.RedemptionStatus(status)

	return &rd, nil
}
