package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache implements ranking.Cache with a plain JSON value per
// tenant. Rank numbers are computed by PostgreSQL at read time; the cache
// only shields the DENSE_RANK query from repeated identical reads, so a
// single short-TTL key per tenant is enough.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new LeaderboardCache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// cachedEntry is the JSON shape of one leaderboard row.
type cachedEntry struct {
	Rank           int    `json:"rank"`
	StudentID      string `json:"student_id"`
	TotalPoints    int    `json:"total_points"`
	AvailableCoins int    `json:"available_coins"`
	Level          int    `json:"level"`
}

// GetTop returns the cached top-N for a tenant, or nil on a miss.
// A cached page shorter than the requested limit counts as a miss, so a
// larger request falls through to the database.
func (lc *LeaderboardCache) GetTop(ctx context.Context, tenantID shared.TenantID, limit int) ([]ranking.RankedEntry, error) {
	var cached []cachedEntry
	err := lc.cache.Get(ctx, LeaderboardKey(string(tenantID)), &cached)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read leaderboard cache: %w", err)
	}

	if limit > 0 && len(cached) < limit {
		return nil, nil
	}
	if limit > 0 && len(cached) > limit {
		cached = cached[:limit]
	}

	entries := make([]ranking.RankedEntry, 0, len(cached))
	for _, e := range cached {
		entries = append(entries, ranking.RankedEntry{
			Rank:           e.Rank,
			StudentID:      shared.StudentID(e.StudentID),
			TotalPoints:    shared.Points(e.TotalPoints),
			AvailableCoins: shared.Coins(e.AvailableCoins),
			Level:          e.Level,
		})
	}

	return entries, nil
}

// SetTop stores the top-N for a tenant with a TTL.
func (lc *LeaderboardCache) SetTop(ctx context.Context, tenantID shared.TenantID, entries []ranking.RankedEntry, ttl time.Duration) error {
	cached := make([]cachedEntry, 0, len(entries))
	for _, e := range entries {
		cached = append(cached, cachedEntry{
			Rank:           e.Rank,
			StudentID:      string(e.StudentID),
			TotalPoints:    int(e.TotalPoints),
			AvailableCoins: int(e.AvailableCoins),
			Level:          e.Level,
		})
	}

	if err := lc.cache.Set(ctx, LeaderboardKey(string(tenantID)), cached, ttl); err != nil {
		return fmt.Errorf("failed to write leaderboard cache: %w", err)
	}

	return nil
}

// Invalidate drops the cached leaderboard for a tenant.
func (lc *LeaderboardCache) Invalidate(ctx context.Context, tenantID shared.TenantID) error {
	return lc.cache.Delete(ctx, LeaderboardKey(string(tenantID)))
}
