// Package query contains read operations (CQRS - Queries).
// Queries never modify state; handlers read straight from the repositories
// and the short-TTL cache, outside any unit of work.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Dense-rank standings of a tenant, cache-aside over the short-TTL cache.
// Staleness up to the TTL is acceptable for this view.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the leaderboard request parameters.
type GetLeaderboardQuery struct {
	// TenantID scopes the standings.
	TenantID string

	// Limit is the page size (default 20, max 100).
	Limit int

	// Offset is the pagination offset.
	Offset int
}

// Validate validates the query.
func (q GetLeaderboardQuery) Validate() error {
	if _, err := shared.NewTenantID(q.TenantID); err != nil {
		return err
	}
	if q.Offset < 0 {
		return shared.NewDomainError("query", "GetLeaderboard", shared.ErrInvalidInput, "offset cannot be negative")
	}
	return nil
}

// LeaderboardEntryDTO is one leaderboard row for transport.
type LeaderboardEntryDTO struct {
	// Rank - dense rank, ties share it and no numbers are skipped.
	Rank int `json:"rank"`

	// StudentID - owner of the row.
	StudentID string `json:"student_id"`

	// TotalPoints - lifetime points the rank was computed from.
	TotalPoints int `json:"total_points"`

	// AvailableCoins - spendable balance.
	AvailableCoins int `json:"available_coins"`

	// Level - derived level.
	Level int `json:"level"`
}

// GetLeaderboardResult contains the leaderboard page.
type GetLeaderboardResult struct {
	// Entries - the requested page of standings.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// TotalCount - number of students in the tenant.
	TotalCount int `json:"total_count"`

	// FromCache - whether the page was served from the cache.
	FromCache bool `json:"from_cache"`

	// GeneratedAt - time the result was assembled.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardHandlerConfig contains configuration for the handler.
type GetLeaderboardHandlerConfig struct {
	// CacheTTL bounds the staleness of a cached page.
	CacheTTL time.Duration
}

// DefaultGetLeaderboardHandlerConfig returns the default configuration.
func DefaultGetLeaderboardHandlerConfig() GetLeaderboardHandlerConfig {
	return GetLeaderboardHandlerConfig{CacheTTL: 30 * time.Second}
}

// GetLeaderboardHandler handles leaderboard requests.
type GetLeaderboardHandler struct {
	aggregates ranking.Repository
	cache      ranking.Cache
	config     GetLeaderboardHandlerConfig
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
// The cache may be nil; every request then hits the repository.
func NewGetLeaderboardHandler(aggregates ranking.Repository, cache ranking.Cache, config GetLeaderboardHandlerConfig) *GetLeaderboardHandler {
	if config.CacheTTL <= 0 {
		config = DefaultGetLeaderboardHandlerConfig()
	}
	return &GetLeaderboardHandler{
		aggregates: aggregates,
		cache:      cache,
		config:     config,
	}
}

// Handle executes the leaderboard query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_leaderboard: validation failed: %w", err)
	}

	tenantID, _ := shared.NewTenantID(q.TenantID)
	page := shared.Page{Limit: q.Limit, Offset: q.Offset}.Normalize(20, 100)

	// The cache keeps a prefix of the standings, so it can serve any page
	// that fits inside the cached window.
	window := page.Offset + page.Limit

	entries, fromCache := h.tryCache(ctx, tenantID, window)
	if entries == nil {
		var err error
		entries, err = h.aggregates.GetRanked(ctx, tenantID, shared.Page{Limit: window})
		if err != nil {
			return nil, err
		}
		h.fillCache(ctx, tenantID, entries)
	}

	entries = paginate(entries, page.Offset, page.Limit)

	total, err := h.aggregates.CountStudents(ctx, tenantID)
	if err != nil {
		total = len(entries)
	}

	dtos := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LeaderboardEntryDTO{
			Rank:           e.Rank,
			StudentID:      e.StudentID.String(),
			TotalPoints:    e.TotalPoints.Int(),
			AvailableCoins: e.AvailableCoins.Int(),
			Level:          e.Level,
		}
	}

	return &GetLeaderboardResult{
		Entries:     dtos,
		TotalCount:  total,
		FromCache:   fromCache,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// tryCache returns cached entries covering the window, or nil on a miss.
func (h *GetLeaderboardHandler) tryCache(ctx context.Context, tenantID shared.TenantID, window int) ([]ranking.RankedEntry, bool) {
	if h.cache == nil {
		return nil, false
	}
	entries, err := h.cache.GetTop(ctx, tenantID, window)
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	return entries, true
}

// fillCache stores a freshly computed page, best effort.
func (h *GetLeaderboardHandler) fillCache(ctx context.Context, tenantID shared.TenantID, entries []ranking.RankedEntry) {
	if h.cache == nil || len(entries) == 0 {
		return
	}
	_ = h.cache.SetTop(ctx, tenantID, entries, h.config.CacheTTL)
}

// paginate slices one page out of a prefix of the standings.
func paginate(entries []ranking.RankedEntry, offset, limit int) []ranking.RankedEntry {
	if offset >= len(entries) {
		return []ranking.RankedEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}
