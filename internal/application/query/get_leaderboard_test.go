package query_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/application/query"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/internal/testutil"
)

const tenantA = "6ec0bd7f-11c0-43da-975e-2a8ad9ebae0b"

// seedAggregate stores an aggregate with the given totals and returns its
// student id.
func seedAggregate(t *testing.T, store *testutil.MemStore, points int, coins int) string {
	t.Helper()
	studentID, err := shared.NewStudentID(uuid.NewString())
	require.NoError(t, err)
	tenantID, err := shared.NewTenantID(tenantA)
	require.NoError(t, err)

	agg, err := ranking.NewAggregate(studentID, tenantID, ranking.DefaultLevelSize)
	require.NoError(t, err)
	_, err = agg.ApplyDelta(shared.Points(points), shared.Coins(coins), ranking.DefaultLevelSize)
	require.NoError(t, err)
	require.NoError(t, store.Repos().Aggregates.Save(context.Background(), agg))
	return studentID.String()
}

func TestLeaderboardDenseRanks(t *testing.T) {
	store := testutil.NewMemStore()
	seedAggregate(t, store, 100, 0)
	seedAggregate(t, store, 100, 0)
	seedAggregate(t, store, 90, 0)
	seedAggregate(t, store, 80, 0)

	h := query.NewGetLeaderboardHandler(store.Repos().Aggregates, nil, query.DefaultGetLeaderboardHandlerConfig())
	result, err := h.Handle(context.Background(), query.GetLeaderboardQuery{TenantID: tenantA})
	require.NoError(t, err)

	require.Len(t, result.Entries, 4)
	assert.Equal(t, 4, result.TotalCount)
	assert.False(t, result.FromCache)

	// Equal totals share a rank; the next distinct total takes rank+1.
	ranks := []int{result.Entries[0].Rank, result.Entries[1].Rank, result.Entries[2].Rank, result.Entries[3].Rank}
	assert.Equal(t, []int{1, 1, 2, 3}, ranks)
	assert.Equal(t, 100, result.Entries[0].TotalPoints)
	assert.Equal(t, 80, result.Entries[3].TotalPoints)
}

func TestLeaderboardPaginationKeepsGlobalRanks(t *testing.T) {
	store := testutil.NewMemStore()
	seedAggregate(t, store, 100, 0)
	seedAggregate(t, store, 100, 0)
	seedAggregate(t, store, 90, 0)
	seedAggregate(t, store, 80, 0)

	h := query.NewGetLeaderboardHandler(store.Repos().Aggregates, nil, query.DefaultGetLeaderboardHandlerConfig())
	result, err := h.Handle(context.Background(), query.GetLeaderboardQuery{
		TenantID: tenantA,
		Limit:    2,
		Offset:   2,
	})
	require.NoError(t, err)

	// Ranks are assigned over the whole tenant before the page is cut.
	require.Len(t, result.Entries, 2)
	assert.Equal(t, 2, result.Entries[0].Rank)
	assert.Equal(t, 90, result.Entries[0].TotalPoints)
	assert.Equal(t, 3, result.Entries[1].Rank)
	assert.Equal(t, 4, result.TotalCount)
}

func TestLeaderboardServesFromCache(t *testing.T) {
	store := testutil.NewMemStore()
	seedAggregate(t, store, 100, 0)
	seedAggregate(t, store, 90, 0)
	cache := testutil.NewMemCache()

	h := query.NewGetLeaderboardHandler(store.Repos().Aggregates, cache, query.DefaultGetLeaderboardHandlerConfig())

	first, err := h.Handle(context.Background(), query.GetLeaderboardQuery{TenantID: tenantA, Limit: 2})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, cache.Sets)

	// New points land after the fill; the cached page keeps serving until
	// it is invalidated or expires.
	seedAggregate(t, store, 500, 0)

	second, err := h.Handle(context.Background(), query.GetLeaderboardQuery{TenantID: tenantA, Limit: 2})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 100, second.Entries[0].TotalPoints)

	require.NoError(t, cache.Invalidate(context.Background(), shared.TenantID(tenantA)))

	third, err := h.Handle(context.Background(), query.GetLeaderboardQuery{TenantID: tenantA, Limit: 2})
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Equal(t, 500, third.Entries[0].TotalPoints)
}

func TestLeaderboardEmptyTenant(t *testing.T) {
	store := testutil.NewMemStore()

	h := query.NewGetLeaderboardHandler(store.Repos().Aggregates, nil, query.DefaultGetLeaderboardHandlerConfig())
	result, err := h.Handle(context.Background(), query.GetLeaderboardQuery{TenantID: tenantA})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
	assert.Zero(t, result.TotalCount)
}

func TestLeaderboardValidation(t *testing.T) {
	store := testutil.NewMemStore()
	h := query.NewGetLeaderboardHandler(store.Repos().Aggregates, nil, query.DefaultGetLeaderboardHandlerConfig())

	_, err := h.Handle(context.Background(), query.GetLeaderboardQuery{TenantID: "not-a-tenant"})
	require.Error(t, err)

	_, err = h.Handle(context.Background(), query.GetLeaderboardQuery{TenantID: tenantA, Offset: -1})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
