package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/application/query"
	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/internal/testutil"
)

func statsHandler(store *testutil.MemStore) *query.GetStudentStatsHandler {
	repos := store.Repos()
	return query.NewGetStudentStatsHandler(
		repos.Aggregates,
		repos.Ledger,
		repos.Achievements,
		repos.Referrals,
		query.DefaultGetStudentStatsHandlerConfig(),
	)
}

func TestStudentStatsProfile(t *testing.T) {
	store := testutil.NewMemStore()
	studentID, _ := shared.NewStudentID(studentH)
	tenantID, _ := shared.NewTenantID(tenantA)

	appendTx(t, store, 100, 5, ledger.CategoryHomework)
	appendTx(t, store, 50, 0, ledger.CategoryBehavior)

	agg, err := ranking.NewAggregate(studentID, tenantID, ranking.DefaultLevelSize)
	require.NoError(t, err)
	_, err = agg.ApplyDelta(150, 5, ranking.DefaultLevelSize)
	require.NoError(t, err)
	require.NoError(t, store.Repos().Aggregates.Save(context.Background(), agg))

	a, err := achievement.NewAchievement(tenantID, "Homework Hero", "ten homework entries", achievement.Predicate{
		Type:      achievement.PredicateTotalPoints,
		Threshold: 100,
	}, 0, 0)
	require.NoError(t, err)
	require.NoError(t, store.Repos().Achievements.CreateAchievement(context.Background(), a))
	sa, err := achievement.NewStudentAchievement(studentID, tenantID, a.ID)
	require.NoError(t, err)
	require.NoError(t, store.Repos().Achievements.RecordUnlock(context.Background(), sa))

	result, err := statsHandler(store).Handle(context.Background(), query.GetStudentStatsQuery{
		StudentID: studentH,
		TenantID:  tenantA,
	})
	require.NoError(t, err)

	assert.Equal(t, 150, result.TotalPoints)
	assert.Equal(t, 5, result.AvailableCoins)
	assert.Equal(t, 2, result.Level)
	assert.Equal(t, 50, result.PointsToNextLevel)
	assert.Equal(t, 1, result.Rank)
	assert.Equal(t, 2, result.TransactionCount)
	assert.Equal(t, 1, result.TransactionsByCategory["homework"])
	assert.Equal(t, 1, result.TransactionsByCategory["behavior"])
	require.Len(t, result.Achievements, 1)
	assert.Equal(t, "Homework Hero", result.Achievements[0].Name)
	assert.Zero(t, result.EnrolledReferrals)
}

func TestStudentStatsUnknownStudentIsEmptyProfile(t *testing.T) {
	store := testutil.NewMemStore()

	result, err := statsHandler(store).Handle(context.Background(), query.GetStudentStatsQuery{
		StudentID: studentH,
		TenantID:  tenantA,
	})
	require.NoError(t, err)

	assert.Zero(t, result.TotalPoints)
	assert.Zero(t, result.Rank)
	assert.Zero(t, result.TransactionCount)
	assert.Equal(t, ranking.DefaultLevelSize, result.PointsToNextLevel)
	assert.Empty(t, result.Achievements)
}
