package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/internal/infrastructure/service"
	"github.com/classpoints/points-engine/internal/testutil"
)

const (
	testStudentID = "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"
	testTenantID  = "6ec0bd7f-11c0-43da-975e-2a8ad9ebae0b"
)

func newPipeline(t *testing.T) (*testutil.MemStore, *testutil.CaptureBus, *service.LedgerService) {
	t.Helper()
	store := testutil.NewMemStore()
	bus := &testutil.CaptureBus{}
	svc := service.NewLedgerService(store, bus, nil, nil, service.LedgerServiceConfig{
		LevelSize:           100,
		AchievementsEnabled: true,
	})
	return store, bus, svc
}

func ids(t *testing.T) (shared.StudentID, shared.TenantID) {
	t.Helper()
	studentID, err := shared.NewStudentID(testStudentID)
	require.NoError(t, err)
	tenantID, err := shared.NewTenantID(testTenantID)
	require.NoError(t, err)
	return studentID, tenantID
}

func earnedTx(t *testing.T, points shared.Points, coins shared.Coins) *ledger.Transaction {
	t.Helper()
	studentID, tenantID := ids(t)

	kind := ledger.KindEarned
	if points < 0 || (points == 0 && coins < 0) {
		kind = ledger.KindDeducted
	}
	tx, err := ledger.NewTransaction(ledger.NewTransactionParams{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TenantID:  tenantID,
		Kind:      kind,
		Points:    points,
		Coins:     coins,
		Reason:    "homework completed",
		Category:  ledger.CategoryHomework,
		AwardedBy: "staff-1",
	})
	require.NoError(t, err)
	return tx
}

func TestCommitAppliesDeltas(t *testing.T) {
	store, bus, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	result, err := svc.Commit(context.Background(), earnedTx(t, 30, 3))
	require.NoError(t, err)

	assert.Equal(t, shared.Points(30), result.Aggregate.TotalPoints)
	assert.Equal(t, shared.Coins(3), result.Aggregate.AvailableCoins)
	assert.Equal(t, ranking.Version(1), result.Aggregate.Version)
	assert.False(t, result.LeveledUp)

	stored, err := store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(30), stored.TotalPoints)

	assert.Equal(t, 1, bus.Count(shared.EventTransactionCommitted))
}

func TestCommitAccumulatesAcrossTransactions(t *testing.T) {
	store, _, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	for i := 0; i < 4; i++ {
		_, err := svc.Commit(context.Background(), earnedTx(t, 10, 1))
		require.NoError(t, err)
	}

	agg, err := store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(40), agg.TotalPoints)
	assert.Equal(t, shared.Coins(4), agg.AvailableCoins)
	assert.Equal(t, ranking.Version(4), agg.Version)

	replay, err := store.Repos().Ledger.Replay(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int(agg.TotalPoints), int(replay.TotalPoints))
}

func TestCommitRetriesOnVersionRace(t *testing.T) {
	store, _, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	// Two lost races, then the cycle goes through.
	store.SaveErrs = []error{shared.ErrAggregateConflict, shared.ErrAggregateConflict}

	result, err := svc.Commit(context.Background(), earnedTx(t, 15, 0))
	require.NoError(t, err)
	assert.Equal(t, shared.Points(15), result.Aggregate.TotalPoints)

	// The rolled-back attempts must not leave duplicate ledger rows.
	count, err := store.Repos().Ledger.CountByStudent(context.Background(), studentID, tenantID, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCommitGivesUpAfterRepeatedRaces(t *testing.T) {
	store, _, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	store.SaveErrs = []error{
		shared.ErrAggregateConflict,
		shared.ErrAggregateConflict,
		shared.ErrAggregateConflict,
		shared.ErrAggregateConflict,
		shared.ErrAggregateConflict,
	}

	_, err := svc.Commit(context.Background(), earnedTx(t, 15, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrOptimisticLock)

	// Every attempt rolled back: the ledger stays empty.
	count, err := store.Repos().Ledger.CountByStudent(context.Background(), studentID, tenantID, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCommitDetectsLevelUp(t *testing.T) {
	_, bus, svc := newPipeline(t)

	_, err := svc.Commit(context.Background(), earnedTx(t, 95, 0))
	require.NoError(t, err)

	result, err := svc.Commit(context.Background(), earnedTx(t, 10, 0))
	require.NoError(t, err)

	assert.True(t, result.LeveledUp)
	assert.Equal(t, 1, result.PreviousLevel)
	assert.Equal(t, 2, result.Aggregate.Level)
	assert.Equal(t, 1, bus.Count(shared.EventLevelUp))
}

func TestCommitRejectsOverdraft(t *testing.T) {
	store, _, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	_, err := svc.Commit(context.Background(), earnedTx(t, 0, -5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ranking.ErrNegativeCoins)

	count, err := store.Repos().Ledger.CountByStudent(context.Background(), studentID, tenantID, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCommitHookFailureRollsBackEverything(t *testing.T) {
	store, bus, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	hookErr := errors.New("stock gone")
	_, err := svc.Commit(context.Background(), earnedTx(t, 20, 2),
		func(ctx context.Context, repos command.Repos) error { return hookErr })
	require.ErrorIs(t, err, hookErr)

	_, err = store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	assert.ErrorIs(t, err, shared.ErrAggregateNotFound)

	count, err := store.Repos().Ledger.CountByStudent(context.Background(), studentID, tenantID, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, bus.Count(shared.EventTransactionCommitted))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

func seedAchievement(t *testing.T, store *testutil.MemStore, pred achievement.Predicate, bonusPoints shared.Points, bonusCoins shared.Coins) *achievement.Achievement {
	t.Helper()
	_, tenantID := ids(t)
	a, err := achievement.NewAchievement(tenantID, "Point Collector", "reach the threshold", pred, bonusPoints, bonusCoins)
	require.NoError(t, err)
	require.NoError(t, store.Repos().Achievements.CreateAchievement(context.Background(), a))
	return a
}

func TestCommitUnlocksAchievementWithBonus(t *testing.T) {
	store, bus, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	a := seedAchievement(t, store, achievement.Predicate{
		Type:      achievement.PredicateTotalPoints,
		Threshold: 50,
	}, 10, 0)

	result, err := svc.Commit(context.Background(), earnedTx(t, 60, 0))
	require.NoError(t, err)

	require.Len(t, result.Unlocks, 1)
	assert.Equal(t, a.ID, result.Unlocks[0].Achievement.ID)
	require.NotNil(t, result.Unlocks[0].BonusTransaction)
	assert.Equal(t, ledger.KindBonus, result.Unlocks[0].BonusTransaction.Kind)
	assert.Equal(t, ledger.CategoryAchievement, result.Unlocks[0].BonusTransaction.Category)

	// The bonus lands in the same storage transaction as the trigger.
	agg, err := store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(70), agg.TotalPoints)

	unlocked, err := store.Repos().Achievements.ListUnlocked(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, unlocked)
	assert.Equal(t, 1, bus.Count(shared.EventAchievementUnlocked))
}

func TestCommitUnlocksAtMostOnce(t *testing.T) {
	store, _, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	seedAchievement(t, store, achievement.Predicate{
		Type:      achievement.PredicateTotalPoints,
		Threshold: 50,
	}, 10, 0)

	first, err := svc.Commit(context.Background(), earnedTx(t, 60, 0))
	require.NoError(t, err)
	require.Len(t, first.Unlocks, 1)

	// The predicate still holds, but the unlock record already exists.
	second, err := svc.Commit(context.Background(), earnedTx(t, 5, 0))
	require.NoError(t, err)
	assert.Empty(t, second.Unlocks)

	unlocks, err := store.Repos().Achievements.ListUnlocks(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Len(t, unlocks, 1)
}

func TestCommitSkipsEvaluationForAchievementCategory(t *testing.T) {
	store, _, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	seedAchievement(t, store, achievement.Predicate{
		Type:      achievement.PredicateTotalPoints,
		Threshold: 10,
	}, 5, 0)

	tx, err := ledger.NewTransaction(ledger.NewTransactionParams{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TenantID:  tenantID,
		Kind:      ledger.KindBonus,
		Points:    50,
		Reason:    "manual correction",
		Category:  ledger.CategoryAchievement,
		AwardedBy: "system",
	})
	require.NoError(t, err)

	result, err := svc.Commit(context.Background(), tx)
	require.NoError(t, err)
	assert.Empty(t, result.Unlocks)
}

func TestCommitSkipsInactiveAchievements(t *testing.T) {
	store, _, svc := newPipeline(t)

	a := seedAchievement(t, store, achievement.Predicate{
		Type:      achievement.PredicateTotalPoints,
		Threshold: 10,
	}, 5, 0)
	require.NoError(t, store.Repos().Achievements.SetActive(context.Background(), a.ID, false))

	result, err := svc.Commit(context.Background(), earnedTx(t, 100, 0))
	require.NoError(t, err)
	assert.Empty(t, result.Unlocks)
}

func TestCommitCountPredicateUsesCategory(t *testing.T) {
	store, _, svc := newPipeline(t)

	a := seedAchievement(t, store, achievement.Predicate{
		Type:      achievement.PredicateTransactionCount,
		Category:  string(ledger.CategoryHomework),
		Threshold: 3,
	}, 0, 2)

	var result *command.CommitResult
	var err error
	for i := 0; i < 3; i++ {
		result, err = svc.Commit(context.Background(), earnedTx(t, 5, 0))
		require.NoError(t, err)
	}

	require.Len(t, result.Unlocks, 1)
	assert.Equal(t, a.ID, result.Unlocks[0].Achievement.ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE
// ══════════════════════════════════════════════════════════════════════════════

func TestDeleteAdjustsAggregate(t *testing.T) {
	store, _, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	committed, err := svc.Commit(context.Background(), earnedTx(t, 40, 4))
	require.NoError(t, err)

	deleted, err := svc.Delete(context.Background(), committed.Transaction.ID, "admin-1")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())
	assert.Equal(t, "admin-1", deleted.DeletedBy)

	agg, err := store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Zero(t, int(agg.TotalPoints))
	assert.Zero(t, int(agg.AvailableCoins))

	// The row stays in history.
	tx, err := store.Repos().Ledger.GetByID(context.Background(), committed.Transaction.ID)
	require.NoError(t, err)
	assert.True(t, tx.IsDeleted())
}

func TestDeleteTwiceFails(t *testing.T) {
	_, _, svc := newPipeline(t)

	committed, err := svc.Commit(context.Background(), earnedTx(t, 40, 0))
	require.NoError(t, err)

	_, err = svc.Delete(context.Background(), committed.Transaction.ID, "admin-1")
	require.NoError(t, err)

	_, err = svc.Delete(context.Background(), committed.Transaction.ID, "admin-1")
	assert.ErrorIs(t, err, shared.ErrAlreadyDeleted)
}

func TestDeleteUnknownTransaction(t *testing.T) {
	_, _, svc := newPipeline(t)

	_, err := svc.Delete(context.Background(), uuid.NewString(), "admin-1")
	assert.ErrorIs(t, err, shared.ErrTransactionNotFound)
}

func TestCommitConcurrentAwardsLoseNoUpdate(t *testing.T) {
	store, _, svc := newPipeline(t)
	studentID, tenantID := ids(t)

	first := earnedTx(t, 5, 0)
	second := earnedTx(t, 5, 0)

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, tx := range []*ledger.Transaction{first, second} {
		wg.Add(1)
		go func(i int, tx *ledger.Transaction) {
			defer wg.Done()
			<-start
			_, err := svc.Commit(context.Background(), tx)
			errs[i] = err
		}(i, tx)
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	agg, err := store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(10), agg.TotalPoints)
	assert.Equal(t, ranking.Version(2), agg.Version)

	replay, err := store.Repos().Ledger.Replay(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int(agg.TotalPoints), int(replay.TotalPoints))
	assert.Equal(t, 2, replay.Transactions)
}
