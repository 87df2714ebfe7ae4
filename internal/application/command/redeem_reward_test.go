package command_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/reward"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

func seedReward(t *testing.T, e *env, cost int, stock int) *reward.Reward {
	t.Helper()
	tenantID, _ := shared.NewTenantID(tenantA)
	rw, err := reward.NewReward(tenantID, "Homework pass", "skip one assignment", shared.Coins(cost), stock)
	require.NoError(t, err)
	require.NoError(t, e.store.Repos().Rewards.CreateReward(context.Background(), rw))
	return rw
}

func redeemCmd(rewardID string) command.RedeemRewardCommand {
	return command.RedeemRewardCommand{
		StudentID: studentA,
		TenantID:  tenantA,
		RewardID:  rewardID,
		Actor:     staffActor(),
	}
}

func TestRedeemSpendsCoinsAndTakesStock(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)
	e.fund(t, studentA, 0, 30)
	rw := seedReward(t, e, 10, 2)

	h := command.NewRedeemRewardHandler(e.svc, e.store, nil, e.bus)
	result, err := h.Handle(context.Background(), redeemCmd(rw.ID))
	require.NoError(t, err)

	assert.Equal(t, reward.RedemptionPendingFulfillment, result.Redemption.Status)
	assert.Equal(t, shared.Coins(10), result.Redemption.CoinCost)

	agg, err := e.store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Coins(20), agg.AvailableCoins)
	assert.Equal(t, shared.Coins(10), agg.SpentCoins)

	stored, err := e.store.Repos().Rewards.GetReward(context.Background(), rw.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stock)

	// The coin spend is a redemption-kind ledger row referencing the record.
	tx, err := e.store.Repos().Ledger.GetByID(context.Background(), result.Redemption.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindRedemption, tx.Kind)
	assert.Equal(t, result.Redemption.ID, tx.Reference)
	assert.Equal(t, 1, e.bus.Count(shared.EventRewardRedeemed))
}

func TestRedeemInsufficientCoins(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)
	e.fund(t, studentA, 0, 5)
	rw := seedReward(t, e, 10, 2)

	h := command.NewRedeemRewardHandler(e.svc, e.store, nil, e.bus)
	_, err := h.Handle(context.Background(), redeemCmd(rw.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotEnoughCoins)

	// Balance, stock and history are untouched.
	agg, err := e.store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Coins(5), agg.AvailableCoins)

	stored, err := e.store.Repos().Rewards.GetReward(context.Background(), rw.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Stock)
}

func TestRedeemLastUnitExhaustsStock(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)
	e.fund(t, studentA, 0, 50)
	rw := seedReward(t, e, 10, 1)
	h := command.NewRedeemRewardHandler(e.svc, e.store, nil, e.bus)

	_, err := h.Handle(context.Background(), redeemCmd(rw.ID))
	require.NoError(t, err)

	// The second redemption loses the stock guard; its coin spend rolls
	// back with the failed hook.
	_, err = h.Handle(context.Background(), redeemCmd(rw.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRewardInactive)

	agg, err := e.store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Coins(40), agg.AvailableCoins)

	redemptions, err := e.store.Repos().Rewards.ListRedemptions(context.Background(), studentID, tenantID, shared.Page{})
	require.NoError(t, err)
	assert.Len(t, redemptions, 1)
}

func TestRedeemUnlimitedStock(t *testing.T) {
	e := newEnv(t)
	e.fund(t, studentA, 0, 50)
	rw := seedReward(t, e, 10, reward.StockUnlimited)
	h := command.NewRedeemRewardHandler(e.svc, e.store, nil, e.bus)

	for i := 0; i < 3; i++ {
		_, err := h.Handle(context.Background(), redeemCmd(rw.ID))
		require.NoError(t, err)
	}

	stored, err := e.store.Repos().Rewards.GetReward(context.Background(), rw.ID)
	require.NoError(t, err)
	assert.Equal(t, reward.StockUnlimited, stored.Stock)
}

func TestRedeemInactiveReward(t *testing.T) {
	e := newEnv(t)
	e.fund(t, studentA, 0, 50)
	rw := seedReward(t, e, 10, 2)
	rw.Active = false
	require.NoError(t, e.store.Repos().Rewards.UpdateReward(context.Background(), rw))

	h := command.NewRedeemRewardHandler(e.svc, e.store, nil, e.bus)
	_, err := h.Handle(context.Background(), redeemCmd(rw.ID))
	assert.ErrorIs(t, err, shared.ErrRewardInactive)
}

func TestRedeemUnknownReward(t *testing.T) {
	e := newEnv(t)
	h := command.NewRedeemRewardHandler(e.svc, e.store, nil, e.bus)

	_, err := h.Handle(context.Background(), redeemCmd("9ca4322d-ebd5-4ffa-a340-56fe811bbab1"))
	assert.ErrorIs(t, err, shared.ErrRewardNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESOLUTION
// ══════════════════════════════════════════════════════════════════════════════

func redeemOnce(t *testing.T, e *env) *reward.Redemption {
	t.Helper()
	e.fund(t, studentA, 0, 30)
	rw := seedReward(t, e, 10, 5)
	h := command.NewRedeemRewardHandler(e.svc, e.store, nil, e.bus)
	result, err := h.Handle(context.Background(), redeemCmd(rw.ID))
	require.NoError(t, err)
	return result.Redemption
}

func TestFulfillRedemption(t *testing.T) {
	e := newEnv(t)
	rd := redeemOnce(t, e)

	h := command.NewResolveRedemptionHandler(e.svc, e.store)
	result, err := h.Handle(context.Background(), command.ResolveRedemptionCommand{
		RedemptionID: rd.ID,
		Fulfill:      true,
		Actor:        staffActor(),
	})
	require.NoError(t, err)

	assert.Equal(t, reward.RedemptionFulfilled, result.Redemption.Status)
	assert.Nil(t, result.Refund)
	require.NotNil(t, result.Redemption.ResolvedAt)
}

func TestCancelRedemptionRefundsCoins(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)
	rd := redeemOnce(t, e)

	h := command.NewResolveRedemptionHandler(e.svc, e.store)
	result, err := h.Handle(context.Background(), command.ResolveRedemptionCommand{
		RedemptionID: rd.ID,
		Fulfill:      false,
		Actor:        staffActor(),
	})
	require.NoError(t, err)

	assert.Equal(t, reward.RedemptionCancelled, result.Redemption.Status)
	require.NotNil(t, result.Refund)
	assert.Equal(t, shared.Coins(10), result.Refund.Coins)

	agg, err := e.store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Coins(30), agg.AvailableCoins)
}

func TestResolveTwiceConflicts(t *testing.T) {
	e := newEnv(t)
	rd := redeemOnce(t, e)
	h := command.NewResolveRedemptionHandler(e.svc, e.store)

	_, err := h.Handle(context.Background(), command.ResolveRedemptionCommand{
		RedemptionID: rd.ID,
		Fulfill:      true,
		Actor:        staffActor(),
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), command.ResolveRedemptionCommand{
		RedemptionID: rd.ID,
		Fulfill:      false,
		Actor:        staffActor(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTerminalState)
}

func TestConcurrentRedemptionsRespectBalance(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)
	e.fund(t, studentA, 0, 30)
	rw := seedReward(t, e, 20, reward.StockUnlimited)

	h := command.NewRedeemRewardHandler(e.svc, e.store, nil, e.bus)

	// Two simultaneous spends together exceed the balance; the coin
	// deduction happens inside the committing transaction, so exactly one
	// of them may land.
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := h.Handle(context.Background(), redeemCmd(rw.ID))
			errs[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], shared.ErrNotEnoughCoins)

	agg, err := e.store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Coins(10), agg.AvailableCoins)
	assert.Equal(t, shared.Coins(20), agg.SpentCoins)

	redemptions, err := e.store.Repos().Rewards.ListRedemptions(context.Background(), studentID, tenantID, shared.Page{})
	require.NoError(t, err)
	assert.Len(t, redemptions, 1)
}
