package reward

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

func newTestReward(t *testing.T, cost shared.Coins, stock int) *Reward {
	t.Helper()

	r, err := NewReward(shared.TenantID(uuid.NewString()), "Homework pass", "Skip one assignment", cost, stock)
	require.NoError(t, err)
	return r
}

func TestNewReward_Validation(t *testing.T) {
	tenant := shared.TenantID(uuid.NewString())

	_, err := NewReward("", "Name", "", 10, StockUnlimited)
	assert.ErrorIs(t, err, shared.ErrTenantUnresolved)

	_, err = NewReward(tenant, " ", "", 10, StockUnlimited)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = NewReward(tenant, "Name", "", 0, StockUnlimited)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = NewReward(tenant, "Name", "", 10, -2)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestReward_Redeemability(t *testing.T) {
	unlimited := newTestReward(t, 10, StockUnlimited)
	assert.True(t, unlimited.IsRedeemable())

	limited := newTestReward(t, 10, 1)
	assert.True(t, limited.IsRedeemable())

	require.NoError(t, limited.ConsumeStock())
	assert.Equal(t, 0, limited.Stock)
	assert.False(t, limited.IsRedeemable())
	assert.ErrorIs(t, limited.ConsumeStock(), shared.ErrRewardInactive)

	inactive := newTestReward(t, 10, StockUnlimited)
	inactive.Active = false
	assert.False(t, inactive.IsRedeemable())
}

func TestReward_ConsumeStock_UnlimitedUntouched(t *testing.T) {
	r := newTestReward(t, 10, StockUnlimited)
	require.NoError(t, r.ConsumeStock())
	assert.Equal(t, StockUnlimited, r.Stock)
}

func TestNewRedemption(t *testing.T) {
	rd, err := NewRedemption(
		shared.StudentID(uuid.NewString()),
		shared.TenantID(uuid.NewString()),
		uuid.NewString(),
		10,
		uuid.NewString(),
	)
	require.NoError(t, err)

	assert.Equal(t, RedemptionPendingFulfillment, rd.Status)
	assert.Nil(t, rd.ResolvedAt)
}

func TestNewRedemption_RequiresTransaction(t *testing.T) {
	_, err := NewRedemption(
		shared.StudentID(uuid.NewString()),
		shared.TenantID(uuid.NewString()),
		uuid.NewString(),
		10,
		"",
	)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRedemption_FulfillOnce(t *testing.T) {
	rd, err := NewRedemption(
		shared.StudentID(uuid.NewString()),
		shared.TenantID(uuid.NewString()),
		uuid.NewString(),
		10,
		uuid.NewString(),
	)
	require.NoError(t, err)

	require.NoError(t, rd.Fulfill())
	assert.Equal(t, RedemptionFulfilled, rd.Status)
	assert.NotNil(t, rd.ResolvedAt)

	assert.ErrorIs(t, rd.Fulfill(), shared.ErrTerminalState)
	assert.ErrorIs(t, rd.Cancel(), shared.ErrTerminalState)
}
