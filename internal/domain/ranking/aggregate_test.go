package ranking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

func newTestAggregate(t *testing.T) *Aggregate {
	t.Helper()

	agg, err := NewAggregate(
		shared.StudentID(uuid.NewString()),
		shared.TenantID(uuid.NewString()),
		DefaultLevelSize,
	)
	require.NoError(t, err)
	return agg
}

func TestComputeLevel(t *testing.T) {
	tests := []struct {
		name      string
		points    shared.Points
		levelSize int
		want      int
	}{
		{"zero points is level 1", 0, 100, 1},
		{"just below boundary", 99, 100, 1},
		{"exact boundary", 100, 100, 2},
		{"mid level", 250, 100, 3},
		{"negative points floor at level 1", -40, 100, 1},
		{"custom level size", 50, 25, 3},
		{"invalid size falls back to default", 150, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeLevel(tt.points, tt.levelSize))
		})
	}
}

func TestNewAggregate_Validation(t *testing.T) {
	_, err := NewAggregate("", shared.TenantID(uuid.NewString()), DefaultLevelSize)
	assert.ErrorIs(t, err, ErrMissingStudent)

	_, err = NewAggregate(shared.StudentID(uuid.NewString()), "", DefaultLevelSize)
	assert.ErrorIs(t, err, ErrMissingTenant)

	agg := newTestAggregate(t)
	assert.Equal(t, 1, agg.Level)
	assert.Equal(t, Version(0), agg.Version)
}

func TestAggregate_ApplyDelta(t *testing.T) {
	agg := newTestAggregate(t)

	res, err := agg.ApplyDelta(30, 3, DefaultLevelSize)
	require.NoError(t, err)
	assert.False(t, res.LeveledUp)
	assert.Equal(t, shared.Points(30), agg.TotalPoints)
	assert.Equal(t, shared.Coins(3), agg.AvailableCoins)

	// Crossing a level boundary reports the level up.
	res, err = agg.ApplyDelta(80, 0, DefaultLevelSize)
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, res.PreviousLevel)
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, 2, agg.Level)
}

func TestAggregate_ApplyDelta_NegativePoints(t *testing.T) {
	agg := newTestAggregate(t)

	_, err := agg.ApplyDelta(-20, 0, DefaultLevelSize)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(-20), agg.TotalPoints)
	assert.Equal(t, 1, agg.Level)
}

func TestAggregate_ApplyDelta_CoinsNeverNegative(t *testing.T) {
	agg := newTestAggregate(t)

	_, err := agg.ApplyDelta(0, 5, DefaultLevelSize)
	require.NoError(t, err)

	_, err = agg.ApplyDelta(0, -6, DefaultLevelSize)
	assert.ErrorIs(t, err, ErrNegativeCoins)

	// The rejected delta must not touch the totals.
	assert.Equal(t, shared.Coins(5), agg.AvailableCoins)
	assert.Equal(t, shared.Coins(0), agg.SpentCoins)
}

func TestAggregate_SpentCoinsAccumulate(t *testing.T) {
	agg := newTestAggregate(t)

	_, err := agg.ApplyDelta(0, 10, DefaultLevelSize)
	require.NoError(t, err)

	_, err = agg.ApplyDelta(0, -4, DefaultLevelSize)
	require.NoError(t, err)

	_, err = agg.ApplyDelta(0, -3, DefaultLevelSize)
	require.NoError(t, err)

	assert.Equal(t, shared.Coins(3), agg.AvailableCoins)
	assert.Equal(t, shared.Coins(7), agg.SpentCoins)
}

func TestAggregate_CanAfford(t *testing.T) {
	agg := newTestAggregate(t)
	_, err := agg.ApplyDelta(0, 10, DefaultLevelSize)
	require.NoError(t, err)

	assert.True(t, agg.CanAfford(10))
	assert.False(t, agg.CanAfford(11))
	assert.False(t, agg.CanAfford(-1))
}

func TestDenseRank(t *testing.T) {
	mk := func(points shared.Points) *Aggregate {
		agg := newTestAggregate(t)
		agg.TotalPoints = points
		agg.Level = ComputeLevel(points, DefaultLevelSize)
		return agg
	}

	// Sorted descending, with a tie at 100.
	sorted := []*Aggregate{mk(150), mk(100), mk(100), mk(80)}

	entries := DenseRank(sorted)
	require.Len(t, entries, 4)

	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, 2, entries[2].Rank)
	// Dense: no gap after the tie.
	assert.Equal(t, 3, entries[3].Rank)
}

func TestDenseRank_Empty(t *testing.T) {
	assert.Empty(t, DenseRank(nil))
}
