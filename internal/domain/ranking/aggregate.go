// Package ranking contains the balance aggregate - the denormalized running
// totals derived from the ledger. The aggregate is a cache of a fold over the
// transaction history: it can always be discarded and rebuilt by replaying the
// ledger, and a version counter guards every write against lost updates.
package ranking

import (
	"errors"
	"fmt"
	"time"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultLevelSize - number of points per level when no override is configured.
const DefaultLevelSize = 100

// ComputeLevel derives the level from total points as a step function:
// level = totalPoints/levelSize + 1, floored at level 1 for negative totals.
// With the default size: 0-99 points is level 1, 100-199 is level 2, and so on.
func ComputeLevel(totalPoints shared.Points, levelSize int) int {
	if levelSize <= 0 {
		levelSize = DefaultLevelSize
	}
	if totalPoints < 0 {
		return 1
	}
	return int(totalPoints)/levelSize + 1
}

// Version is the optimistic concurrency counter of an aggregate row.
// Every successful write increments it by exactly one.
type Version int64

// Next returns the version a successful write must store.
func (v Version) Next() Version {
	return v + 1
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Aggregate holds the running totals for one student within one tenant.
// All fields are derived from the ledger; TotalPoints may go negative,
// AvailableCoins never may.
type Aggregate struct {
	// StudentID - owner of the totals.
	StudentID shared.StudentID

	// TenantID - tenant scope of the totals.
	TenantID shared.TenantID

	// TotalPoints - lifetime sum of point deltas (may be negative).
	TotalPoints shared.Points

	// AvailableCoins - spendable coin balance (never negative).
	AvailableCoins shared.Coins

	// SpentCoins - lifetime sum of redeemed coins, kept for stats.
	SpentCoins shared.Coins

	// Level - step function of TotalPoints, recomputed on every write.
	Level int

	// Version - optimistic lock counter, starts at 1 on first write.
	Version Version

	// UpdatedAt - time of the last applied delta.
	UpdatedAt time.Time
}

// Domain errors for the ranking aggregate.
var (
	// ErrMissingStudent - aggregate requires a student.
	ErrMissingStudent = errors.New("aggregate requires a student id")

	// ErrMissingTenant - aggregate requires a tenant.
	ErrMissingTenant = errors.New("aggregate requires a tenant id")

	// ErrNegativeCoins - a delta would drive the coin balance below zero.
	ErrNegativeCoins = errors.New("coin balance cannot go negative")
)

// NewAggregate creates the zero-valued aggregate a student starts from.
// Version 0 means "never persisted"; the first write stores version 1.
func NewAggregate(studentID shared.StudentID, tenantID shared.TenantID, levelSize int) (*Aggregate, error) {
	if !studentID.IsValid() {
		return nil, ErrMissingStudent
	}
	if !tenantID.IsValid() {
		return nil, ErrMissingTenant
	}

	return &Aggregate{
		StudentID:      studentID,
		TenantID:       tenantID,
		TotalPoints:    0,
		AvailableCoins: 0,
		SpentCoins:     0,
		Level:          ComputeLevel(0, levelSize),
		Version:        0,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// DeltaResult describes what a single ApplyDelta did to the aggregate.
type DeltaResult struct {
	// LeveledUp - true if the level increased.
	LeveledUp bool

	// PreviousLevel - level before the delta.
	PreviousLevel int

	// NewLevel - level after the delta.
	NewLevel int
}

// ApplyDelta folds one transaction's deltas into the totals and recomputes
// the level. Negative coin deltas are spends and accumulate into SpentCoins.
// The delta is rejected wholesale if it would make AvailableCoins negative;
// points are allowed to go negative.
func (a *Aggregate) ApplyDelta(points shared.Points, coins shared.Coins, levelSize int) (DeltaResult, error) {
	if a.AvailableCoins+coins < 0 {
		return DeltaResult{}, fmt.Errorf("%w: have %d, delta %d", ErrNegativeCoins, a.AvailableCoins, coins)
	}

	prev := a.Level

	a.TotalPoints += points
	a.AvailableCoins += coins
	if coins < 0 {
		a.SpentCoins += coins.Abs()
	}
	a.Level = ComputeLevel(a.TotalPoints, levelSize)
	a.UpdatedAt = time.Now().UTC()

	return DeltaResult{
		LeveledUp:     a.Level > prev,
		PreviousLevel: prev,
		NewLevel:      a.Level,
	}, nil
}

// CanAfford reports whether the available coin balance covers a cost.
func (a *Aggregate) CanAfford(cost shared.Coins) bool {
	return cost >= 0 && a.AvailableCoins >= cost
}

// PointsToNextLevel returns how many points remain until the next level.
func (a *Aggregate) PointsToNextLevel(levelSize int) shared.Points {
	if levelSize <= 0 {
		levelSize = DefaultLevelSize
	}
	if a.TotalPoints < 0 {
		// Negative totals sit on level 1, which ends at levelSize points.
		return shared.Points(levelSize) - a.TotalPoints
	}
	return shared.Points(levelSize) - a.TotalPoints%shared.Points(levelSize)
}

// Clone returns a copy of the aggregate.
func (a *Aggregate) Clone() *Aggregate {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// String returns a compact representation for logging.
func (a *Aggregate) String() string {
	return fmt.Sprintf(
		"Aggregate{Student: %s, Points: %d, Coins: %d, Level: %d, V: %d}",
		a.StudentID, a.TotalPoints, a.AvailableCoins, a.Level, a.Version,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKED VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// RankedEntry is one row of a leaderboard view: an aggregate plus its dense
// rank. Rank is never stored - it is computed at query time from the ordered
// aggregates, so students with equal points share a rank and the next distinct
// total takes rank+1 with no gaps.
type RankedEntry struct {
	// Rank - dense rank within the requested scope (1-based).
	Rank int

	// StudentID - owner of the entry.
	StudentID shared.StudentID

	// TotalPoints - points the rank was computed from.
	TotalPoints shared.Points

	// AvailableCoins - current spendable balance.
	AvailableCoins shared.Coins

	// Level - level at the time of the query.
	Level int
}

// DenseRank assigns dense ranks to aggregates already sorted by TotalPoints
// descending. Equal totals share a rank; the next distinct total gets the
// previous rank plus one. Used by in-memory fallbacks and tests; the SQL
// read path uses DENSE_RANK() directly.
func DenseRank(sorted []*Aggregate) []RankedEntry {
	entries := make([]RankedEntry, 0, len(sorted))

	rank := 0
	var prevPoints shared.Points
	for i, agg := range sorted {
		if i == 0 || agg.TotalPoints != prevPoints {
			rank++
			prevPoints = agg.TotalPoints
		}
		entries = append(entries, RankedEntry{
			Rank:           rank,
			StudentID:      agg.StudentID,
			TotalPoints:    agg.TotalPoints,
			AvailableCoins: agg.AvailableCoins,
			Level:          agg.Level,
		})
	}

	return entries
}
