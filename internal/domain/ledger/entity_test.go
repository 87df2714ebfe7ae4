package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

const (
	testStudentID = shared.StudentID("1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed")
	testTenantID  = shared.TenantID("6ec0bd7f-11c0-43da-975e-2a8ad9ebae0b")
)

func validParams() NewTransactionParams {
	return NewTransactionParams{
		ID:        "9ca4322d-ebd5-4ffa-a340-56fe811bbab1",
		StudentID: testStudentID,
		TenantID:  testTenantID,
		Kind:      KindEarned,
		Points:    10,
		Coins:     2,
		Reason:    "homework completed",
		Category:  CategoryHomework,
		AwardedBy: "teacher-1",
	}
}

func TestNewTransaction_Valid(t *testing.T) {
	tx, err := NewTransaction(validParams())
	require.NoError(t, err)

	assert.Equal(t, KindEarned, tx.Kind)
	assert.Equal(t, shared.Points(10), tx.Points)
	assert.Equal(t, shared.Coins(2), tx.Coins)
	assert.False(t, tx.IsDeleted())
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestNewTransaction_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NewTransactionParams)
		wantErr error
	}{
		{"missing id", func(p *NewTransactionParams) { p.ID = "" }, ErrMissingID},
		{"missing student", func(p *NewTransactionParams) { p.StudentID = "" }, ErrMissingStudent},
		{"missing tenant", func(p *NewTransactionParams) { p.TenantID = "" }, ErrMissingTenant},
		{"unknown kind", func(p *NewTransactionParams) { p.Kind = "transfer" }, ErrUnknownKind},
		{"unknown category", func(p *NewTransactionParams) { p.Category = "sports" }, ErrUnknownCategory},
		{"empty reason", func(p *NewTransactionParams) { p.Reason = "   " }, ErrMissingReason},
		{"zero deltas", func(p *NewTransactionParams) { p.Points = 0; p.Coins = 0 }, ErrZeroDeltas},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)

			_, err := NewTransaction(params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransaction_MarkDeleted(t *testing.T) {
	tx, err := NewTransaction(validParams())
	require.NoError(t, err)

	require.NoError(t, tx.MarkDeleted("admin-1"))
	assert.True(t, tx.IsDeleted())
	assert.Equal(t, "admin-1", tx.DeletedBy)

	// Deltas stay untouched after deletion.
	assert.Equal(t, shared.Points(10), tx.Points)

	// Second delete fails.
	assert.ErrorIs(t, tx.MarkDeleted("admin-2"), ErrAlreadyDeleted)
}

func TestTransaction_Compensation(t *testing.T) {
	tx, err := NewTransaction(validParams())
	require.NoError(t, err)

	comp, err := tx.Compensation("0b7e57a1-55f0-4f0a-9f4b-2fbb6bfa6d01", "admin-1", "reversal of mistaken award")
	require.NoError(t, err)

	assert.Equal(t, KindBonus, comp.Kind)
	assert.Equal(t, shared.Points(-10), comp.Points)
	assert.Equal(t, shared.Coins(-2), comp.Coins)
	assert.Equal(t, tx.ID, comp.Reference)
	assert.Equal(t, tx.StudentID, comp.StudentID)
}

func TestReplay(t *testing.T) {
	mk := func(points shared.Points, coins shared.Coins, kind Kind) *Transaction {
		p := validParams()
		p.ID = "9ca4322d-ebd5-4ffa-a340-" + string(rune('a'+points%26)) + "00000000000"
		p.Points = points
		p.Coins = coins
		p.Kind = kind
		if points == 0 && coins == 0 {
			p.Points = 1
		}
		tx, err := NewTransaction(p)
		if err != nil {
			t.Fatalf("building fixture: %v", err)
		}
		return tx
	}

	earn := mk(10, 5, KindEarned)
	bonus := mk(20, 0, KindBonus)
	spend := mk(0, -3, KindRedemption)

	res := Replay([]*Transaction{earn, bonus, spend})
	assert.Equal(t, shared.Points(30), res.TotalPoints)
	assert.Equal(t, shared.Coins(2), res.AvailableCoins)
	assert.Equal(t, shared.Coins(3), res.SpentCoins)
	assert.Equal(t, 3, res.Transactions)
}

func TestReplay_ExcludesDeleted(t *testing.T) {
	tx1, err := NewTransaction(validParams())
	require.NoError(t, err)

	p2 := validParams()
	p2.ID = "0b7e57a1-55f0-4f0a-9f4b-2fbb6bfa6d01"
	p2.Points = 40
	tx2, err := NewTransaction(p2)
	require.NoError(t, err)

	before := Replay([]*Transaction{tx1, tx2})
	assert.Equal(t, shared.Points(50), before.TotalPoints)

	require.NoError(t, tx2.MarkDeleted("admin-1"))

	after := Replay([]*Transaction{tx1, tx2})
	assert.Equal(t, shared.Points(10), after.TotalPoints)
	assert.Equal(t, 1, after.Transactions)
}
