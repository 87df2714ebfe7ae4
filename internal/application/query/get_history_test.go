package query_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/application/query"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/internal/testutil"
)

const studentH = "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"

func appendTx(t *testing.T, store *testutil.MemStore, points int, coins int, category ledger.Category) *ledger.Transaction {
	t.Helper()
	studentID, _ := shared.NewStudentID(studentH)
	tenantID, _ := shared.NewTenantID(tenantA)

	kind := ledger.KindEarned
	if points < 0 {
		kind = ledger.KindDeducted
	}
	tx, err := ledger.NewTransaction(ledger.NewTransactionParams{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TenantID:  tenantID,
		Kind:      kind,
		Points:    shared.Points(points),
		Coins:     shared.Coins(coins),
		Reason:    "seed entry",
		Category:  category,
		AwardedBy: "staff-1",
	})
	require.NoError(t, err)
	require.NoError(t, store.Repos().Ledger.Append(context.Background(), tx))
	return tx
}

func historyQuery() query.GetHistoryQuery {
	return query.GetHistoryQuery{StudentID: studentH, TenantID: tenantA}
}

func TestHistoryRunningTotals(t *testing.T) {
	store := testutil.NewMemStore()
	appendTx(t, store, 10, 0, ledger.CategoryHomework)
	appendTx(t, store, 20, 0, ledger.CategoryBehavior)
	appendTx(t, store, -5, 0, ledger.CategoryManual)

	h := query.NewGetHistoryHandler(store.Repos().Ledger)
	result, err := h.Handle(context.Background(), historyQuery())
	require.NoError(t, err)

	require.Len(t, result.Entries, 3)
	assert.Equal(t, 25, result.CurrentTotal)
	assert.Equal(t, 3, result.TotalCount)

	// Newest first; each row carries the total after it was applied.
	assert.Equal(t, -5, result.Entries[0].Points)
	assert.Equal(t, 25, result.Entries[0].RunningTotal)
	assert.Equal(t, 30, result.Entries[1].RunningTotal)
	assert.Equal(t, 10, result.Entries[2].RunningTotal)
}

func TestHistoryDeletedRowsNeverMoveTheTotal(t *testing.T) {
	store := testutil.NewMemStore()
	appendTx(t, store, 10, 0, ledger.CategoryHomework)
	deleted := appendTx(t, store, 20, 0, ledger.CategoryHomework)
	require.NoError(t, store.Repos().Ledger.SoftDelete(context.Background(), deleted.ID, "admin-1"))

	h := query.NewGetHistoryHandler(store.Repos().Ledger)

	// Default view hides deleted rows entirely.
	result, err := h.Handle(context.Background(), historyQuery())
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, 10, result.CurrentTotal)

	// The audit view shows the row, pinned at the surrounding total.
	q := historyQuery()
	q.IncludeDeleted = true
	audit, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, audit.Entries, 2)
	assert.True(t, audit.Entries[0].Deleted)
	assert.Equal(t, 10, audit.Entries[0].RunningTotal)
	assert.Equal(t, 10, audit.Entries[1].RunningTotal)
}

func TestHistoryPagination(t *testing.T) {
	store := testutil.NewMemStore()
	for i := 0; i < 5; i++ {
		appendTx(t, store, 10, 0, ledger.CategoryHomework)
	}

	h := query.NewGetHistoryHandler(store.Repos().Ledger)
	q := historyQuery()
	q.Limit = 2
	q.Offset = 2

	result, err := h.Handle(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, result.Entries, 2)
	assert.Equal(t, 50, result.CurrentTotal)
	// Page two of a newest-first statement over equal deltas: totals 30, 20.
	assert.Equal(t, 30, result.Entries[0].RunningTotal)
	assert.Equal(t, 20, result.Entries[1].RunningTotal)
}

func TestHistoryCategoryFilter(t *testing.T) {
	store := testutil.NewMemStore()
	appendTx(t, store, 10, 0, ledger.CategoryHomework)
	appendTx(t, store, 20, 0, ledger.CategoryBehavior)

	h := query.NewGetHistoryHandler(store.Repos().Ledger)
	q := historyQuery()
	q.Category = string(ledger.CategoryBehavior)

	result, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, 20, result.Entries[0].Points)
	assert.Equal(t, 1, result.TotalCount)
}

func TestHistoryValidation(t *testing.T) {
	store := testutil.NewMemStore()
	h := query.NewGetHistoryHandler(store.Repos().Ledger)

	q := historyQuery()
	q.Kind = "transfer"
	_, err := h.Handle(context.Background(), q)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	q = historyQuery()
	q.StudentID = "nope"
	_, err = h.Handle(context.Background(), q)
	require.Error(t, err)
}
