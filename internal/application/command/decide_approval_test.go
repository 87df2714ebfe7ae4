package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/approval"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// queueAward routes an above-threshold award into the moderation queue and
// returns the pending entry.
func queueAward(t *testing.T, e *env, points int) *approval.PendingApproval {
	t.Helper()
	result, err := e.awardHandler().Handle(context.Background(), command.AwardPointsCommand{
		StudentID: studentA,
		TenantID:  tenantA,
		Points:    points,
		Reason:    "science fair prize",
		Category:  "manual",
		Actor:     staffActor(),
	})
	require.NoError(t, err)
	require.True(t, result.Queued)
	return result.Approval
}

func TestApproveMaterializesTransaction(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)
	pending := queueAward(t, e, 80)

	h := command.NewDecideApprovalHandler(e.svc, e.store, e.bus)
	result, err := h.Handle(context.Background(), command.DecideApprovalCommand{
		ApprovalID: pending.ID,
		Approve:    true,
		Note:       "confirmed with the organizer",
		Actor:      adminActor(),
	})
	require.NoError(t, err)

	require.NotNil(t, result.Commit)
	assert.Equal(t, shared.Points(80), result.Commit.Aggregate.TotalPoints)
	assert.Equal(t, pending.ID, result.Commit.Transaction.Reference)
	assert.Equal(t, "staff-1", result.Commit.Transaction.AwardedBy)

	decided, err := e.store.Repos().Approvals.GetByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.DecisionApproved, decided.Decision)
	assert.Equal(t, result.Commit.Transaction.ID, decided.TransactionID)

	count, err := e.store.Repos().Ledger.CountByStudent(context.Background(), studentID, tenantID, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, e.bus.Count(shared.EventApprovalDecided))
}

func TestRejectLeavesLedgerUntouched(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)
	pending := queueAward(t, e, 80)

	h := command.NewDecideApprovalHandler(e.svc, e.store, e.bus)
	result, err := h.Handle(context.Background(), command.DecideApprovalCommand{
		ApprovalID: pending.ID,
		Approve:    false,
		Note:       "duplicate of an earlier award",
		Actor:      adminActor(),
	})
	require.NoError(t, err)

	assert.Nil(t, result.Commit)
	assert.Equal(t, approval.DecisionRejected, result.Approval.Decision)

	count, err := e.store.Repos().Ledger.CountByStudent(context.Background(), studentID, tenantID, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRejectRequiresReason(t *testing.T) {
	e := newEnv(t)
	pending := queueAward(t, e, 80)

	h := command.NewDecideApprovalHandler(e.svc, e.store, e.bus)
	_, err := h.Handle(context.Background(), command.DecideApprovalCommand{
		ApprovalID: pending.ID,
		Approve:    false,
		Actor:      adminActor(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestSecondDecisionConflicts(t *testing.T) {
	e := newEnv(t)
	pending := queueAward(t, e, 80)
	h := command.NewDecideApprovalHandler(e.svc, e.store, e.bus)

	_, err := h.Handle(context.Background(), command.DecideApprovalCommand{
		ApprovalID: pending.ID,
		Approve:    true,
		Actor:      adminActor(),
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), command.DecideApprovalCommand{
		ApprovalID: pending.ID,
		Approve:    false,
		Note:       "changed my mind",
		Actor:      adminActor(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrApprovalAlreadyDecided)
}

func TestDecisionRequiresElevatedActor(t *testing.T) {
	e := newEnv(t)
	pending := queueAward(t, e, 80)
	h := command.NewDecideApprovalHandler(e.svc, e.store, e.bus)

	_, err := h.Handle(context.Background(), command.DecideApprovalCommand{
		ApprovalID: pending.ID,
		Approve:    true,
		Actor:      staffActor(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrElevatedActorRequired)
}

func TestDecideUnknownApproval(t *testing.T) {
	e := newEnv(t)
	h := command.NewDecideApprovalHandler(e.svc, e.store, e.bus)

	_, err := h.Handle(context.Background(), command.DecideApprovalCommand{
		ApprovalID: "9ca4322d-ebd5-4ffa-a340-56fe811bbab1",
		Approve:    true,
		Actor:      adminActor(),
	})
	assert.ErrorIs(t, err, shared.ErrApprovalNotFound)
}
