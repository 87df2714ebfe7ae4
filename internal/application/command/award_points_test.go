package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/internal/testutil"
)

func awardCmd(points, coins int) command.AwardPointsCommand {
	return command.AwardPointsCommand{
		StudentID: studentA,
		TenantID:  tenantA,
		Points:    points,
		Coins:     coins,
		Reason:    "quiz results",
		Category:  "homework",
		Actor:     staffActor(),
	}
}

func TestAwardBelowThresholdCommits(t *testing.T) {
	e := newEnv(t)

	result, err := e.awardHandler().Handle(context.Background(), awardCmd(10, 1))
	require.NoError(t, err)

	assert.False(t, result.Queued)
	require.NotNil(t, result.Commit)
	assert.Equal(t, shared.Points(10), result.Commit.Aggregate.TotalPoints)
	assert.Equal(t, ledger.KindEarned, result.Commit.Transaction.Kind)
}

func TestAwardAtThresholdCommits(t *testing.T) {
	e := newEnv(t)

	result, err := e.awardHandler().Handle(context.Background(), awardCmd(50, 0))
	require.NoError(t, err)
	assert.False(t, result.Queued)
	require.NotNil(t, result.Commit)
}

func TestAwardAboveThresholdQueues(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)

	result, err := e.awardHandler().Handle(context.Background(), awardCmd(60, 0))
	require.NoError(t, err)

	assert.True(t, result.Queued)
	require.NotNil(t, result.Approval)
	assert.Nil(t, result.Commit)
	assert.Equal(t, shared.Points(60), result.Approval.Points)

	// Nothing reaches the ledger until the approval is decided.
	count, err := e.store.Repos().Ledger.CountByStudent(context.Background(), studentID, tenantID, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)

	pending, err := e.store.Repos().Approvals.CountPending(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, e.bus.Count(shared.EventApprovalQueued))
}

func TestAwardNegativeMagnitudeQueues(t *testing.T) {
	e := newEnv(t)

	result, err := e.awardHandler().Handle(context.Background(), awardCmd(-75, 0))
	require.NoError(t, err)
	assert.True(t, result.Queued)
}

func TestAwardDeductionKind(t *testing.T) {
	e := newEnv(t)
	e.fund(t, studentA, 40, 0)

	result, err := e.awardHandler().Handle(context.Background(), awardCmd(-20, 0))
	require.NoError(t, err)
	require.NotNil(t, result.Commit)
	assert.Equal(t, ledger.KindDeducted, result.Commit.Transaction.Kind)
	assert.Equal(t, shared.Points(20), result.Commit.Aggregate.TotalPoints)
}

func TestAwardValidation(t *testing.T) {
	e := newEnv(t)
	h := e.awardHandler()

	tests := []struct {
		name   string
		mutate func(*command.AwardPointsCommand)
	}{
		{"bad student id", func(c *command.AwardPointsCommand) { c.StudentID = "student-1" }},
		{"bad tenant id", func(c *command.AwardPointsCommand) { c.TenantID = "" }},
		{"unknown category", func(c *command.AwardPointsCommand) { c.Category = "sports" }},
		{"missing actor", func(c *command.AwardPointsCommand) { c.Actor = shared.Actor{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := awardCmd(10, 0)
			tt.mutate(&cmd)
			_, err := h.Handle(context.Background(), cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err) || shared.IsNotFound(err))
		})
	}
}

func TestAwardRejectedByDirectory(t *testing.T) {
	e := newEnv(t)
	directory := &testutil.StubDirectory{StudentErr: shared.ErrNotFound}
	h := command.NewAwardPointsHandler(e.svc, e.store, directory, e.bus, command.DefaultAwardPointsHandlerConfig())

	_, err := h.Handle(context.Background(), awardCmd(10, 0))
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestBulkAwardIsolatesFailures(t *testing.T) {
	e := newEnv(t)
	h := command.NewBulkAwardPointsHandler(e.awardHandler())

	result, err := h.Handle(context.Background(), command.BulkAwardPointsCommand{
		StudentIDs: []string{studentA, "not-a-uuid", studentB},
		TenantID:   tenantA,
		Points:     10,
		Reason:     "group project",
		Category:   "homework",
		Actor:      staffActor(),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 2, result.CommittedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Zero(t, result.QueuedCount)

	require.Len(t, result.Results, 3)
	assert.Error(t, result.Results[1].Err)
	assert.NoError(t, result.Results[0].Err)
}

func TestBulkAwardAboveThresholdQueuesEach(t *testing.T) {
	e := newEnv(t)
	tenantID, _ := shared.NewTenantID(tenantA)
	h := command.NewBulkAwardPointsHandler(e.awardHandler())

	result, err := h.Handle(context.Background(), command.BulkAwardPointsCommand{
		StudentIDs: []string{studentA, studentB},
		TenantID:   tenantA,
		Points:     80,
		Reason:     "olympiad winners",
		Category:   "manual",
		Actor:      staffActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.QueuedCount)

	pending, err := e.store.Repos().Approvals.CountPending(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestBulkAwardRequiresStudents(t *testing.T) {
	e := newEnv(t)
	h := command.NewBulkAwardPointsHandler(e.awardHandler())

	_, err := h.Handle(context.Background(), command.BulkAwardPointsCommand{
		TenantID: tenantA,
		Points:   10,
		Reason:   "nobody",
		Category: "manual",
		Actor:    staffActor(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
