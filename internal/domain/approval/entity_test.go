package approval

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

func staffActor() shared.Actor {
	return shared.Actor{ID: uuid.NewString(), Role: shared.RoleStaff, Tenant: shared.TenantID(uuid.NewString())}
}

func adminActor() shared.Actor {
	return shared.Actor{ID: uuid.NewString(), Role: shared.RoleAdmin, Tenant: shared.TenantID(uuid.NewString())}
}

func newTestApproval(t *testing.T, points shared.Points) *PendingApproval {
	t.Helper()

	a, err := NewPendingApproval(NewPendingApprovalParams{
		StudentID:   shared.StudentID(uuid.NewString()),
		TenantID:    shared.TenantID(uuid.NewString()),
		Points:      points,
		Reason:      "science fair grand prize",
		Category:    "manual",
		RequestedBy: staffActor(),
	})
	require.NoError(t, err)
	return a
}

func TestNewPendingApproval(t *testing.T) {
	a := newTestApproval(t, 75)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, DecisionPending, a.Decision)
	assert.Equal(t, Priority(75), a.Priority)
	assert.True(t, a.IsPending())
	assert.Nil(t, a.DecidedBy)
}

func TestNewPendingApproval_Validation(t *testing.T) {
	valid := NewPendingApprovalParams{
		StudentID:   shared.StudentID(uuid.NewString()),
		TenantID:    shared.TenantID(uuid.NewString()),
		Points:      75,
		Reason:      "reason",
		Category:    "manual",
		RequestedBy: staffActor(),
	}

	tests := []struct {
		name    string
		mutate  func(*NewPendingApprovalParams)
		wantErr error
	}{
		{"missing student", func(p *NewPendingApprovalParams) { p.StudentID = "" }, shared.ErrStudentUnresolved},
		{"missing tenant", func(p *NewPendingApprovalParams) { p.TenantID = "" }, shared.ErrTenantUnresolved},
		{"zero deltas", func(p *NewPendingApprovalParams) { p.Points = 0; p.Coins = 0 }, shared.ErrZeroDelta},
		{"blank reason", func(p *NewPendingApprovalParams) { p.Reason = "   " }, shared.ErrEmptyValue},
		{"invalid actor", func(p *NewPendingApprovalParams) { p.RequestedBy = shared.Actor{} }, shared.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			_, err := NewPendingApproval(p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPriorityFor_UsesMagnitude(t *testing.T) {
	assert.Equal(t, Priority(60), PriorityFor(-60))
	assert.Equal(t, Priority(60), PriorityFor(60))
}

func TestPendingApproval_Approve(t *testing.T) {
	a := newTestApproval(t, 75)
	admin := adminActor()

	txID := uuid.NewString()
	require.NoError(t, a.Approve(admin, "well earned", txID))

	assert.Equal(t, DecisionApproved, a.Decision)
	assert.Equal(t, txID, a.TransactionID)
	require.NotNil(t, a.DecidedBy)
	assert.Equal(t, admin.ID, a.DecidedBy.ID)
	assert.NotNil(t, a.DecidedAt)
	assert.False(t, a.IsPending())
}

func TestPendingApproval_Approve_RequiresElevation(t *testing.T) {
	a := newTestApproval(t, 75)

	err := a.Approve(staffActor(), "", uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.True(t, a.IsPending())
}

func TestPendingApproval_Reject(t *testing.T) {
	a := newTestApproval(t, 75)

	err := a.Reject(adminActor(), "")
	assert.ErrorIs(t, err, shared.ErrRejectReasonRequired)

	require.NoError(t, a.Reject(adminActor(), "duplicate of an earlier award"))
	assert.Equal(t, DecisionRejected, a.Decision)
	assert.Empty(t, a.TransactionID)
}

func TestPendingApproval_DecideOnce(t *testing.T) {
	a := newTestApproval(t, 75)
	require.NoError(t, a.Approve(adminActor(), "", uuid.NewString()))

	assert.ErrorIs(t, a.Approve(adminActor(), "", uuid.NewString()), shared.ErrAlreadyDecided)
	assert.ErrorIs(t, a.Reject(adminActor(), "too late"), shared.ErrAlreadyDecided)
}

func TestPendingApproval_Age(t *testing.T) {
	a := newTestApproval(t, 75)
	a.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)

	assert.InDelta(t, 2*time.Hour, a.Age(time.Now().UTC()), float64(time.Minute))
}
