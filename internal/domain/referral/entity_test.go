package referral

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

func testProspect() Prospect {
	return Prospect{Name: "Dana", Phone: "+7 700 000 0000"}
}

func newTestRecord(t *testing.T) *ReferralRecord {
	t.Helper()

	r, err := NewReferralRecord(
		shared.StudentID(uuid.NewString()),
		shared.TenantID(uuid.NewString()),
		testProspect(),
		"",
	)
	require.NoError(t, err)
	return r
}

func newTestCampaign(t *testing.T, base shared.Points, multiplier float64, tiers []Tier) *Campaign {
	t.Helper()

	now := time.Now().UTC()
	c, err := NewCampaign(
		shared.TenantID(uuid.NewString()),
		"Spring enrollment drive",
		base, multiplier, tiers,
		now.Add(-24*time.Hour), now.Add(24*time.Hour),
	)
	require.NoError(t, err)
	return c
}

func TestNewReferralRecord_Validation(t *testing.T) {
	_, err := NewReferralRecord("", shared.TenantID(uuid.NewString()), testProspect(), "")
	assert.ErrorIs(t, err, shared.ErrStudentUnresolved)

	_, err = NewReferralRecord(shared.StudentID(uuid.NewString()), shared.TenantID(uuid.NewString()), Prospect{Name: "Dana"}, "")
	assert.ErrorIs(t, err, shared.ErrProspectIncomplete)

	r := newTestRecord(t)
	assert.Equal(t, StatusPending, r.Status)
	assert.Nil(t, r.Reward)
}

func TestReferralRecord_HappyPath(t *testing.T) {
	r := newTestRecord(t)

	require.NoError(t, r.Contact())
	assert.Equal(t, StatusContacted, r.Status)
	assert.NotNil(t, r.ContactedAt)

	txID := uuid.NewString()
	require.NoError(t, r.Enroll(RewardBreakdown{Total: 100}, txID))
	assert.Equal(t, StatusEnrolled, r.Status)
	assert.Equal(t, txID, r.TransactionID)
	require.NotNil(t, r.Reward)
	assert.Equal(t, shared.Points(100), r.Reward.Total)
	assert.NotNil(t, r.ResolvedAt)
}

func TestReferralRecord_EnrollOnce(t *testing.T) {
	r := newTestRecord(t)
	require.NoError(t, r.Contact())
	require.NoError(t, r.Enroll(RewardBreakdown{Total: 100}, uuid.NewString()))

	err := r.Enroll(RewardBreakdown{Total: 100}, uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestReferralRecord_EnrollRequiresContact(t *testing.T) {
	r := newTestRecord(t)

	err := r.Enroll(RewardBreakdown{Total: 100}, uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrStateTransition)
	assert.Equal(t, StatusPending, r.Status)
}

func TestReferralRecord_Decline(t *testing.T) {
	r := newTestRecord(t)
	require.NoError(t, r.Contact())
	require.NoError(t, r.Decline("chose another school"))

	assert.Equal(t, StatusDeclined, r.Status)
	assert.ErrorIs(t, r.Contact(), shared.ErrTerminalState)
	assert.ErrorIs(t, r.Expire(), shared.ErrTerminalState)
}

func TestReferralRecord_Expire(t *testing.T) {
	pending := newTestRecord(t)
	require.NoError(t, pending.Expire())
	assert.Equal(t, StatusExpired, pending.Status)

	contacted := newTestRecord(t)
	require.NoError(t, contacted.Contact())
	require.NoError(t, contacted.Expire())
	assert.Equal(t, StatusExpired, contacted.Status)

	// Expired records never enroll and never pay.
	err := contacted.Enroll(RewardBreakdown{Total: 100}, uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrTerminalState)
}

func TestReferralRecord_IsStale(t *testing.T) {
	retention := 30 * 24 * time.Hour
	now := time.Now().UTC()

	r := newTestRecord(t)
	assert.False(t, r.IsStale(now, retention))

	r.SubmittedAt = now.Add(-31 * 24 * time.Hour)
	assert.True(t, r.IsStale(now, retention))

	require.NoError(t, r.Expire())
	assert.False(t, r.IsStale(now, retention))
}

func TestCampaign_Validation(t *testing.T) {
	tenant := shared.TenantID(uuid.NewString())
	now := time.Now().UTC()

	_, err := NewCampaign(tenant, "Drive", -1, 1.0, nil, now, now.Add(time.Hour))
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = NewCampaign(tenant, "Drive", 50, 0, nil, now, now.Add(time.Hour))
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = NewCampaign(tenant, "Drive", 50, 1.0, nil, now.Add(time.Hour), now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewCampaign(tenant, "Drive", 50, 1.0, []Tier{{MinEnrolled: 0, Bonus: 10}}, now, now.Add(time.Hour))
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestCampaign_TierBonus(t *testing.T) {
	c := newTestCampaign(t, 50, 1.0, []Tier{
		{MinEnrolled: 1, Bonus: 0},
		{MinEnrolled: 3, Bonus: 50},
		{MinEnrolled: 10, Bonus: 200},
	})

	assert.Equal(t, shared.Points(0), c.TierBonus(0))
	assert.Equal(t, shared.Points(0), c.TierBonus(2))
	assert.Equal(t, shared.Points(50), c.TierBonus(3))
	assert.Equal(t, shared.Points(50), c.TierBonus(9))
	assert.Equal(t, shared.Points(200), c.TierBonus(10))
}

func TestComputeReward_TierScenario(t *testing.T) {
	// Referrer with 2 prior enrollments; this one is the 3rd and meets
	// the {1 -> 0, 3 -> 50} tier table.
	c := newTestCampaign(t, 40, 1.0, []Tier{
		{MinEnrolled: 1, Bonus: 0},
		{MinEnrolled: 3, Bonus: 50},
	})

	bd := ComputeReward(25, c, 3, time.Now().UTC())
	assert.Equal(t, shared.Points(40), bd.BasePoints)
	assert.Equal(t, shared.Points(50), bd.TierBonus)
	assert.Equal(t, shared.Points(90), bd.Total)
}

func TestComputeReward_Multiplier(t *testing.T) {
	c := newTestCampaign(t, 40, 1.5, []Tier{{MinEnrolled: 3, Bonus: 50}})

	bd := ComputeReward(25, c, 3, time.Now().UTC())
	assert.Equal(t, 1.5, bd.Multiplier)
	assert.Equal(t, shared.Points(110), bd.Total) // 40*1.5 + 50
}

func TestComputeReward_NoCoveringCampaign(t *testing.T) {
	c := newTestCampaign(t, 40, 2.0, []Tier{{MinEnrolled: 1, Bonus: 25}})

	// Outside the window the plain base pays with no boost.
	past := c.StartsAt.Add(-time.Hour)
	bd := ComputeReward(25, c, 5, past)
	assert.Equal(t, shared.Points(25), bd.Total)
	assert.Equal(t, 1.0, bd.Multiplier)
	assert.Equal(t, shared.Points(0), bd.TierBonus)

	bd = ComputeReward(25, nil, 5, time.Now().UTC())
	assert.Equal(t, shared.Points(25), bd.Total)
}
