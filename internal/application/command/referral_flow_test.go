package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

func submitReferral(t *testing.T, e *env, prospectName string) *referral.ReferralRecord {
	t.Helper()
	h := command.NewSubmitReferralHandler(e.store, nil, e.bus)
	record, err := h.Handle(context.Background(), command.SubmitReferralCommand{
		ReferrerID:    studentA,
		TenantID:      tenantA,
		ProspectName:  prospectName,
		ProspectPhone: "+77001234567",
		Actor:         staffActor(),
	})
	require.NoError(t, err)
	return record
}

func contactReferral(t *testing.T, e *env, id string) {
	t.Helper()
	h := command.NewContactReferralHandler(e.store, e.bus)
	_, err := h.Handle(context.Background(), command.ContactReferralCommand{
		ReferralID: id,
		Actor:      staffActor(),
	})
	require.NoError(t, err)
}

func enrollReferral(t *testing.T, e *env, id string) (*command.EnrollReferralResult, error) {
	t.Helper()
	h := command.NewEnrollReferralHandler(e.svc, e.store, e.bus, command.DefaultEnrollReferralHandlerConfig())
	return h.Handle(context.Background(), command.EnrollReferralCommand{
		ReferralID: id,
		Actor:      staffActor(),
	})
}

func TestSubmitReferralStartsPending(t *testing.T) {
	e := newEnv(t)

	record := submitReferral(t, e, "Aidos")
	assert.Equal(t, referral.StatusPending, record.Status)
	assert.Empty(t, record.CampaignID)

	stored, err := e.store.Repos().Referrals.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.StatusPending, stored.Status)
	assert.Equal(t, 1, e.bus.Count(shared.EventReferralSubmitted))
}

func TestSubmitReferralPinsActiveCampaign(t *testing.T) {
	e := newEnv(t)
	tenantID, _ := shared.NewTenantID(tenantA)

	campaign, err := referral.NewCampaign(tenantID, "Spring drive", 30, 2.0, nil,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, e.store.Repos().Referrals.CreateCampaign(context.Background(), campaign))

	record := submitReferral(t, e, "Aidos")
	assert.Equal(t, campaign.ID, record.CampaignID)
}

func TestEnrollPaysBaseReward(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)

	record := submitReferral(t, e, "Aidos")
	contactReferral(t, e, record.ID)

	result, err := enrollReferral(t, e, record.ID)
	require.NoError(t, err)

	assert.Equal(t, referral.StatusEnrolled, result.Record.Status)
	require.NotNil(t, result.Record.Reward)
	assert.Equal(t, shared.Points(25), result.Record.Reward.Total)
	assert.Equal(t, 1.0, result.Record.Reward.Multiplier)

	require.NotNil(t, result.Commit)
	assert.Equal(t, ledger.KindBonus, result.Commit.Transaction.Kind)
	assert.Equal(t, ledger.CategoryReferral, result.Commit.Transaction.Category)
	assert.Equal(t, record.ID, result.Commit.Transaction.Reference)

	agg, err := e.store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(25), agg.TotalPoints)
	assert.Equal(t, 1, e.bus.Count(shared.EventReferralEnrolled))
}

func TestEnrollAppliesCampaignAndTier(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)

	campaign, err := referral.NewCampaign(tenantID, "Spring drive", 30, 2.0,
		[]referral.Tier{{MinEnrolled: 2, Bonus: 15}},
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, e.store.Repos().Referrals.CreateCampaign(context.Background(), campaign))

	first := submitReferral(t, e, "Aidos")
	second := submitReferral(t, e, "Banu")

	contactReferral(t, e, first.ID)
	firstResult, err := enrollReferral(t, e, first.ID)
	require.NoError(t, err)

	// First enrollment: 30 * 2.0, tier not yet reached.
	assert.Equal(t, shared.Points(60), firstResult.Record.Reward.Total)
	assert.Zero(t, int(firstResult.Record.Reward.TierBonus))

	contactReferral(t, e, second.ID)
	secondResult, err := enrollReferral(t, e, second.ID)
	require.NoError(t, err)

	// Second enrollment counts itself for tier selection: 30*2.0 + 15.
	assert.Equal(t, 2, secondResult.Record.Reward.EnrolledCount)
	assert.Equal(t, shared.Points(15), secondResult.Record.Reward.TierBonus)
	assert.Equal(t, shared.Points(75), secondResult.Record.Reward.Total)

	agg, err := e.store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(135), agg.TotalPoints)
}

func TestEnrollRequiresContactFirst(t *testing.T) {
	e := newEnv(t)
	record := submitReferral(t, e, "Aidos")

	_, err := enrollReferral(t, e, record.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestEnrollTwiceFailsAndKeepsOnePayout(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)

	record := submitReferral(t, e, "Aidos")
	contactReferral(t, e, record.ID)

	_, err := enrollReferral(t, e, record.ID)
	require.NoError(t, err)

	_, err = enrollReferral(t, e, record.ID)
	require.Error(t, err)

	count, err := e.store.Repos().Ledger.CountByStudent(context.Background(), studentID, tenantID, ledger.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	enrolled, err := e.store.Repos().Referrals.CountEnrolled(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, enrolled)
}

func TestDeclineClosesRecord(t *testing.T) {
	e := newEnv(t)
	record := submitReferral(t, e, "Aidos")
	contactReferral(t, e, record.ID)

	h := command.NewDeclineReferralHandler(e.store, e.bus)
	declined, err := h.Handle(context.Background(), command.DeclineReferralCommand{
		ReferralID: record.ID,
		Reason:     "moved to another city",
		Actor:      staffActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, referral.StatusDeclined, declined.Status)

	// A declined funnel cannot be enrolled afterwards.
	_, err = enrollReferral(t, e, record.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTerminalState)
}

func TestConcurrentEnrollmentsPayDistinctTiers(t *testing.T) {
	e := newEnv(t)
	studentID, _ := shared.NewStudentID(studentA)
	tenantID, _ := shared.NewTenantID(tenantA)

	campaign, err := referral.NewCampaign(tenantID, "Autumn drive", 10, 1.0,
		[]referral.Tier{{MinEnrolled: 4, Bonus: 100}},
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, e.store.Repos().Referrals.CreateCampaign(context.Background(), campaign))

	// Two prior enrollments put the referrer at count 2.
	for _, name := range []string{"Aidos", "Banu"} {
		prior := submitReferral(t, e, name)
		contactReferral(t, e, prior.ID)
		_, err := enrollReferral(t, e, prior.ID)
		require.NoError(t, err)
	}

	third := submitReferral(t, e, "Dana")
	fourth := submitReferral(t, e, "Erbol")
	contactReferral(t, e, third.ID)
	contactReferral(t, e, fourth.ID)

	// The 3rd and 4th enrollments race. Each payout counts the referrer's
	// enrolled referrals inside its own committing transaction, so exactly
	// one of them lands as the 4th and takes the tier bonus.
	h := command.NewEnrollReferralHandler(e.svc, e.store, e.bus, command.DefaultEnrollReferralHandlerConfig())

	start := make(chan struct{})
	var wg sync.WaitGroup
	totals := make([]shared.Points, 2)
	errs := make([]error, 2)
	for i, id := range []string{third.ID, fourth.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			res, err := h.Handle(context.Background(), command.EnrollReferralCommand{
				ReferralID: id,
				Actor:      staffActor(),
			})
			if err != nil {
				errs[i] = err
				return
			}
			totals[i] = res.Record.Reward.Total
		}(i, id)
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []shared.Points{10, 110}, totals)

	agg, err := e.store.Repos().Aggregates.Get(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, shared.Points(140), agg.TotalPoints)

	enrolled, err := e.store.Repos().Referrals.CountEnrolled(context.Background(), studentID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 4, enrolled)
}
