package achievement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

func TestPredicate_Validate(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
		ok   bool
	}{
		{"count with category", Predicate{Type: PredicateTransactionCount, Category: "homework", Threshold: 10}, true},
		{"count without category", Predicate{Type: PredicateTransactionCount, Threshold: 10}, false},
		{"total points", Predicate{Type: PredicateTotalPoints, Threshold: 500}, true},
		{"enrolled referrals", Predicate{Type: PredicateEnrolledReferrals, Threshold: 3}, true},
		{"unknown type", Predicate{Type: "streak", Threshold: 5}, false},
		{"zero threshold", Predicate{Type: PredicateTotalPoints, Threshold: 0}, false},
		{"negative threshold", Predicate{Type: PredicateTotalPoints, Threshold: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pred.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, shared.ErrInvalidPredicate)
			}
		})
	}
}

func TestPredicate_Holds(t *testing.T) {
	facts := Facts{
		TotalPoints: 480,
		TransactionCountByCategory: map[string]int{
			"homework":   12,
			"attendance": 3,
		},
		EnrolledReferrals: 2,
	}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"count met", Predicate{Type: PredicateTransactionCount, Category: "homework", Threshold: 10}, true},
		{"count exact", Predicate{Type: PredicateTransactionCount, Category: "homework", Threshold: 12}, true},
		{"count not met", Predicate{Type: PredicateTransactionCount, Category: "attendance", Threshold: 5}, false},
		{"unknown category", Predicate{Type: PredicateTransactionCount, Category: "behavior", Threshold: 1}, false},
		{"points met", Predicate{Type: PredicateTotalPoints, Threshold: 480}, true},
		{"points not met", Predicate{Type: PredicateTotalPoints, Threshold: 500}, false},
		{"referrals met", Predicate{Type: PredicateEnrolledReferrals, Threshold: 2}, true},
		{"referrals not met", Predicate{Type: PredicateEnrolledReferrals, Threshold: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Holds(facts))
		})
	}
}

func TestNewAchievement(t *testing.T) {
	tenant := shared.TenantID(uuid.NewString())
	pred := Predicate{Type: PredicateTotalPoints, Threshold: 500}

	a, err := NewAchievement(tenant, "Point Collector", "Earn 500 lifetime points", pred, 25, 5)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.True(t, a.Active)
	assert.True(t, a.HasBonus())
}

func TestNewAchievement_Validation(t *testing.T) {
	tenant := shared.TenantID(uuid.NewString())
	pred := Predicate{Type: PredicateTotalPoints, Threshold: 500}

	_, err := NewAchievement("", "Name", "", pred, 0, 0)
	assert.ErrorIs(t, err, shared.ErrTenantUnresolved)

	_, err = NewAchievement(tenant, "  ", "", pred, 0, 0)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = NewAchievement(tenant, "Name", "", Predicate{Type: "bad"}, 0, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidPredicate)

	_, err = NewAchievement(tenant, "Name", "", pred, -5, 0)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestNewAchievement_ZeroBonusIsBadgeOnly(t *testing.T) {
	a, err := NewAchievement(
		shared.TenantID(uuid.NewString()),
		"Perfect Week",
		"Attend every class in a week",
		Predicate{Type: PredicateTransactionCount, Category: "attendance", Threshold: 5},
		0, 0,
	)
	require.NoError(t, err)
	assert.False(t, a.HasBonus())
}

func TestNewStudentAchievement(t *testing.T) {
	sa, err := NewStudentAchievement(
		shared.StudentID(uuid.NewString()),
		shared.TenantID(uuid.NewString()),
		uuid.NewString(),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, sa.ID)
	assert.Empty(t, sa.BonusTransactionID)

	_, err = NewStudentAchievement("", shared.TenantID(uuid.NewString()), uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrStudentUnresolved)

	_, err = NewStudentAchievement(shared.StudentID(uuid.NewString()), shared.TenantID(uuid.NewString()), "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
