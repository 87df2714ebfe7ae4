package shared_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/classpoints/points-engine/internal/domain/shared"
)

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("duplicate key value violates unique constraint")
	err := shared.WrapError("reward", "CreateReward", shared.ErrAlreadyExists, "reward id already exists", cause)

	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	assert.ErrorIs(t, err, cause)
	assert.True(t, shared.IsConflict(err))
	assert.Contains(t, err.Error(), "reward id already exists")
}

func TestClassificationHelpers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		matches func(error) bool
	}{
		{"validation", shared.NewDomainError("ledger", "Validate", shared.ErrEmptyValue, "reason required"), shared.IsValidation},
		{"not found", shared.NewDomainError("approval", "Find", shared.ErrNotFound, "approval not found"), shared.IsNotFound},
		{"conflict", shared.NewDomainError("referral", "Transition", shared.ErrTerminalState, "record closed"), shared.IsConflict},
		{"optimistic lock", shared.ErrAggregateConflict, shared.IsConflict},
		{"balance", shared.ErrNotEnoughCoins, shared.IsInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.matches(tt.err))
		})
	}
}
