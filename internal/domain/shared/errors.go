// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrZeroDelta       = errors.New("transaction delta cannot be zero")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrAlreadyDecided  = errors.New("already decided")
	ErrTerminalState   = errors.New("record is in a terminal state")
	ErrExpired         = errors.New("expired")

	// Conflict errors
	ErrConflict               = errors.New("conflict")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Balance errors
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "approval", "referral"
	Op      string // Operation that failed, e.g., "Append", "Decide"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Ledger domain errors
var (
	ErrTransactionNotFound    = NewDomainError("ledger", "Find", ErrNotFound, "transaction not found")
	ErrEmptyReason            = NewDomainError("ledger", "Validate", ErrEmptyValue, "transaction reason is required")
	ErrInvalidTransactionKind = NewDomainError("ledger", "Validate", ErrInvalidInput, "invalid transaction kind")
	ErrInvalidCategory        = NewDomainError("ledger", "Validate", ErrInvalidInput, "invalid transaction category")
	ErrStudentUnresolved      = NewDomainError("ledger", "Validate", ErrNotFound, "student reference is unresolved")
	ErrTenantUnresolved       = NewDomainError("ledger", "Validate", ErrNotFound, "tenant reference is unresolved")
	ErrZeroDeltas             = NewDomainError("ledger", "Validate", ErrZeroDelta, "zero point and coin deltas")
	ErrAlreadyDeleted         = NewDomainError("ledger", "SoftDelete", ErrNotFound, "transaction already deleted")
)

// Ranking domain errors
var (
	ErrAggregateNotFound = NewDomainError("ranking", "Find", ErrNotFound, "ranking aggregate not found")
	ErrAggregateConflict = NewDomainError("ranking", "ApplyDelta", ErrOptimisticLock, "aggregate version mismatch")
	ErrAggregateDiverged = NewDomainError("ranking", "Reconcile", ErrInvalidState, "aggregate diverged from ledger replay")
)

// Approval domain errors
var (
	ErrApprovalNotFound       = NewDomainError("approval", "Find", ErrNotFound, "pending approval not found")
	ErrApprovalAlreadyDecided = NewDomainError("approval", "Decide", ErrAlreadyDecided, "approval has already been decided")
	ErrRejectReasonRequired   = NewDomainError("approval", "Reject", ErrEmptyValue, "rejection reason is required")
	ErrElevatedActorRequired  = NewDomainError("approval", "Decide", ErrForbidden, "decision requires an elevated actor")
)

// Achievement domain errors
var (
	ErrAchievementNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrAchievementEarned   = NewDomainError("achievement", "Update", ErrInvalidState, "achievement already earned by a student")
	ErrAlreadyUnlocked     = NewDomainError("achievement", "Unlock", ErrAlreadyExists, "achievement already unlocked for student")
	ErrInvalidPredicate    = NewDomainError("achievement", "Validate", ErrInvalidInput, "invalid achievement predicate")
)

// Reward domain errors
var (
	ErrRewardNotFound     = NewDomainError("reward", "Find", ErrNotFound, "reward not found")
	ErrRedemptionNotFound = NewDomainError("reward", "FindRedemption", ErrNotFound, "redemption not found")
	ErrNotEnoughCoins     = NewDomainError("reward", "Redeem", ErrInsufficientBalance, "available coins below reward cost")
	ErrRewardInactive     = NewDomainError("reward", "Redeem", ErrInvalidState, "reward is not available for redemption")
)

// Referral domain errors
var (
	ErrReferralNotFound   = NewDomainError("referral", "Find", ErrNotFound, "referral record not found")
	ErrReferralTerminal   = NewDomainError("referral", "Transition", ErrTerminalState, "referral is already in a terminal state")
	ErrReferralEnrolled   = NewDomainError("referral", "Enroll", ErrConflict, "referral already enrolled")
	ErrCampaignNotFound   = NewDomainError("referral", "FindCampaign", ErrNotFound, "campaign not found")
	ErrInvalidTransition  = NewDomainError("referral", "Transition", ErrStateTransition, "invalid referral status transition")
	ErrSelfReferral       = NewDomainError("referral", "Submit", ErrInvalidInput, "referrer cannot refer themselves")
	ErrProspectIncomplete = NewDomainError("referral", "Submit", ErrEmptyValue, "prospect contact details are required")
)

// External service errors
var (
	ErrDirectoryUnavailable = NewDomainError("directory", "Request", ErrServiceUnavailable, "entity directory is unavailable")
	ErrDirectoryTimeout     = NewDomainError("directory", "Request", ErrTimeout, "entity directory request timeout")
	ErrDirectoryRateLimited = NewDomainError("directory", "Request", ErrRateLimited, "entity directory rate limit exceeded")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrZeroDelta)
}

// IsConflict checks if the error is a conflict error. Double decisions,
// terminal-state transitions and optimistic lock failures all map here.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOptimisticLock) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsInsufficientBalance checks if the error is a balance error.
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
// Optimistic lock failures are retried by the commit pipeline only.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrOptimisticLock) ||
		errors.Is(err, ErrConcurrentModification)
}
