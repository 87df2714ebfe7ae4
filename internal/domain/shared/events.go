// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
// External collaborators (notification dispatch) subscribe to these; the
// engine never waits for delivery.
const (
	// Ledger events
	EventTransactionCommitted EventType = "ledger.transaction_committed"
	EventTransactionReversed  EventType = "ledger.transaction_reversed"
	EventTransactionDeleted   EventType = "ledger.transaction_deleted"

	// Ranking events
	EventLevelUp             EventType = "ranking.level_up"
	EventAggregateDivergence EventType = "ranking.aggregate_divergence"

	// Approval events
	EventApprovalQueued  EventType = "approval.queued"
	EventApprovalDecided EventType = "approval.decided"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Reward events
	EventRewardRedeemed    EventType = "reward.redeemed"
	EventRedemptionRefused EventType = "reward.redemption_refused"

	// Referral events
	EventReferralSubmitted EventType = "referral.submitted"
	EventReferralContacted EventType = "referral.contacted"
	EventReferralEnrolled  EventType = "referral.enrolled"
	EventReferralDeclined  EventType = "referral.declined"
	EventReferralExpired   EventType = "referral.expired"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// TransactionCommittedEvent is emitted after a ledger transaction and its
// aggregate update have been committed in one unit of work.
type TransactionCommittedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	StudentID     string `json:"student_id"`
	TenantID      string `json:"tenant_id"`
	Kind          string `json:"kind"`
	Category      string `json:"category"`
	Points        int    `json:"points"`
	Coins         int    `json:"coins"`
	TotalPoints   int    `json:"total_points"`
	AwardedBy     string `json:"awarded_by"`
}

// Payload implements Event interface.
func (e TransactionCommittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": e.TransactionID,
		"student_id":     e.StudentID,
		"tenant_id":      e.TenantID,
		"kind":           e.Kind,
		"category":       e.Category,
		"points":         e.Points,
		"coins":          e.Coins,
		"total_points":   e.TotalPoints,
		"awarded_by":     e.AwardedBy,
	}
}

// NewTransactionCommittedEvent creates a new TransactionCommittedEvent.
func NewTransactionCommittedEvent(txID, studentID, tenantID, kind, category string, points, coins, totalPoints int, awardedBy string) TransactionCommittedEvent {
	return TransactionCommittedEvent{
		BaseEvent:     NewBaseEvent(EventTransactionCommitted, txID),
		TransactionID: txID,
		StudentID:     studentID,
		TenantID:      tenantID,
		Kind:          kind,
		Category:      category,
		Points:        points,
		Coins:         coins,
		TotalPoints:   totalPoints,
		AwardedBy:     awardedBy,
	}
}

// TransactionDeletedEvent is emitted when a transaction is soft-deleted.
type TransactionDeletedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	StudentID     string `json:"student_id"`
	DeletedBy     string `json:"deleted_by"`
}

// Payload implements Event interface.
func (e TransactionDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": e.TransactionID,
		"student_id":     e.StudentID,
		"deleted_by":     e.DeletedBy,
	}
}

// NewTransactionDeletedEvent creates a new TransactionDeletedEvent.
func NewTransactionDeletedEvent(txID, studentID, deletedBy string) TransactionDeletedEvent {
	return TransactionDeletedEvent{
		BaseEvent:     NewBaseEvent(EventTransactionDeleted, txID),
		TransactionID: txID,
		StudentID:     studentID,
		DeletedBy:     deletedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ranking Events
// ═══════════════════════════════════════════════════════════════════════════

// LevelUpEvent is emitted when a student's computed level increases.
type LevelUpEvent struct {
	BaseEvent
	StudentID   string `json:"student_id"`
	TenantID    string `json:"tenant_id"`
	OldLevel    int    `json:"old_level"`
	NewLevel    int    `json:"new_level"`
	TotalPoints int    `json:"total_points"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":   e.StudentID,
		"tenant_id":    e.TenantID,
		"old_level":    e.OldLevel,
		"new_level":    e.NewLevel,
		"total_points": e.TotalPoints,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(studentID, tenantID string, oldLevel, newLevel, totalPoints int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:   NewBaseEvent(EventLevelUp, studentID),
		StudentID:   studentID,
		TenantID:    tenantID,
		OldLevel:    oldLevel,
		NewLevel:    newLevel,
		TotalPoints: totalPoints,
	}
}

// AggregateDivergenceEvent is emitted by the reconcile job when a stored
// aggregate does not equal the ledger replay. This is a defect signal.
type AggregateDivergenceEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	TenantID       string `json:"tenant_id"`
	StoredPoints   int    `json:"stored_points"`
	ReplayedPoints int    `json:"replayed_points"`
	StoredCoins    int    `json:"stored_coins"`
	ReplayedCoins  int    `json:"replayed_coins"`
}

// Payload implements Event interface.
func (e AggregateDivergenceEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"tenant_id":       e.TenantID,
		"stored_points":   e.StoredPoints,
		"replayed_points": e.ReplayedPoints,
		"stored_coins":    e.StoredCoins,
		"replayed_coins":  e.ReplayedCoins,
	}
}

// NewAggregateDivergenceEvent creates a new AggregateDivergenceEvent.
func NewAggregateDivergenceEvent(studentID, tenantID string, storedPoints, replayedPoints, storedCoins, replayedCoins int) AggregateDivergenceEvent {
	return AggregateDivergenceEvent{
		BaseEvent:      NewBaseEvent(EventAggregateDivergence, studentID),
		StudentID:      studentID,
		TenantID:       tenantID,
		StoredPoints:   storedPoints,
		ReplayedPoints: replayedPoints,
		StoredCoins:    storedCoins,
		ReplayedCoins:  replayedCoins,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Approval Events
// ═══════════════════════════════════════════════════════════════════════════

// ApprovalQueuedEvent is emitted when a proposed award exceeds the threshold
// and is routed to the pending queue instead of committing.
type ApprovalQueuedEvent struct {
	BaseEvent
	ApprovalID string `json:"approval_id"`
	StudentID  string `json:"student_id"`
	TenantID   string `json:"tenant_id"`
	Points     int    `json:"points"`
	Coins      int    `json:"coins"`
	Priority   int    `json:"priority"`
	ProposedBy string `json:"proposed_by"`
}

// Payload implements Event interface.
func (e ApprovalQueuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"approval_id": e.ApprovalID,
		"student_id":  e.StudentID,
		"tenant_id":   e.TenantID,
		"points":      e.Points,
		"coins":       e.Coins,
		"priority":    e.Priority,
		"proposed_by": e.ProposedBy,
	}
}

// NewApprovalQueuedEvent creates a new ApprovalQueuedEvent.
func NewApprovalQueuedEvent(approvalID, studentID, tenantID string, points, coins, priority int, proposedBy string) ApprovalQueuedEvent {
	return ApprovalQueuedEvent{
		BaseEvent:  NewBaseEvent(EventApprovalQueued, approvalID),
		ApprovalID: approvalID,
		StudentID:  studentID,
		TenantID:   tenantID,
		Points:     points,
		Coins:      coins,
		Priority:   priority,
		ProposedBy: proposedBy,
	}
}

// ApprovalDecidedEvent is emitted when a pending approval is approved or rejected.
type ApprovalDecidedEvent struct {
	BaseEvent
	ApprovalID    string `json:"approval_id"`
	StudentID     string `json:"student_id"`
	Decision      string `json:"decision"`
	DecidedBy     string `json:"decided_by"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"` // set on approve
}

// Payload implements Event interface.
func (e ApprovalDecidedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"approval_id":    e.ApprovalID,
		"student_id":     e.StudentID,
		"decision":       e.Decision,
		"decided_by":     e.DecidedBy,
		"reason":         e.Reason,
		"transaction_id": e.TransactionID,
	}
}

// NewApprovalDecidedEvent creates a new ApprovalDecidedEvent.
func NewApprovalDecidedEvent(approvalID, studentID, decision, decidedBy, reason string) ApprovalDecidedEvent {
	return ApprovalDecidedEvent{
		BaseEvent:  NewBaseEvent(EventApprovalDecided, approvalID),
		ApprovalID: approvalID,
		StudentID:  studentID,
		Decision:   decision,
		DecidedBy:  decidedBy,
		Reason:     reason,
	}
}

// WithTransaction adds the committed transaction to an approve decision.
func (e ApprovalDecidedEvent) WithTransaction(txID string) ApprovalDecidedEvent {
	e.TransactionID = txID
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted when a student first satisfies an
// achievement predicate.
type AchievementUnlockedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	TenantID      string `json:"tenant_id"`
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	RewardPoints  int    `json:"reward_points"`
	RewardCoins   int    `json:"reward_coins"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"tenant_id":      e.TenantID,
		"achievement_id": e.AchievementID,
		"name":           e.Name,
		"reward_points":  e.RewardPoints,
		"reward_coins":   e.RewardCoins,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(studentID, tenantID, achievementID, name string, rewardPoints, rewardCoins int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, studentID),
		StudentID:     studentID,
		TenantID:      tenantID,
		AchievementID: achievementID,
		Name:          name,
		RewardPoints:  rewardPoints,
		RewardCoins:   rewardCoins,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reward Events
// ═══════════════════════════════════════════════════════════════════════════

// RewardRedeemedEvent is emitted when a redemption commits.
type RewardRedeemedEvent struct {
	BaseEvent
	RedemptionID  string `json:"redemption_id"`
	StudentID     string `json:"student_id"`
	RewardID      string `json:"reward_id"`
	CoinCost      int    `json:"coin_cost"`
	TransactionID string `json:"transaction_id"`
}

// Payload implements Event interface.
func (e RewardRedeemedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"redemption_id":  e.RedemptionID,
		"student_id":     e.StudentID,
		"reward_id":      e.RewardID,
		"coin_cost":      e.CoinCost,
		"transaction_id": e.TransactionID,
	}
}

// NewRewardRedeemedEvent creates a new RewardRedeemedEvent.
func NewRewardRedeemedEvent(redemptionID, studentID, rewardID string, coinCost int, txID string) RewardRedeemedEvent {
	return RewardRedeemedEvent{
		BaseEvent:     NewBaseEvent(EventRewardRedeemed, redemptionID),
		RedemptionID:  redemptionID,
		StudentID:     studentID,
		RewardID:      rewardID,
		CoinCost:      coinCost,
		TransactionID: txID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Referral Events
// ═══════════════════════════════════════════════════════════════════════════

// ReferralEnrolledEvent is emitted when a referral reaches the enrolled state.
type ReferralEnrolledEvent struct {
	BaseEvent
	ReferralID    string `json:"referral_id"`
	ReferrerID    string `json:"referrer_id"`
	TenantID      string `json:"tenant_id"`
	CampaignID    string `json:"campaign_id,omitempty"`
	RewardPoints  int    `json:"reward_points"`
	RewardCoins   int    `json:"reward_coins"`
	TierBonus     int    `json:"tier_bonus"`
	EnrolledCount int    `json:"enrolled_count"`
}

// Payload implements Event interface.
func (e ReferralEnrolledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"referral_id":    e.ReferralID,
		"referrer_id":    e.ReferrerID,
		"tenant_id":      e.TenantID,
		"campaign_id":    e.CampaignID,
		"reward_points":  e.RewardPoints,
		"reward_coins":   e.RewardCoins,
		"tier_bonus":     e.TierBonus,
		"enrolled_count": e.EnrolledCount,
	}
}

// NewReferralEnrolledEvent creates a new ReferralEnrolledEvent.
func NewReferralEnrolledEvent(referralID, referrerID, tenantID, campaignID string, rewardPoints, rewardCoins, tierBonus, enrolledCount int) ReferralEnrolledEvent {
	return ReferralEnrolledEvent{
		BaseEvent:     NewBaseEvent(EventReferralEnrolled, referralID),
		ReferralID:    referralID,
		ReferrerID:    referrerID,
		TenantID:      tenantID,
		CampaignID:    campaignID,
		RewardPoints:  rewardPoints,
		RewardCoins:   rewardCoins,
		TierBonus:     tierBonus,
		EnrolledCount: enrolledCount,
	}
}

// ReferralStatusChangedEvent covers the non-enrolled transitions
// (contacted, declined, expired).
type ReferralStatusChangedEvent struct {
	BaseEvent
	ReferralID string `json:"referral_id"`
	ReferrerID string `json:"referrer_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	ActorID    string `json:"actor_id,omitempty"` // empty for sweep-driven expiry
}

// Payload implements Event interface.
func (e ReferralStatusChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"referral_id": e.ReferralID,
		"referrer_id": e.ReferrerID,
		"old_status":  e.OldStatus,
		"new_status":  e.NewStatus,
		"actor_id":    e.ActorID,
	}
}

// NewReferralStatusChangedEvent creates a new ReferralStatusChangedEvent.
func NewReferralStatusChangedEvent(eventType EventType, referralID, referrerID, oldStatus, newStatus, actorID string) ReferralStatusChangedEvent {
	return ReferralStatusChangedEvent{
		BaseEvent:  NewBaseEvent(eventType, referralID),
		ReferralID: referralID,
		ReferrerID: referrerID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		ActorID:    actorID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
