package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles for the points engine.
// Supports gradual rollout, tenant targeting, and per-student overrides.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	studentOverrides map[string]map[string]bool // studentID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Students are assigned based on hash of their ID
	RolloutPercent int

	// Tenant targeting; empty means all tenants
	TargetTenants []string

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	StudentID  string
	TenantID   string
	IsElevated bool
}

// Predefined feature flag names.
const (
	// === Ledger Features ===
	FeatureLedgerBulkAward    = "ledger.bulk_award"    // Bulk award endpoint
	FeatureLedgerSoftDelete   = "ledger.soft_delete"   // Soft-delete corrections
	FeatureLedgerApprovalGate = "ledger.approval_gate" // Threshold-gated approvals

	// === Engagement Features ===
	FeatureAchievements      = "engagement.achievements"       // Achievement unlocks
	FeatureReferralCampaigns = "engagement.referral_campaigns" // Campaign multipliers/tiers
	FeatureRewardStore       = "engagement.reward_store"       // Coin redemptions

	// === Notification Features ===
	FeatureNotifyLevelUp     = "notify.level_up"     // "You reached level N!"
	FeatureNotifyUnlock      = "notify.unlock"       // Achievement unlocked
	FeatureNotifyEnrollBonus = "notify.enroll_bonus" // Referral bonus landed

	// === Operational Features ===
	FeatureOpsLeaderboardCache = "ops.leaderboard_cache" // Warm standings in Redis
	FeatureOpsAutoRepair       = "ops.auto_repair"       // Reconcile rewrites diverged aggregates
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		studentOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Ledger features - core, enabled by default
	ff.features[FeatureLedgerBulkAward] = &Feature{
		Name:           FeatureLedgerBulkAward,
		Description:    "Award a whole group in one request",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLedgerSoftDelete] = &Feature{
		Name:           FeatureLedgerSoftDelete,
		Description:    "Mark transactions deleted without losing the audit row",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLedgerApprovalGate] = &Feature{
		Name:           FeatureLedgerApprovalGate,
		Description:    "Queue large awards for staff approval",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Engagement features
	ff.features[FeatureAchievements] = &Feature{
		Name:           FeatureAchievements,
		Description:    "Evaluate achievement predicates after commits",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureReferralCampaigns] = &Feature{
		Name:           FeatureReferralCampaigns,
		Description:    "Campaign multipliers and tier bonuses for referrals",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRewardStore] = &Feature{
		Name:           FeatureRewardStore,
		Description:    "Coin-priced reward catalog and redemptions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Notification features - tuned to avoid spam
	ff.features[FeatureNotifyLevelUp] = &Feature{
		Name:           FeatureNotifyLevelUp,
		Description:    "Notify on level up",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyUnlock] = &Feature{
		Name:           FeatureNotifyUnlock,
		Description:    "Notify on achievement unlock",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyEnrollBonus] = &Feature{
		Name:           FeatureNotifyEnrollBonus,
		Description:    "Notify referrers when an enrollment bonus lands",
		Enabled:        true,
		RolloutPercent: 50, // Gradual rollout
	}

	// Operational features
	ff.features[FeatureOpsLeaderboardCache] = &Feature{
		Name:           FeatureOpsLeaderboardCache,
		Description:    "Serve standings from the Redis cache",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureOpsAutoRepair] = &Feature{
		Name:           FeatureOpsAutoRepair,
		Description:    "Let the reconcile job rewrite diverged aggregates",
		Enabled:        false, // Observe divergence alerts first
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_ENGAGEMENT_ACHIEVEMENTS=true
// Example: FEATURE_NOTIFY_ENROLL_BONUS=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "engagement.achievements" -> "FEATURE_ENGAGEMENT_ACHIEVEMENTS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check student overrides first
	if ctx != nil && ctx.StudentID != "" {
		if overrides, ok := ff.studentOverrides[ctx.StudentID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Elevated actors get all features
	if ctx != nil && ctx.IsElevated {
		return true
	}

	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check tenant targeting
	if len(feature.TargetTenants) > 0 && ctx != nil && ctx.TenantID != "" {
		tenantMatch := false
		for _, t := range feature.TargetTenants {
			if t == ctx.TenantID {
				tenantMatch = true
				break
			}
		}
		if !tenantMatch {
			return false
		}
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.StudentID != "" {
		return ff.isInRollout(ctx.StudentID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a student is in the rollout percentage.
// Uses consistent hashing so students stay in their bucket.
func (ff *FeatureFlags) isInRollout(studentID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// SetStudentOverride sets a feature override for a specific student.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetStudentOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.studentOverrides[studentID]; !ok {
		ff.studentOverrides[studentID] = make(map[string]bool)
	}
	ff.studentOverrides[studentID][featureName] = enabled
}

// ClearStudentOverrides removes all overrides for a student.
func (ff *FeatureFlags) ClearStudentOverrides(studentID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.studentOverrides, studentID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// NotificationsEnabled checks if any notifications are enabled.
func (ff *FeatureFlags) NotificationsEnabled(ctx *FeatureContext) bool {
	return ff.IsEnabled(FeatureNotifyLevelUp, ctx) ||
		ff.IsEnabled(FeatureNotifyUnlock, ctx) ||
		ff.IsEnabled(FeatureNotifyEnrollBonus, ctx)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
