// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// StudentID represents a unique student identifier (UUID format).
// Student records themselves are owned by the external entity directory;
// the engine only references them.
type StudentID string

// IsValid checks if the student ID is a valid UUID.
func (s StudentID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s StudentID) IsEmpty() bool {
	return s == ""
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.ToLower(strings.TrimSpace(id)))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidID, "invalid student ID format")
	}
	return sid, nil
}

// TenantID represents the owning organization of a ledger row.
type TenantID string

// IsValid checks if the tenant ID is a valid UUID.
func (t TenantID) IsValid() bool {
	return uuidRegex.MatchString(string(t))
}

// String returns the string representation.
func (t TenantID) String() string {
	return string(t)
}

// IsEmpty checks if the ID is empty.
func (t TenantID) IsEmpty() bool {
	return t == ""
}

// NewTenantID creates a new TenantID with validation.
func NewTenantID(id string) (TenantID, error) {
	tid := TenantID(strings.ToLower(strings.TrimSpace(id)))
	if !tid.IsValid() {
		return "", NewDomainError("shared", "NewTenantID", ErrInvalidID, "invalid tenant ID format")
	}
	return tid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Actor (authenticated caller identity, provided by external Identity/Access)
// ═══════════════════════════════════════════════════════════════════════════

// ActorRole describes the privilege level of the caller. Authentication is
// external; the engine trusts the identity but still validates that the
// privilege matches the requested operation.
type ActorRole string

const (
	// RoleStaff can award/deduct points and submit referrals.
	RoleStaff ActorRole = "staff"
	// RoleAdmin additionally decides approvals and authors catalogs.
	RoleAdmin ActorRole = "admin"
	// RoleSystem is used by internal jobs (sweeps, reconciliation).
	RoleSystem ActorRole = "system"
)

// IsValid checks that the role is known.
func (r ActorRole) IsValid() bool {
	switch r {
	case RoleStaff, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// IsElevated reports whether the role may decide approvals and author
// achievement/reward catalogs.
func (r ActorRole) IsElevated() bool {
	return r == RoleAdmin || r == RoleSystem
}

// Actor is the already-authenticated identity behind a ledger-affecting call.
type Actor struct {
	ID     string
	Role   ActorRole
	Tenant TenantID
}

// IsValid checks the actor carries an identity and a known role.
func (a Actor) IsValid() bool {
	return a.ID != "" && a.Role.IsValid()
}

// IsElevated reports whether the actor may decide approvals and author
// achievement/reward catalogs.
func (a Actor) IsElevated() bool {
	return a.Role.IsElevated()
}

// SystemActor returns the actor used by internal jobs.
func SystemActor(tenant TenantID) Actor {
	return Actor{ID: "system", Role: RoleSystem, Tenant: tenant}
}

// ═══════════════════════════════════════════════════════════════════════════
// Points & Coins
// ═══════════════════════════════════════════════════════════════════════════

// Points represents a signed point delta or total.
type Points int

// Int returns the underlying int value.
func (p Points) Int() int {
	return int(p)
}

// Abs returns the absolute value, used for the approval magnitude test.
func (p Points) Abs() Points {
	if p < 0 {
		return -p
	}
	return p
}

// Coins represents a signed coin delta or total.
type Coins int

// Int returns the underlying int value.
func (c Coins) Int() int {
	return int(c)
}

// Abs returns the absolute value.
func (c Coins) Abs() Coins {
	if c < 0 {
		return -c
	}
	return c
}

// ═══════════════════════════════════════════════════════════════════════════
// Time Range
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents an inclusive time window used by history filters
// and campaign activity checks.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks the range is well-formed. Zero bounds are open ends.
func (t TimeRange) IsValid() bool {
	if t.From.IsZero() || t.To.IsZero() {
		return true
	}
	return !t.To.Before(t.From)
}

// IsZero reports whether both bounds are unset.
func (t TimeRange) IsZero() bool {
	return t.From.IsZero() && t.To.IsZero()
}

// Contains reports whether the instant falls inside the range.
func (t TimeRange) Contains(at time.Time) bool {
	if !t.From.IsZero() && at.Before(t.From) {
		return false
	}
	if !t.To.IsZero() && at.After(t.To) {
		return false
	}
	return true
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

// Page holds standard limit/offset pagination parameters.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize(defaultLimit, maxLimit int) Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
