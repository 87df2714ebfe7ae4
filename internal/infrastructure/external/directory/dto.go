// Package directory implements the entity directory API client.
// The directory is the system of record for students, tenants, and staff
// accounts; the points engine holds opaque identifiers only and asks the
// directory to resolve them before committing awards.
package directory

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE WRAPPER
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the standard directory response envelope.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// APIErrorDTO is the error body the directory returns on 4xx/5xx.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	return fmt.Sprintf("directory api error %s: %s", e.Code, e.Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY DTOs
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO is a student record as the directory returns it.
type StudentDTO struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Active     bool       `json:"active"`
	EnrolledAt time.Time  `json:"enrolled_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// FullName returns the student's display name.
func (d StudentDTO) FullName() string {
	if d.LastName == "" {
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}

// TenantDTO is a tenant (school/branch) record.
type TenantDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ActorDTO is a staff or admin account record.
type ActorDTO struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}
