package service

import (
	"context"

	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/internal/infrastructure/external/directory"
)

// DirectoryAdapter adapts the directory.Client to the command.DirectoryClient
// interface. The directory owns student, tenant and staff records; the engine
// only checks that a reference resolves to an active record before writing
// against it.
type DirectoryAdapter struct {
	client *directory.Client
}

// NewDirectoryAdapter creates a new DirectoryAdapter.
func NewDirectoryAdapter(client *directory.Client) *DirectoryAdapter {
	return &DirectoryAdapter{client: client}
}

// VerifyStudent implements command.DirectoryClient.
func (a *DirectoryAdapter) VerifyStudent(ctx context.Context, studentID, tenantID string) error {
	dto, err := a.client.GetStudent(ctx, studentID)
	if err != nil {
		return err
	}
	if dto.TenantID != tenantID || !dto.Active || dto.ArchivedAt != nil {
		return shared.ErrStudentUnresolved
	}
	return nil
}

// VerifyActor implements command.DirectoryClient.
func (a *DirectoryAdapter) VerifyActor(ctx context.Context, actorID, tenantID string) error {
	dto, err := a.client.GetActor(ctx, actorID)
	if err != nil {
		return err
	}
	if dto.TenantID != tenantID || !dto.Active {
		return shared.NewDomainError("directory", "VerifyActor", shared.ErrNotFound, "acting staff account is unresolved")
	}
	return nil
}
