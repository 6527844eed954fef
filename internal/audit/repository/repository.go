package repository

import (
	"context"

	"project-canvas-hub/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByProject returns a project's audit logs newest first.
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.AuditLog, error)
}
