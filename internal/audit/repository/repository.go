package repository

import (
	"context"

	"pikacloud/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns entries newest first. An empty userID lists all users.
	List(ctx context.Context, userID string, limit, offset int) ([]*domain.AuditLog, error)
}
