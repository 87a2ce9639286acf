package repository

import (
	"context"

	"pikacloud/backend/internal/role/domain"
)

// Repository defines persistence for roles and user-role assignments.
type Repository interface {
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	// Create inserts r. Returns db.ErrDuplicate when the name is taken.
	Create(ctx context.Context, r *domain.Role) error
	// CreateAssignment inserts a. Returns db.ErrDuplicate when the user already holds the role.
	CreateAssignment(ctx context.Context, a *domain.Assignment) error
	ListAssignmentsByUser(ctx context.Context, userID string) ([]*domain.Assignment, error)
	ListByIDs(ctx context.Context, ids []string) ([]*domain.Role, error)
}
