package repository

import (
	"context"

	"pikacloud/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Create inserts u. Returns db.ErrDuplicate when the username is taken.
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}
