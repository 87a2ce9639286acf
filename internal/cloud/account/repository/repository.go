package repository

import (
	"context"

	"pikacloud/backend/internal/cloud/account/domain"
)

// Repository persists cloud user links. Getters return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, cu *domain.CloudUser) error
	GetByUser(ctx context.Context, userID, provider string) (*domain.CloudUser, error)
	GetByCloudUserID(ctx context.Context, provider, cloudUserID string) (*domain.CloudUser, error)
	Delete(ctx context.Context, id string) error
}
