package repository

import (
	"context"
	"sync"

	"pikacloud/backend/internal/cloud/account/domain"
	"pikacloud/backend/internal/db"
)

// MemoryRepository is an in-process Repository used when no database is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.CloudUser
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.CloudUser)}
}

func (r *MemoryRepository) Create(_ context.Context, cu *domain.CloudUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.UserID == cu.UserID && existing.Provider == cu.Provider {
			return db.ErrDuplicate
		}
	}
	c := *cu
	r.byID[cu.ID] = &c
	return nil
}

func (r *MemoryRepository) GetByUser(_ context.Context, userID, provider string) (*domain.CloudUser, error) {
	return r.find(func(cu *domain.CloudUser) bool { return cu.UserID == userID && cu.Provider == provider }), nil
}

func (r *MemoryRepository) GetByCloudUserID(_ context.Context, provider, cloudUserID string) (*domain.CloudUser, error) {
	return r.find(func(cu *domain.CloudUser) bool { return cu.Provider == provider && cu.CloudUserID == cloudUserID }), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *MemoryRepository) find(match func(*domain.CloudUser) bool) *domain.CloudUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cu := range r.byID {
		if match(cu) {
			c := *cu
			return &c
		}
	}
	return nil
}
