package repository

import (
	"context"
	"sort"
	"sync"

	"pikacloud/backend/internal/audit/domain"
)

// maxMemoryEntries bounds the in-memory log; the oldest entries are dropped first.
const maxMemoryEntries = 10000

// MemoryRepository keeps audit logs in process, for runs without a database.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*domain.AuditLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.AuditLog) error {
	c := *a
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &c)
	if len(r.entries) > maxMemoryEntries {
		r.entries = r.entries[len(r.entries)-maxMemoryEntries:]
	}
	return nil
}

func (r *MemoryRepository) List(_ context.Context, userID string, limit, offset int) ([]*domain.AuditLog, error) {
	r.mu.RLock()
	matched := make([]*domain.AuditLog, 0, len(r.entries))
	for _, e := range r.entries {
		if userID == "" || e.UserID == userID {
			c := *e
			matched = append(matched, &c)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
