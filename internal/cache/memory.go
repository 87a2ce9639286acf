package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is an in-process Cache used when no Redis URL is configured.
// It is not shared across replicas.
type MemoryCache struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// Get returns the value for key if present and not expired. Expired entries are evicted.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(c.nowF()) {
		c.mu.Lock()
		if cur, ok := c.m[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value until now+ttl.
func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = entry{value: value, expiresAt: c.nowF().Add(ttl)}
	return nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }
