// Package tokens implements get-or-fetch caching of short-lived external credentials and
// slowly changing reference values.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"pikacloud/backend/internal/cache"
)

const (
	// DefaultSafetyMargin is subtracted from a token's declared expiry before caching.
	DefaultSafetyMargin = 300 * time.Second
	// DefaultReferenceTTL applies to values fetched without an expiry.
	DefaultReferenceTTL = 24 * time.Hour
	// minTTL is the shortest lifetime worth caching.
	minTTL = time.Second
)

// ErrExpiresTooSoon is returned when a fetched token would expire within the safety margin.
var ErrExpiresTooSoon = errors.New("tokens: credential expires within safety margin")

// Fetched is the outcome of one fetch. A zero ExpiresAt marks a reference value.
type Fetched struct {
	Value     string
	ExpiresAt time.Time
}

// FetchFunc performs the network round trip for a cache miss.
type FetchFunc func(ctx context.Context) (Fetched, error)

// Manager serves values from the cache and fetches them on a miss. Concurrent misses for
// the same key in one process share a single fetch; across processes they may each fetch.
type Manager struct {
	cache        cache.Cache
	margin       time.Duration
	referenceTTL time.Duration
	group        singleflight.Group
	nowF         func() time.Time
}

// NewManager returns a Manager. Non-positive durations fall back to the defaults.
func NewManager(c cache.Cache, margin, referenceTTL time.Duration) *Manager {
	if margin <= 0 {
		margin = DefaultSafetyMargin
	}
	if referenceTTL <= 0 {
		referenceTTL = DefaultReferenceTTL
	}
	return &Manager{
		cache:        c,
		margin:       margin,
		referenceTTL: referenceTTL,
		nowF:         time.Now,
	}
}

// GetOrFetch returns the cached value for key, or calls fetch and caches its result.
// Cache read and write failures degrade to a fetch and an uncached value respectively.
// The fetch is not cancelled when ctx is; a client disconnect never abandons it midway.
func (m *Manager) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	if v, ok := m.lookup(ctx, key); ok {
		return v, nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.fetchAndStore(context.WithoutCancel(ctx), key, fetch)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh fetches and stores key regardless of what is cached. Like GetOrFetch, the fetch
// is not cancelled with ctx.
func (m *Manager) Refresh(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.fetchAndStore(context.WithoutCancel(ctx), key, fetch)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) lookup(ctx context.Context, key string) (string, bool) {
	v, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "tokens: cache read failed, fetching", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (m *Manager) fetchAndStore(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	f, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	ttl, err := m.ttlFor(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	if err := m.cache.Set(ctx, key, f.Value, ttl); err != nil {
		slog.WarnContext(ctx, "tokens: cache write failed", "key", key, "error", err)
	}
	return f.Value, nil
}

func (m *Manager) ttlFor(f Fetched) (time.Duration, error) {
	if f.ExpiresAt.IsZero() {
		return m.referenceTTL, nil
	}
	ttl := f.ExpiresAt.Sub(m.nowF()) - m.margin
	if ttl < minTTL {
		return 0, ErrExpiresTooSoon
	}
	return ttl.Truncate(time.Second), nil
}
