// Package cache is the shared key/value store with per-entry expiry used to hold
// short-lived external credentials. Every consumer must tolerate a miss.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTTL is returned by Set when ttl is not positive.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// Cache stores string values with a per-key expiry.
type Cache interface {
	// Get returns the value for key. ok is false on a miss or after expiry.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value for ttl. A non-positive ttl is rejected.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
}
