package security

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Non-positive cost
// falls back to bcrypt.DefaultCost (10).
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of password. Returns the hash as a string suitable for storage.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored hash using constant-time
// comparison. Returns nil if they match; returns an error (including
// bcrypt.ErrMismatchedHashAndPassword) if they do not or on invalid hash.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// CompareDummy spends the same work as Compare against a throwaway hash and always
// returns bcrypt.ErrMismatchedHashAndPassword. Use it when the account does not exist
// so lookups for unknown usernames take as long as wrong-password attempts.
func (h *Hasher) CompareDummy(password []byte) error {
	h.dummyOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte("pikacloud-dummy-password"), h.Cost)
		if err == nil {
			h.dummyHash = b
		}
	})
	if h.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, password)
	}
	return bcrypt.ErrMismatchedHashAndPassword
}
