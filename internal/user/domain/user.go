package domain

import (
	"errors"
	"time"
)

// User is the core user entity. Username is unique across all login providers;
// for federated accounts it is the external subject id.
type User struct {
	ID            string
	Username      string
	LoginProvider LoginProvider
	Name          string
	Email         string
	PasswordHash  string // empty unless LoginProvider is password
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LoginProvider tags which provider created the account.
type LoginProvider string

// MinPasswordLen is the minimum local password length in characters.
const MinPasswordLen = 6

const (
	LoginProviderPassword LoginProvider = "password"
	LoginProviderIAAA     LoginProvider = "iaaa"
	LoginProviderLCPU     LoginProvider = "lcpu"
)

// Valid reports whether p is one of the known login providers.
func (p LoginProvider) Valid() bool {
	switch p {
	case LoginProviderPassword, LoginProviderIAAA, LoginProviderLCPU:
		return true
	}
	return false
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if !u.LoginProvider.Valid() {
		return errors.New("unknown login provider")
	}
	if u.PasswordHash != "" && u.LoginProvider != LoginProviderPassword {
		return errors.New("password hash is only allowed for password accounts")
	}
	return nil
}
