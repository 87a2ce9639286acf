// Package domain holds the link between a local user and their account at a cloud provider.
package domain

import "time"

// CloudUser is one local user's account at one cloud provider. A user has at most one per provider.
// Password is the generated cloud credential used to obtain the user's cloud tokens.
type CloudUser struct {
	ID            string
	UserID        string
	Provider      string
	CloudUserID   string
	CloudUsername string
	CloudPassword string
	CreatedAt     time.Time
}
