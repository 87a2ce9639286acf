package domain

import "time"

// Well-known role names. Member is assigned to every account on first login or registration.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Role is a named permission group.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Assignment links a user to a role.
type Assignment struct {
	ID        string
	UserID    string
	RoleID    string
	CreatedAt time.Time
}
