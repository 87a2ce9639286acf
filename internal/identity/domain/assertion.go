package domain

// Result is the outcome of a successful login or registration: the local user id
// and the user's role names.
type Result struct {
	UserID string
	Roles  []string
}

// ExternalIdentity is what an external validator vouches for: the subject id used as the
// local username, and a display name.
type ExternalIdentity struct {
	SubjectID   string
	DisplayName string
}
