package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"pikacloud/backend/internal/db"
	"pikacloud/backend/internal/identity/domain"
	"pikacloud/backend/internal/security"
	userdomain "pikacloud/backend/internal/user/domain"
)

const maxUsernameLen = 64

// UserLookup finds users by username. Returns (nil, nil) when absent.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*userdomain.User, error)
}

// AccountProvisioner creates accounts with their default role and reads role names.
type AccountProvisioner interface {
	Provision(ctx context.Context, u *userdomain.User) ([]string, error)
	RolesOf(ctx context.Context, userID string) ([]string, error)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PasswordProvider authenticates local accounts against a bcrypt password hash.
type PasswordProvider struct {
	users         UserLookup
	accounts      AccountProvisioner
	hasher        *security.Hasher
	allowRegister bool
	mfaRequired   bool
	nowF          func() time.Time
	newID         func() string
}

// NewPasswordProvider returns the local-password provider. Registration is only accepted when allowRegister is true.
func NewPasswordProvider(users UserLookup, accounts AccountProvisioner, hasher *security.Hasher, allowRegister, mfaRequired bool) *PasswordProvider {
	return &PasswordProvider{
		users:         users,
		accounts:      accounts,
		hasher:        hasher,
		allowRegister: allowRegister,
		mfaRequired:   mfaRequired,
		nowF:          time.Now,
		newID:         uuid.NewString,
	}
}

func (p *PasswordProvider) Name() string               { return string(userdomain.LoginProviderPassword) }
func (p *PasswordProvider) MFARequired() bool          { return p.mfaRequired }
func (p *PasswordProvider) SupportsRegistration() bool { return true }

// Login checks username and password. A missing account and a wrong password fail identically.
func (p *PasswordProvider) Login(ctx context.Context, payload json.RawMessage, _ string) (*domain.Result, error) {
	var c credentials
	if err := decodePayload(payload, &c); err != nil {
		return nil, err
	}
	if c.Username == "" || c.Password == "" {
		return nil, domain.BadRequest("username and password are required")
	}

	u, err := p.users.GetUserByUsername(ctx, c.Username)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if u == nil || u.LoginProvider != userdomain.LoginProviderPassword || u.PasswordHash == "" {
		_ = p.hasher.CompareDummy([]byte(c.Password))
		return nil, domain.Unauthorized(domain.MsgInvalidCredentials, nil)
	}
	if err := p.hasher.Compare(u.PasswordHash, []byte(c.Password)); err != nil {
		return nil, domain.Unauthorized(domain.MsgInvalidCredentials, nil)
	}

	roles, err := p.accounts.RolesOf(ctx, u.ID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	return &domain.Result{UserID: u.ID, Roles: roles}, nil
}

// Register creates a local account with the member role.
func (p *PasswordProvider) Register(ctx context.Context, payload json.RawMessage) (*domain.Result, error) {
	if !p.allowRegister {
		return nil, domain.Forbidden("registration is disabled")
	}
	var c credentials
	if err := decodePayload(payload, &c); err != nil {
		return nil, err
	}
	if c.Username == "" || c.Password == "" {
		return nil, domain.BadRequest("username and password are required")
	}
	if utf8.RuneCountInString(c.Username) > maxUsernameLen {
		return nil, domain.BadRequest("username is too long")
	}
	if utf8.RuneCountInString(c.Password) < userdomain.MinPasswordLen {
		return nil, domain.BadRequest("password is too short")
	}
	if allDigits(c.Username) {
		// Numeric usernames are reserved for federated student and staff ids.
		return nil, domain.BadRequest("username cannot be all numbers")
	}

	existing, err := p.users.GetUserByUsername(ctx, c.Username)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if existing != nil {
		return nil, domain.Conflict("user already exists")
	}

	hash, err := p.hasher.Hash([]byte(c.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, domain.BadRequest("password is too long")
		}
		return nil, domain.Internal(err)
	}

	now := p.nowF().UTC()
	u := &userdomain.User{
		ID:            p.newID(),
		Username:      c.Username,
		LoginProvider: userdomain.LoginProviderPassword,
		PasswordHash:  hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	roles, err := p.accounts.Provision(ctx, u)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, domain.Conflict("user already exists")
		}
		return nil, domain.Internal(err)
	}
	slog.InfoContext(ctx, "auth: password account registered", "user_id", u.ID)
	return &domain.Result{UserID: u.ID, Roles: roles}, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
