// Package account links local users to accounts at cloud providers and hands out their
// cloud tokens.
package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pikacloud/backend/internal/cloud"
	"pikacloud/backend/internal/cloud/account/domain"
	"pikacloud/backend/internal/cloud/account/repository"
	"pikacloud/backend/internal/db"
	iddomain "pikacloud/backend/internal/identity/domain"
	userdomain "pikacloud/backend/internal/user/domain"
)

// UserGetter loads local users by id. Returns (nil, nil) when absent.
type UserGetter interface {
	GetUserByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Service provisions cloud accounts and serves cloud tokens. Errors are classified with the
// identity error taxonomy; cloud and store causes are logged, never returned to clients.
type Service struct {
	providers *cloud.Registry
	links     repository.Repository
	users     UserGetter
	nowF      func() time.Time
	newID     func() string
}

func NewService(providers *cloud.Registry, links repository.Repository, users UserGetter) *Service {
	return &Service{
		providers: providers,
		links:     links,
		users:     users,
		nowF:      time.Now,
		newID:     uuid.NewString,
	}
}

func (s *Service) provider(name string) (cloud.Provider, error) {
	p, ok := s.providers.Get(name)
	if !ok {
		return nil, iddomain.BadRequest("invalid cloud provider")
	}
	return p, nil
}

// Provision creates the caller's account at providerName, named after their username.
func (s *Service) Provision(ctx context.Context, providerName, userID string) (*domain.CloudUser, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	existing, err := s.links.GetByUser(ctx, userID, providerName)
	if err != nil {
		return nil, s.internal(ctx, "lookup link", err)
	}
	if existing != nil {
		return nil, iddomain.Conflict("cloud account already exists")
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, s.internal(ctx, "lookup user", err)
	}
	if u == nil {
		return nil, iddomain.Unauthorized(iddomain.MsgUnauthorized, nil)
	}

	acct, err := p.CreateUser(ctx, u.Username)
	if err != nil {
		return nil, s.internal(ctx, "create cloud user", err)
	}
	cu := &domain.CloudUser{
		ID:            s.newID(),
		UserID:        userID,
		Provider:      providerName,
		CloudUserID:   acct.UserID,
		CloudUsername: acct.Username,
		CloudPassword: acct.Password,
		CreatedAt:     s.nowF().UTC(),
	}
	if err := s.links.Create(ctx, cu); err != nil {
		// The cloud user has no local link; remove it so a retry can recreate it.
		if derr := p.DeleteUser(context.WithoutCancel(ctx), acct.UserID); derr != nil {
			slog.WarnContext(ctx, "cloud: orphaned cloud user", "provider", providerName, "cloud_user_id", acct.UserID, "error", derr)
		}
		if errors.Is(err, db.ErrDuplicate) {
			return nil, iddomain.Conflict("cloud account already exists")
		}
		return nil, s.internal(ctx, "store link", err)
	}
	slog.InfoContext(ctx, "cloud: account provisioned", "provider", providerName, "user_id", userID, "cloud_user_id", acct.UserID)
	return cu, nil
}

// Account returns the caller's link at providerName.
func (s *Service) Account(ctx context.Context, providerName, userID string) (*domain.CloudUser, error) {
	if _, err := s.provider(providerName); err != nil {
		return nil, err
	}
	cu, err := s.links.GetByUser(ctx, userID, providerName)
	if err != nil {
		return nil, s.internal(ctx, "lookup link", err)
	}
	if cu == nil {
		return nil, iddomain.NotFound("cloud account not found")
	}
	return cu, nil
}

// Token returns a cloud token for the caller's account at providerName.
func (s *Service) Token(ctx context.Context, providerName, userID string) (string, error) {
	cu, err := s.Account(ctx, providerName, userID)
	if err != nil {
		return "", err
	}
	p, _ := s.providers.Get(providerName)
	tok, err := p.UserToken(ctx, cu.CloudUsername, cu.CloudPassword)
	if err != nil {
		return "", s.internal(ctx, "user token", err)
	}
	return tok, nil
}

// UserExists reports whether cloudUserID exists at providerName.
func (s *Service) UserExists(ctx context.Context, providerName, cloudUserID string) (bool, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return false, err
	}
	ok, err := p.UserExists(ctx, cloudUserID)
	if err != nil {
		return false, s.internal(ctx, "user exists", err)
	}
	return ok, nil
}

// DeleteUser removes cloudUserID at providerName and drops its local link if one exists.
func (s *Service) DeleteUser(ctx context.Context, providerName, cloudUserID string) error {
	p, err := s.provider(providerName)
	if err != nil {
		return err
	}
	if err := p.DeleteUser(ctx, cloudUserID); err != nil {
		return s.internal(ctx, "delete cloud user", err)
	}
	cu, err := s.links.GetByCloudUserID(ctx, providerName, cloudUserID)
	if err != nil {
		return s.internal(ctx, "lookup link", err)
	}
	if cu != nil {
		if err := s.links.Delete(ctx, cu.ID); err != nil {
			return s.internal(ctx, "delete link", err)
		}
	}
	slog.InfoContext(ctx, "cloud: user deleted", "provider", providerName, "cloud_user_id", cloudUserID)
	return nil
}

func (s *Service) internal(ctx context.Context, op string, err error) error {
	slog.ErrorContext(ctx, "cloud: "+op+" failed", "error", err)
	return iddomain.Internal(err)
}
