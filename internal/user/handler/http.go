// Package handler serves the signed-in user's own profile and password.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	iddomain "pikacloud/backend/internal/identity/domain"
	"pikacloud/backend/internal/security"
	"pikacloud/backend/internal/server/middleware"
	"pikacloud/backend/internal/server/respond"
	"pikacloud/backend/internal/user/domain"
)

// Store is what the handler needs from the identity store.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

type meResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	LoginProvider string    `json:"login_provider"`
	Name          string    `json:"name,omitempty"`
	Email         string    `json:"email,omitempty"`
	Roles         []string  `json:"roles"`
	CreatedAt     time.Time `json:"created_at"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type Handler struct {
	store  Store
	hasher *security.Hasher
}

func NewHandler(store Store, hasher *security.Hasher) *Handler {
	return &Handler{store: store, hasher: hasher}
}

// Routes mounts the handlers on r; r must sit behind the gate.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Put("/password", h.ChangePassword)
}

func (h *Handler) current(r *http.Request) (*domain.User, error) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		return nil, iddomain.Unauthorized(iddomain.MsgUnauthorized, nil)
	}
	u, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "user: lookup failed", "user_id", userID, "error", err)
		return nil, iddomain.Internal(err)
	}
	if u == nil {
		return nil, iddomain.Unauthorized(iddomain.MsgUnauthorized, nil)
	}
	return u, nil
}

// Me handles GET /me. Roles come from the verified claim.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.current(r)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	roles := middleware.GetRoles(r.Context())
	if roles == nil {
		roles = []string{}
	}
	respond.JSON(w, http.StatusOK, meResponse{
		ID:            u.ID,
		Username:      u.Username,
		LoginProvider: string(u.LoginProvider),
		Name:          u.Name,
		Email:         u.Email,
		Roles:         roles,
		CreatedAt:     u.CreatedAt,
	})
}

// ChangePassword handles PUT /password for local-password accounts. The old password is
// required whenever a hash is already set.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.FromError(w, r, err)
		return
	}
	u, err := h.current(r)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	if u.LoginProvider != domain.LoginProviderPassword {
		respond.FromError(w, r, iddomain.Forbidden("password change is only available for password accounts"))
		return
	}
	if utf8.RuneCountInString(req.NewPassword) < domain.MinPasswordLen {
		respond.FromError(w, r, iddomain.BadRequest("new password is too short"))
		return
	}
	if u.PasswordHash != "" {
		if req.OldPassword == "" {
			respond.FromError(w, r, iddomain.BadRequest("old password is required"))
			return
		}
		if err := h.hasher.Compare(u.PasswordHash, []byte(req.OldPassword)); err != nil {
			respond.FromError(w, r, iddomain.Unauthorized(iddomain.MsgInvalidCredentials, nil))
			return
		}
	}
	hash, err := h.hasher.Hash([]byte(req.NewPassword))
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			respond.FromError(w, r, iddomain.BadRequest("password is too long"))
			return
		}
		respond.FromError(w, r, iddomain.Internal(err))
		return
	}
	if err := h.store.UpdatePasswordHash(r.Context(), u.ID, hash); err != nil {
		slog.ErrorContext(r.Context(), "user: update password failed", "user_id", u.ID, "error", err)
		respond.FromError(w, r, iddomain.Internal(err))
		return
	}
	slog.InfoContext(r.Context(), "user: password changed", "user_id", u.ID)
	w.WriteHeader(http.StatusNoContent)
}
