// Package handler exposes cloud account routes for gated users and admins.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pikacloud/backend/internal/cloud/account"
	"pikacloud/backend/internal/cloud/account/domain"
	iddomain "pikacloud/backend/internal/identity/domain"
	"pikacloud/backend/internal/server/middleware"
	"pikacloud/backend/internal/server/respond"
)

type accountResponse struct {
	Provider    string    `json:"provider"`
	CloudUserID string    `json:"cloud_user_id"`
	Username    string    `json:"username"`
	CreatedAt   time.Time `json:"created_at"`
}

type Handler struct {
	accounts *account.Service
}

func NewHandler(accounts *account.Service) *Handler {
	return &Handler{accounts: accounts}
}

// UserRoutes mounts the caller's own account routes; r must sit behind the gate.
func (h *Handler) UserRoutes(r chi.Router) {
	r.Post("/{provider}/account", h.Provision)
	r.Get("/{provider}/account", h.GetAccount)
	r.Get("/{provider}/token", h.Token)
}

// AdminRoutes mounts cloud user administration; r must sit behind an admin prefix.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/{provider}/users/{cloudUserID}", h.UserExists)
	r.Delete("/{provider}/users/{cloudUserID}", h.DeleteUser)
}

func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respond.FromError(w, r, iddomain.Unauthorized(iddomain.MsgUnauthorized, nil))
		return
	}
	cu, err := h.accounts.Provision(r.Context(), chi.URLParam(r, "provider"), userID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, toAccountResponse(cu))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respond.FromError(w, r, iddomain.Unauthorized(iddomain.MsgUnauthorized, nil))
		return
	}
	cu, err := h.accounts.Account(r.Context(), chi.URLParam(r, "provider"), userID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, toAccountResponse(cu))
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respond.FromError(w, r, iddomain.Unauthorized(iddomain.MsgUnauthorized, nil))
		return
	}
	tok, err := h.accounts.Token(r.Context(), chi.URLParam(r, "provider"), userID)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	respond.JSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (h *Handler) UserExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.accounts.UserExists(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "cloudUserID"))
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteUser(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "cloudUserID")); err != nil {
		respond.FromError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toAccountResponse(cu *domain.CloudUser) accountResponse {
	return accountResponse{
		Provider:    cu.Provider,
		CloudUserID: cu.CloudUserID,
		Username:    cu.CloudUsername,
		CreatedAt:   cu.CreatedAt,
	}
}
