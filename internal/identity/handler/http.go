// Package handler exposes the auth routes: provider listing, login, registration and the
// redirect callback.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pikacloud/backend/internal/identity/domain"
	"pikacloud/backend/internal/identity/service"
	"pikacloud/backend/internal/server/middleware"
	"pikacloud/backend/internal/server/respond"
)

type authRequest struct {
	Provider string          `json:"provider"`
	Payload  json.RawMessage `json:"payload"`
}

type authResponse struct {
	ID          string    `json:"id"`
	Roles       []string  `json:"roles"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	MFARequired bool      `json:"mfa_required"`
}

type providersResponse struct {
	Providers    []string        `json:"providers"`
	MFARequired  map[string]bool `json:"mfa_required"`
	Registration []string        `json:"registration"`
}

// Handler serves the auth routes.
type Handler struct {
	auth *service.AuthService
}

// NewHandler returns a handler backed by auth.
func NewHandler(auth *service.AuthService) *Handler {
	return &Handler{auth: auth}
}

// Routes mounts the auth endpoints on r. loginLimiter wraps the credential-accepting routes; it may be nil.
func (h *Handler) Routes(r chi.Router, loginLimiter func(http.Handler) http.Handler) {
	r.Get("/login", h.ListProviders)
	r.Get("/callback/{provider}", h.Callback)
	r.Group(func(r chi.Router) {
		if loginLimiter != nil {
			r.Use(loginLimiter)
		}
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
	})
}

// ListProviders handles GET /login.
func (h *Handler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	infos := h.auth.Providers()
	resp := providersResponse{
		Providers:    make([]string, 0, len(infos)),
		MFARequired:  make(map[string]bool, len(infos)),
		Registration: []string{},
	}
	for _, p := range infos {
		resp.Providers = append(resp.Providers, p.Name)
		resp.MFARequired[p.Name] = p.MFARequired
		if p.SupportsRegistration {
			resp.Registration = append(resp.Registration, p.Name)
		}
	}
	respond.JSON(w, http.StatusOK, resp)
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.FromError(w, r, err)
		return
	}
	if req.Provider == "" {
		respond.FromError(w, r, domain.BadRequest("provider is required"))
		return
	}
	res, err := h.auth.Login(r.Context(), req.Provider, req.Payload, middleware.GetClientIP(r.Context()))
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResponse(res))
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.FromError(w, r, err)
		return
	}
	if req.Provider == "" {
		respond.FromError(w, r, domain.BadRequest("provider is required"))
		return
	}
	res, err := h.auth.Register(r.Context(), req.Provider, req.Payload)
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResponse(res))
}

// Callback handles GET /callback/{provider}?code=.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	res, err := h.auth.Callback(r.Context(), name, r.URL.Query().Get("code"), middleware.GetClientIP(r.Context()))
	if err != nil {
		respond.FromError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResponse(res))
}

func toResponse(res *service.AuthResult) authResponse {
	return authResponse{
		ID:          res.UserID,
		Roles:       res.Roles,
		Token:       res.Token,
		ExpiresAt:   res.ExpiresAt,
		MFARequired: res.MFARequired,
	}
}
