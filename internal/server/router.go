// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pikacloud/backend/internal/audit"
	audithandler "pikacloud/backend/internal/audit/handler"
	cloudhandler "pikacloud/backend/internal/cloud/handler"
	healthhandler "pikacloud/backend/internal/health/handler"
	identityhandler "pikacloud/backend/internal/identity/handler"
	"pikacloud/backend/internal/server/middleware"
	userhandler "pikacloud/backend/internal/user/handler"
)

// RouterOptions holds the handlers mounted by NewRouter. Auth, Gate and Health are required;
// the other handlers are mounted only when set.
type RouterOptions struct {
	AuthPrefix   string
	Auth         *identityhandler.Handler
	Gate         *middleware.Gate
	Health       *healthhandler.Checker
	User         *userhandler.Handler
	Cloud        *cloudhandler.Handler
	AuditList    *audithandler.Handler
	AuditLogger  audit.AuditLogger
	LoginLimiter func(http.Handler) http.Handler
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy  bool
	CORSOrigins []string
}

func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter builds the HTTP surface. Everything outside the auth routes and the probes sits
// behind the gate, including unmatched paths.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.ClientIP)
	r.Use(chimw.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(opts.CORSOrigins)))
	}

	// Set before mounting so subrouters inherit them.
	r.NotFound(opts.Gate.Middleware(http.HandlerFunc(http.NotFound)).ServeHTTP)
	r.MethodNotAllowed(opts.Gate.Middleware(http.HandlerFunc(methodNotAllowed)).ServeHTTP)

	r.Get("/healthz", opts.Health.Liveness)
	r.Get("/readyz", opts.Health.Readiness)

	r.Route(opts.AuthPrefix, func(r chi.Router) {
		opts.Auth.Routes(r, opts.LoginLimiter)
	})

	r.Group(func(r chi.Router) {
		r.Use(opts.Gate.Middleware)
		if opts.AuditLogger != nil {
			r.Use(middleware.Audit(opts.AuditLogger))
		}
		if opts.User != nil {
			r.Route("/api/user", opts.User.Routes)
		}
		if opts.Cloud != nil {
			r.Route("/api/cloud", opts.Cloud.UserRoutes)
		}
		r.Route("/api/admin", func(r chi.Router) {
			if opts.Cloud != nil {
				r.Route("/cloud", opts.Cloud.AdminRoutes)
			}
			if opts.AuditList != nil {
				r.Get("/audit", opts.AuditList.List)
			}
		})
	})
	return r
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusMethodNotAllowed)
}
