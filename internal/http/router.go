// Package httpapi assembles the HTTP surface: middleware, the public
// verification pages and the authenticated /api tree.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	activityhandler "certhub/internal/activity/handler"
	adminhandler "certhub/internal/admin/handler"
	authhandler "certhub/internal/auth/handler"
	certhandler "certhub/internal/certificate/handler"
	insthandler "certhub/internal/institution/handler"
	supporthandler "certhub/internal/support/handler"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/httputil"
	authmw "certhub/pkg/platform/middleware/auth"
	"certhub/pkg/platform/middleware/locale"
	"certhub/pkg/platform/middleware/metadata"
	"certhub/pkg/platform/middleware/ratelimit"
	request "certhub/pkg/platform/middleware/request"
	"certhub/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Auth         *authhandler.Handler
	Certificates *certhandler.Handler
	Institutions *insthandler.Handler
	Support      *supporthandler.Handler
	Admin        *adminhandler.Handler
	Activity     *activityhandler.Handler
}

type Deps struct {
	Handlers Handlers
	Logger   *slog.Logger

	Tokens      authmw.JWTValidator
	Revocations authmw.TokenRevocationChecker

	// TrustedProxies may set forwarding headers; everyone else is keyed by
	// the socket peer.
	TrustedProxies metadata.TrustedProxies
	// VerifyLimiter throttles the public verification endpoints. Nil disables it.
	VerifyLimiter *ratelimit.PerIP
	// Metrics serves /metrics when set.
	Metrics     http.Handler
	HTTPMetrics *Metrics
	// Health is pinged by /health; nil means always healthy.
	Health Pinger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(metadata.ClientMetadataWith(d.TrustedProxies))
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(d.Logger))
	r.Use(d.HTTPMetrics.Middleware)

	r.Get("/health", healthHandler(d.Health, d.Logger))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/{locale:[a-zA-Z]{2}}", func(r chi.Router) {
		r.Use(locale.Middleware)
		if d.VerifyLimiter != nil {
			r.Use(d.VerifyLimiter.Middleware)
		}
		d.Handlers.Certificates.RegisterPublic(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(locale.Middleware)
		d.Handlers.Auth.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(d.Tokens, d.Revocations, d.Logger))
			d.Handlers.Auth.Register(r)
			d.Handlers.Certificates.Register(r)
			d.Handlers.Institutions.Register(r)
			d.Handlers.Support.Register(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(authmw.RequireRole(d.Logger, id.RoleAdmin))
				d.Handlers.Admin.Register(r)
				d.Handlers.Activity.Register(r)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})
	return r
}

func healthHandler(p Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := p.PingContext(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
