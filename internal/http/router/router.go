// Package router arma la tabla de rutas v1 con sus cadenas de middleware.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/controllers"
	mw "github.com/warshatech/trustgate/internal/http/middlewares"
	"github.com/warshatech/trustgate/internal/observability/metrics"
	"github.com/warshatech/trustgate/internal/rate"
	"github.com/warshatech/trustgate/internal/session"
)

// Limit es un límite de requests por categoría.
type Limit struct {
	Limit  int
	Window time.Duration
}

// RateLimits agrupa los límites por categoría de endpoint.
type RateLimits struct {
	Alerts   Limit
	Sessions Limit
	MFA      Limit
	Audit    Limit
}

// Deps contiene las dependencias del router.
type Deps struct {
	Auth        *controllers.AuthController
	Sessions    *controllers.SessionsController
	MFA         *controllers.MFAController
	Alerts      *controllers.AlertsController
	Audit       *controllers.AuditController
	Permissions *controllers.PermissionsController
	License     *controllers.LicenseController
	Business    *controllers.BusinessController
	Health      *controllers.HealthController

	SessionManager *session.Manager
	Users          repository.UserRepository

	// Limiter nil deshabilita rate limiting (tests, dev sin redis).
	Limiter    rate.MultiLimiter
	RateLimits RateLimits

	// AdminKey protege rutas administrativas; vacío las deshabilita.
	AdminKey string

	// Metrics es el handler de /metrics; nil lo omite.
	Metrics http.Handler
}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Cadena global: recover primero, request ID antes del logging.
	r.Use(mw.WithRecover())
	r.Use(mw.WithRequestID())
	r.Use(metrics.WithHTTP)
	r.Use(mw.WithSecurityHeaders())
	r.Use(mw.WithLogging())

	r.Get("/healthz", d.Health.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	auth := mw.WithAuth(d.SessionManager, d.Users)
	admin := mw.WithAdminKey(d.AdminKey)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(d.limit("sessions", d.RateLimits.Sessions))
			r.Post("/login", d.Auth.Login)
		})

		// En los grupos autenticados la sesión se resuelve antes del
		// limiter, para que el bucket sea por usuario y no por IP.
		r.Route("/sessions", func(r chi.Router) {
			r.Use(auth)
			r.Use(d.limit("sessions", d.RateLimits.Sessions))
			r.Get("/status", d.Sessions.Status)
			r.Post("/revoke", d.Sessions.Revoke)
			r.Post("/revoke-all", d.Sessions.RevokeAll)
			r.Get("/statistics", d.Sessions.Stats)
		})

		r.Route("/mfa", func(r chi.Router) {
			r.Use(auth)
			r.Use(d.limit("mfa", d.RateLimits.MFA))
			// El secreto TOTP y los backup codes no pueden quedar en
			// caches intermedios.
			r.Use(mw.WithNoStore())
			r.Post("/enable", d.MFA.Enable)
			r.Post("/send-code", d.MFA.SendCode)
			r.Post("/verify", d.MFA.Verify)
			r.Post("/backup-codes", d.MFA.BackupCodes)
			r.Post("/disable", d.MFA.Disable)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Use(auth)
			r.Use(d.limit("alerts", d.RateLimits.Alerts))
			r.Post("/trigger", d.Alerts.Trigger)
			r.Get("/summary", d.Alerts.Summary)
			r.Post("/{id}/resolve", d.Alerts.Resolve)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(auth)
			r.Use(d.limit("audit", d.RateLimits.Audit))
			r.Post("/events", d.Audit.Record)
			r.Get("/events", d.Audit.Query)
			r.Get("/summary", d.Audit.Summary)
		})

		r.Route("/permissions", func(r chi.Router) {
			r.Use(auth)
			r.Post("/check", d.Permissions.Check)
		})

		// Instalaciones sin licencia configurada no exponen estas rutas.
		if d.License != nil {
			r.Route("/license", func(r chi.Router) {
				r.Post("/validate", d.License.Validate)
				r.With(admin).Post("/rebind", d.License.Rebind)
			})
		}

		r.Route("/business", func(r chi.Router) {
			r.Use(admin)
			r.Post("/register", d.Business.Register)
			r.Put("/{id}", d.Business.Update)
			r.Post("/{id}/verify", d.Business.Verify)
		})
	})

	return r
}

// limit arma el middleware de rate limiting de una categoría, o un no-op
// si no hay limiter configurado.
func (d Deps) limit(category string, l Limit) func(http.Handler) http.Handler {
	if d.Limiter == nil || l.Limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw.WithRateLimit(d.Limiter, category, l.Limit, l.Window)
}
