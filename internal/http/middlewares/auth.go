package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/session"
)

// WithAuth resuelve el token opaco Bearer contra el session manager e
// inyecta sesión y usuario en el contexto. Una sesión revocada o vencida
// falla acá: toma efecto en el request siguiente a la revocación.
func WithAuth(sessions *session.Manager, users repository.UserRepository) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := helpers.BearerToken(r)
			if token == "" {
				errors.WriteError(w, errors.ErrAuthenticationFailed.WithDetail("missing bearer token"))
				return
			}

			s, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				if repository.IsNotFound(err) {
					errors.WriteError(w, errors.ErrAuthenticationFailed)
					return
				}
				logger.From(r.Context()).Error("session resolve failed", logger.Err(err))
				errors.WriteError(w, errors.ErrInternal)
				return
			}

			ctx := WithSession(r.Context(), s)
			if u, err := users.Get(ctx, s.UserEmail); err == nil {
				ctx = WithUser(ctx, u)
			}
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserEmail(s.UserEmail)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAdminKey protege operaciones administrativas (re-binding de licencia,
// registro de negocio) con una API key dedicada, separada de la sesión.
func WithAdminKey(adminKey string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				errors.WriteError(w, errors.ErrPermissionDenied.WithDetail("admin operations disabled"))
				return
			}
			got := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
				errors.WriteError(w, errors.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
