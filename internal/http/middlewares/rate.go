package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/rate"
)

// WithRateLimit limita por categoría de endpoints, keyed por caller:
// el email de la sesión si hay una, la IP si no.
func WithRateLimit(limiter rate.MultiLimiter, category string, limit int, window time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			subject := helpers.ClientIP(r)
			if s := GetSession(r.Context()); s != nil {
				subject = s.UserEmail
			}
			key := category + ":" + subject

			res, err := limiter.AllowWithLimits(r.Context(), key, limit, window)
			if err != nil {
				// limiter caído no bloquea el tráfico, solo se loguea
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
			if !res.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds())))
				errors.WriteError(w, errors.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
