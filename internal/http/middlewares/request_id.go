package middlewares

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warshatech/trustgate/internal/observability/logger"
)

// WithRequestID asigna un request ID (o respeta el entrante), lo devuelve
// en el header y deja en el contexto un logger con el campo ya ligado.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", rid)

			ctx := setRequestID(r.Context(), rid)
			ctx = logger.ToContext(ctx, logger.With(zap.String("request_id", rid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
