package middlewares

import (
	"context"

	"github.com/warshatech/trustgate/internal/domain/repository"
)

type ctxKey string

const (
	ctxSessionKey   ctxKey = "session"
	ctxUserKey      ctxKey = "user"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithSession inyecta la sesión resuelta en el contexto.
func WithSession(ctx context.Context, s *repository.Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey, s)
}

// WithUser inyecta el usuario autenticado en el contexto.
func WithUser(ctx context.Context, u *repository.User) context.Context {
	return context.WithValue(ctx, ctxUserKey, u)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetSession obtiene la sesión del contexto. Retorna nil si el middleware
// de autenticación no se aplicó o el caller no presentó token.
func GetSession(ctx context.Context) *repository.Session {
	if v := ctx.Value(ctxSessionKey); v != nil {
		if s, ok := v.(*repository.Session); ok {
			return s
		}
	}
	return nil
}

// GetUser obtiene el usuario autenticado del contexto.
func GetUser(ctx context.Context) *repository.User {
	if v := ctx.Value(ctxUserKey); v != nil {
		if u, ok := v.(*repository.User); ok {
			return u
		}
	}
	return nil
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ctxRequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
