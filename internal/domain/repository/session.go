package repository

import (
	"context"
	"time"
)

// Session representa una sesión de usuario persistida.
// El session_id opaco nunca se guarda en claro: solo su hash SHA-256.
type Session struct {
	ID            string
	UserEmail     string
	SessionIDHash string

	// Metadata de cliente
	IPAddress         *string
	UserAgent         *string
	DeviceFingerprint *string

	// Estado MFA: true una vez que el usuario completó el segundo factor.
	Elevated bool

	// Timestamps
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokedBy    *string
	RevokeReason *string
}

// Revoked indica si la sesión fue revocada.
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// Usable determina si la sesión puede autenticar un request en el
// instante dado, considerando revocación, expiración absoluta e idle timeout.
func (s *Session) Usable(now time.Time, idleTimeout time.Duration) bool {
	if s.RevokedAt != nil {
		return false
	}
	if now.After(s.ExpiresAt) {
		return false
	}
	if idleTimeout > 0 && now.Sub(s.LastActivity) > idleTimeout {
		return false
	}
	return true
}

// CreateSessionInput contiene los datos para crear una sesión.
type CreateSessionInput struct {
	UserEmail         string
	SessionIDHash     string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	ExpiresAt         time.Time
}

// SessionStats contiene estadísticas agregadas de sesiones para una ventana
// [From, To) — inicio inclusivo, fin exclusivo.
type SessionStats struct {
	ActiveSessions   int
	LoginsToday      int
	UniqueUsersToday int
	AvgDuration      time.Duration
	TopDevices       []DeviceCount
}

// DeviceCount contiene conteo por user agent / dispositivo.
type DeviceCount struct {
	Device string
	Count  int
}

// SessionRepository define operaciones para gestionar sesiones.
type SessionRepository interface {
	// Create inserta una nueva sesión. Si el usuario ya tiene maxActive
	// sesiones no-revocadas, la más antigua (por last_activity) se revoca
	// atómicamente en la misma operación y se retorna como evicted.
	// La decisión count-then-evict no puede dejarse al caller: dos logins
	// concurrentes deben resolverse dentro del store.
	Create(ctx context.Context, input CreateSessionInput, maxActive int) (created *Session, evicted *Session, err error)

	// GetByIDHash obtiene una sesión por el hash de su session_id.
	// Retorna ErrNotFound si no existe.
	GetByIDHash(ctx context.Context, sessionIDHash string) (*Session, error)

	// Get obtiene una sesión por su ID interno.
	Get(ctx context.Context, id string) (*Session, error)

	// Touch actualiza last_activity.
	Touch(ctx context.Context, sessionIDHash string, at time.Time) error

	// Elevate marca la sesión como elevada (MFA completado).
	Elevate(ctx context.Context, sessionIDHash string) error

	// Revoke marca una sesión como revocada. Idempotente: revocar una
	// sesión ya revocada retorna (false, nil).
	Revoke(ctx context.Context, id, revokedBy, reason string) (bool, error)

	// RevokeAllByUser revoca todas las sesiones activas de un usuario,
	// opcionalmente excluyendo una (la actual del caller).
	// Retorna cuántas revocó efectivamente.
	RevokeAllByUser(ctx context.Context, userEmail, excludeID, revokedBy, reason string) (int, error)

	// ListActiveByUser retorna las sesiones no-revocadas y no-expiradas
	// de un usuario, ordenadas por last_activity descendente.
	ListActiveByUser(ctx context.Context, userEmail string, now time.Time) ([]Session, error)

	// RevokeExpired revoca sesiones vencidas por idle o absolute timeout.
	// Usado por el sweeper. Retorna cuántas revocó.
	RevokeExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int, error)

	// Stats calcula estadísticas para la ventana [from, to).
	Stats(ctx context.Context, from, to time.Time) (*SessionStats, error)
}
