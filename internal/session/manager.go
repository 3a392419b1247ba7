// Package session implementa el ciclo de vida de sesiones: creación con
// límite de concurrencia, elevación por MFA, revocación idempotente y
// timeouts idle/absolutos.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/warshatech/trustgate/internal/alert"
	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/observability/logger"
	tokens "github.com/warshatech/trustgate/internal/security/token"
)

// Options son los parámetros de sesión, inyectados desde config.
type Options struct {
	MaxConcurrent int
	IdleTimeout   time.Duration
	AbsoluteTTL   time.Duration
	TokenBytes    int
}

// DeviceInfo es la metadata del cliente al crear sesión.
type DeviceInfo struct {
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
}

// Created es el resultado de crear una sesión: el token opaco viaja al
// cliente una sola vez; en la base queda solo su hash.
type Created struct {
	Session *repository.Session
	Token   string
	Evicted *repository.Session
}

// Manager gestiona sesiones.
type Manager struct {
	repo    repository.SessionRepository
	auditor audit.Recorder
	alerts  *alert.Engine
	opts    Options
}

// NewManager crea el manager.
func NewManager(repo repository.SessionRepository, auditor audit.Recorder, alerts *alert.Engine, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.TokenBytes <= 0 {
		opts.TokenBytes = 32
	}
	return &Manager{repo: repo, auditor: auditor, alerts: alerts, opts: opts}
}

// Create abre una sesión tras la autenticación primaria. Si el usuario
// está en el límite de concurrencia, el repositorio revoca la más vieja
// atómicamente; esa eviction se audita con un evento propio, distinto de
// la revocación explícita.
func (m *Manager) Create(ctx context.Context, userEmail string, dev DeviceInfo) (*Created, error) {
	token, err := tokens.GenerateOpaqueToken(m.opts.TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("session: token: %w", err)
	}

	s, evicted, err := m.repo.Create(ctx, repository.CreateSessionInput{
		UserEmail:         userEmail,
		SessionIDHash:     tokens.SHA256Base64URL(token),
		IPAddress:         dev.IPAddress,
		UserAgent:         dev.UserAgent,
		DeviceFingerprint: dev.DeviceFingerprint,
		ExpiresAt:         time.Now().UTC().Add(m.opts.AbsoluteTTL),
	}, m.opts.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	m.auditor.Record(ctx, audit.Entry{
		EventType:   "session_created",
		Severity:    repository.SeverityInfo,
		UserEmail:   userEmail,
		Description: "session created",
		Details:     map[string]any{"session_id": s.ID, "ip": dev.IPAddress},
	})

	if evicted != nil {
		m.auditor.Record(ctx, audit.Entry{
			EventType:   "session_evicted",
			Severity:    repository.SeverityMedium,
			UserEmail:   userEmail,
			Description: "oldest session auto-revoked by concurrency limit",
			Details:     map[string]any{"evicted_session_id": evicted.ID, "new_session_id": s.ID},
		})
		if m.alerts != nil {
			// patrones de eviction repetida alimentan el motor de umbrales
			_, _ = m.alerts.Observe(ctx, alert.Event{
				Type:      "session_limit",
				UserEmail: userEmail,
				SourceIP:  dev.IPAddress,
				Details:   "concurrent session limit reached",
			})
		}
	}

	return &Created{Session: s, Token: token, Evicted: evicted}, nil
}

// Resolve busca la sesión por el token opaco y valida que siga usable;
// de paso refresca last_activity. Los timeouts se evalúan acá de forma
// perezosa: una sesión vencida nunca pasa un check posterior aunque el
// sweeper todavía no la haya barrido.
func (m *Manager) Resolve(ctx context.Context, token string) (*repository.Session, error) {
	s, err := m.repo.GetByIDHash(ctx, tokens.SHA256Base64URL(token))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if !s.Usable(now, m.opts.IdleTimeout) {
		return nil, repository.ErrNotFound
	}
	if err := m.repo.Touch(ctx, s.SessionIDHash, now); err != nil {
		logger.From(ctx).Warn("session touch failed", logger.SessionID(s.ID), logger.Err(err))
	}
	s.LastActivity = now
	return s, nil
}

// Elevate marca la sesión como elevada tras un MFA exitoso.
func (m *Manager) Elevate(ctx context.Context, s *repository.Session) error {
	if err := m.repo.Elevate(ctx, s.SessionIDHash); err != nil {
		return err
	}
	s.Elevated = true
	m.auditor.Record(ctx, audit.Entry{
		EventType:   "session_elevated",
		Severity:    repository.SeverityInfo,
		UserEmail:   s.UserEmail,
		Description: "session elevated after MFA",
		Details:     map[string]any{"session_id": s.ID},
	})
	return nil
}

// Get busca una sesión por su ID interno. ErrNotFound si no existe.
func (m *Manager) Get(ctx context.Context, id string) (*repository.Session, error) {
	return m.repo.Get(ctx, id)
}

// Revoke revoca una sesión por ID. Idempotente: revocar dos veces no es
// error; la segunda llamada simplemente no hace nada.
func (m *Manager) Revoke(ctx context.Context, sessionID, revokedBy, reason string) (time.Time, error) {
	if reason == "" {
		reason = "revoked by user"
	}
	changed, err := m.repo.Revoke(ctx, sessionID, revokedBy, reason)
	if err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC()
	if changed {
		m.auditor.Record(ctx, audit.Entry{
			EventType:   "session_revoked",
			Severity:    repository.SeverityInfo,
			UserEmail:   revokedBy,
			Description: "session revoked",
			Details:     map[string]any{"session_id": sessionID, "reason": reason},
		})
	}
	return now, nil
}

// RevokeAll revoca todas las sesiones activas del usuario, opcionalmente
// preservando la del caller. Retorna cuántas revocó.
func (m *Manager) RevokeAll(ctx context.Context, userEmail string, excludeSessionID, revokedBy, reason string) (int, error) {
	if reason == "" {
		reason = "bulk revocation"
	}
	n, err := m.repo.RevokeAllByUser(ctx, userEmail, excludeSessionID, revokedBy, reason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.auditor.Record(ctx, audit.Entry{
			EventType:   "sessions_bulk_revoked",
			Severity:    repository.SeverityMedium,
			UserEmail:   userEmail,
			Description: "all user sessions revoked",
			Details:     map[string]any{"count": n, "revoked_by": revokedBy, "reason": reason},
		})
	}
	return n, nil
}

// Status retorna las sesiones activas del usuario y el límite configurado.
func (m *Manager) Status(ctx context.Context, userEmail string) ([]repository.Session, int, error) {
	sessions, err := m.repo.ListActiveByUser(ctx, userEmail, time.Now().UTC())
	if err != nil {
		return nil, 0, err
	}
	return sessions, m.opts.MaxConcurrent, nil
}

// Stats agrega estadísticas de los últimos `days` días.
// Ventana inclusiva en el inicio, exclusiva en el fin.
func (m *Manager) Stats(ctx context.Context, days int) (*repository.SessionStats, error) {
	if days <= 0 {
		days = 1
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	return m.repo.Stats(ctx, from, to)
}
