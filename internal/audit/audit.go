// Package audit implementa el registro append-only de eventos de seguridad.
//
// Cada transición de estado del subsistema (validación de licencia, login,
// revocación de sesión, MFA, alertas) termina acá. La interfaz del
// repositorio no tiene update ni delete: esa es la garantía de evidencia.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/observability/logger"
)

// Recorder escribe eventos de auditoría.
type Recorder interface {
	// Record persiste un evento. Nunca propaga el error al caller: una
	// falla de auditoría se loguea pero no aborta la operación de negocio.
	// El evento retornado incluye ID y timestamp asignados.
	Record(ctx context.Context, e Entry) *repository.AuditEvent

	// RecordStrict persiste y SÍ propaga el error. Lo usa el validador de
	// licencia, que debe auditar la denegación antes de devolverla.
	RecordStrict(ctx context.Context, e Entry) (*repository.AuditEvent, error)
}

// Entry es el input de un evento de auditoría.
type Entry struct {
	EventType   string
	Severity    repository.AlertSeverity
	UserEmail   string
	Description string
	Details     map[string]any
}

type recorder struct {
	repo repository.AuditRepository
}

// NewRecorder crea el recorder sobre un repositorio.
func NewRecorder(repo repository.AuditRepository) Recorder {
	return &recorder{repo: repo}
}

func (r *recorder) Record(ctx context.Context, e Entry) *repository.AuditEvent {
	ev, err := r.RecordStrict(ctx, e)
	if err != nil {
		logger.From(ctx).Error("audit write failed",
			logger.Component("audit"),
			logger.EventType(e.EventType),
			logger.Err(err),
		)
		return nil
	}
	return ev
}

func (r *recorder) RecordStrict(ctx context.Context, e Entry) (*repository.AuditEvent, error) {
	if e.Severity == "" {
		e.Severity = repository.SeverityInfo
	}
	ev := &repository.AuditEvent{
		ID:          uuid.NewString(),
		EventType:   e.EventType,
		Severity:    e.Severity,
		UserEmail:   e.UserEmail,
		Description: e.Description,
		Details:     e.Details,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.repo.Insert(ctx, ev); err != nil {
		return nil, err
	}

	logger.From(ctx).Debug("audit event recorded",
		logger.Component("audit"),
		logger.EventType(ev.EventType),
		logger.Severity(string(ev.Severity)),
		logger.UserEmail(ev.UserEmail),
	)
	return ev, nil
}

// Summary expone el agregado del audit trail para el endpoint de consulta.
type Summary struct {
	repo repository.AuditRepository
}

// NewSummary crea el servicio de consulta.
func NewSummary(repo repository.AuditRepository) *Summary {
	return &Summary{repo: repo}
}

// Get agrega eventos de los últimos `days` días.
func (s *Summary) Get(ctx context.Context, days int, types, severities []string) (*repository.AuditSummary, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.repo.Summary(ctx, since, types, severities)
}
