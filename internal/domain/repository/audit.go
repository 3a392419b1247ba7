package repository

import (
	"context"
	"time"
)

// AuditEvent es un registro append-only de una transición de seguridad.
// La interfaz no expone update ni delete: esa ausencia es la garantía
// de evidencia ante manipulación.
type AuditEvent struct {
	ID          string
	EventType   string
	Severity    AlertSeverity
	UserEmail   string
	Description string
	Details     map[string]any
	CreatedAt   time.Time
}

// AuditSummary contiene el agregado de eventos de auditoría.
type AuditSummary struct {
	Total          int
	ByType         map[string]int
	BySeverity     map[string]int
	TopUsers       []UserEventCount
	RecentCritical []AuditEvent
}

// UserEventCount contiene conteo de eventos por usuario.
type UserEventCount struct {
	UserEmail string
	Count     int
}

// AuditRepository define operaciones sobre el audit trail.
type AuditRepository interface {
	// Insert agrega un evento. Append-only.
	Insert(ctx context.Context, e *AuditEvent) error

	// Query retorna eventos desde `since` filtrados por tipo y severidad
	// (filtros vacíos = sin filtro), más recientes primero, hasta limit.
	Query(ctx context.Context, since time.Time, types []string, severities []string, limit int) ([]AuditEvent, error)

	// Summary agrega eventos desde `since`.
	Summary(ctx context.Context, since time.Time, types []string, severities []string) (*AuditSummary, error)
}
