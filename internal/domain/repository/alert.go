package repository

import (
	"context"
	"time"
)

// AlertSeverity es la severidad de una alerta de seguridad.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// SecurityAlert representa una alerta emitida por el motor de umbrales
// o disparada manualmente. Nunca se borra: solo transiciona a resolved.
type SecurityAlert struct {
	ID              string
	AlertType       string
	Severity        AlertSeverity
	UserEmail       string
	SourceIP        *string
	Details         string
	EscalationLevel string
	CreatedAt       time.Time

	Resolved        bool
	ResolvedBy      *string
	ResolvedAt      *time.Time
	ResolutionNotes *string
}

// AlertSummary contiene el agregado que pide el dashboard de seguridad.
type AlertSummary struct {
	Total          int
	Unresolved     int
	Critical       int
	ByType         map[string]int
	RecentCritical []SecurityAlert
}

// AlertRepository define operaciones sobre alertas de seguridad.
type AlertRepository interface {
	// Create persiste una alerta nueva.
	Create(ctx context.Context, a *SecurityAlert) error

	// Get obtiene una alerta por ID. ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*SecurityAlert, error)

	// Resolve marca la alerta como resuelta. ErrNotFound si no existe.
	Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) error

	// Summary agrega alertas desde `since`, opcionalmente filtradas por tipo.
	Summary(ctx context.Context, since time.Time, types []string) (*AlertSummary, error)
}
