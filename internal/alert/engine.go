// Package alert implementa el motor de alertas de seguridad: detección
// por umbrales sobre ventanas deslizantes, escalamiento y despacho
// multi-canal.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/notify"
	"github.com/warshatech/trustgate/internal/observability/logger"
)

// Event es un evento de seguridad observable por el motor.
type Event struct {
	Type      string
	UserEmail string
	SourceIP  string
	Details   string
}

// Result informa qué produjo un Observe/Trigger.
type Result struct {
	Alert            *repository.SecurityAlert
	ChannelsNotified []string
}

// Engine evalúa reglas de umbral y emite alertas.
type Engine struct {
	rules    []Rule
	counter  Counter
	repo     repository.AlertRepository
	auditor  audit.Recorder
	dispatch *notify.Dispatcher

	// Destinatarios del escalamiento.
	notifyEmail string
	notifyPhone string
}

// Config agrupa las dependencias del motor.
type Config struct {
	Rules       []Rule
	Counter     Counter
	Repo        repository.AlertRepository
	Auditor     audit.Recorder
	Dispatcher  *notify.Dispatcher
	NotifyEmail string
	NotifyPhone string
}

// NewEngine construye el motor.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		rules:       cfg.Rules,
		counter:     cfg.Counter,
		repo:        cfg.Repo,
		auditor:     cfg.Auditor,
		dispatch:    cfg.Dispatcher,
		notifyEmail: cfg.NotifyEmail,
		notifyPhone: cfg.NotifyPhone,
	}
}

// Observe incrementa el contador de cada regla que matchea el tipo de
// evento. Si un umbral se cruza exactamente, emite UNA alerta y resetea
// el contador de esa regla para esa key: el mismo cruce nunca duplica.
// Retorna la alerta de mayor severidad emitida, o nil.
func (e *Engine) Observe(ctx context.Context, ev Event) (*Result, error) {
	log := logger.From(ctx).Named("alert")

	subject := ev.UserEmail
	if subject == "" {
		subject = ev.SourceIP
	}

	var fired *Result
	for i, rule := range e.rules {
		if rule.EventType != ev.Type {
			continue
		}
		key := fmt.Sprintf("%s:%d:%s", rule.EventType, i, subject)

		n, err := e.counter.Incr(ctx, key, rule.Window)
		if err != nil {
			// contador caído no puede tirar el request: se loguea y sigue
			log.Warn("alert counter incr failed", logger.EventType(ev.Type), logger.Err(err))
			continue
		}

		// Igualdad estricta: solo el request que cruza el umbral emite.
		if n != rule.Count {
			continue
		}
		if err := e.counter.Reset(ctx, key, rule.Window); err != nil {
			log.Warn("alert counter reset failed", logger.EventType(ev.Type), logger.Err(err))
		}

		res, err := e.emit(ctx, ev, rule.Severity, rule.EscalationLevel)
		if err != nil {
			return nil, err
		}
		if fired == nil || severityRank(res.Alert.Severity) > severityRank(fired.Alert.Severity) {
			fired = res
		}
	}
	return fired, nil
}

// Trigger crea una alerta directamente, sin pasar por umbrales. Para
// condiciones severas detectadas explícitamente (ej: MFA deshabilitado).
func (e *Engine) Trigger(ctx context.Context, alertType, userEmail, sourceIP, details string, sev repository.AlertSeverity, escalation string) (*Result, error) {
	return e.emit(ctx, Event{
		Type:      alertType,
		UserEmail: userEmail,
		SourceIP:  sourceIP,
		Details:   details,
	}, sev, escalation)
}

// Resolve marca una alerta como resuelta.
func (e *Engine) Resolve(ctx context.Context, alertID, resolvedBy, notes string) (time.Time, error) {
	now := time.Now().UTC()
	if err := e.repo.Resolve(ctx, alertID, resolvedBy, notes, now); err != nil {
		return time.Time{}, err
	}
	e.auditor.Record(ctx, audit.Entry{
		EventType:   "alert_resolved",
		Severity:    repository.SeverityInfo,
		UserEmail:   resolvedBy,
		Description: "security alert resolved",
		Details:     map[string]any{"alert_id": alertID},
	})
	return now, nil
}

// Summary agrega alertas de los últimos `days` días.
func (e *Engine) Summary(ctx context.Context, days int, types []string) (*repository.AlertSummary, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return e.repo.Summary(ctx, since, types)
}

func (e *Engine) emit(ctx context.Context, ev Event, sev repository.AlertSeverity, escalation string) (*Result, error) {
	log := logger.From(ctx).Named("alert")

	a := &repository.SecurityAlert{
		ID:              uuid.NewString(),
		AlertType:       ev.Type,
		Severity:        sev,
		UserEmail:       ev.UserEmail,
		Details:         ev.Details,
		EscalationLevel: escalation,
		CreatedAt:       time.Now().UTC(),
	}
	if ev.SourceIP != "" {
		ip := ev.SourceIP
		a.SourceIP = &ip
	}

	// La persistencia va primero: el despacho nunca condiciona la alerta.
	if err := e.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("alert: create: %w", err)
	}

	e.auditor.Record(ctx, audit.Entry{
		EventType:   "alert_created",
		Severity:    sev,
		UserEmail:   ev.UserEmail,
		Description: "security alert " + ev.Type,
		Details: map[string]any{
			"alert_id":         a.ID,
			"escalation_level": escalation,
		},
	})

	var notified []string
	if e.dispatch != nil {
		channels := channelsFor(sev)
		msg := notify.Message{
			Subject: fmt.Sprintf("[%s] security alert: %s", sev, ev.Type),
			Body: fmt.Sprintf("alert %s (%s) for %s\nescalation: %s\n%s",
				a.ID, sev, ev.UserEmail, escalation, ev.Details),
		}
		for _, ch := range channels {
			m := msg
			var target []notify.Channel
			switch ch {
			case "email":
				m.To = e.notifyEmail
				target = []notify.Channel{notify.ChannelEmail}
			case "sms":
				m.To = e.notifyPhone
				target = []notify.Channel{notify.ChannelSMS}
			case "whatsapp":
				m.To = e.notifyPhone
				target = []notify.Channel{notify.ChannelWhatsApp}
			}
			if m.To == "" {
				continue
			}
			for _, att := range e.dispatch.Dispatch(ctx, target, m) {
				notified = append(notified, string(att))
			}
		}
	}

	log.Info("security alert emitted",
		logger.AlertID(a.ID),
		logger.AlertType(a.AlertType),
		logger.Severity(string(sev)),
		logger.UserEmail(ev.UserEmail),
	)

	return &Result{Alert: a, ChannelsNotified: notified}, nil
}

func severityRank(s repository.AlertSeverity) int {
	switch s {
	case repository.SeverityCritical:
		return 3
	case repository.SeverityHigh:
		return 2
	case repository.SeverityMedium:
		return 1
	default:
		return 0
	}
}
