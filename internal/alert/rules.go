package alert

import (
	"time"

	"github.com/warshatech/trustgate/internal/config"
	"github.com/warshatech/trustgate/internal/domain/repository"
)

// Rule es un umbral del motor: N eventos de un tipo dentro de una ventana
// producen una alerta de la severidad indicada.
type Rule struct {
	EventType       string
	Count           int64
	Window          time.Duration
	Severity        repository.AlertSeverity
	EscalationLevel string
}

// RulesFromConfig convierte las reglas del YAML. Reglas inválidas se
// descartan silenciosamente (el default del config siempre es válido).
func RulesFromConfig(rules []config.AlertRule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.EventType == "" || r.Count <= 0 {
			continue
		}
		w := config.Dur(r.Window, 10*time.Minute)
		sev := parseSeverity(r.Severity)
		out = append(out, Rule{
			EventType:       r.EventType,
			Count:           int64(r.Count),
			Window:          w,
			Severity:        sev,
			EscalationLevel: r.EscalationLevel,
		})
	}
	return out
}

func parseSeverity(s string) repository.AlertSeverity {
	switch s {
	case "medium":
		return repository.SeverityMedium
	case "high":
		return repository.SeverityHigh
	case "critical":
		return repository.SeverityCritical
	default:
		return repository.SeverityInfo
	}
}

// channelsFor mapea severidad → canales de despacho.
// info/medium: solo email; high: email+SMS; critical: todos.
func channelsFor(sev repository.AlertSeverity) []string {
	switch sev {
	case repository.SeverityHigh:
		return []string{"email", "sms"}
	case repository.SeverityCritical:
		return []string{"email", "sms", "whatsapp"}
	default:
		return []string{"email"}
	}
}
