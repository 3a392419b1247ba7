// Package permission responde "¿puede el usuario U hacer la acción A sobre
// el recurso R?" evaluando la sesión actual, el estado MFA y la tabla
// estática rol → recurso → acciones.
package permission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/config"
	"github.com/warshatech/trustgate/internal/domain/repository"
)

// Condition registra una condición evaluada, en orden de evaluación.
type Condition struct {
	Name   string
	Passed bool
	Detail string
}

// Decision es el resultado de un Check. Reason nunca es solo un booleano:
// enumera cada condición evaluada para que el rechazo sea auditable.
type Decision struct {
	Allowed    bool
	Reason     string
	Conditions []Condition
}

// Input describe el chequeo solicitado. Session puede ser nil si el caller
// no presentó credenciales; ResourceOwner identifica al dueño del recurso
// para reglas owner-only (vacío si el recurso no tiene dueño).
type Input struct {
	User          *repository.User
	Session       *repository.Session
	Resource      string
	Action        string
	ResourceOwner string
}

// Engine evalúa permisos contra la tabla de reglas configurada.
type Engine struct {
	rules       []config.PermissionRule
	auditor     audit.Recorder
	idleTimeout time.Duration
	now         func() time.Time
}

// NewEngine construye el engine con la tabla de reglas de la config.
func NewEngine(rules []config.PermissionRule, auditor audit.Recorder, idleTimeout time.Duration) *Engine {
	return &Engine{
		rules:       rules,
		auditor:     auditor,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Check evalúa las condiciones en orden: sesión usable, elevación MFA si la
// cuenta la requiere, grant de rol, ownership si la regla es owner-only.
// Todas las condiciones aplicables se evalúan aunque una falle, para que
// Reason cuente la historia completa.
func (e *Engine) Check(ctx context.Context, in Input) Decision {
	now := e.now().UTC()
	var conds []Condition

	sessionOK := in.Session != nil && in.Session.Usable(now, e.idleTimeout)
	conds = append(conds, Condition{
		Name:   "session_valid",
		Passed: sessionOK,
		Detail: sessionDetail(in.Session, now, e.idleTimeout),
	})

	if in.User != nil && in.User.MFARequired {
		elevated := in.Session != nil && in.Session.Elevated
		detail := "session elevated by second factor"
		if !elevated {
			detail = "account requires MFA but session is not elevated"
		}
		conds = append(conds, Condition{Name: "mfa_elevated", Passed: elevated, Detail: detail})
	}

	rule, granted := e.grant(in.User, in.Resource, in.Action)
	conds = append(conds, Condition{
		Name:   "role_grant",
		Passed: granted,
		Detail: grantDetail(in, granted),
	})

	if granted && rule.OwnerOnly {
		owns := in.User != nil && in.ResourceOwner != "" && strings.EqualFold(in.ResourceOwner, in.User.Email)
		detail := "caller owns the resource"
		if !owns {
			detail = fmt.Sprintf("rule is owner-only and resource belongs to %q", in.ResourceOwner)
		}
		conds = append(conds, Condition{Name: "ownership", Passed: owns, Detail: detail})
	}

	allowed := true
	for _, c := range conds {
		if !c.Passed {
			allowed = false
			break
		}
	}

	d := Decision{Allowed: allowed, Reason: reason(conds), Conditions: conds}

	if !allowed {
		email := ""
		if in.User != nil {
			email = in.User.Email
		}
		e.auditor.Record(ctx, audit.Entry{
			EventType:   "permission_denied",
			Severity:    repository.SeverityInfo,
			UserEmail:   email,
			Description: fmt.Sprintf("denied %s on %s", in.Action, in.Resource),
			Details:     map[string]any{"reason": d.Reason},
		})
	}
	return d
}

// CheckFor evalúa solo las condiciones durables (grant de rol y ownership)
// de un usuario arbitrario, sin sesión viva: es la consulta administrativa
// "¿qué puede hacer esta cuenta?". No audita rechazos porque es consultiva.
func (e *Engine) CheckFor(u *repository.User, resource, action, resourceOwner string) Decision {
	in := Input{User: u, Resource: resource, Action: action, ResourceOwner: resourceOwner}

	var conds []Condition
	rule, granted := e.grant(u, resource, action)
	conds = append(conds, Condition{
		Name:   "role_grant",
		Passed: granted,
		Detail: grantDetail(in, granted),
	})

	if granted && rule.OwnerOnly {
		owns := u != nil && resourceOwner != "" && strings.EqualFold(resourceOwner, u.Email)
		detail := "caller owns the resource"
		if !owns {
			detail = fmt.Sprintf("rule is owner-only and resource belongs to %q", resourceOwner)
		}
		conds = append(conds, Condition{Name: "ownership", Passed: owns, Detail: detail})
	}

	allowed := true
	for _, c := range conds {
		if !c.Passed {
			allowed = false
			break
		}
	}
	return Decision{Allowed: allowed, Reason: reason(conds), Conditions: conds}
}

// grant busca una regla que otorgue la acción sobre el recurso para alguno
// de los roles del usuario. "*" en Resource o Actions actúa como comodín.
func (e *Engine) grant(u *repository.User, resource, action string) (config.PermissionRule, bool) {
	if u == nil {
		return config.PermissionRule{}, false
	}
	for _, rule := range e.rules {
		if !hasRole(u.Roles, rule.Role) {
			continue
		}
		if rule.Resource != "*" && rule.Resource != resource {
			continue
		}
		for _, a := range rule.Actions {
			if a == "*" || a == action {
				return rule, true
			}
		}
	}
	return config.PermissionRule{}, false
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, want) {
			return true
		}
	}
	return false
}

func sessionDetail(s *repository.Session, now time.Time, idle time.Duration) string {
	switch {
	case s == nil:
		return "no session presented"
	case s.Revoked():
		return "session is revoked"
	case now.After(s.ExpiresAt):
		return "session expired"
	case idle > 0 && now.Sub(s.LastActivity) > idle:
		return "session idle timeout exceeded"
	default:
		return "session is active"
	}
}

func grantDetail(in Input, granted bool) string {
	var roles []string
	if in.User != nil {
		roles = in.User.Roles
	}
	if granted {
		return fmt.Sprintf("role grants %s on %s", in.Action, in.Resource)
	}
	return fmt.Sprintf("no rule grants %s on %s for roles [%s]", in.Action, in.Resource, strings.Join(roles, " "))
}

func reason(conds []Condition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		state := "ok"
		if !c.Passed {
			state = "failed"
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", c.Name, state, c.Detail))
	}
	return strings.Join(parts, "; ")
}
