package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warshatech/trustgate/internal/alert"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/dto"
	httperrors "github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/http/middlewares"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/observability/metrics"
)

// AlertsController maneja alertas de seguridad.
type AlertsController struct {
	engine *alert.Engine
}

// NewAlertsController crea el controller.
func NewAlertsController(engine *alert.Engine) *AlertsController {
	return &AlertsController{engine: engine}
}

// Trigger maneja POST /v1/alerts/trigger: emisión manual de una alerta,
// sin pasar por los umbrales del motor.
func (c *AlertsController) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AlertsController.Trigger"))

	var req dto.TriggerAlertRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.AlertType == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("alert_type is required"))
		return
	}

	sev, ok := parseSeverity(req.Severity)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrValidation.WithDetail("severity: must be info, medium, high or critical"))
		return
	}

	res, err := c.engine.Trigger(ctx, req.AlertType, req.UserEmail, req.SourceIP, req.Details, sev, escalationFor(sev))
	if err != nil {
		log.Error("alert trigger failed", logger.AlertType(req.AlertType), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}
	metrics.AlertsEmitted.WithLabelValues(string(sev)).Inc()

	helpers.WriteJSON(w, http.StatusCreated, alertResponse(res.Alert, res.ChannelsNotified))
}

// Resolve maneja POST /v1/alerts/{id}/resolve.
func (c *AlertsController) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alertID := chi.URLParam(r, "id")

	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	var req dto.ResolveAlertRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	resolvedAt, err := c.engine.Resolve(ctx, alertID, current.UserEmail, req.Notes)
	if err != nil {
		if repository.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrDoesNotExist.WithDetail("alert not found"))
			return
		}
		logger.From(ctx).Error("alert resolve failed", logger.AlertID(alertID), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.ResolveAlertResponse{
		AlertID:    alertID,
		ResolvedAt: resolvedAt,
		ResolvedBy: current.UserEmail,
	})
}

// Summary maneja GET /v1/alerts/summary.
func (c *AlertsController) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := queryDays(r, 7)
	types := queryList(r, "types")

	summary, err := c.engine.Summary(ctx, days, types)
	if err != nil {
		logger.From(ctx).Error("alert summary failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	resp := dto.AlertSummaryResponse{
		Total:          summary.Total,
		Unresolved:     summary.Unresolved,
		Critical:       summary.Critical,
		ByType:         summary.ByType,
		RecentCritical: make([]dto.AlertResponse, 0, len(summary.RecentCritical)),
		WindowDays:     days,
	}
	for _, a := range summary.RecentCritical {
		resp.RecentCritical = append(resp.RecentCritical, alertResponse(&a, nil))
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

func alertResponse(a *repository.SecurityAlert, notified []string) dto.AlertResponse {
	resp := dto.AlertResponse{
		AlertID:          a.ID,
		AlertType:        a.AlertType,
		Severity:         string(a.Severity),
		UserEmail:        a.UserEmail,
		Details:          a.Details,
		EscalationLevel:  a.EscalationLevel,
		CreatedAt:        a.CreatedAt,
		Resolved:         a.Resolved,
		ChannelsNotified: notified,
	}
	if a.SourceIP != nil {
		resp.SourceIP = *a.SourceIP
	}
	return resp
}

func parseSeverity(s string) (repository.AlertSeverity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return repository.SeverityInfo, true
	case "medium":
		return repository.SeverityMedium, true
	case "high":
		return repository.SeverityHigh, true
	case "critical":
		return repository.SeverityCritical, true
	default:
		return "", false
	}
}

// escalationFor mapea severidad → nivel de escalamiento por defecto para
// alertas disparadas manualmente.
func escalationFor(sev repository.AlertSeverity) string {
	switch sev {
	case repository.SeverityCritical:
		return "emergency"
	case repository.SeverityHigh:
		return "manager"
	case repository.SeverityMedium:
		return "supervisor"
	default:
		return ""
	}
}

// queryList parsea un query param como lista separada por comas.
func queryList(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
