package controllers

import (
	"net/http"
	"time"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/dto"
	httperrors "github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/http/middlewares"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/observability/metrics"
)

// AuditController maneja el audit trail vía API.
type AuditController struct {
	auditor audit.Recorder
	summary *audit.Summary
	repo    repository.AuditRepository
}

// NewAuditController crea el controller.
func NewAuditController(auditor audit.Recorder, summary *audit.Summary, repo repository.AuditRepository) *AuditController {
	return &AuditController{auditor: auditor, summary: summary, repo: repo}
}

// Record maneja POST /v1/audit/events: registro explícito de un evento
// por otro componente del sistema. Acá la escritura es estricta: si el
// registro falla, el caller tiene que enterarse.
func (c *AuditController) Record(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.AuditEventRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.EventType == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("event_type is required"))
		return
	}
	sev, ok := parseSeverity(req.Severity)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrValidation.WithDetail("severity: must be info, medium, high or critical"))
		return
	}

	userEmail := req.UserEmail
	if userEmail == "" {
		if s := middlewares.GetSession(ctx); s != nil {
			userEmail = s.UserEmail
		}
	}

	ev, err := c.auditor.RecordStrict(ctx, audit.Entry{
		EventType:   req.EventType,
		Severity:    sev,
		UserEmail:   userEmail,
		Description: req.Description,
		Details:     req.Details,
	})
	if err != nil {
		logger.From(ctx).Error("audit record failed", logger.EventType(req.EventType), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}
	metrics.AuditEventsTotal.Inc()

	helpers.WriteJSON(w, http.StatusCreated, auditEventResponse(ev))
}

// Query maneja GET /v1/audit/events.
func (c *AuditController) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := queryDays(r, 7)
	types := queryList(r, "types")
	severities := queryList(r, "severities")
	since := time.Now().UTC().AddDate(0, 0, -days)

	events, err := c.repo.Query(ctx, since, types, severities, 100)
	if err != nil {
		logger.From(ctx).Error("audit query failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	out := make([]dto.AuditEventResponse, 0, len(events))
	for i := range events {
		out = append(out, auditEventResponse(&events[i]))
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"events": out, "window_days": days})
}

// Summary maneja GET /v1/audit/summary.
func (c *AuditController) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := queryDays(r, 7)
	types := queryList(r, "types")
	severities := queryList(r, "severities")

	summary, err := c.summary.Get(ctx, days, types, severities)
	if err != nil {
		logger.From(ctx).Error("audit summary failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	resp := dto.AuditSummaryResponse{
		Total:          summary.Total,
		ByType:         summary.ByType,
		BySeverity:     summary.BySeverity,
		TopUsers:       make([]dto.UserEventCount, 0, len(summary.TopUsers)),
		RecentCritical: make([]dto.AuditEventResponse, 0, len(summary.RecentCritical)),
		WindowDays:     days,
	}
	for _, u := range summary.TopUsers {
		resp.TopUsers = append(resp.TopUsers, dto.UserEventCount{UserEmail: u.UserEmail, Count: u.Count})
	}
	for i := range summary.RecentCritical {
		resp.RecentCritical = append(resp.RecentCritical, auditEventResponse(&summary.RecentCritical[i]))
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

func auditEventResponse(ev *repository.AuditEvent) dto.AuditEventResponse {
	return dto.AuditEventResponse{
		EventID:     ev.ID,
		EventType:   ev.EventType,
		Severity:    string(ev.Severity),
		UserEmail:   ev.UserEmail,
		Description: ev.Description,
		Details:     ev.Details,
		CreatedAt:   ev.CreatedAt,
	}
}
