package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/dto"
	httperrors "github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/http/middlewares"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/permission"
	"github.com/warshatech/trustgate/internal/session"
)

// SessionsController maneja el ciclo de vida de sesiones autenticadas.
// Status, Revoke y RevokeAll aceptan una cuenta ajena (flujo de respuesta
// a incidentes); el cruce de cuenta lo decide el PermissionEngine.
type SessionsController struct {
	sessions *session.Manager
	perms    *permission.Engine
}

// NewSessionsController crea el controller.
func NewSessionsController(sessions *session.Manager, perms *permission.Engine) *SessionsController {
	return &SessionsController{sessions: sessions, perms: perms}
}

// resolveTarget decide sobre qué cuenta opera el request: la del caller,
// salvo que pida otra, en cuyo caso el rol tiene que otorgar la acción
// sobre el recurso session (read para consultar, manage para revocar).
// Retorna ("", false) ya habiendo escrito la respuesta de error.
func (c *SessionsController) resolveTarget(w http.ResponseWriter, r *http.Request, requested, action string) (string, bool) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return "", false
	}

	target := strings.ToLower(strings.TrimSpace(requested))
	if target == "" || target == current.UserEmail {
		return current.UserEmail, true
	}

	d := c.perms.Check(ctx, permission.Input{
		User:          middlewares.GetUser(ctx),
		Session:       current,
		Resource:      "session",
		Action:        action,
		ResourceOwner: target,
	})
	if !d.Allowed {
		httperrors.WriteError(w, httperrors.ErrPermissionDenied.WithDetail("operating on another user's sessions requires session/"+action))
		return "", false
	}
	return target, true
}

// Status maneja GET /v1/sessions/status. `user_email` como query param
// consulta otra cuenta.
func (c *SessionsController) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	target, ok := c.resolveTarget(w, r, r.URL.Query().Get("user_email"), "read")
	if !ok {
		return
	}

	sessions, maxConcurrent, err := c.sessions.Status(ctx, target)
	if err != nil {
		logger.From(ctx).Error("session status failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	resp := dto.SessionStatusResponse{
		UserEmail:     target,
		Sessions:      make([]dto.SessionInfo, 0, len(sessions)),
		ActiveCount:   len(sessions),
		MaxConcurrent: maxConcurrent,
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, sessionInfo(&s, current.ID))
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// Revoke maneja POST /v1/sessions/revoke. Solo se pueden revocar sesiones
// propias, salvo que el rol otorgue session/manage.
func (c *SessionsController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	var req dto.RevokeSessionRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("session_id is required"))
		return
	}

	target, err := c.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrDoesNotExist.WithDetail("session not found"))
			return
		}
		logger.From(ctx).Error("session lookup failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}
	if _, ok := c.resolveTarget(w, r, target.UserEmail, "manage"); !ok {
		return
	}

	revokedAt, err := c.sessions.Revoke(ctx, req.SessionID, current.UserEmail, req.Reason)
	if err != nil {
		if repository.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrDoesNotExist.WithDetail("session not found"))
			return
		}
		logger.From(ctx).Error("session revoke failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.RevokeSessionResponse{
		SessionID: req.SessionID,
		RevokedAt: revokedAt,
	})
}

// RevokeAll maneja POST /v1/sessions/revoke-all.
func (c *SessionsController) RevokeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	var req dto.RevokeAllRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	target, ok := c.resolveTarget(w, r, req.UserEmail, "manage")
	if !ok {
		return
	}

	// KeepCurrent solo tiene sentido revocando la cuenta propia: al barrer
	// la cuenta de otro usuario caen todas sus sesiones.
	exclude := ""
	if req.KeepCurrent && target == current.UserEmail {
		exclude = current.ID
	}

	n, err := c.sessions.RevokeAll(ctx, target, exclude, current.UserEmail, req.Reason)
	if err != nil {
		logger.From(ctx).Error("session revoke-all failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.RevokeAllResponse{RevokedCount: n})
}

// Stats maneja GET /v1/sessions/statistics.
func (c *SessionsController) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := queryDays(r, 7)
	stats, err := c.sessions.Stats(ctx, days)
	if err != nil {
		logger.From(ctx).Error("session stats failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	resp := dto.SessionStatsResponse{
		ActiveSessions:  stats.ActiveSessions,
		Logins:          stats.LoginsToday,
		UniqueUsers:     stats.UniqueUsersToday,
		AvgDurationSecs: stats.AvgDuration.Seconds(),
		TopDevices:      make([]dto.DeviceCount, 0, len(stats.TopDevices)),
		WindowDays:      days,
	}
	for _, d := range stats.TopDevices {
		resp.TopDevices = append(resp.TopDevices, dto.DeviceCount{Device: d.Device, Count: d.Count})
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

func sessionInfo(s *repository.Session, currentID string) dto.SessionInfo {
	info := dto.SessionInfo{
		SessionID:    s.ID,
		Elevated:     s.Elevated,
		Current:      s.ID == currentID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
	}
	if s.IPAddress != nil {
		info.IPAddress = *s.IPAddress
	}
	if s.UserAgent != nil {
		info.UserAgent = *s.UserAgent
	}
	return info
}

// queryDays lee el query param `days` con fallback.
func queryDays(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			return n
		}
	}
	return fallback
}
