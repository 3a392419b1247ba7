// Package controllers implementa los handlers HTTP de la API v1.
// Los controllers no contienen lógica de dominio: validan el request,
// llaman al servicio y traducen errores al catálogo HTTP.
package controllers

import (
	"net/http"
	"strings"

	"github.com/warshatech/trustgate/internal/alert"
	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/dto"
	httperrors "github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/observability/metrics"
	"github.com/warshatech/trustgate/internal/security/password"
	"github.com/warshatech/trustgate/internal/session"
)

// AuthController maneja la autenticación primaria.
type AuthController struct {
	users    repository.UserRepository
	sessions *session.Manager
	alerts   *alert.Engine
	auditor  audit.Recorder
}

// NewAuthController crea el controller.
func NewAuthController(users repository.UserRepository, sessions *session.Manager, alerts *alert.Engine, auditor audit.Recorder) *AuthController {
	return &AuthController{users: users, sessions: sessions, alerts: alerts, auditor: auditor}
}

// Login maneja POST /v1/auth/login.
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthController.Login"))

	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("email and password are required"))
		return
	}

	ip := helpers.ClientIP(r)

	u, err := c.users.Get(ctx, req.Email)
	if err != nil || !password.Verify(req.Password, u.PasswordHash) {
		// La razón real nunca viaja al cliente; solo al audit trail y al
		// motor de alertas.
		c.auditor.Record(ctx, audit.Entry{
			EventType:   "failed_login",
			Severity:    repository.SeverityInfo,
			UserEmail:   req.Email,
			Description: "primary authentication failed",
			Details:     map[string]any{"ip": ip},
		})
		if c.alerts != nil {
			_, _ = c.alerts.Observe(ctx, alert.Event{
				Type:      "failed_login",
				UserEmail: req.Email,
				SourceIP:  ip,
				Details:   "primary authentication failed",
			})
		}
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	created, err := c.sessions.Create(ctx, u.Email, session.DeviceInfo{
		IPAddress:         ip,
		UserAgent:         r.UserAgent(),
		DeviceFingerprint: req.DeviceFingerprint,
	})
	if err != nil {
		log.Error("session create failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}
	metrics.SessionsCreated.Inc()

	resp := dto.LoginResponse{
		SessionToken: created.Token,
		SessionID:    created.Session.ID,
		ExpiresAt:    created.Session.ExpiresAt,
		MFARequired:  u.MFARequired,
	}
	if created.Evicted != nil {
		metrics.SessionsEvicted.Inc()
		resp.EvictedSession = &dto.EvictedSession{
			SessionID: created.Evicted.ID,
			Reason:    "concurrent session limit",
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, http.StatusOK, resp)
	log.Debug("login successful", logger.UserEmail(u.Email))
}
