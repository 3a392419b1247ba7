package controllers

import (
	"errors"
	"net/http"

	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/dto"
	httperrors "github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/http/middlewares"
	"github.com/warshatech/trustgate/internal/mfa"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/observability/metrics"
	"github.com/warshatech/trustgate/internal/session"
)

// MFAController maneja enrolamiento y verificación de segundo factor.
type MFAController struct {
	mfas     *mfa.Manager
	sessions *session.Manager
}

// NewMFAController crea el controller.
func NewMFAController(mfas *mfa.Manager, sessions *session.Manager) *MFAController {
	return &MFAController{mfas: mfas, sessions: sessions}
}

// Enable maneja POST /v1/mfa/enable. La respuesta lleva el secreto TOTP
// y los backup codes en claro: se emiten una única vez.
func (c *MFAController) Enable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	var req dto.MFAEnableRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	method := repository.MFAMethod(req.Method)
	if !method.Valid() {
		httperrors.WriteError(w, httperrors.ErrValidation.WithDetail("method: must be totp, sms, whatsapp or email"))
		return
	}

	res, err := c.mfas.Enable(ctx, current.UserEmail, method)
	if err != nil {
		logger.From(ctx).Error("mfa enable failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.MFAEnableResponse{
		Method:       string(res.Method),
		SecretBase32: res.SecretBase32,
		OTPAuthURL:   res.OTPAuthURL,
		BackupCodes:  res.BackupCodes,
	})
}

// SendCode maneja POST /v1/mfa/send-code: genera y despacha un código
// out-of-band por el canal enrolado.
func (c *MFAController) SendCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	if err := c.mfas.SendCode(ctx, current.UserEmail); err != nil {
		if errors.Is(err, mfa.ErrNotEnrolled) {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("mfa not enrolled"))
			return
		}
		logger.From(ctx).Error("mfa send code failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verify maneja POST /v1/mfa/verify. Un código válido eleva la sesión
// actual; el detalle de por qué falló un código nunca viaja al cliente.
func (c *MFAController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	var req dto.MFAVerifyRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("code is required"))
		return
	}

	res, err := c.mfas.Verify(ctx, current.UserEmail, req.Code, req.IsBackupCode)
	if err != nil {
		switch {
		case errors.Is(err, mfa.ErrNotEnrolled):
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("mfa not enrolled"))
		case errors.Is(err, mfa.ErrInvalidCode):
			metrics.MFAVerifications.WithLabelValues("failed").Inc()
			httperrors.WriteError(w, httperrors.ErrAuthenticationFailed.WithDetail("invalid or expired code"))
		default:
			logger.From(ctx).Error("mfa verify failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternal)
		}
		return
	}
	metrics.MFAVerifications.WithLabelValues("ok").Inc()

	elevated := false
	if err := c.sessions.Elevate(ctx, current); err != nil {
		logger.From(ctx).Warn("session elevate failed", logger.SessionID(current.ID), logger.Err(err))
	} else {
		elevated = true
	}

	helpers.WriteJSON(w, http.StatusOK, dto.MFAVerifyResponse{
		Verified:             res.Verified,
		SessionElevated:      elevated,
		RemainingBackupCodes: res.RemainingBackupCodes,
	})
}

// BackupCodes maneja POST /v1/mfa/backup-codes: rota el set completo.
func (c *MFAController) BackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	codes, err := c.mfas.GenerateBackupCodes(ctx, current.UserEmail)
	if err != nil {
		if errors.Is(err, mfa.ErrNotEnrolled) {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("mfa not enrolled"))
			return
		}
		logger.From(ctx).Error("backup code rotation failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.MFABackupCodesResponse{BackupCodes: codes})
}

// Disable maneja POST /v1/mfa/disable. Exige un código válido: deshabilitar
// MFA sin probar posesión del factor sería un downgrade silencioso.
func (c *MFAController) Disable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := middlewares.GetSession(ctx)
	if current == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	var req dto.MFADisableRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("code is required"))
		return
	}

	if err := c.mfas.Disable(ctx, current.UserEmail, req.Code, req.IsBackupCode); err != nil {
		switch {
		case errors.Is(err, mfa.ErrNotEnrolled):
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("mfa not enrolled"))
		case errors.Is(err, mfa.ErrInvalidCode):
			httperrors.WriteError(w, httperrors.ErrAuthenticationFailed.WithDetail("invalid or expired code"))
		default:
			logger.From(ctx).Error("mfa disable failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternal)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
