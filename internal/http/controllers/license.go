package controllers

import (
	"net/http"
	"time"

	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/dto"
	httperrors "github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/license"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/observability/metrics"
	"github.com/warshatech/trustgate/internal/security/fingerprint"
)

// LicenseController maneja validación y re-binding de la licencia local.
type LicenseController struct {
	validator  *license.Validator
	fps        *fingerprint.Service
	licenseKey string
}

// NewLicenseController crea el controller.
func NewLicenseController(validator *license.Validator, fps *fingerprint.Service, licenseKey string) *LicenseController {
	return &LicenseController{validator: validator, fps: fps, licenseKey: licenseKey}
}

// Validate maneja POST /v1/license/validate. Una licencia denegada no es
// un error HTTP: el resultado viaja con estado y reason code.
func (c *LicenseController) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LicenseController.Validate"))

	fp, err := c.fps.Fingerprint()
	if err != nil {
		log.Error("fingerprint read failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal.WithDetail("hardware fingerprint unavailable"))
		return
	}

	res, err := c.validator.Validate(ctx, c.licenseKey, fp)
	if err != nil {
		if repository.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrDoesNotExist.WithDetail("license not found"))
			return
		}
		log.Error("license validation failed", logger.LicenseKey(c.licenseKey), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}
	metrics.LicenseValidations.WithLabelValues(string(res.State), res.Reason).Inc()

	resp := dto.LicenseValidateResponse{
		State:       string(res.State),
		Reason:      res.Reason,
		Degraded:    fp.Degraded,
		ValidatedAt: time.Now().UTC(),
	}
	if res.License != nil {
		resp.LicenseKey = res.License.LicenseKey
		resp.BusinessID = res.License.BusinessID
		if !res.License.ExpiresAt.IsZero() {
			exp := res.License.ExpiresAt
			resp.ExpiresAt = &exp
		}
		if res.Allowed() {
			resp.MaxUsers = res.License.MaxUsers
			resp.Features = res.License.Features
		}
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// Rebind maneja POST /v1/license/rebind: transferencia administrativa de
// la licencia al hardware actual. Protegido por API key de admin.
func (c *LicenseController) Rebind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LicenseController.Rebind"))

	fp, err := c.fps.Fingerprint()
	if err != nil {
		log.Error("fingerprint read failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal.WithDetail("hardware fingerprint unavailable"))
		return
	}

	adminEmail := r.Header.Get("X-Admin-Email")
	if adminEmail == "" {
		adminEmail = "admin"
	}

	if err := c.validator.Rebind(ctx, c.licenseKey, fp, adminEmail); err != nil {
		if repository.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrDoesNotExist.WithDetail("license not found"))
			return
		}
		log.Error("license rebind failed", logger.LicenseKey(c.licenseKey), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.LicenseRebindResponse{
		LicenseKey: c.licenseKey,
		Rebound:    true,
	})
}
