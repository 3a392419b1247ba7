package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warshatech/trustgate/internal/business"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/dto"
	httperrors "github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/observability/logger"
)

// BusinessController maneja el registro de identidad de negocio.
type BusinessController struct {
	binder *business.Binder
}

// NewBusinessController crea el controller.
func NewBusinessController(binder *business.Binder) *BusinessController {
	return &BusinessController{binder: binder}
}

// Register maneja POST /v1/business/register.
func (c *BusinessController) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("BusinessController.Register"))

	in, ok := c.readInput(w, r)
	if !ok {
		return
	}

	reg, err := c.binder.Register(ctx, in)
	if err != nil {
		c.writeBinderError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, businessResponse(reg))
}

// Update maneja PUT /v1/business/{id}: edición administrativa del registro.
func (c *BusinessController) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("BusinessController.Update"))
	businessID := chi.URLParam(r, "id")

	in, ok := c.readInput(w, r)
	if !ok {
		return
	}

	editedBy := r.Header.Get("X-Admin-Email")
	if editedBy == "" {
		editedBy = "admin"
	}

	reg, err := c.binder.Update(ctx, businessID, in, editedBy)
	if err != nil {
		c.writeBinderError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, businessResponse(reg))
}

// Verify maneja POST /v1/business/{id}/verify: recomputa el hash de
// integridad del registro persistido.
func (c *BusinessController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	businessID := chi.URLParam(r, "id")

	verified, err := c.binder.Verify(ctx, businessID)
	if err != nil {
		if repository.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrDoesNotExist.WithDetail("business not found"))
			return
		}
		logger.From(ctx).Error("business verify failed", logger.BusinessID(businessID), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.BusinessVerifyResponse{
		BusinessID: businessID,
		Verified:   verified,
	})
}

func (c *BusinessController) readInput(w http.ResponseWriter, r *http.Request) (business.RegisterInput, bool) {
	var req dto.BusinessRegisterRequest
	if !helpers.ReadJSON(w, r, &req) {
		return business.RegisterInput{}, false
	}

	in := business.RegisterInput{
		OwnerName:          req.OwnerName,
		CivilID:            req.CivilID,
		Phone:              req.Phone,
		ActivityType:       req.ActivityType,
		TradeLicenseNumber: req.TradeLicenseNumber,
		Email:              req.Email,
	}
	if req.RegistrationDate != "" {
		d, err := time.Parse("2006-01-02", req.RegistrationDate)
		if err != nil {
			httperrors.WriteError(w, httperrors.ErrValidation.WithDetail("registration_date: must be YYYY-MM-DD"))
			return business.RegisterInput{}, false
		}
		in.RegistrationDate = d
	}
	return in, true
}

func (c *BusinessController) writeBinderError(w http.ResponseWriter, log *zap.Logger, err error) {
	var verr *business.ValidationError
	switch {
	case errors.As(err, &verr):
		httperrors.WriteError(w, httperrors.ErrValidation.WithDetail(verr.Field+": "+verr.Reason))
	case repository.IsConflict(err):
		httperrors.WriteError(w, httperrors.ErrConflict.WithDetail("civil_id already registered"))
	case repository.IsNotFound(err):
		httperrors.WriteError(w, httperrors.ErrDoesNotExist.WithDetail("business not found"))
	default:
		log.Error("business operation failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
	}
}

func businessResponse(reg *repository.BusinessRegistration) dto.BusinessResponse {
	return dto.BusinessResponse{
		BusinessID:       reg.BusinessID,
		OwnerName:        reg.OwnerName,
		CivilID:          reg.CivilID,
		Phone:            reg.Phone,
		RegistrationDate: reg.RegistrationDate.UTC().Format("2006-01-02"),
		ActivityType:     reg.ActivityType,
		TradeLicense:     reg.TradeLicenseNumber,
		Email:            reg.Email,
		VerificationHash: reg.VerificationHash,
		CreatedAt:        reg.CreatedAt,
	}
}
