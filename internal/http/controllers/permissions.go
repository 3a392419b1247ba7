package controllers

import (
	"net/http"
	"strings"

	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/dto"
	httperrors "github.com/warshatech/trustgate/internal/http/errors"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/http/middlewares"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/permission"
)

// PermissionsController expone el chequeo de permisos multi-condición.
type PermissionsController struct {
	engine *permission.Engine
	users  repository.UserRepository
}

// NewPermissionsController crea el controller.
func NewPermissionsController(engine *permission.Engine, users repository.UserRepository) *PermissionsController {
	return &PermissionsController{engine: engine, users: users}
}

// Check maneja POST /v1/permissions/check. Un rechazo no es un error
// HTTP: la respuesta detalla cada condición evaluada. Con `user_email`
// consulta otra cuenta (grant de rol y ownership solamente, sin sesión);
// esa forma exige que el caller tenga user_permissions/read.
func (c *PermissionsController) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.PermissionCheckRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Resource == "" || req.Action == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("resource and action are required"))
		return
	}

	user := middlewares.GetUser(ctx)
	if user == nil {
		httperrors.WriteError(w, httperrors.ErrAuthenticationFailed)
		return
	}

	var decision permission.Decision
	target := strings.ToLower(strings.TrimSpace(req.UserEmail))
	if target != "" && target != user.Email {
		gate := c.engine.Check(ctx, permission.Input{
			User:     user,
			Session:  middlewares.GetSession(ctx),
			Resource: "user_permissions",
			Action:   "read",
		})
		if !gate.Allowed {
			httperrors.WriteError(w, httperrors.ErrPermissionDenied.WithDetail("querying another user's permissions requires user_permissions/read"))
			return
		}

		subject, err := c.users.Get(ctx, target)
		if err != nil {
			if repository.IsNotFound(err) {
				httperrors.WriteError(w, httperrors.ErrDoesNotExist.WithDetail("user not found"))
				return
			}
			logger.From(ctx).Error("permission subject lookup failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternal)
			return
		}
		decision = c.engine.CheckFor(subject, req.Resource, req.Action, req.ResourceOwner)
	} else {
		decision = c.engine.Check(ctx, permission.Input{
			User:          user,
			Session:       middlewares.GetSession(ctx),
			Resource:      req.Resource,
			Action:        req.Action,
			ResourceOwner: req.ResourceOwner,
		})
	}

	resp := dto.PermissionCheckResponse{
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
		Conditions: make([]dto.PermissionCondition, 0, len(decision.Conditions)),
	}
	for _, cond := range decision.Conditions {
		resp.Conditions = append(resp.Conditions, dto.PermissionCondition{
			Name:   cond.Name,
			Passed: cond.Passed,
			Detail: cond.Detail,
		})
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
