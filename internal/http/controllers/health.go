package controllers

import (
	"net/http"

	"github.com/warshatech/trustgate/internal/http/dto"
	"github.com/warshatech/trustgate/internal/http/helpers"
	"github.com/warshatech/trustgate/internal/license"
)

// HealthController responde el health check.
type HealthController struct {
	version string
	reval   *license.Revalidator
}

// NewHealthController crea el controller. El revalidator puede ser nil
// (instalaciones sin licencia configurada).
func NewHealthController(version string, reval *license.Revalidator) *HealthController {
	return &HealthController{version: version, reval: reval}
}

// Health maneja GET /healthz.
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	resp := dto.HealthResponse{Status: "ok", Version: c.version}
	if c.reval != nil {
		if last := c.reval.Last(); last != nil {
			resp.License = string(last.State)
		}
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
