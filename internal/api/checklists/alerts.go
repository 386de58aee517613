package checklists

import (
	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/api/respond"
	"github.com/propaudit/propaudit/internal/services"
)

// @Summary      Create checklist from alert
// @Description  Instantiates a template for the alerted property and records the alert in the audit trail.
// @Tags         Alerts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  services.AlertInput  true  "Alert details"
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "INVALID_ALERT or INVALID_SEVERITY"
// @Failure      404  {object}  respond.Envelope  "TEMPLATE_NOT_FOUND or PROPERTY_NOT_FOUND"
// @Router       /api/v1/alerts/checklists [post]
// SpawnAlertChecklist handles POST /api/v1/alerts/checklists
func (h *Handlers) SpawnAlertChecklist() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.AlertInput
		if !bindJSON(c, &in) {
			return
		}
		tenantID, userID := session(c)
		inst, err := h.checklists.SpawnFromAlert(c.Request.Context(), tenantID, userID, in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.Created(c, inst)
	}
}

// @Summary      Resolve alert
// @Tags         Alerts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        alertId  path  string                      true  "Alert ID"
// @Param        body     body  services.ResolveAlertInput  true  "Property and notes"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "PROPERTY_NOT_FOUND"
// @Router       /api/v1/alerts/{alertId}/resolve [post]
// ResolveAlert handles POST /api/v1/alerts/:alertId/resolve
func (h *Handlers) ResolveAlert() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.ResolveAlertInput
		if !bindJSON(c, &in) {
			return
		}
		tenantID, userID := session(c)
		alertID := c.Param("alertId")
		if err := h.checklists.ResolveAlert(c.Request.Context(), tenantID, userID, alertID, in); err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, gin.H{"alert_id": alertID, "resolved": true})
	}
}
