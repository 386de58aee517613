package checklists

import (
	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/api/respond"
	"github.com/propaudit/propaudit/internal/services"
)

// @Summary      List checklist templates
// @Description  Active templates of the caller's tenant. With property_type, returns templates for that type plus generic ones.
// @Tags         Templates
// @Security     Bearer
// @Produce      json
// @Param        property_type  query  string  false  "Property type filter"
// @Success      200  {object}  respond.Envelope
// @Failure      401  {object}  respond.Envelope  "Unauthorized"
// @Router       /api/v1/checklists/templates [get]
// ListTemplates handles GET /api/v1/checklists/templates
func (h *Handlers) ListTemplates() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _ := session(c)
		templates, err := h.templates.List(c.Request.Context(), tenantID, optionalQuery(c, "property_type"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, templates)
	}
}

// @Summary      Create checklist template
// @Tags         Templates
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  services.TemplateInput  true  "Template with ordered items"
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "INVALID_REQUEST or INVALID_TEMPLATE"
// @Router       /api/v1/checklists/templates [post]
// CreateTemplate handles POST /api/v1/checklists/templates
func (h *Handlers) CreateTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.TemplateInput
		if !bindJSON(c, &in) {
			return
		}
		tenantID, userID := session(c)
		tpl, err := h.templates.Create(c.Request.Context(), tenantID, userID, in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.Created(c, tpl)
	}
}

// @Summary      Get checklist template
// @Tags         Templates
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Template ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "TEMPLATE_NOT_FOUND"
// @Router       /api/v1/checklists/templates/{id} [get]
// GetTemplate handles GET /api/v1/checklists/templates/:id
func (h *Handlers) GetTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "template")
		if !ok {
			return
		}
		tenantID, _ := session(c)
		tpl, err := h.templates.Get(c.Request.Context(), tenantID, id)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, tpl)
	}
}

// @Summary      Replace checklist template
// @Description  Replaces the name, description, property type and the full item list. Existing checklists keep their snapshot.
// @Tags         Templates
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                  true  "Template ID"
// @Param        body  body  services.TemplateInput  true  "Template with ordered items"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "TEMPLATE_NOT_FOUND"
// @Router       /api/v1/checklists/templates/{id} [put]
// UpdateTemplate handles PUT /api/v1/checklists/templates/:id
func (h *Handlers) UpdateTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "template")
		if !ok {
			return
		}
		var in services.TemplateInput
		if !bindJSON(c, &in) {
			return
		}
		tenantID, userID := session(c)
		tpl, err := h.templates.Update(c.Request.Context(), tenantID, userID, id, in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, tpl)
	}
}

// @Summary      Deactivate checklist template
// @Tags         Templates
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Template ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "TEMPLATE_NOT_FOUND"
// @Failure      409  {object}  respond.Envelope  "TEMPLATE_IN_USE"
// @Router       /api/v1/checklists/templates/{id} [delete]
// DeactivateTemplate handles DELETE /api/v1/checklists/templates/:id
func (h *Handlers) DeactivateTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "template")
		if !ok {
			return
		}
		tenantID, userID := session(c)
		if err := h.templates.Deactivate(c.Request.Context(), tenantID, userID, id); err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, gin.H{"id": id, "is_active": false})
	}
}
