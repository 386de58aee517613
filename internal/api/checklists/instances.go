package checklists

import (
	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/api/respond"
	"github.com/propaudit/propaudit/internal/services"
)

// TransitionRequest is the body of PUT /checklists/:id/status
type TransitionRequest struct {
	Status string `json:"status" binding:"notblank"`
}

// AssignRequest is the body of PUT /checklists/:id/assign
type AssignRequest struct {
	AssignedTo string `json:"assigned_to" binding:"notblank,uuid"`
}

// @Summary      List checklists
// @Tags         Checklists
// @Security     Bearer
// @Produce      json
// @Param        property_id  query  string  false  "Property ID"
// @Param        template_id  query  string  false  "Template ID"
// @Param        assigned_to  query  string  false  "Assignee user ID"
// @Param        status       query  string  false  "Comma separated statuses"
// @Param        from         query  string  false  "Created on or after (YYYY-MM-DD or RFC 3339)"
// @Param        to           query  string  false  "Created on or before (YYYY-MM-DD or RFC 3339)"
// @Param        page         query  int     false  "Page number"  default(1)
// @Param        per_page     query  int     false  "Page size"    default(20)
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "INVALID_DATE, INVALID_STATUS or INVALID_ID"
// @Router       /api/v1/checklists [get]
// ListChecklists handles GET /api/v1/checklists
func (h *Handlers) ListChecklists() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, ok := dateRange(c)
		if !ok {
			return
		}
		filter := services.ListFilter{Statuses: statusParams(c), From: from, To: to}
		if filter.PropertyID, ok = idQuery(c, "property_id"); !ok {
			return
		}
		if filter.TemplateID, ok = idQuery(c, "template_id"); !ok {
			return
		}
		if filter.AssignedTo, ok = idQuery(c, "assigned_to"); !ok {
			return
		}
		tenantID, _ := session(c)
		page, err := h.checklists.List(c.Request.Context(), tenantID, filter, pageParams(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, page)
	}
}

// @Summary      List my checklists
// @Description  Checklists assigned to the caller.
// @Tags         Checklists
// @Security     Bearer
// @Produce      json
// @Param        status    query  string  false  "Comma separated statuses"
// @Param        page      query  int     false  "Page number"
// @Param        per_page  query  int     false  "Page size"
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/checklists/my [get]
// ListMyChecklists handles GET /api/v1/checklists/my
func (h *Handlers) ListMyChecklists() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, userID := session(c)
		page, err := h.checklists.ListMine(c.Request.Context(), tenantID, userID, statusParams(c), pageParams(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, page)
	}
}

// @Summary      List checklists of a property
// @Tags         Checklists
// @Security     Bearer
// @Produce      json
// @Param        propertyId  path   string  true   "Property ID"
// @Param        status      query  string  false  "Comma separated statuses"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "PROPERTY_NOT_FOUND"
// @Router       /api/v1/checklists/property/{propertyId} [get]
// ListPropertyChecklists handles GET /api/v1/checklists/property/:propertyId
func (h *Handlers) ListPropertyChecklists() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyID, ok := pathID(c, "propertyId", "property")
		if !ok {
			return
		}
		tenantID, _ := session(c)
		page, err := h.checklists.ListForProperty(c.Request.Context(), tenantID, propertyID, statusParams(c), pageParams(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, page)
	}
}

// @Summary      Create checklist
// @Description  Instantiates an active template for a property. The assignee defaults to the caller.
// @Tags         Checklists
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  services.CreateChecklistInput  true  "Template and property"
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "TEMPLATE_NOT_FOUND or PROPERTY_NOT_FOUND"
// @Router       /api/v1/checklists [post]
// CreateChecklist handles POST /api/v1/checklists
func (h *Handlers) CreateChecklist() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.CreateChecklistInput
		if !bindJSON(c, &in) {
			return
		}
		tenantID, userID := session(c)
		inst, err := h.checklists.Create(c.Request.Context(), tenantID, userID, in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.Created(c, inst)
	}
}

// @Summary      Get checklist
// @Description  Returns the checklist with its item responses in template order and the completion summary.
// @Tags         Checklists
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Checklist ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "CHECKLIST_NOT_FOUND"
// @Router       /api/v1/checklists/{id} [get]
// GetChecklist handles GET /api/v1/checklists/:id
func (h *Handlers) GetChecklist() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		tenantID, _ := session(c)
		inst, err := h.checklists.Get(c.Request.Context(), tenantID, id)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, inst)
	}
}

// @Summary      Delete checklist
// @Tags         Checklists
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Checklist ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "CHECKLIST_NOT_FOUND"
// @Failure      409  {object}  respond.Envelope  "Approved checklists cannot be deleted"
// @Router       /api/v1/checklists/{id} [delete]
// DeleteChecklist handles DELETE /api/v1/checklists/:id
func (h *Handlers) DeleteChecklist() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		tenantID, userID := session(c)
		if err := h.checklists.Delete(c.Request.Context(), tenantID, userID, id); err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, gin.H{"id": id, "deleted": true})
	}
}

// @Summary      Change checklist status
// @Tags         Checklists
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "Checklist ID"
// @Param        body  body  TransitionRequest  true  "Target status"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "INVALID_STATUS"
// @Failure      409  {object}  respond.Envelope  "INVALID_TRANSITION or INCOMPLETE_CHECKLIST"
// @Router       /api/v1/checklists/{id}/status [put]
// TransitionChecklist handles PUT /api/v1/checklists/:id/status
func (h *Handlers) TransitionChecklist() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		var req TransitionRequest
		if !bindJSON(c, &req) {
			return
		}
		tenantID, userID := session(c)
		inst, err := h.checklists.Transition(c.Request.Context(), tenantID, userID, id, req.Status)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, inst)
	}
}

// @Summary      Reassign checklist
// @Tags         Checklists
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "Checklist ID"
// @Param        body  body  AssignRequest  true  "New assignee"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "INVALID_ID"
// @Failure      404  {object}  respond.Envelope  "CHECKLIST_NOT_FOUND"
// @Router       /api/v1/checklists/{id}/assign [put]
// AssignChecklist handles PUT /api/v1/checklists/:id/assign
func (h *Handlers) AssignChecklist() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		var req AssignRequest
		if !bindJSON(c, &req) {
			return
		}
		tenantID, userID := session(c)
		inst, err := h.checklists.Reassign(c.Request.Context(), tenantID, userID, id, req.AssignedTo)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, inst)
	}
}

// @Summary      Complete checklist item
// @Description  Records or overwrites the response to one item. The first response moves a pending checklist to in_progress.
// @Tags         Checklists
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id      path  string                      true  "Checklist ID"
// @Param        itemId  path  string                      true  "Template item ID"
// @Param        body    body  services.CompleteItemInput  true  "Response"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "INVALID_RESPONSE"
// @Failure      404  {object}  respond.Envelope  "CHECKLIST_NOT_FOUND or CHECKLIST_ITEM_NOT_FOUND"
// @Failure      409  {object}  respond.Envelope  "CHECKLIST_LOCKED"
// @Router       /api/v1/checklists/{id}/items/{itemId}/complete [post]
// CompleteItem handles POST /api/v1/checklists/:id/items/:itemId/complete
func (h *Handlers) CompleteItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		itemID, ok := pathID(c, "itemId", "checklist_item")
		if !ok {
			return
		}
		var in services.CompleteItemInput
		if !bindJSON(c, &in) {
			return
		}
		tenantID, userID := session(c)
		res, err := h.checklists.CompleteItem(c.Request.Context(), tenantID, userID, id, itemID, in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, res)
	}
}

// @Summary      List checklist comments
// @Tags         Comments
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Checklist ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "CHECKLIST_NOT_FOUND"
// @Router       /api/v1/checklists/{id}/comments [get]
// ListComments handles GET /api/v1/checklists/:id/comments
func (h *Handlers) ListComments() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		tenantID, _ := session(c)
		comments, err := h.checklists.ListComments(c.Request.Context(), tenantID, id)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, comments)
	}
}

// @Summary      Add checklist comment
// @Tags         Comments
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true  "Checklist ID"
// @Param        body  body  services.CommentInput  true  "Comment"
// @Success      201  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "CHECKLIST_NOT_FOUND or ITEM_RESPONSE_NOT_FOUND"
// @Router       /api/v1/checklists/{id}/comments [post]
// AddComment handles POST /api/v1/checklists/:id/comments
func (h *Handlers) AddComment() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id", "checklist")
		if !ok {
			return
		}
		var in services.CommentInput
		if !bindJSON(c, &in) {
			return
		}
		tenantID, userID := session(c)
		comment, err := h.checklists.AddComment(c.Request.Context(), tenantID, userID, id, in)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.Created(c, comment)
	}
}
