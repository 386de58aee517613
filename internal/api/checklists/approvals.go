package checklists

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/api/respond"
	"github.com/propaudit/propaudit/internal/services"
)

// @Summary      Approval queue
// @Description  Responses awaiting a decision, oldest first. approver_id narrows the queue to checklists routed to that approver.
// @Tags         Approvals
// @Security     Bearer
// @Produce      json
// @Param        approver_id  query  string  false  "Approver user ID"
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "INVALID_ID"
// @Router       /api/v1/checklists/approvals/queue [get]
// ApprovalQueue handles GET /api/v1/checklists/approvals/queue
func (h *Handlers) ApprovalQueue() gin.HandlerFunc {
	return func(c *gin.Context) {
		approverID, ok := idQuery(c, "approver_id")
		if !ok {
			return
		}
		tenantID, _ := session(c)
		queue, err := h.approvals.Queue(c.Request.Context(), tenantID, approverID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, queue)
	}
}

// @Summary      Approve item response
// @Tags         Approvals
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        responseId  path  string                  true   "Item response ID"
// @Param        body        body  services.DecisionInput  false  "Decision notes"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "ITEM_RESPONSE_NOT_FOUND"
// @Failure      409  {object}  respond.Envelope  "NOT_PENDING_APPROVAL"
// @Router       /api/v1/checklists/approvals/{responseId}/approve [post]
// ApproveResponse handles POST /api/v1/checklists/approvals/:responseId/approve
func (h *Handlers) ApproveResponse() gin.HandlerFunc {
	return h.decide((*services.ApprovalService).Approve)
}

// @Summary      Reject item response
// @Description  Marks the response rejected so the item can be answered again. The checklist status is left unchanged.
// @Tags         Approvals
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        responseId  path  string                  true   "Item response ID"
// @Param        body        body  services.DecisionInput  false  "Decision notes"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "ITEM_RESPONSE_NOT_FOUND"
// @Failure      409  {object}  respond.Envelope  "NOT_PENDING_APPROVAL"
// @Router       /api/v1/checklists/approvals/{responseId}/reject [post]
// RejectResponse handles POST /api/v1/checklists/approvals/:responseId/reject
func (h *Handlers) RejectResponse() gin.HandlerFunc {
	return h.decide((*services.ApprovalService).Reject)
}

type decisionFunc func(s *services.ApprovalService, ctx context.Context, tenantID, approverID, responseID string, notes *string) (*services.DecisionResult, error)

// decide binds the optional notes body and applies the decision as the caller
func (h *Handlers) decide(fn decisionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		responseID, ok := pathID(c, "responseId", "item_response")
		if !ok {
			return
		}
		var in services.DecisionInput
		if c.Request.ContentLength != 0 && !bindJSON(c, &in) {
			return
		}
		tenantID, userID := session(c)
		res, err := fn(h.approvals, c.Request.Context(), tenantID, userID, responseID, in.Notes)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, res)
	}
}

// @Summary      Approval history
// @Description  Every decision recorded for an item response, oldest first.
// @Tags         Approvals
// @Security     Bearer
// @Produce      json
// @Param        responseId  path  string  true  "Item response ID"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "ITEM_RESPONSE_NOT_FOUND"
// @Router       /api/v1/checklists/approvals/{responseId}/history [get]
// ApprovalHistory handles GET /api/v1/checklists/approvals/:responseId/history
func (h *Handlers) ApprovalHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		responseID, ok := pathID(c, "responseId", "item_response")
		if !ok {
			return
		}
		tenantID, _ := session(c)
		history, err := h.approvals.History(c.Request.Context(), tenantID, responseID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		respond.OK(c, history)
	}
}
