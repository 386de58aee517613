// Package audit records state-changing actions to the append-only audit trail
// and derives the per-property operational counters from them. Services hold
// a Recorder; the Emitter implementation persists events on background
// workers and forwards them to the Aggregator and to external shippers.
package audit

import (
	"context"

	"github.com/propaudit/propaudit/internal/db/models"
)

// Action names written to audit_events.action
const (
	ActionChecklistCreated   = "checklist.created"
	ActionItemCompleted      = "checklist.item_completed"
	ActionChecklistCompleted = "checklist.completed"
	ActionChecklistApproved  = "checklist.approved"
	ActionChecklistRejected  = "checklist.rejected"
	ActionChecklistDeleted   = "checklist.deleted"
	ActionChecklistAssigned  = "checklist.assigned"
	ActionCommentAdded       = "checklist.commented"
	ActionAttachmentAdded    = "checklist.attachment_added"

	ActionTemplateCreated     = "template.created"
	ActionTemplateUpdated     = "template.updated"
	ActionTemplateDeactivated = "template.deactivated"

	ActionAlertChecklistSpawned = "alert.checklist_spawned"
	ActionAlertResolved         = "alert.resolved"

	ActionSessionRejected = "auth.session_rejected"
)

// Entity types written to audit_events.entity_type
const (
	EntityChecklist  = "checklist_instance"
	EntityResponse   = "item_response"
	EntityTemplate   = "checklist_template"
	EntityAttachment = "checklist_attachment"
	EntityComment    = "checklist_comment"
	EntityAlert      = "alert"
	EntitySession    = "session"
)

// Recorder accepts audit events. Record never fails and never blocks the
// caller on a slow audit store.
type Recorder interface {
	Record(ctx context.Context, e *models.AuditEvent)
}

// NewEvent starts an event. Empty tenant or actor ids are stored as NULL.
func NewEvent(tenantID, actorID, category, action, entityType, entityID string) *models.AuditEvent {
	e := &models.AuditEvent{
		Category:   category,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   map[string]interface{}{},
	}
	if tenantID != "" {
		e.TenantID = &tenantID
	}
	if actorID != "" {
		e.ActorID = &actorID
	}
	return e
}

// RequestInfo is the HTTP request context copied onto every event recorded
// while serving that request.
type RequestInfo struct {
	IPAddress string
	RequestID string
}

type requestInfoKey struct{}

// WithRequestInfo returns a context carrying info for later Record calls
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom extracts the request info stored by WithRequestInfo
func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}
