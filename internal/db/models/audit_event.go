// Package models - audit_event.go defines the append-only audit trail entry and the
// per-property daily operational counters derived from it.
package models

import "time"

// Audit event categories
const (
	CategoryChecklist = "checklist"
	CategoryTemplate  = "template"
	CategoryApproval  = "approval"
	CategoryAlert     = "alert"
	CategorySecurity  = "security"
)

// AuditEvent is an immutable record of a state-changing action
type AuditEvent struct {
	ID           string                 `json:"id"`
	TenantID     *string                `json:"tenant_id,omitempty"`
	Category     string                 `json:"category"`
	Action       string                 `json:"action"` // "checklist.created", "checklist.item_completed", ...
	ActorID      *string                `json:"actor_id,omitempty"`
	EntityType   string                 `json:"entity_type"`
	EntityID     string                 `json:"entity_id"`
	PropertyID   *string                `json:"property_id,omitempty"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"` // JSONB
	Urgency      *string                `json:"urgency,omitempty"`
	Impact       *string                `json:"impact,omitempty"`
	CostEstimate *float64               `json:"cost_estimate,omitempty"`
	IPAddress    *string                `json:"ip_address,omitempty"`
	RequestID    *string                `json:"request_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// OperationalMetric is one per-tenant, per-property, per-day counter
type OperationalMetric struct {
	TenantID   string    `db:"tenant_id" json:"-"`
	PropertyID string    `db:"property_id" json:"property_id"`
	MetricDate time.Time `db:"metric_date" json:"metric_date"`
	MetricName string    `db:"metric_name" json:"metric_name"`
	Value      int64     `db:"value" json:"value"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
