package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/propaudit/propaudit/internal/db/models"
)

// Operational metric names
const (
	MetricChecklistsCreated   = "checklists_created"
	MetricItemsCompleted      = "items_completed"
	MetricIssuesReported      = "issues_reported"
	MetricChecklistsCompleted = "checklists_completed"
	MetricApprovalsGranted    = "approvals_granted"
	MetricApprovalsRejected   = "approvals_rejected"
	MetricAlertsReceived      = "alerts_received"
	MetricAlertsResolved      = "alerts_resolved"
)

// MetricStore persists daily counters
type MetricStore interface {
	IncrementMetric(ctx context.Context, tenantID, propertyID string, day time.Time, name string, delta int64) error
}

// Aggregator turns audit events into per-tenant, per-property, per-day
// counters. Counters are only ever incremented, never recomputed.
type Aggregator struct {
	store MetricStore
}

// NewAggregator creates an Aggregator writing to store
func NewAggregator(store MetricStore) *Aggregator {
	return &Aggregator{store: store}
}

// MetricsFor returns the counters an event increments. An instance reaching
// the approved state shares its action name with a response approval but is
// not counted as a granted approval.
func MetricsFor(e *models.AuditEvent) []string {
	switch e.Action {
	case ActionChecklistCreated:
		return []string{MetricChecklistsCreated}
	case ActionItemCompleted:
		if hasIssue, _ := e.Metadata["has_issue"].(bool); hasIssue {
			return []string{MetricItemsCompleted, MetricIssuesReported}
		}
		return []string{MetricItemsCompleted}
	case ActionChecklistCompleted:
		return []string{MetricChecklistsCompleted}
	case ActionChecklistApproved:
		if e.EntityType == EntityResponse {
			return []string{MetricApprovalsGranted}
		}
	case ActionChecklistRejected:
		return []string{MetricApprovalsRejected}
	case ActionAlertChecklistSpawned:
		return []string{MetricAlertsReceived}
	case ActionAlertResolved:
		return []string{MetricAlertsResolved}
	}
	return nil
}

// Apply increments every counter mapped from e. Events without a tenant or
// property are ignored.
func (a *Aggregator) Apply(ctx context.Context, e *models.AuditEvent) error {
	if e.TenantID == nil || e.PropertyID == nil || *e.PropertyID == "" {
		return nil
	}
	day := e.CreatedAt
	if day.IsZero() {
		day = time.Now().UTC()
	}
	for _, name := range MetricsFor(e) {
		if err := a.store.IncrementMetric(ctx, *e.TenantID, *e.PropertyID, day, name, 1); err != nil {
			return fmt.Errorf("failed to aggregate %s into %s: %w", e.Action, name, err)
		}
	}
	return nil
}
