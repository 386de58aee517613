package services

import (
	"context"
	"fmt"
	"time"

	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/db/repositories"
)

// DefaultMetricsWindow is the range of operational counters returned when no
// dates are given
const DefaultMetricsWindow = 30 * 24 * time.Hour

// maxMetricsWindow bounds a single counters query
const maxMetricsWindow = 366 * 24 * time.Hour

// EventFilter narrows an audit trail query
type EventFilter struct {
	Category   *string
	Action     *string
	ActorID    *string
	EntityType *string
	EntityID   *string
	PropertyID *string
	From       *time.Time
	To         *time.Time
}

// EventPage is one page of the audit trail
type EventPage struct {
	Items   []*models.AuditEvent `json:"items"`
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
	PerPage int                  `json:"per_page"`
}

// MetricFilter narrows an operational counters query
type MetricFilter struct {
	PropertyID *string
	MetricName *string
	From       *time.Time
	To         *time.Time
}

// MetricReport holds the counters of a date range with per-metric totals
type MetricReport struct {
	From    string                     `json:"from"`
	To      string                     `json:"to"`
	Metrics []models.OperationalMetric `json:"metrics"`
	Totals  map[string]int64           `json:"totals"`
}

// ReportService answers read-only queries over the audit trail and the
// operational counters derived from it
type ReportService struct {
	audit *repositories.AuditRepository
	now   func() time.Time
}

// NewReportService creates a ReportService
func NewReportService(auditRepo *repositories.AuditRepository) *ReportService {
	return &ReportService{audit: auditRepo, now: time.Now}
}

// Events returns the tenant's audit events, newest first
func (s *ReportService) Events(ctx context.Context, tenantID string, f EventFilter, page Page) (*EventPage, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperrors.Validation("INVALID_DATE_RANGE", "to must not be before from")
	}
	page = page.normalize()
	events, total, err := s.audit.ListEvents(ctx, repositories.AuditFilters{
		TenantID:   tenantID,
		Category:   trimmed(f.Category),
		Action:     trimmed(f.Action),
		ActorID:    trimmed(f.ActorID),
		EntityType: trimmed(f.EntityType),
		EntityID:   trimmed(f.EntityID),
		PropertyID: trimmed(f.PropertyID),
		StartDate:  f.From,
		EndDate:    f.To,
	}, page.PerPage, page.offset())
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return &EventPage{Items: events, Total: total, Page: page.Number, PerPage: page.PerPage}, nil
}

// Metrics returns daily counters for an inclusive date range. Without
// dates the last 30 days are returned; a range longer than a year is
// rejected.
func (s *ReportService) Metrics(ctx context.Context, tenantID string, f MetricFilter) (*MetricReport, error) {
	to := s.now().UTC()
	if f.To != nil {
		to = f.To.UTC()
	}
	from := to.Add(-DefaultMetricsWindow)
	if f.From != nil {
		from = f.From.UTC()
	}
	if to.Before(from) {
		return nil, apperrors.Validation("INVALID_DATE_RANGE", "to must not be before from")
	}
	if to.Sub(from) > maxMetricsWindow {
		return nil, apperrors.Validation("INVALID_DATE_RANGE", "date range must not exceed one year")
	}

	metrics, err := s.audit.ListMetrics(ctx, repositories.MetricFilters{
		TenantID:   tenantID,
		PropertyID: trimmed(f.PropertyID),
		MetricName: trimmed(f.MetricName),
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query operational metrics: %w", err)
	}

	totals := make(map[string]int64)
	for _, m := range metrics {
		totals[m.MetricName] += m.Value
	}
	return &MetricReport{
		From:    from.Format("2006-01-02"),
		To:      to.Format("2006-01-02"),
		Metrics: metrics,
		Totals:  totals,
	}, nil
}
