package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propaudit/propaudit/internal/db/models"
)

type increment struct {
	tenantID, propertyID, day, name string
	delta                           int64
}

type fakeMetricStore struct {
	calls []increment
	err   error
}

func (f *fakeMetricStore) IncrementMetric(_ context.Context, tenantID, propertyID string, day time.Time, name string, delta int64) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, increment{tenantID, propertyID, day.Format("2006-01-02"), name, delta})
	return nil
}

func propertyEvent(action, entityType string) *models.AuditEvent {
	e := NewEvent("tenant-1", "user-1", models.CategoryChecklist, action, entityType, "x")
	prop := "prop-1"
	e.PropertyID = &prop
	e.CreatedAt = time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	return e
}

func TestMetricsFor(t *testing.T) {
	withIssue := propertyEvent(ActionItemCompleted, EntityResponse)
	withIssue.Metadata["has_issue"] = true

	tests := []struct {
		name  string
		event *models.AuditEvent
		want  []string
	}{
		{"created", propertyEvent(ActionChecklistCreated, EntityChecklist), []string{MetricChecklistsCreated}},
		{"item completed", propertyEvent(ActionItemCompleted, EntityResponse), []string{MetricItemsCompleted}},
		{"item with issue", withIssue, []string{MetricItemsCompleted, MetricIssuesReported}},
		{"completed", propertyEvent(ActionChecklistCompleted, EntityChecklist), []string{MetricChecklistsCompleted}},
		{"response approved", propertyEvent(ActionChecklistApproved, EntityResponse), []string{MetricApprovalsGranted}},
		{"instance approved", propertyEvent(ActionChecklistApproved, EntityChecklist), nil},
		{"rejected", propertyEvent(ActionChecklistRejected, EntityResponse), []string{MetricApprovalsRejected}},
		{"alert spawned", propertyEvent(ActionAlertChecklistSpawned, EntityAlert), []string{MetricAlertsReceived}},
		{"alert resolved", propertyEvent(ActionAlertResolved, EntityAlert), []string{MetricAlertsResolved}},
		{"unmapped", propertyEvent(ActionChecklistDeleted, EntityChecklist), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MetricsFor(tt.event))
		})
	}
}

func TestAggregatorApply_IncrementsPerDay(t *testing.T) {
	store := &fakeMetricStore{}
	agg := NewAggregator(store)

	ev := propertyEvent(ActionItemCompleted, EntityResponse)
	ev.Metadata["has_issue"] = true
	require.NoError(t, agg.Apply(context.Background(), ev))

	require.Len(t, store.calls, 2)
	assert.Equal(t, increment{"tenant-1", "prop-1", "2026-05-02", MetricItemsCompleted, 1}, store.calls[0])
	assert.Equal(t, MetricIssuesReported, store.calls[1].name)
}

func TestAggregatorApply_IgnoresEventsWithoutProperty(t *testing.T) {
	store := &fakeMetricStore{}
	agg := NewAggregator(store)

	ev := NewEvent("tenant-1", "user-1", models.CategoryChecklist, ActionChecklistCreated, EntityChecklist, "inst-1")
	require.NoError(t, agg.Apply(context.Background(), ev))

	empty := ""
	ev.PropertyID = &empty
	require.NoError(t, agg.Apply(context.Background(), ev))
	assert.Empty(t, store.calls)
}

func TestAggregatorApply_StoreError(t *testing.T) {
	agg := NewAggregator(&fakeMetricStore{err: errors.New("db down")})
	err := agg.Apply(context.Background(), propertyEvent(ActionChecklistCreated, EntityChecklist))
	assert.ErrorContains(t, err, "checklists_created")
}
