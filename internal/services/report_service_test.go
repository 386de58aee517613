package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/db/repositories"
)

var metricCols = []string{"tenant_id", "property_id", "metric_date", "metric_name", "value", "updated_at"}

func newReportService(t *testing.T) (*ReportService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	})
	svc := NewReportService(repositories.NewAuditRepository(db))
	svc.now = func() time.Time { return time.Date(2026, 3, 31, 15, 0, 0, 0, time.UTC) }
	return svc, mock
}

func TestReportMetrics_DefaultWindowAndTotals(t *testing.T) {
	svc, mock := newReportService(t)
	day := time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM operational_metrics\s+WHERE tenant_id = \$1 AND metric_date BETWEEN \$2 AND \$3 AND property_id = \$4`).
		WithArgs("tenant-1", "2026-03-01", "2026-03-31", "prop-1").
		WillReturnRows(sqlmock.NewRows(metricCols).
			AddRow("tenant-1", "prop-1", day.AddDate(0, 0, -1), "items_completed", 4, day).
			AddRow("tenant-1", "prop-1", day, "items_completed", 3, day).
			AddRow("tenant-1", "prop-1", day, "checklists_completed", 1, day))

	report, err := svc.Metrics(context.Background(), "tenant-1", MetricFilter{PropertyID: strPtr("prop-1")})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", report.From)
	assert.Equal(t, "2026-03-31", report.To)
	assert.Len(t, report.Metrics, 3)
	assert.Equal(t, int64(7), report.Totals["items_completed"])
	assert.Equal(t, int64(1), report.Totals["checklists_completed"])
}

func TestReportMetrics_InvalidRanges(t *testing.T) {
	svc, _ := newReportService(t)
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	to := from.AddDate(0, 0, -1)
	_, err := svc.Metrics(context.Background(), "tenant-1", MetricFilter{From: &from, To: &to})
	assertKind(t, err, apperrors.KindValidation)

	far := from.AddDate(2, 0, 0)
	_, err = svc.Metrics(context.Background(), "tenant-1", MetricFilter{From: &from, To: &far})
	assertKind(t, err, apperrors.KindValidation)
}

func TestReportEvents_FiltersAndPaging(t *testing.T) {
	svc, mock := newReportService(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_events WHERE tenant_id = \$1 AND category = \$2 AND entity_id = \$3`).
		WithArgs("tenant-1", "approval", "resp-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM audit_events WHERE tenant_id = \$1 .* LIMIT \$4 OFFSET \$5`).
		WithArgs("tenant-1", "approval", "resp-1", 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	page, err := svc.Events(context.Background(), "tenant-1", EventFilter{
		Category: strPtr("approval"),
		Action:   strPtr("  "),
		EntityID: strPtr("resp-1"),
	}, Page{Number: 2, PerPage: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, page.Page)
}

func TestReportEvents_StoreError(t *testing.T) {
	svc, mock := newReportService(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_events`).WillReturnError(sql.ErrConnDone)

	_, err := svc.Events(context.Background(), "tenant-1", EventFilter{}, Page{})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
