// audit_repository.go implements AuditRepository, providing database queries for writing and
// retrieving audit events and for maintaining the per-property daily operational counters.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/propaudit/propaudit/internal/db/models"
)

// AuditRepository handles audit event database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit events
type AuditFilters struct {
	TenantID   string
	Category   *string
	Action     *string
	ActorID    *string
	EntityType *string
	EntityID   *string
	PropertyID *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// CreateEvent appends an audit event
func (r *AuditRepository) CreateEvent(ctx context.Context, e *models.AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	metadataJSON := []byte("{}")
	if len(e.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, tenant_id, category, action, actor_id, entity_type, entity_id, property_id,
			description, metadata, urgency, impact, cost_estimate, ip_address, request_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.TenantID,
		e.Category,
		e.Action,
		e.ActorID,
		e.EntityType,
		e.EntityID,
		e.PropertyID,
		e.Description,
		metadataJSON,
		e.Urgency,
		e.Impact,
		e.CostEstimate,
		e.IPAddress,
		e.RequestID,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListEvents retrieves audit events with optional filters and pagination, newest first
func (r *AuditRepository) ListEvents(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditEvent, int, error) {
	where := ` WHERE tenant_id = $1`
	args := []interface{}{filters.TenantID}
	add := func(column string, v interface{}, op string) {
		args = append(args, v)
		where += fmt.Sprintf(` AND %s %s $%d`, column, op, len(args))
	}

	if filters.Category != nil {
		add("category", *filters.Category, "=")
	}
	if filters.Action != nil {
		add("action", *filters.Action, "=")
	}
	if filters.ActorID != nil {
		add("actor_id", *filters.ActorID, "=")
	}
	if filters.EntityType != nil {
		add("entity_type", *filters.EntityType, "=")
	}
	if filters.EntityID != nil {
		add("entity_id", *filters.EntityID, "=")
	}
	if filters.PropertyID != nil {
		add("property_id", *filters.PropertyID, "=")
	}
	if filters.StartDate != nil {
		add("created_at", *filters.StartDate, ">=")
	}
	if filters.EndDate != nil {
		add("created_at", *filters.EndDate, "<=")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	query := `
		SELECT id, tenant_id, category, action, actor_id, entity_type, entity_id, property_id,
		       description, metadata, urgency, impact, cost_estimate, ip_address, request_id, created_at
		FROM audit_events` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		e := &models.AuditEvent{}
		var metadataJSON []byte

		err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.Category,
			&e.Action,
			&e.ActorID,
			&e.EntityType,
			&e.EntityID,
			&e.PropertyID,
			&e.Description,
			&metadataJSON,
			&e.Urgency,
			&e.Impact,
			&e.CostEstimate,
			&e.IPAddress,
			&e.RequestID,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, total, rows.Err()
}

// IncrementMetric adds delta to one daily counter, creating it on first use
func (r *AuditRepository) IncrementMetric(ctx context.Context, tenantID, propertyID string, day time.Time, name string, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operational_metrics (tenant_id, property_id, metric_date, metric_name, value, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, property_id, metric_date, metric_name)
		DO UPDATE SET value = operational_metrics.value + EXCLUDED.value, updated_at = NOW()`,
		tenantID, propertyID, day.UTC().Format("2006-01-02"), name, delta,
	)
	if err != nil {
		return fmt.Errorf("failed to increment metric %s: %w", name, err)
	}
	return nil
}

// MetricFilters narrows ListMetrics
type MetricFilters struct {
	TenantID   string
	PropertyID *string
	MetricName *string
	From       time.Time
	To         time.Time
}

// ListMetrics returns the counters of a tenant within an inclusive date range
func (r *AuditRepository) ListMetrics(ctx context.Context, f MetricFilters) ([]models.OperationalMetric, error) {
	query := `
		SELECT tenant_id, property_id, metric_date, metric_name, value, updated_at
		FROM operational_metrics
		WHERE tenant_id = $1 AND metric_date BETWEEN $2 AND $3`
	args := []interface{}{f.TenantID, f.From.UTC().Format("2006-01-02"), f.To.UTC().Format("2006-01-02")}
	if f.PropertyID != nil {
		args = append(args, *f.PropertyID)
		query += fmt.Sprintf(` AND property_id = $%d`, len(args))
	}
	if f.MetricName != nil {
		args = append(args, *f.MetricName)
		query += fmt.Sprintf(` AND metric_name = $%d`, len(args))
	}
	query += ` ORDER BY metric_date, property_id, metric_name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operational metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]models.OperationalMetric, 0)
	for rows.Next() {
		var m models.OperationalMetric
		if err := rows.Scan(&m.TenantID, &m.PropertyID, &m.MetricDate, &m.MetricName, &m.Value, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operational metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
