// checklist_repository.go implements ChecklistRepository, the data access layer for checklist
// instances and everything that hangs off them (responses, attachments, approvals, comments).
// A repository can be bound to a transaction with InTx so multi-table changes commit atomically.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/propaudit/propaudit/internal/db/models"
)

// ChecklistRepository handles checklist instance database operations
type ChecklistRepository struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewChecklistRepository creates a new ChecklistRepository
func NewChecklistRepository(db *sqlx.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db, q: db}
}

// invalidTextRepresentation is the Postgres error for a malformed uuid literal
const invalidTextRepresentation = "22P02"

// noRows reports whether a lookup matched nothing. An id that is not a valid
// uuid can never match, so it is treated as absent.
func noRows(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}

// InTx runs fn against a repository bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *ChecklistRepository) InTx(ctx context.Context, fn func(tx *ChecklistRepository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&ChecklistRepository{db: r.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InstanceFilters narrows ListInstances
type InstanceFilters struct {
	TenantID   string
	PropertyID *string
	TemplateID *string
	AssignedTo *string
	Statuses   []string
	From       *time.Time
	To         *time.Time
}

const instanceSelect = `
	SELECT i.id, i.tenant_id, i.template_id, i.property_id, i.status, i.assigned_to,
	       i.approver_id, i.created_by, i.due_date, i.source_alert_id,
	       i.created_at, i.updated_at, i.completed_at, i.approved_at,
	       t.name AS template_name, p.name AS property_name,
	       s.total_items, s.completed_items, s.items_with_issues
	FROM checklist_instances i
	JOIN checklist_templates t ON t.id = i.template_id
	JOIN properties p ON p.id = i.property_id
	CROSS JOIN LATERAL (
		SELECT COUNT(*) AS total_items,
		       COUNT(*) FILTER (WHERE r.approval_state IN ('answered', 'pending_approval', 'approved')) AS completed_items,
		       COUNT(*) FILTER (WHERE r.issue_severity IS NOT NULL) AS items_with_issues
		FROM checklist_item_responses r
		WHERE r.instance_id = i.id
	) s
`

// CreateInstance inserts an instance and its snapshotted responses. Call it
// inside InTx so the instance never exists without its items.
func (r *ChecklistRepository) CreateInstance(ctx context.Context, inst *models.ChecklistInstance, responses []models.ItemResponse) error {
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO checklist_instances (
			id, tenant_id, template_id, property_id, status, assigned_to, approver_id,
			created_by, due_date, source_alert_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		inst.ID, inst.TenantID, inst.TemplateID, inst.PropertyID, inst.Status, inst.AssignedTo,
		inst.ApproverID, inst.CreatedBy, inst.DueDate, inst.SourceAlertID, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert checklist instance: %w", err)
	}

	for i := range responses {
		resp := &responses[i]
		resp.UpdatedAt = now
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO checklist_item_responses (
				id, tenant_id, instance_id, template_item_id, item_text, is_required,
				requires_approval, response_type, sort_order, approval_state, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			resp.ID, resp.TenantID, resp.InstanceID, resp.TemplateItemID, resp.ItemText, resp.IsRequired,
			resp.RequiresApproval, resp.ResponseType, resp.SortOrder, resp.ApprovalState, resp.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item response %d: %w", i, err)
		}
	}
	return nil
}

// GetInstance returns an instance with joined names and a completion summary
// computed from its responses, or nil if it does not exist within the tenant.
func (r *ChecklistRepository) GetInstance(ctx context.Context, tenantID, id string) (*models.ChecklistInstance, error) {
	var inst models.ChecklistInstance
	err := sqlx.GetContext(ctx, r.q, &inst, instanceSelect+` WHERE i.id = $1 AND i.tenant_id = $2`, id, tenantID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist instance: %w", err)
	}
	inst.Finalize()
	return &inst, nil
}

// ListInstances returns a page of instances matching f and the total match count
func (r *ChecklistRepository) ListInstances(ctx context.Context, f InstanceFilters, limit, offset int) ([]models.ChecklistInstance, int, error) {
	where := ` WHERE i.tenant_id = $1`
	args := []interface{}{f.TenantID}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}

	if f.PropertyID != nil {
		add(` AND i.property_id = $%d`, *f.PropertyID)
	}
	if f.TemplateID != nil {
		add(` AND i.template_id = $%d`, *f.TemplateID)
	}
	if f.AssignedTo != nil {
		add(` AND i.assigned_to = $%d`, *f.AssignedTo)
	}
	if len(f.Statuses) > 0 {
		add(` AND i.status = ANY($%d)`, pq.Array(f.Statuses))
	}
	if f.From != nil {
		add(` AND i.created_at >= $%d`, *f.From)
	}
	if f.To != nil {
		add(` AND i.created_at <= $%d`, *f.To)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM checklist_instances i`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count checklist instances: %w", err)
	}

	query := instanceSelect + where +
		fmt.Sprintf(` ORDER BY i.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	instances := make([]models.ChecklistInstance, 0)
	if err := sqlx.SelectContext(ctx, r.q, &instances, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list checklist instances: %w", err)
	}
	for i := range instances {
		instances[i].Finalize()
	}
	return instances, total, nil
}

// TransitionStatus moves an instance from one status to another. The update
// only applies while the stored status still equals from; it reports false
// when another request changed it first.
func (r *ChecklistRepository) TransitionStatus(ctx context.Context, tenantID, id string, from, to models.ChecklistStatus) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE checklist_instances
		SET status = $4,
		    completed_at = CASE WHEN $4 = 'completed' THEN NOW() ELSE completed_at END,
		    approved_at  = CASE WHEN $4 = 'approved' THEN NOW() ELSE approved_at END,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = $3`,
		id, tenantID, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update checklist status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// TouchInstance bumps updated_at after a child mutation that leaves the status unchanged
func (r *ChecklistRepository) TouchInstance(ctx context.Context, tenantID, id string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE checklist_instances SET updated_at = NOW() WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to touch checklist instance: %w", err)
	}
	return nil
}

// UpdateAssignee changes the instance assignee
func (r *ChecklistRepository) UpdateAssignee(ctx context.Context, tenantID, id, assignee string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE checklist_instances SET assigned_to = $3, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2`,
		id, tenantID, assignee,
	)
	if err != nil {
		return fmt.Errorf("failed to update checklist assignee: %w", err)
	}
	return nil
}

// CountAnswered returns how many responses of an instance hold a value
func (r *ChecklistRepository) CountAnswered(ctx context.Context, instanceID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, `
		SELECT COUNT(*) FROM checklist_item_responses
		WHERE instance_id = $1 AND approval_state <> 'unanswered'`, instanceID)
	if err != nil {
		return 0, fmt.Errorf("failed to count answered items: %w", err)
	}
	return n, nil
}

// Summary recomputes the completion summary of one instance
func (r *ChecklistRepository) Summary(ctx context.Context, instanceID string) (models.CompletionSummary, error) {
	var s models.CompletionSummary
	err := sqlx.GetContext(ctx, r.q, &s, `
		SELECT COUNT(*) AS total_items,
		       COUNT(*) FILTER (WHERE approval_state IN ('answered', 'pending_approval', 'approved')) AS completed_items,
		       COUNT(*) FILTER (WHERE issue_severity IS NOT NULL) AS items_with_issues
		FROM checklist_item_responses
		WHERE instance_id = $1`, instanceID)
	if err != nil {
		return s, fmt.Errorf("failed to compute completion summary: %w", err)
	}
	s.Finalize()
	return s, nil
}

// instanceChildTables lists the collections owned by an instance in the
// order they must be deleted.
var instanceChildTables = []string{
	"checklist_comments",
	"checklist_attachments",
	"checklist_approvals",
	"checklist_item_responses",
}

// DeleteInstance removes an instance and all of its children, returning the
// attachment files that must be removed from storage once the surrounding
// transaction commits. The instance row is only deleted while its status is
// still one of deletable; deleted is false when it was finalized concurrently.
func (r *ChecklistRepository) DeleteInstance(ctx context.Context, tenantID, id string, deletable []models.ChecklistStatus) (files []models.StoredFile, deleted bool, err error) {
	files = make([]models.StoredFile, 0)
	if err := sqlx.SelectContext(ctx, r.q, &files, `
		SELECT storage_path, storage_backend FROM checklist_attachments
		WHERE instance_id = $1 AND tenant_id = $2`, id, tenantID); err != nil {
		return nil, false, fmt.Errorf("failed to list attachment files: %w", err)
	}

	for _, table := range instanceChildTables {
		query := fmt.Sprintf(`DELETE FROM %s WHERE instance_id = $1 AND tenant_id = $2`, table)
		if _, err := r.q.ExecContext(ctx, query, id, tenantID); err != nil {
			return nil, false, fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	statuses := make([]string, len(deletable))
	for i, s := range deletable {
		statuses[i] = string(s)
	}
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM checklist_instances
		WHERE id = $1 AND tenant_id = $2 AND status = ANY($3)`,
		id, tenantID, pq.Array(statuses),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to delete checklist instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return files, n > 0, nil
}

// GetProperty returns a property visible to the tenant, or nil
func (r *ChecklistRepository) GetProperty(ctx context.Context, tenantID, id string) (*models.Property, error) {
	var p models.Property
	err := sqlx.GetContext(ctx, r.q, &p,
		`SELECT id, tenant_id, name, property_type FROM properties WHERE id = $1 AND tenant_id = $2`,
		id, tenantID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return &p, nil
}
