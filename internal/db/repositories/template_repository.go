// template_repository.go implements TemplateRepository, providing tenant-scoped storage for
// checklist templates and their ordered items.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/propaudit/propaudit/internal/db/models"
)

// TemplateRepository handles checklist template database operations
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateSelect = `
	SELECT t.id, t.tenant_id, t.name, t.description, t.property_type, t.is_active,
	       t.created_by, t.created_at, t.updated_at,
	       (SELECT COUNT(*) FROM checklist_template_items ti WHERE ti.template_id = t.id) AS item_count
	FROM checklist_templates t
`

// List returns the tenant's active templates. A propertyType filter also
// matches templates that apply to every property type.
func (r *TemplateRepository) List(ctx context.Context, tenantID string, propertyType *string) ([]models.ChecklistTemplate, error) {
	query := templateSelect + ` WHERE t.tenant_id = $1 AND t.is_active = true`
	args := []interface{}{tenantID}
	if propertyType != nil {
		query += ` AND (t.property_type = $2 OR t.property_type IS NULL)`
		args = append(args, *propertyType)
	}
	query += ` ORDER BY t.name`

	templates := make([]models.ChecklistTemplate, 0)
	if err := r.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list checklist templates: %w", err)
	}
	return templates, nil
}

// GetByID returns a template with its items ordered by sort order, or nil if
// it does not exist within the tenant. Deactivated templates are returned so
// existing checklists can still show their origin.
func (r *TemplateRepository) GetByID(ctx context.Context, tenantID, id string) (*models.ChecklistTemplate, error) {
	var tpl models.ChecklistTemplate
	err := r.db.GetContext(ctx, &tpl, templateSelect+` WHERE t.id = $1 AND t.tenant_id = $2`, id, tenantID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist template: %w", err)
	}

	tpl.Items = make([]models.TemplateItem, 0)
	err = r.db.SelectContext(ctx, &tpl.Items, `
		SELECT id, template_id, text, description, is_required, requires_approval, response_type, sort_order
		FROM checklist_template_items
		WHERE template_id = $1
		ORDER BY sort_order, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist template items: %w", err)
	}
	return &tpl, nil
}

// Create inserts a template and its items in one transaction
func (r *TemplateRepository) Create(ctx context.Context, tpl *models.ChecklistTemplate) error {
	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	tpl.IsActive = true

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checklist_templates (id, tenant_id, name, description, property_type, is_active, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tpl.ID, tpl.TenantID, tpl.Name, tpl.Description, tpl.PropertyType, tpl.IsActive, tpl.CreatedBy, tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert checklist template: %w", err)
	}

	if err := insertTemplateItems(ctx, tx, tpl.Items); err != nil {
		return err
	}
	tpl.ItemCount = len(tpl.Items)

	return tx.Commit()
}

// Update replaces a template's header fields and its complete item set in one
// transaction. It returns false when the template does not exist within the
// tenant or has been deactivated.
func (r *TemplateRepository) Update(ctx context.Context, tpl *models.ChecklistTemplate) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE checklist_templates
		SET name = $3, description = $4, property_type = $5, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND is_active = true`,
		tpl.ID, tpl.TenantID, tpl.Name, tpl.Description, tpl.PropertyType,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update checklist template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_template_items WHERE template_id = $1`, tpl.ID); err != nil {
		return false, fmt.Errorf("failed to clear checklist template items: %w", err)
	}
	if err := insertTemplateItems(ctx, tx, tpl.Items); err != nil {
		return false, err
	}
	tpl.ItemCount = len(tpl.Items)

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit template update: %w", err)
	}
	return true, nil
}

func insertTemplateItems(ctx context.Context, tx *sqlx.Tx, items []models.TemplateItem) error {
	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO checklist_template_items (id, template_id, text, description, is_required, requires_approval, response_type, sort_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			item.ID, item.TemplateID, item.Text, item.Description, item.IsRequired, item.RequiresApproval, item.ResponseType, item.SortOrder,
		)
		if err != nil {
			return fmt.Errorf("failed to insert checklist template item %d: %w", i, err)
		}
	}
	return nil
}

// CountInstances returns how many checklist instances reference a template
func (r *TemplateRepository) CountInstances(ctx context.Context, tenantID, id string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM checklist_instances WHERE template_id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to count template usage: %w", err)
	}
	return n, nil
}

// Deactivate marks an unreferenced template inactive. It returns false when
// the template is missing, already inactive or referenced by an instance
// created since the caller checked.
func (r *TemplateRepository) Deactivate(ctx context.Context, tenantID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE checklist_templates SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND is_active = true
		  AND NOT EXISTS (SELECT 1 FROM checklist_instances WHERE template_id = $1)`,
		id, tenantID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate checklist template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
