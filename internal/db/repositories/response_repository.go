// response_repository.go holds the ChecklistRepository queries for item responses,
// approval decisions and the approval queue.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/propaudit/propaudit/internal/db/models"
)

const responseColumns = `
	id, tenant_id, instance_id, template_item_id, item_text, is_required, requires_approval,
	response_type, sort_order, response_value, notes, issue_severity, issue_description,
	approval_state, completed_by, completed_at, updated_at`

// ListResponses returns the responses of an instance in template order
func (r *ChecklistRepository) ListResponses(ctx context.Context, tenantID, instanceID string) ([]models.ItemResponse, error) {
	responses := make([]models.ItemResponse, 0)
	err := sqlx.SelectContext(ctx, r.q, &responses, `SELECT `+responseColumns+`
		FROM checklist_item_responses
		WHERE instance_id = $1 AND tenant_id = $2
		ORDER BY sort_order, item_text`, instanceID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item responses: %w", err)
	}
	return responses, nil
}

// GetResponse returns a response by id within the tenant, or nil
func (r *ChecklistRepository) GetResponse(ctx context.Context, tenantID, id string) (*models.ItemResponse, error) {
	var resp models.ItemResponse
	err := sqlx.GetContext(ctx, r.q, &resp, `SELECT `+responseColumns+`
		FROM checklist_item_responses
		WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item response: %w", err)
	}
	return &resp, nil
}

// GetResponseByItem returns the response for one template item of an instance, or nil
func (r *ChecklistRepository) GetResponseByItem(ctx context.Context, tenantID, instanceID, templateItemID string) (*models.ItemResponse, error) {
	var resp models.ItemResponse
	err := sqlx.GetContext(ctx, r.q, &resp, `SELECT `+responseColumns+`
		FROM checklist_item_responses
		WHERE instance_id = $1 AND template_item_id = $2 AND tenant_id = $3`,
		instanceID, templateItemID, tenantID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item response: %w", err)
	}
	return &resp, nil
}

// SaveAnswer stores the answer fields of resp and moves it to resp.ApprovalState.
// The write only applies while the stored state still equals expected, so an
// approval decided in between wins; ok is false in that case.
func (r *ChecklistRepository) SaveAnswer(ctx context.Context, resp *models.ItemResponse, expected models.ApprovalState) (ok bool, err error) {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE checklist_item_responses
		SET response_value = $3, notes = $4, issue_severity = $5, issue_description = $6,
		    approval_state = $7, completed_by = $8, completed_at = $9, updated_at = $9
		WHERE id = $1 AND tenant_id = $2 AND approval_state = $10`,
		resp.ID, resp.TenantID, resp.ResponseValue, resp.Notes, resp.IssueSeverity, resp.IssueDescription,
		resp.ApprovalState, resp.CompletedBy, now, expected,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save item response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	resp.CompletedAt = &now
	resp.UpdatedAt = now
	return true, nil
}

// DecideResponse moves a response from pending_approval to the decided state.
// Exactly one of two racing decisions succeeds; the loser gets ok == false.
func (r *ChecklistRepository) DecideResponse(ctx context.Context, tenantID, responseID string, to models.ApprovalState) (ok bool, err error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE checklist_item_responses
		SET approval_state = $3, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND approval_state = 'pending_approval'`,
		responseID, tenantID, to,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update approval state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// CreateApproval records a decision row
func (r *ChecklistRepository) CreateApproval(ctx context.Context, a *models.Approval) error {
	a.CreatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO checklist_approvals (id, tenant_id, response_id, instance_id, approver_id, decision, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.TenantID, a.ResponseID, a.InstanceID, a.ApproverID, a.Decision, a.Notes, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

// ListApprovals returns the decision history of a response, oldest first
func (r *ChecklistRepository) ListApprovals(ctx context.Context, tenantID, responseID string) ([]models.Approval, error) {
	approvals := make([]models.Approval, 0)
	err := sqlx.SelectContext(ctx, r.q, &approvals, `
		SELECT id, tenant_id, response_id, instance_id, approver_id, decision, notes, created_at
		FROM checklist_approvals
		WHERE response_id = $1 AND tenant_id = $2
		ORDER BY created_at`, responseID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return approvals, nil
}

// ApprovalQueue lists every response of the tenant awaiting approval, oldest
// answer first. When approverID is set only checklists routed to that
// approver, or to no approver in particular, are included.
func (r *ChecklistRepository) ApprovalQueue(ctx context.Context, tenantID string, approverID *string) ([]models.ApprovalQueueItem, error) {
	query := `
		SELECT r.id AS response_id, r.instance_id, r.template_item_id, r.item_text,
		       r.response_value, r.notes, r.issue_severity, r.issue_description,
		       r.completed_by, r.completed_at,
		       i.status AS instance_status, i.assigned_to, i.approver_id,
		       i.property_id, p.name AS property_name,
		       i.template_id, t.name AS template_name
		FROM checklist_item_responses r
		JOIN checklist_instances i ON i.id = r.instance_id AND i.tenant_id = r.tenant_id
		JOIN properties p ON p.id = i.property_id
		JOIN checklist_templates t ON t.id = i.template_id
		WHERE r.tenant_id = $1 AND r.approval_state = 'pending_approval'`
	args := []interface{}{tenantID}
	if approverID != nil {
		query += ` AND (i.approver_id = $2 OR i.approver_id IS NULL)`
		args = append(args, *approverID)
	}
	query += ` ORDER BY r.completed_at ASC, r.id`

	items := make([]models.ApprovalQueueItem, 0)
	if err := sqlx.SelectContext(ctx, r.q, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list approval queue: %w", err)
	}
	return items, nil
}
