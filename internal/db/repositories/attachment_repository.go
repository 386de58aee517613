// attachment_repository.go holds the ChecklistRepository queries for evidence attachments
// and checklist comments.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/propaudit/propaudit/internal/db/models"
)

const attachmentColumns = `
	a.id, a.tenant_id, a.instance_id, a.response_id, a.original_filename, a.storage_path,
	a.storage_backend, a.content_type, a.size_bytes, a.checksum, a.uploaded_by, a.created_at`

// CreateAttachment inserts an attachment row
func (r *ChecklistRepository) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	a.CreatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO checklist_attachments (
			id, tenant_id, instance_id, response_id, original_filename, storage_path,
			storage_backend, content_type, size_bytes, checksum, uploaded_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.TenantID, a.InstanceID, a.ResponseID, a.OriginalFilename, a.StoragePath,
		a.StorageBackend, a.ContentType, a.SizeBytes, a.Checksum, a.UploadedBy, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// GetAttachment returns an attachment whose parent instance belongs to the
// tenant, or nil. Ownership is checked through the instance, not only the
// attachment's own tenant column.
func (r *ChecklistRepository) GetAttachment(ctx context.Context, tenantID, id string) (*models.Attachment, error) {
	var a models.Attachment
	err := sqlx.GetContext(ctx, r.q, &a, `SELECT `+attachmentColumns+`
		FROM checklist_attachments a
		JOIN checklist_instances i ON i.id = a.instance_id
		WHERE a.id = $1 AND a.tenant_id = $2 AND i.tenant_id = $2`, id, tenantID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &a, nil
}

// ListAttachments returns the attachments of an instance, newest first
func (r *ChecklistRepository) ListAttachments(ctx context.Context, tenantID, instanceID string) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0)
	err := sqlx.SelectContext(ctx, r.q, &attachments, `SELECT `+attachmentColumns+`
		FROM checklist_attachments a
		WHERE a.instance_id = $1 AND a.tenant_id = $2
		ORDER BY a.created_at DESC`, instanceID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}

// CreateComment inserts a comment
func (r *ChecklistRepository) CreateComment(ctx context.Context, c *models.Comment) error {
	c.CreatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO checklist_comments (id, tenant_id, instance_id, response_id, author_id, body, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.TenantID, c.InstanceID, c.ResponseID, c.AuthorID, c.Body, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// ListComments returns the comments of an instance, oldest first
func (r *ChecklistRepository) ListComments(ctx context.Context, tenantID, instanceID string) ([]models.Comment, error) {
	comments := make([]models.Comment, 0)
	err := sqlx.SelectContext(ctx, r.q, &comments, `
		SELECT id, tenant_id, instance_id, response_id, author_id, body, created_at
		FROM checklist_comments
		WHERE instance_id = $1 AND tenant_id = $2
		ORDER BY created_at`, instanceID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}
