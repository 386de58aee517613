package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/audit"
	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/db/repositories"
	"github.com/propaudit/propaudit/internal/storage"
	"github.com/propaudit/propaudit/internal/telemetry"
	"github.com/propaudit/propaudit/internal/validation"
)

// UploadInput is one evidence file. Size is the size declared by the client,
// or -1 when unknown; the stream is capped either way.
type UploadInput struct {
	InstanceID string
	ResponseID string
	Filename   string
	Size       int64
	Body       io.Reader
}

// AttachmentService stores evidence files against item responses
type AttachmentService struct {
	checklists *repositories.ChecklistRepository
	files      *storage.Manager
	policy     *validation.AttachmentPolicy
	cleanup    CleanupQueue
	audit      audit.Recorder
}

// NewAttachmentService creates an AttachmentService
func NewAttachmentService(
	checklists *repositories.ChecklistRepository,
	files *storage.Manager,
	policy *validation.AttachmentPolicy,
	cleanup CleanupQueue,
	recorder audit.Recorder,
) *AttachmentService {
	return &AttachmentService{
		checklists: checklists,
		files:      files,
		policy:     policy,
		cleanup:    cleanup,
		audit:      recorder,
	}
}

// Policy returns the size and type rules uploads are checked against
func (s *AttachmentService) Policy() *validation.AttachmentPolicy {
	return s.policy
}

// Upload validates a file, writes it to the default storage backend and
// records it against a response of the checklist. Approved responses and
// finalized checklists take no new files, except a rejected response being
// reworked. The file is removed again when the row cannot be inserted.
func (s *AttachmentService) Upload(ctx context.Context, tenantID, userID string, in UploadInput) (*models.Attachment, error) {
	if in.Body == nil {
		return nil, apperrors.Validation("INVALID_ATTACHMENT", "file is required")
	}
	if in.Size >= 0 {
		if err := s.policy.CheckSize(in.Size); err != nil {
			return nil, attachmentError(err)
		}
	}

	inst, err := s.checklists.GetInstance(ctx, tenantID, in.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist: %w", err)
	}
	if inst == nil {
		return nil, apperrors.NotFound("checklist")
	}
	resp, err := s.checklists.GetResponse(ctx, tenantID, strings.TrimSpace(in.ResponseID))
	if err != nil {
		return nil, fmt.Errorf("failed to get item response: %w", err)
	}
	if resp == nil || resp.InstanceID != inst.ID {
		return nil, apperrors.NotFound("item_response")
	}
	// Evidence follows the same lock as the answer it supports
	if resp.ApprovalState == models.StateApproved {
		return nil, apperrors.Conflict("RESPONSE_APPROVED", "item %q has been approved and can no longer be changed", resp.ItemText)
	}
	if inst.Status.IsFinal() && resp.ApprovalState != models.StateRejected {
		return nil, apperrors.Conflict("CHECKLIST_FINALIZED", "checklist is %s and can no longer be changed", inst.Status)
	}

	contentType, body, err := s.policy.Inspect(in.Filename, in.Body)
	if err != nil {
		return nil, attachmentError(err)
	}

	a := &models.Attachment{
		ID:               newID(),
		TenantID:         tenantID,
		InstanceID:       inst.ID,
		ResponseID:       resp.ID,
		OriginalFilename: validation.SanitizeFilename(in.Filename),
		ContentType:      contentType,
		UploadedBy:       userID,
	}
	a.StoragePath = fmt.Sprintf("%s/%s/%s/%s", tenantID, inst.ID, a.ID, a.OriginalFilename)

	backendName, backend := s.files.Default()
	a.StorageBackend = backendName

	res, err := backend.Upload(ctx, a.StoragePath, body, in.Size, contentType)
	if err != nil {
		telemetry.AttachmentUploadsTotal.WithLabelValues(backendName, "failed").Inc()
		if errors.Is(err, validation.ErrTooLarge) {
			s.discard(ctx, a)
			return nil, attachmentError(err)
		}
		return nil, apperrors.Storage("store attachment", err)
	}
	a.SizeBytes = res.Size
	a.Checksum = res.Checksum

	if err := s.checklists.CreateAttachment(ctx, a); err != nil {
		telemetry.AttachmentUploadsTotal.WithLabelValues(backendName, "failed").Inc()
		s.discard(ctx, a)
		return nil, err
	}
	telemetry.AttachmentUploadsTotal.WithLabelValues(backendName, "stored").Inc()
	telemetry.AttachmentUploadBytes.Observe(float64(a.SizeBytes))

	ev := audit.NewEvent(tenantID, userID, models.CategoryChecklist, audit.ActionAttachmentAdded, audit.EntityAttachment, a.ID)
	ev.PropertyID = &inst.PropertyID
	ev.Description = fmt.Sprintf("Attached %q to item %q", a.OriginalFilename, resp.ItemText)
	ev.Metadata["instance_id"] = inst.ID
	ev.Metadata["response_id"] = resp.ID
	ev.Metadata["filename"] = a.OriginalFilename
	ev.Metadata["content_type"] = a.ContentType
	ev.Metadata["size_bytes"] = a.SizeBytes
	ev.Metadata["checksum"] = a.Checksum
	s.audit.Record(ctx, ev)
	return a, nil
}

// discard removes a file that never got an attachment row
func (s *AttachmentService) discard(ctx context.Context, a *models.Attachment) {
	file := models.StoredFile{StoragePath: a.StoragePath, StorageBackend: a.StorageBackend}
	slog.Info("removing orphaned attachment file", "backend", file.StorageBackend, "path", file.StoragePath)
	removeFiles(ctx, s.files, s.cleanup, []models.StoredFile{file})
}

func attachmentError(err error) error {
	if errors.Is(err, validation.ErrTooLarge) {
		return apperrors.Validation("ATTACHMENT_TOO_LARGE", "%v", err)
	}
	return apperrors.Validation("INVALID_ATTACHMENT", "%v", err)
}

// List returns the attachments of a checklist, newest first
func (s *AttachmentService) List(ctx context.Context, tenantID, instanceID string) ([]models.Attachment, error) {
	inst, err := s.checklists.GetInstance(ctx, tenantID, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist: %w", err)
	}
	if inst == nil {
		return nil, apperrors.NotFound("checklist")
	}
	return s.checklists.ListAttachments(ctx, tenantID, instanceID)
}

// Download opens an attachment for streaming. Ownership is checked through
// the parent checklist. The caller must close the returned reader.
func (s *AttachmentService) Download(ctx context.Context, tenantID, id string) (*models.Attachment, io.ReadCloser, error) {
	a, err := s.checklists.GetAttachment(ctx, tenantID, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	if a == nil {
		return nil, nil, apperrors.NotFound("attachment")
	}

	backend, err := s.files.Backend(a.StorageBackend)
	if err != nil {
		return nil, nil, apperrors.Storage("open attachment storage", err)
	}
	rc, err := backend.Download(ctx, a.StoragePath)
	if err != nil {
		return nil, nil, apperrors.Storage("read attachment", err)
	}
	telemetry.AttachmentDownloadsTotal.WithLabelValues(a.StorageBackend).Inc()
	return a, rc, nil
}
