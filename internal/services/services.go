// Package services implements the checklist lifecycle: templates, checklist
// instances and their item responses, evidence attachments and the approval
// workflow. Services check tenant ownership and business rules before they
// write, run multi-table changes in one transaction and record audit events
// only after that transaction has committed.
package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/storage"
	"github.com/propaudit/propaudit/internal/telemetry"
)

// Pagination defaults for list endpoints
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Page selects one page of a list, numbered from 1
type Page struct {
	Number  int
	PerPage int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Page) offset() int {
	return (p.Number - 1) * p.PerPage
}

// CleanupQueue schedules a storage file for a later removal attempt
type CleanupQueue interface {
	Enqueue(ctx context.Context, file models.StoredFile, lastErr string) error
}

func newID() string {
	return uuid.New().String()
}

// trimmed returns nil for a nil or blank string and the trimmed value otherwise
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// removeFiles deletes files from their backends. A file that cannot be
// removed is handed to queue so the cleanup job retries it.
func removeFiles(ctx context.Context, files *storage.Manager, queue CleanupQueue, list []models.StoredFile) {
	for _, f := range list {
		err := removeFile(ctx, files, f)
		if err == nil {
			continue
		}
		slog.Warn("failed to remove attachment file, queueing retry",
			"backend", f.StorageBackend, "path", f.StoragePath, "error", err)
		if queue == nil {
			continue
		}
		if qerr := queue.Enqueue(ctx, f, err.Error()); qerr != nil {
			telemetry.FileCleanupTotal.WithLabelValues("lost").Inc()
			slog.Error("failed to queue attachment file removal",
				"backend", f.StorageBackend, "path", f.StoragePath, "error", qerr)
			continue
		}
		telemetry.FileCleanupTotal.WithLabelValues("queued").Inc()
	}
}

func removeFile(ctx context.Context, files *storage.Manager, f models.StoredFile) error {
	backend, err := files.Backend(f.StorageBackend)
	if err != nil {
		return err
	}
	return backend.Delete(ctx, f.StoragePath)
}
