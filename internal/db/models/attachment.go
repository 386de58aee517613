// Package models - attachment.go defines evidence files bound to an item response.
package models

import (
	"strings"
	"time"
)

// Attachment binds a stored file to exactly one item response
type Attachment struct {
	ID               string    `db:"id" json:"id"`
	TenantID         string    `db:"tenant_id" json:"-"`
	InstanceID       string    `db:"instance_id" json:"instance_id"`
	ResponseID       string    `db:"response_id" json:"response_id"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	StoragePath      string    `db:"storage_path" json:"-"`
	StorageBackend   string    `db:"storage_backend" json:"-"`
	ContentType      string    `db:"content_type" json:"content_type"`
	SizeBytes        int64     `db:"size_bytes" json:"size_bytes"`
	Checksum         string    `db:"checksum" json:"checksum"`
	UploadedBy       string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// DisplayInline reports whether browsers should render the file in place
// (images and PDFs) rather than download it.
func (a *Attachment) DisplayInline() bool {
	return strings.HasPrefix(a.ContentType, "image/") || a.ContentType == "application/pdf"
}

// StoredFile identifies a physical file in a storage backend
type StoredFile struct {
	StoragePath    string `db:"storage_path"`
	StorageBackend string `db:"storage_backend"`
}

// FileCleanupTask is a queued retry for a file whose removal failed after
// its checklist was deleted
type FileCleanupTask struct {
	ID             string    `db:"id"`
	StoragePath    string    `db:"storage_path"`
	StorageBackend string    `db:"storage_backend"`
	Attempts       int       `db:"attempts"`
	LastError      string    `db:"last_error"`
	NextAttemptAt  time.Time `db:"next_attempt_at"`
	CreatedAt      time.Time `db:"created_at"`
}
