// file_cleanup_repository.go implements FileCleanupRepository, the durable retry queue for
// attachment files that could not be removed from storage after their checklist was deleted.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/propaudit/propaudit/internal/db/models"
)

// FileCleanupRepository handles file_cleanup_queue database operations
type FileCleanupRepository struct {
	db *sqlx.DB
}

// NewFileCleanupRepository creates a new FileCleanupRepository
func NewFileCleanupRepository(db *sqlx.DB) *FileCleanupRepository {
	return &FileCleanupRepository{db: db}
}

// Enqueue schedules a file for removal retry
func (r *FileCleanupRepository) Enqueue(ctx context.Context, file models.StoredFile, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO file_cleanup_queue (id, storage_path, storage_backend, attempts, last_error, next_attempt_at, created_at)
		VALUES ($1, $2, $3, 1, $4, NOW() + INTERVAL '1 minute', NOW())`,
		uuid.New().String(), file.StoragePath, file.StorageBackend, lastErr,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue file cleanup: %w", err)
	}
	return nil
}

// Due returns up to limit tasks whose next attempt time has passed
func (r *FileCleanupRepository) Due(ctx context.Context, limit int) ([]models.FileCleanupTask, error) {
	tasks := make([]models.FileCleanupTask, 0)
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT id, storage_path, storage_backend, attempts, last_error, next_attempt_at, created_at
		FROM file_cleanup_queue
		WHERE next_attempt_at <= NOW()
		ORDER BY next_attempt_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due file cleanups: %w", err)
	}
	return tasks, nil
}

// Complete removes a task from the queue
func (r *FileCleanupRepository) Complete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM file_cleanup_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to complete file cleanup: %w", err)
	}
	return nil
}

// Reschedule records a failed attempt and sets the next attempt time
func (r *FileCleanupRepository) Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE file_cleanup_queue SET attempts = $2, last_error = $3, next_attempt_at = $4
		WHERE id = $1`,
		id, attempts, lastErr, next,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule file cleanup: %w", err)
	}
	return nil
}
