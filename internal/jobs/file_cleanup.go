// file_cleanup.go implements the FileCleanupJob background job, which retries the removal of
// attachment files left behind in storage when a checklist was deleted but the backend failed.
// Failed attempts back off exponentially; a file is abandoned after MaxAttempts and only the
// log keeps its location.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/propaudit/propaudit/internal/config"
	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/safego"
	"github.com/propaudit/propaudit/internal/storage"
	"github.com/propaudit/propaudit/internal/telemetry"
)

const (
	defaultCleanupInterval    = 5 * time.Minute
	defaultCleanupBatchSize   = 50
	defaultCleanupMaxAttempts = 10
	maxCleanupBackoff         = 6 * time.Hour
)

// CleanupStore is the durable queue the job drains
type CleanupStore interface {
	Due(ctx context.Context, limit int) ([]models.FileCleanupTask, error)
	Complete(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error
}

// FileCleanupJob periodically retries queued attachment file removals
type FileCleanupJob struct {
	store       CleanupStore
	files       *storage.Manager
	interval    time.Duration
	schedule    cron.Schedule
	spec        string
	batchSize   int
	maxAttempts int
	now         func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewFileCleanupJob creates the job; zero config values fall back to defaults
func NewFileCleanupJob(store CleanupStore, files *storage.Manager, cfg config.FileCleanupConfig) *FileCleanupJob {
	j := &FileCleanupJob{
		store:       store,
		files:       files,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
	if j.interval <= 0 {
		j.interval = defaultCleanupInterval
	}
	if j.batchSize <= 0 {
		j.batchSize = defaultCleanupBatchSize
	}
	if j.maxAttempts <= 0 {
		j.maxAttempts = defaultCleanupMaxAttempts
	}

	j.spec = "@every " + j.interval.String()
	j.schedule = cron.Every(j.interval)
	if cfg.Schedule != "" {
		sched, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			slog.Warn("file cleanup: invalid schedule, using interval", "schedule", cfg.Schedule, "interval", j.interval, "error", err)
		} else {
			j.spec, j.schedule = cfg.Schedule, sched
		}
	}
	return j
}

// Start runs a pass immediately, then on the configured schedule until Stop
// is called or ctx is cancelled. A pass still running when the next one is
// due is not overlapped; the later run is skipped.
func (j *FileCleanupJob) Start(ctx context.Context) {
	slog.Info("file cleanup job started", "schedule", j.spec, "batch_size", j.batchSize, "max_attempts", j.maxAttempts)
	j.tick(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(j.schedule, cron.FuncJob(func() { j.tick(ctx) }))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	select {
	case <-j.stopChan:
		slog.Info("file cleanup job stopped")
	case <-ctx.Done():
		slog.Info("file cleanup job context cancelled")
	}
}

// tick runs one batch; a panic ends the batch, not the loop
func (j *FileCleanupJob) tick(ctx context.Context) {
	safego.Run("file-cleanup", func() { j.RunOnce(ctx) })
}

// Stop signals the loop to exit. Safe to call more than once.
func (j *FileCleanupJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// RunOnce processes one batch of due removals and reports how many files
// were removed
func (j *FileCleanupJob) RunOnce(ctx context.Context) int {
	tasks, err := j.store.Due(ctx, j.batchSize)
	if err != nil {
		slog.Error("file cleanup: failed to load due tasks", "error", err)
		return 0
	}

	removed := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if j.process(ctx, task) {
			removed++
		}
	}
	if len(tasks) > 0 {
		slog.Info("file cleanup pass completed", "due", len(tasks), "removed", removed)
	}
	return removed
}

func (j *FileCleanupJob) process(ctx context.Context, task models.FileCleanupTask) bool {
	log := slog.With("task_id", task.ID, "backend", task.StorageBackend, "path", task.StoragePath)

	err := j.remove(ctx, task)
	if err == nil {
		if cerr := j.store.Complete(ctx, task.ID); cerr != nil {
			log.Error("file cleanup: file removed but task not completed", "error", cerr)
		}
		telemetry.FileCleanupTotal.WithLabelValues("removed").Inc()
		return true
	}

	attempts := task.Attempts + 1
	if attempts >= j.maxAttempts {
		log.Error("file cleanup: giving up on file", "attempts", attempts, "error", err)
		if cerr := j.store.Complete(ctx, task.ID); cerr != nil {
			log.Error("file cleanup: failed to drop abandoned task", "error", cerr)
		}
		telemetry.FileCleanupTotal.WithLabelValues("abandoned").Inc()
		return false
	}

	next := j.now().Add(backoff(attempts))
	if rerr := j.store.Reschedule(ctx, task.ID, attempts, err.Error(), next); rerr != nil {
		log.Error("file cleanup: failed to reschedule task", "error", rerr)
	}
	log.Warn("file cleanup: removal failed, rescheduled", "attempts", attempts, "next_attempt_at", next, "error", err)
	telemetry.FileCleanupTotal.WithLabelValues("retry").Inc()
	return false
}

func (j *FileCleanupJob) remove(ctx context.Context, task models.FileCleanupTask) error {
	backend, err := j.files.Backend(task.StorageBackend)
	if err != nil {
		return fmt.Errorf("resolve backend: %w", err)
	}
	return backend.Delete(ctx, task.StoragePath)
}

// backoff doubles from one minute per failed attempt, capped at six hours
func backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 20 {
		return maxCleanupBackoff
	}
	d := time.Minute << uint(attempts-1)
	if d > maxCleanupBackoff {
		return maxCleanupBackoff
	}
	return d
}
