package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/propaudit/propaudit/internal/config"
	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/storage"
	"github.com/propaudit/propaudit/internal/telemetry"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type rescheduled struct {
	attempts int
	lastErr  string
	next     time.Time
}

type fakeCleanupStore struct {
	mu          sync.Mutex
	due         []models.FileCleanupTask
	dueErr      error
	completed   []string
	rescheduled map[string]rescheduled
}

func (s *fakeCleanupStore) Due(_ context.Context, limit int) ([]models.FileCleanupTask, error) {
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	if len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *fakeCleanupStore) Complete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeCleanupStore) Reschedule(_ context.Context, id string, attempts int, lastErr string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rescheduled == nil {
		s.rescheduled = map[string]rescheduled{}
	}
	s.rescheduled[id] = rescheduled{attempts, lastErr, next}
	return nil
}

// flakyStorage fails Delete for the paths in failing
type flakyStorage struct {
	failing map[string]bool
	deleted []string
}

func (s *flakyStorage) Upload(context.Context, string, io.Reader, int64, string) (*storage.UploadResult, error) {
	return nil, errors.New("not implemented")
}
func (s *flakyStorage) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}
func (s *flakyStorage) Exists(context.Context, string) (bool, error) { return false, nil }
func (s *flakyStorage) Delete(_ context.Context, path string) error {
	if s.failing[path] {
		return errors.New("backend unavailable")
	}
	s.deleted = append(s.deleted, path)
	return nil
}

func task(id, path string, attempts int) models.FileCleanupTask {
	return models.FileCleanupTask{ID: id, StoragePath: path, StorageBackend: "local", Attempts: attempts}
}

func cleanupCount(result string) float64 {
	return telemetry.CounterValue(telemetry.FileCleanupTotal, prometheus.Labels{"result": result})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewFileCleanupJob_Defaults(t *testing.T) {
	j := NewFileCleanupJob(&fakeCleanupStore{}, nil, config.FileCleanupConfig{})
	if j.interval != defaultCleanupInterval {
		t.Errorf("interval = %v, want %v", j.interval, defaultCleanupInterval)
	}
	if j.batchSize != defaultCleanupBatchSize {
		t.Errorf("batchSize = %d, want %d", j.batchSize, defaultCleanupBatchSize)
	}
	if j.maxAttempts != defaultCleanupMaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", j.maxAttempts, defaultCleanupMaxAttempts)
	}
}

func TestNewFileCleanupJob_Schedule(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.FileCleanupConfig
		want string
	}{
		{"interval", config.FileCleanupConfig{Interval: 10 * time.Minute}, "@every 10m0s"},
		{"cron expression", config.FileCleanupConfig{Interval: time.Minute, Schedule: "*/10 1-5 * * *"}, "*/10 1-5 * * *"},
		{"invalid expression falls back", config.FileCleanupConfig{Schedule: "whenever"}, "@every 5m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewFileCleanupJob(&fakeCleanupStore{}, nil, tt.cfg)
			if j.spec != tt.want {
				t.Errorf("spec = %q, want %q", j.spec, tt.want)
			}
			if j.schedule == nil {
				t.Fatal("schedule is nil")
			}
			base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
			if next := j.schedule.Next(base); !next.After(base) {
				t.Errorf("Next(%v) = %v, want a later time", base, next)
			}
		})
	}
}

func TestFileCleanupJob_RunOnce(t *testing.T) {
	store := &fakeCleanupStore{due: []models.FileCleanupTask{
		task("t-ok", "tenant-1/inst-1/a/roof.png", 1),
		task("t-retry", "tenant-1/inst-1/b/meter.jpg", 2),
		task("t-dead", "tenant-1/inst-1/c/lease.pdf", 4),
	}}
	backend := &flakyStorage{failing: map[string]bool{
		"tenant-1/inst-1/b/meter.jpg": true,
		"tenant-1/inst-1/c/lease.pdf": true,
	}}
	files := storage.NewStaticManager("local", map[string]storage.Storage{"local": backend})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := NewFileCleanupJob(store, files, config.FileCleanupConfig{MaxAttempts: 5})
	j.now = func() time.Time { return now }

	removedBefore := cleanupCount("removed")
	retryBefore := cleanupCount("retry")
	abandonedBefore := cleanupCount("abandoned")

	if got := j.RunOnce(context.Background()); got != 1 {
		t.Fatalf("RunOnce removed %d, want 1", got)
	}

	if len(backend.deleted) != 1 || backend.deleted[0] != "tenant-1/inst-1/a/roof.png" {
		t.Errorf("deleted = %v", backend.deleted)
	}
	if want := []string{"t-ok", "t-dead"}; len(store.completed) != 2 || store.completed[0] != want[0] || store.completed[1] != want[1] {
		t.Errorf("completed = %v, want %v", store.completed, want)
	}
	r, ok := store.rescheduled["t-retry"]
	if !ok {
		t.Fatal("t-retry was not rescheduled")
	}
	if r.attempts != 3 {
		t.Errorf("attempts = %d, want 3", r.attempts)
	}
	if !r.next.Equal(now.Add(4 * time.Minute)) {
		t.Errorf("next = %v, want %v", r.next, now.Add(4*time.Minute))
	}
	if r.lastErr != "backend unavailable" {
		t.Errorf("lastErr = %q", r.lastErr)
	}
	if _, ok := store.rescheduled["t-dead"]; ok {
		t.Error("abandoned task must not be rescheduled")
	}

	if d := cleanupCount("removed") - removedBefore; d != 1 {
		t.Errorf("removed counter delta = %v, want 1", d)
	}
	if d := cleanupCount("retry") - retryBefore; d != 1 {
		t.Errorf("retry counter delta = %v, want 1", d)
	}
	if d := cleanupCount("abandoned") - abandonedBefore; d != 1 {
		t.Errorf("abandoned counter delta = %v, want 1", d)
	}
}

func TestFileCleanupJob_UnknownBackendIsRetried(t *testing.T) {
	store := &fakeCleanupStore{due: []models.FileCleanupTask{
		{ID: "t-1", StoragePath: "x/y.png", StorageBackend: "azure", Attempts: 1},
	}}
	files := storage.NewStaticManager("local", map[string]storage.Storage{"local": &flakyStorage{}})
	j := NewFileCleanupJob(store, files, config.FileCleanupConfig{})

	j.RunOnce(context.Background())
	if _, ok := store.rescheduled["t-1"]; !ok {
		t.Error("task for an unconfigured backend should be rescheduled")
	}
}

func TestFileCleanupJob_DueError(t *testing.T) {
	store := &fakeCleanupStore{dueErr: errors.New("db down")}
	j := NewFileCleanupJob(store, nil, config.FileCleanupConfig{})
	if got := j.RunOnce(context.Background()); got != 0 {
		t.Errorf("RunOnce = %d, want 0", got)
	}
}

func TestFileCleanupJob_StopIsIdempotent(t *testing.T) {
	j := NewFileCleanupJob(&fakeCleanupStore{}, nil, config.FileCleanupConfig{Interval: time.Hour})
	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()
	j.Stop()
	j.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

// panickingStore blows up on every Due call
type panickingStore struct{ fakeCleanupStore }

func (*panickingStore) Due(context.Context, int) ([]models.FileCleanupTask, error) {
	panic("nil storage manager")
}

func TestFileCleanupJob_PanicInBatchKeepsLoopAlive(t *testing.T) {
	labels := prometheus.Labels{"task": "file-cleanup"}
	before := telemetry.CounterValue(telemetry.BackgroundPanicsTotal, labels)

	j := NewFileCleanupJob(&panickingStore{}, nil, config.FileCleanupConfig{Interval: time.Hour})
	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for telemetry.CounterValue(telemetry.BackgroundPanicsTotal, labels)-before < 1 {
		if time.Now().After(deadline) {
			t.Fatal("panic in first batch was not recovered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	j.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{5, 16 * time.Minute},
		{12, maxCleanupBackoff},
		{64, maxCleanupBackoff},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempts); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
