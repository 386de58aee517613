package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/safego"
	"github.com/propaudit/propaudit/internal/telemetry"
)

// EventStore persists audit events
type EventStore interface {
	CreateEvent(ctx context.Context, e *models.AuditEvent) error
}

// Options tunes the Emitter queue
type Options struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// Emitter is the production Recorder. Events are queued and written by a
// fixed pool of workers; when the queue is full the event is written on the
// caller's goroutine instead of being dropped. Persisted events feed the
// aggregator and the shipper. Failures are logged and counted, never returned.
type Emitter struct {
	store      EventStore
	aggregator *Aggregator
	shipper    Shipper
	timeout    time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan *models.AuditEvent
	wg     sync.WaitGroup
}

// NewEmitter creates an Emitter and starts its workers. aggregator and
// shipper may be nil.
func NewEmitter(store EventStore, aggregator *Aggregator, shipper Shipper, opts Options) *Emitter {
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	e := &Emitter{
		store:      store,
		aggregator: aggregator,
		shipper:    shipper,
		timeout:    opts.WriteTimeout,
		queue:      make(chan *models.AuditEvent, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		e.wg.Add(1)
		safego.Go("audit-worker", func() {
			defer e.wg.Done()
			for ev := range e.queue {
				telemetry.AuditQueueDepth.Set(float64(len(e.queue)))
				e.write(ev)
			}
		})
	}
	return e
}

// Record stamps the event and hands it to a worker
func (e *Emitter) Record(ctx context.Context, ev *models.AuditEvent) {
	if ev == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			telemetry.AuditWriteFailuresTotal.WithLabelValues("record").Inc()
			slog.Error("audit: recovered panic while recording event", "action", ev.Action, "panic", r)
		}
	}()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if info, ok := RequestInfoFrom(ctx); ok {
		if ev.IPAddress == nil && info.IPAddress != "" {
			ip := info.IPAddress
			ev.IPAddress = &ip
		}
		if ev.RequestID == nil && info.RequestID != "" {
			rid := info.RequestID
			ev.RequestID = &rid
		}
	}

	e.mu.RLock()
	if !e.closed {
		select {
		case e.queue <- ev:
			telemetry.AuditQueueDepth.Set(float64(len(e.queue)))
			e.mu.RUnlock()
			return
		default:
		}
	}
	e.mu.RUnlock()

	e.write(ev)
}

// write persists one event, then aggregates and ships it. The request that
// produced the event may already be finished, so the write uses its own
// context bounded by the configured timeout.
func (e *Emitter) write(ev *models.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.AuditWriteFailuresTotal.WithLabelValues("event").Inc()
			slog.Error("audit: recovered panic while writing event", "action", ev.Action, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := e.store.CreateEvent(ctx, ev); err != nil {
		telemetry.AuditWriteFailuresTotal.WithLabelValues("event").Inc()
		slog.Error("audit: failed to persist event",
			"action", ev.Action, "entity_type", ev.EntityType, "entity_id", ev.EntityID, "error", err)
		return
	}
	telemetry.AuditEventsTotal.WithLabelValues(ev.Category).Inc()

	if e.aggregator != nil {
		if err := e.aggregator.Apply(ctx, ev); err != nil {
			telemetry.AuditWriteFailuresTotal.WithLabelValues("metric").Inc()
			slog.Error("audit: failed to update operational metrics", "action", ev.Action, "error", err)
		}
	}

	if e.shipper != nil {
		if err := e.shipper.Ship(ctx, ev); err != nil {
			telemetry.AuditWriteFailuresTotal.WithLabelValues("ship").Inc()
			slog.Warn("audit: failed to ship event", "action", ev.Action, "error", err)
		}
	}
}

// Close stops accepting queued events, waits for the workers to drain the
// queue and closes the shipper. Events recorded after Close are written
// synchronously.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
	telemetry.AuditQueueDepth.Set(0)

	if e.shipper != nil {
		return e.shipper.Close()
	}
	return nil
}
