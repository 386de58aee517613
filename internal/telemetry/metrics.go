// Package telemetry provides application-level observability for the audit service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<PA_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Checklist lifecycle counters (status transitions, item responses, approval decisions)
//   - Attachment upload/download counters per storage backend
//   - Audit pipeline counters (events written, write failures, queue depth)
//   - File cleanup retry counters
//   - Recovered background goroutine panics
//   - Database connection pool gauge (polled every 30 s)
//
// These are process-level operational metrics. The per-property business counters
// (checklists completed per day and so on) live in the operational_metrics table
// maintained by the audit aggregator.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// HTTP metrics, labelled by method, route template and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/checklists/:id/items/:itemId/complete),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	RateLimitedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter, by limiter backend.",
		},
		[]string{"backend"},
	)
)

// Checklist lifecycle metrics.
//
// ChecklistTransitionsTotal counts persisted status changes by target status.
// ItemResponsesTotal counts recorded answers by the resulting approval state
// (answered or pending_approval). ApprovalDecisionsTotal counts decisions by outcome.
//
// Example PromQL queries:
//   - Completion rate:   rate(checklist_transitions_total{to="completed"}[1h])
//   - Rejection ratio:   sum(rate(checklist_approval_decisions_total{decision="rejected"}[1d])) / sum(rate(checklist_approval_decisions_total[1d]))
var (
	ChecklistTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checklist_transitions_total",
			Help: "Total number of checklist status transitions, by target status.",
		},
		[]string{"to"},
	)

	ItemResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checklist_item_responses_total",
			Help: "Total number of recorded item responses, by resulting approval state.",
		},
		[]string{"state"},
	)

	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checklist_approval_decisions_total",
			Help: "Total number of approval decisions, by decision.",
		},
		[]string{"decision"},
	)
)

// Attachment metrics, labelled by storage backend.
var (
	AttachmentUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_uploads_total",
			Help: "Total number of attachment uploads, by storage backend and result.",
		},
		[]string{"backend", "result"},
	)

	AttachmentUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attachment_upload_bytes",
			Help:    "Size distribution of accepted attachment uploads.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	AttachmentDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_downloads_total",
			Help: "Total number of attachment downloads, by storage backend.",
		},
		[]string{"backend"},
	)
)

// Audit pipeline metrics.
//
// AuditWriteFailuresTotal is the only place a failed audit insert becomes visible
// outside the logs; alert on increase(audit_write_failures_total[15m]) > 0.
var (
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total number of audit events persisted, by category.",
		},
		[]string{"category"},
	)

	AuditWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit or operational metric writes that failed, by stage.",
		},
		[]string{"stage"},
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_queue_depth",
			Help: "Number of audit events waiting to be written.",
		},
	)
)

// FileCleanupTotal counts attachment file removals that did not succeed on the
// first attempt, by result: queued or lost when the retry is scheduled, then
// removed, retry or abandoned as the cleanup job works through the queue.
var FileCleanupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "attachment_file_cleanup_total",
		Help: "Total number of queued attachment file removals processed, by result.",
	},
	[]string{"result"},
)

// BackgroundPanicsTotal counts panics recovered in background goroutines
// (audit workers, cleanup job), by task name.
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_task_panics_total",
		Help: "Total number of panics recovered in background goroutines, by task.",
	},
	[]string{"task"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens when
// the application shuts down and closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}

// CounterValue reads the current value of the series of cv matching labels,
// or 0 when that series has not been observed yet.
func CounterValue(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()
	var value float64
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			value = dm.GetCounter().GetValue()
		}
	}
	return value
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
