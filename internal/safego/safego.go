// Package safego launches background goroutines that survive their own panics.
package safego

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/propaudit/propaudit/internal/telemetry"
)

// Go runs fn in a new goroutine. A panic in fn is logged with the task name
// and stack and counted in background_task_panics_total; the process keeps
// running. The audit workers and the file cleanup job start through here.
func Go(name string, fn func()) {
	go Run(name, fn)
}

// Run calls fn on the current goroutine with the same recovery as Go and
// reports whether fn returned normally.
func Run(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.BackgroundPanicsTotal.WithLabelValues(name).Inc()
			slog.Error("recovered panic in background task",
				"task", name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			ok = false
		}
	}()
	fn()
	return true
}
