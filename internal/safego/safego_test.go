package safego

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/propaudit/propaudit/internal/telemetry"
)

func panics(task string) float64 {
	return telemetry.CounterValue(telemetry.BackgroundPanicsTotal, prometheus.Labels{"task": task})
}

func TestRun_ReturnsTrueWithoutPanic(t *testing.T) {
	ran := false
	if ok := Run("audit-worker-test", func() { ran = true }); !ok {
		t.Error("Run() = false, want true")
	}
	if !ran {
		t.Error("fn was not called")
	}
	if got := panics("audit-worker-test"); got != 0 {
		t.Errorf("panic counter = %v, want 0", got)
	}
}

func TestRun_RecoversAndCounts(t *testing.T) {
	before := panics("cleanup-test")
	if ok := Run("cleanup-test", func() { panic("storage client nil") }); ok {
		t.Error("Run() = true, want false after panic")
	}
	if got := panics("cleanup-test") - before; got != 1 {
		t.Errorf("panic counter delta = %v, want 1", got)
	}
}

func TestGo_PanicDoesNotCrashProcess(t *testing.T) {
	before := panics("go-test")
	done := make(chan struct{})

	Go("go-test", func() {
		defer close(done)
		panic(struct{ reason string }{"nil attachment"})
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not finish within timeout")
	}

	deadline := time.Now().Add(2 * time.Second)
	for panics("go-test")-before < 1 {
		if time.Now().After(deadline) {
			t.Fatal("panic was not counted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
