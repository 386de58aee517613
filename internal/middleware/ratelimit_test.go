package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/propaudit/propaudit/internal/telemetry"
)

func newTestLimiter(rpm, burst int) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour,
	})
}

func allow(rl *RateLimiter, key string) bool {
	res, _ := rl.Allow(context.Background(), key)
	return res.Allowed
}

func TestUploadRateLimitConfig(t *testing.T) {
	cfg := UploadRateLimitConfig()
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute >= def.RequestsPerMinute {
		t.Errorf("upload budget %d should be stricter than default %d", cfg.RequestsPerMinute, def.RequestsPerMinute)
	}
}

func TestRateLimiter_AllowsUpToBurstSize(t *testing.T) {
	rl := newTestLimiter(1, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !allow(rl, "burst") {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	res, _ := rl.Allow(context.Background(), "burst")
	if res.Allowed {
		t.Error("request beyond burst allowed")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", res.RetryAfter)
	}
}

func TestRateLimiter_TokensRefillOverTime(t *testing.T) {
	rl := newTestLimiter(600, 2) // 10 tokens/sec
	defer rl.Stop()

	for allow(rl, "refill") {
	}
	time.Sleep(120 * time.Millisecond)

	if !allow(rl, "refill") {
		t.Error("Allow() = false after refill wait, want true")
	}
}

func TestRateLimiter_DifferentKeysAreIndependent(t *testing.T) {
	rl := newTestLimiter(60, 2)
	defer rl.Stop()

	for allow(rl, "tenant:a:user:1") {
	}
	if !allow(rl, "tenant:b:user:1") {
		t.Error("exhausting one tenant throttled another")
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := newTestLimiter(60, 5)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 600, BurstSize: 10, CleanupInterval: 10 * time.Millisecond})
	defer rl.Stop()

	allow(rl, "stale")
	rl.mu.Lock()
	rl.entries["stale"].lastUpdate = time.Now().Add(-11 * time.Minute)
	rl.mu.Unlock()

	time.Sleep(60 * time.Millisecond)

	rl.mu.Lock()
	_, present := rl.entries["stale"]
	rl.mu.Unlock()
	if present {
		t.Error("stale entry was not evicted")
	}
}

func TestGetRateLimitKey(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		user   string
		want   string
	}{
		{"session", "tenant-1", "user-1", "tenant:tenant-1:user:user-1"},
		{"no session", "", "", "ip:10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request.RemoteAddr = "10.0.0.9:1234"
			if tt.tenant != "" {
				c.Set(TenantIDKey, tt.tenant)
				c.Set(UserIDKey, tt.user)
			}
			if got := getRateLimitKey(c); got != tt.want {
				t.Errorf("getRateLimitKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func newRateLimitRouter(limiter Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(limiter))
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func sendFrom(r *gin.Engine, addr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = addr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_AllowedHeaders(t *testing.T) {
	rl := newTestLimiter(120, 20)
	defer rl.Stop()

	w := sendFrom(newRateLimitRouter(rl), "10.0.0.1:1234")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "120" {
		t.Errorf("X-RateLimit-Limit = %q, want 120", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "19" {
		t.Errorf("X-RateLimit-Remaining = %q, want 19", got)
	}
}

func TestRateLimitMiddleware_Blocked(t *testing.T) {
	rl := newTestLimiter(1, 1)
	defer rl.Stop()
	r := newRateLimitRouter(rl)

	if w := sendFrom(r, "10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	w := sendFrom(r, "10.0.0.2:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if got := telemetry.CounterValue(telemetry.RateLimitedRequestsTotal, prometheus.Labels{"backend": "memory"}); got < 1 {
		t.Errorf("http_rate_limited_requests_total{backend=memory} = %v, want >= 1", got)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 60 {
		t.Errorf("Retry-After = %q, want 1..60 seconds", w.Header().Get("Retry-After"))
	}
	assertErrorCode(t, w, "RATE_LIMITED")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (LimitResult, error) {
	return LimitResult{}, errors.New("redis: connection refused")
}
func (brokenLimiter) Limit() int      { return 10 }
func (brokenLimiter) Backend() string { return "broken" }
func (brokenLimiter) Stop()           {}

func TestRateLimitMiddleware_LimiterErrorAllows(t *testing.T) {
	if w := sendFrom(newRateLimitRouter(brokenLimiter{}), "10.0.0.3:1234"); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when the limiter is unavailable", w.Code)
	}
}

func TestNewRedisLimiter(t *testing.T) {
	if _, err := NewRedisLimiter("not a url", DefaultRateLimitConfig()); err == nil {
		t.Error("NewRedisLimiter() expected error for malformed URL")
	}

	l, err := NewRedisLimiter("redis://127.0.0.1:1/0", DefaultRateLimitConfig())
	if err != nil {
		t.Fatalf("NewRedisLimiter() error: %v", err)
	}
	defer l.Stop()
	if l.Limit() != DefaultRateLimitConfig().RequestsPerMinute {
		t.Errorf("Limit() = %d, want %d", l.Limit(), DefaultRateLimitConfig().RequestsPerMinute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := l.Allow(ctx, "tenant:t:user:u"); err == nil {
		t.Error("Allow() expected error with no redis listening")
	}
}

func TestNewRedisLimiter_UploadBudgetHasOwnKeys(t *testing.T) {
	general, err := NewRedisLimiter("redis://127.0.0.1:1/0", DefaultRateLimitConfig())
	if err != nil {
		t.Fatalf("NewRedisLimiter() error: %v", err)
	}
	defer general.Stop()
	upload, err := NewRedisLimiter("redis://127.0.0.1:1/0", UploadRateLimitConfig())
	if err != nil {
		t.Fatalf("NewRedisLimiter() error: %v", err)
	}
	defer upload.Stop()

	if general.prefix == upload.prefix {
		t.Errorf("upload limiter shares key prefix %q with the general limiter", general.prefix)
	}
}
