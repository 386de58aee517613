package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/api/respond"
	"github.com/propaudit/propaudit/internal/audit"
	"github.com/propaudit/propaudit/internal/auth"
	"github.com/propaudit/propaudit/internal/db/models"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []*models.AuditEvent
	infos  []audit.RequestInfo
}

func (r *captureRecorder) Record(ctx context.Context, e *models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	info, _ := audit.RequestInfoFrom(ctx)
	r.infos = append(r.infos, info)
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, code string) {
	t.Helper()
	var body respond.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not an envelope: %v (%s)", err, w.Body.String())
	}
	if body.Success {
		t.Error("success = true on an error response")
	}
	if body.Error == nil || body.Error.Code != code {
		t.Errorf("error = %+v, want code %s", body.Error, code)
	}
}

func newAuthRouter(rec audit.Recorder) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware(), AuditContext(), SessionAuth(auth.DefaultIssuer, rec))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": TenantID(c), "user": UserID(c)})
	})
	return r
}

const (
	sessionTenant = "3f6b1c2d-8e4a-4f71-b0d9-5a2c7e1f9b46"
	sessionUser   = "c8e14a9b-2d73-4b5f-a6e0-9f3b1d7c4e82"
)

func mustToken(t *testing.T, tenant, user, issuer string, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateJWT(tenant, user, "", issuer, ttl)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}
	return tok
}

func TestSessionAuth_ValidToken(t *testing.T) {
	rec := &captureRecorder{}
	r := newAuthRouter(rec)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, sessionTenant, sessionUser, "", time.Hour))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	var got map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got["tenant"] != sessionTenant || got["user"] != sessionUser {
		t.Errorf("identity = %v, want %s/%s", got, sessionTenant, sessionUser)
	}
	if len(rec.events) != 0 {
		t.Errorf("recorded %d events for a valid session", len(rec.events))
	}
}

func TestSessionAuth_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"missing header", func(*testing.T) string { return "" }},
		{"not bearer", func(*testing.T) string { return "Basic dXNlcjpwYXNz" }},
		{"garbage", func(*testing.T) string { return "Bearer not.a.token" }},
		{"expired", func(t *testing.T) string { return "Bearer " + mustToken(t, sessionTenant, sessionUser, "", -time.Minute) }},
		{"foreign issuer", func(t *testing.T) string { return "Bearer " + mustToken(t, sessionTenant, sessionUser, "elsewhere", time.Hour) }},
		{"no tenant", func(t *testing.T) string { return "Bearer " + mustToken(t, "", sessionUser, "", time.Hour) }},
		{"non-uuid tenant", func(t *testing.T) string { return "Bearer " + mustToken(t, "tenant-1", sessionUser, "", time.Hour) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captureRecorder{}
			r := newAuthRouter(rec)

			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			req.RemoteAddr = "192.0.2.10:5555"
			if h := tt.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			assertErrorCode(t, w, "UNAUTHORIZED")

			if len(rec.events) != 1 {
				t.Fatalf("recorded %d events, want 1", len(rec.events))
			}
			ev := rec.events[0]
			if ev.Action != audit.ActionSessionRejected || ev.Category != models.CategorySecurity {
				t.Errorf("event = %s/%s, want %s/%s", ev.Category, ev.Action, models.CategorySecurity, audit.ActionSessionRejected)
			}
			if ev.TenantID != nil {
				t.Errorf("TenantID = %v, want nil for a rejected session", *ev.TenantID)
			}
			if rec.infos[0].IPAddress != "192.0.2.10" {
				t.Errorf("IPAddress = %q, want 192.0.2.10", rec.infos[0].IPAddress)
			}
			if rec.infos[0].RequestID == "" {
				t.Error("rejected session event has no request id")
			}
		})
	}
}

func TestSessionAuth_NilRecorder(t *testing.T) {
	r := newAuthRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
