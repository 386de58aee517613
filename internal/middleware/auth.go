// Package middleware provides the Gin middleware in front of the API routes.
//
// Ordering is fixed in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → AuditContext
//	/api/v1: SessionAuth → RateLimit → Handler
//
// AuditContext runs before SessionAuth so that rejected sessions are recorded
// with the caller's address and request id.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/api/respond"
	"github.com/propaudit/propaudit/internal/audit"
	"github.com/propaudit/propaudit/internal/auth"
	"github.com/propaudit/propaudit/internal/db/models"
)

const (
	// TenantIDKey is the gin.Context key holding the session's tenant id
	TenantIDKey = "tenant_id"
	// UserIDKey is the gin.Context key holding the session's user id
	UserIDKey = "user_id"
)

// SessionAuth validates the bearer session token and stores its tenant and
// user in the context. Every rejection is recorded as a security event.
func SessionAuth(issuer string, recorder audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			rejectSession(c, recorder, "missing authorization header")
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			rejectSession(c, recorder, "authorization header must start with 'Bearer '")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims, err := auth.ValidateJWT(token, issuer)
		if err != nil {
			rejectSession(c, recorder, fmt.Sprintf("invalid session token: %v", err))
			return
		}

		c.Set(TenantIDKey, claims.TenantID)
		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

func rejectSession(c *gin.Context, recorder audit.Recorder, reason string) {
	if recorder != nil {
		ev := audit.NewEvent("", "", models.CategorySecurity, audit.ActionSessionRejected, audit.EntitySession, "")
		ev.Description = "Rejected session: " + reason
		ev.Metadata["method"] = c.Request.Method
		ev.Metadata["path"] = c.Request.URL.Path
		recorder.Record(c.Request.Context(), ev)
	}
	respond.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", reason)
}

// TenantID returns the tenant of the authenticated session
func TenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

// UserID returns the user of the authenticated session
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
