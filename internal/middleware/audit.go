package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/audit"
)

// AuditContext copies the caller's address and request id into the request
// context, where audit.Emitter picks them up for every event recorded while
// serving the request.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := audit.RequestInfo{
			IPAddress: c.ClientIP(),
			RequestID: RequestID(c),
		}
		c.Request = c.Request.WithContext(audit.WithRequestInfo(c.Request.Context(), info))
		c.Next()
	}
}
