package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header carrying the request identifier
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request identifier
	RequestIDKey = "request_id"
)

// validRequestID bounds what an upstream proxy may hand us. The id ends up in
// logs and in every audit event's metadata.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:/+=-]{1,128}$`)

// RequestIDMiddleware reuses an inbound X-Request-ID when it is well formed
// and otherwise generates a UUID. The id is stored under RequestIDKey and
// echoed in the response. Register it before the logger and AuditContext.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestID returns the id assigned by RequestIDMiddleware, or "" outside it
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
