package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/propaudit/propaudit/internal/telemetry"
)

// noRoute labels requests that matched no route so scanners cannot blow up
// label cardinality with arbitrary URLs.
const noRoute = "<no-route>"

// MetricsMiddleware tracks http_requests_in_flight and records
// http_requests_total and http_request_duration_seconds per route template
// (c.FullPath()), never the raw URL.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		telemetry.HTTPRequestsInFlight.Inc()
		defer telemetry.HTTPRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}
		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
