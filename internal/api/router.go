// Package api wires together all HTTP routes for the property audit backend.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated so orchestrators can
//     probe the process without a session.
//   - Everything under /api/v1 requires a session token issued by the
//     platform's session service and is rate limited per tenant and user.
//     Attachment uploads carry a second, stricter budget.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/propaudit/propaudit/internal/api/checklists"
	"github.com/propaudit/propaudit/internal/audit"
	"github.com/propaudit/propaudit/internal/config"
	"github.com/propaudit/propaudit/internal/db/repositories"
	"github.com/propaudit/propaudit/internal/jobs"
	"github.com/propaudit/propaudit/internal/middleware"
	"github.com/propaudit/propaudit/internal/safego"
	"github.com/propaudit/propaudit/internal/services"
	"github.com/propaudit/propaudit/internal/storage"
	"github.com/propaudit/propaudit/internal/validation"

	// Import storage backends to register them
	_ "github.com/propaudit/propaudit/internal/storage/azure"
	_ "github.com/propaudit/propaudit/internal/storage/gcs"
	_ "github.com/propaudit/propaudit/internal/storage/local"
	_ "github.com/propaudit/propaudit/internal/storage/s3"
)

// Version is stamped at build time with -ldflags "-X .../internal/api.Version=..."
var Version = "dev"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	cleanupJob   *jobs.FileCleanupJob
	rateLimiters []middleware.Limiter
	emitter      *audit.Emitter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first; the
// audit emitter is closed last so events recorded by those requests are written.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.cleanupJob != nil {
		bg.cleanupJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.emitter != nil {
		if err := bg.emitter.Close(); err != nil {
			slog.Error("failed to close audit emitter", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router together with the audit
// pipeline and background jobs it depends on
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	if err := validation.RegisterBindingValidators(); err != nil {
		return nil, nil, fmt.Errorf("failed to register request validators: %w", err)
	}

	files, err := storage.NewManager(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	policy, err := validation.NewAttachmentPolicy(cfg.Attachments.MaxSizeBytes, cfg.Attachments.AllowedExtensions)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid attachment policy: %w", err)
	}

	// Repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	auditRepo := repositories.NewAuditRepository(db)
	templateRepo := repositories.NewTemplateRepository(sqlxDB)
	checklistRepo := repositories.NewChecklistRepository(sqlxDB)
	cleanupRepo := repositories.NewFileCleanupRepository(sqlxDB)

	// Audit pipeline
	shippers, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	var shipper audit.Shipper
	if shippers.Len() > 0 {
		shipper = shippers
		slog.Info("audit shipping enabled", "shippers", shippers.Len())
	}
	emitter := audit.NewEmitter(auditRepo, audit.NewAggregator(auditRepo), shipper, audit.Options{
		QueueSize:    cfg.Audit.QueueSize,
		Workers:      cfg.Audit.Workers,
		WriteTimeout: cfg.Audit.WriteTimeout,
	})
	bg := &BackgroundServices{emitter: emitter}

	// Services
	handlers := checklists.NewHandlers(
		services.NewTemplateService(templateRepo, emitter),
		services.NewChecklistService(checklistRepo, templateRepo, files, cleanupRepo, emitter),
		services.NewAttachmentService(checklistRepo, files, policy, cleanupRepo, emitter),
		services.NewApprovalService(checklistRepo, emitter),
		services.NewReportService(auditRepo),
	)

	if cfg.Jobs.FileCleanup.Enabled {
		bg.cleanupJob = jobs.NewFileCleanupJob(cleanupRepo, files, cfg.Jobs.FileCleanup)
		job := bg.cleanupJob
		safego.Go("file-cleanup", func() { job.Start(context.Background()) })
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(middleware.AuditContext())

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, files))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.SessionAuth(cfg.Auth.Issuer, emitter))

	var uploadLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.Security.RateLimiting.Enabled {
		general, upload, err := newLimiters(cfg.Security.RateLimiting)
		if err != nil {
			bg.Shutdown()
			return nil, nil, err
		}
		bg.rateLimiters = append(bg.rateLimiters, general, upload)
		apiV1.Use(middleware.RateLimitMiddleware(general))
		uploadLimit = middleware.RateLimitMiddleware(upload)
		slog.Info("rate limiting enabled", "backend", general.Backend(), "requests_per_minute", general.Limit())
	}

	{
		cl := apiV1.Group("/checklists")

		// Templates
		cl.GET("/templates", handlers.ListTemplates())
		cl.POST("/templates", handlers.CreateTemplate())
		cl.GET("/templates/:id", handlers.GetTemplate())
		cl.PUT("/templates/:id", handlers.UpdateTemplate())
		cl.DELETE("/templates/:id", handlers.DeactivateTemplate())

		// Approvals
		cl.GET("/approvals/queue", handlers.ApprovalQueue())
		cl.POST("/approvals/:responseId/approve", handlers.ApproveResponse())
		cl.POST("/approvals/:responseId/reject", handlers.RejectResponse())
		cl.GET("/approvals/:responseId/history", handlers.ApprovalHistory())

		// Instances
		cl.GET("", handlers.ListChecklists())
		cl.POST("", handlers.CreateChecklist())
		cl.GET("/my", handlers.ListMyChecklists())
		cl.GET("/property/:propertyId", handlers.ListPropertyChecklists())
		cl.GET("/attachments/:id/download", handlers.DownloadAttachment())
		cl.GET("/:id", handlers.GetChecklist())
		cl.DELETE("/:id", handlers.DeleteChecklist())
		cl.PUT("/:id/status", handlers.TransitionChecklist())
		cl.PUT("/:id/assign", handlers.AssignChecklist())
		cl.POST("/:id/items/:itemId/complete", handlers.CompleteItem())
		cl.POST("/:id/attachments", uploadLimit, handlers.UploadAttachment())
		cl.GET("/:id/attachments", handlers.ListAttachments())
		cl.GET("/:id/comments", handlers.ListComments())
		cl.POST("/:id/comments", handlers.AddComment())

		// Alerts
		apiV1.POST("/alerts/checklists", handlers.SpawnAlertChecklist())
		apiV1.POST("/alerts/:alertId/resolve", handlers.ResolveAlert())

		// Audit trail and operational counters
		apiV1.GET("/audit/events", handlers.ListAuditEvents())
		apiV1.GET("/metrics/operational", handlers.OperationalMetrics())
	}

	return router, bg, nil
}

// newLimiters builds the general and upload budgets, shared through Redis
// when a URL is configured
func newLimiters(cfg config.RateLimitingConfig) (general, upload middleware.Limiter, err error) {
	generalCfg := middleware.DefaultRateLimitConfig()
	if cfg.RequestsPerMinute > 0 {
		generalCfg.RequestsPerMinute = cfg.RequestsPerMinute
	}
	if cfg.Burst > 0 {
		generalCfg.BurstSize = cfg.Burst
	}
	uploadCfg := middleware.UploadRateLimitConfig()

	if cfg.RedisURL == "" {
		return middleware.NewRateLimiter(generalCfg), middleware.NewRateLimiter(uploadCfg), nil
	}

	g, err := middleware.NewRedisLimiter(cfg.RedisURL, generalCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid rate limiting redis_url: %w", err)
	}
	u, err := middleware.NewRedisLimiter(cfg.RedisURL, uploadCfg)
	if err != nil {
		g.Stop()
		return nil, nil, fmt.Errorf("invalid rate limiting redis_url: %w", err)
	}
	return g, u, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and the default attachment storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when uploads and downloads would error.
func readinessHandler(db *sql.DB, files *storage.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Exists on a sentinel path exercises credentials and connectivity
		// without creating any state.
		name, backend := files.Default()
		if backend == nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not configured",
			})
			return
		}
		if _, err := backend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			slog.Warn("storage readiness probe failed", "backend", name, "error", err)
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the build version and the REST API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured record per request. The output format
// follows the global slog handler configured by telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		switch status := c.Writer.Status(); {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		// Probes are noisy at info level.
		if level == slog.LevelInfo && (path == "/health" || path == "/ready") {
			level = slog.LevelDebug
		}

		requestID, _ := c.Get(middleware.RequestIDKey)
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if tenant := middleware.TenantID(c); tenant != "" {
			attrs = append(attrs, slog.String("tenant_id", tenant), slog.String("user_id", middleware.UserID(c)))
		}
		if cfg.Telemetry.ServiceName != "" {
			attrs = append(attrs, slog.String("service", cfg.Telemetry.ServiceName))
		}
		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After, Content-Disposition")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
