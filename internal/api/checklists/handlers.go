// Package checklists implements the /api/v1 REST handlers for checklist
// templates, checklist instances, item responses, attachments, approvals,
// alert-driven checklists and the audit/metrics queries. Handlers only parse
// and bind; every rule lives in internal/services.
package checklists

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/propaudit/propaudit/internal/api/respond"
	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/middleware"
	"github.com/propaudit/propaudit/internal/services"
	"github.com/propaudit/propaudit/internal/validation"
)

// Handlers serves the checklist endpoints
type Handlers struct {
	templates   *services.TemplateService
	checklists  *services.ChecklistService
	attachments *services.AttachmentService
	approvals   *services.ApprovalService
	reports     *services.ReportService
}

// NewHandlers creates the checklist handlers
func NewHandlers(
	templates *services.TemplateService,
	checklists *services.ChecklistService,
	attachments *services.AttachmentService,
	approvals *services.ApprovalService,
	reports *services.ReportService,
) *Handlers {
	return &Handlers{
		templates:   templates,
		checklists:  checklists,
		attachments: attachments,
		approvals:   approvals,
		reports:     reports,
	}
}

// session returns the tenant and user of the authenticated caller
func session(c *gin.Context) (tenantID, userID string) {
	return middleware.TenantID(c), middleware.UserID(c)
}

// bindJSON binds the body into dst and writes a validation error on failure
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respond.Error(c, validation.BindingError(err))
		return false
	}
	return true
}

// isUUID accepts the canonical 36 character form only
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// pathID returns the uuid path parameter key. A malformed id names nothing
// that can exist, so it is answered with entity's not-found error.
func pathID(c *gin.Context, key, entity string) (string, bool) {
	id := c.Param(key)
	if !isUUID(id) {
		respond.Error(c, apperrors.NotFound(entity))
		return "", false
	}
	return id, true
}

// idQuery is optionalQuery for uuid filters, writing a validation error when
// the value is malformed
func idQuery(c *gin.Context, key string) (*string, bool) {
	v := optionalQuery(c, key)
	if v == nil {
		return nil, true
	}
	if !isUUID(*v) {
		respond.Error(c, apperrors.Validation("INVALID_ID", "%s must be a uuid", key))
		return nil, false
	}
	return v, true
}

// pageParams reads page and per_page; out of range values are normalized by
// the services
func pageParams(c *gin.Context) services.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(services.DefaultPerPage)))
	return services.Page{Number: page, PerPage: perPage}
}

// optionalQuery returns nil for an absent or blank parameter
func optionalQuery(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

// statusParams accepts ?status=a,b as well as repeated status parameters
func statusParams(c *gin.Context) []string {
	var out []string
	for _, raw := range c.QueryArray("status") {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// dateParam parses an RFC 3339 timestamp or a plain date. A plain date used
// as an upper bound covers the whole day.
func dateParam(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperrors.Validation("INVALID_DATE", "%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", key)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// dateRange reads from and to, writing a validation error on failure
func dateRange(c *gin.Context) (from, to *time.Time, ok bool) {
	from, err := dateParam(c, "from", false)
	if err != nil {
		respond.Error(c, err)
		return nil, nil, false
	}
	to, err = dateParam(c, "to", true)
	if err != nil {
		respond.Error(c, err)
		return nil, nil, false
	}
	return from, to, true
}
