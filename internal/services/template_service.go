package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/audit"
	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/db/repositories"
)

// TemplateItemInput is one item of a template create or update request
type TemplateItemInput struct {
	Text             string              `json:"text" binding:"notblank,max=500"`
	Description      string              `json:"description" binding:"max=2000"`
	IsRequired       *bool               `json:"is_required"`
	RequiresApproval bool                `json:"requires_approval"`
	ResponseType     models.ResponseType `json:"response_type" binding:"response_type"`
	SortOrder        *int                `json:"sort_order"`
}

// TemplateInput is the body of a template create or update request. Update
// replaces the complete item set.
type TemplateInput struct {
	Name         string              `json:"name" binding:"notblank,max=200"`
	Description  string              `json:"description" binding:"max=2000"`
	PropertyType *string             `json:"property_type"`
	Items        []TemplateItemInput `json:"items" binding:"required,min=1,dive"`
}

func (in *TemplateInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.Validation("INVALID_TEMPLATE", "template name is required")
	}
	if len(in.Items) == 0 {
		return apperrors.Validation("INVALID_TEMPLATE", "a template needs at least one item")
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.Text) == "" {
			return apperrors.Validation("INVALID_TEMPLATE", "item %d: text is required", i+1)
		}
		if !item.ResponseType.Valid() {
			return apperrors.Validation("INVALID_TEMPLATE", "item %d: unsupported response type %q", i+1, item.ResponseType)
		}
	}
	return nil
}

// build converts the input into a template. Items default to required and
// keep their request order unless a sort order is given.
func (in *TemplateInput) build(tenantID, templateID, userID string) *models.ChecklistTemplate {
	tpl := &models.ChecklistTemplate{
		ID:           templateID,
		TenantID:     tenantID,
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		PropertyType: trimmed(in.PropertyType),
		IsActive:     true,
		CreatedBy:    userID,
		Items:        make([]models.TemplateItem, len(in.Items)),
	}
	for i, item := range in.Items {
		required := true
		if item.IsRequired != nil {
			required = *item.IsRequired
		}
		order := i
		if item.SortOrder != nil {
			order = *item.SortOrder
		}
		tpl.Items[i] = models.TemplateItem{
			ID:               newID(),
			TemplateID:       templateID,
			Text:             strings.TrimSpace(item.Text),
			Description:      strings.TrimSpace(item.Description),
			IsRequired:       required,
			RequiresApproval: item.RequiresApproval,
			ResponseType:     item.ResponseType,
			SortOrder:        order,
		}
	}
	return tpl
}

// TemplateService manages the tenant's checklist templates
type TemplateService struct {
	templates *repositories.TemplateRepository
	audit     audit.Recorder
}

// NewTemplateService creates a TemplateService
func NewTemplateService(templates *repositories.TemplateRepository, recorder audit.Recorder) *TemplateService {
	return &TemplateService{templates: templates, audit: recorder}
}

// List returns the active templates of a tenant
func (s *TemplateService) List(ctx context.Context, tenantID string, propertyType *string) ([]models.ChecklistTemplate, error) {
	templates, err := s.templates.List(ctx, tenantID, trimmed(propertyType))
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Get returns a template with its ordered items
func (s *TemplateService) Get(ctx context.Context, tenantID, id string) (*models.ChecklistTemplate, error) {
	tpl, err := s.templates.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if tpl == nil {
		return nil, apperrors.NotFound("template")
	}
	return tpl, nil
}

// Create stores a new template with its items
func (s *TemplateService) Create(ctx context.Context, tenantID, userID string, in TemplateInput) (*models.ChecklistTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	tpl := in.build(tenantID, newID(), userID)
	if err := s.templates.Create(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	ev := audit.NewEvent(tenantID, userID, models.CategoryTemplate, audit.ActionTemplateCreated, audit.EntityTemplate, tpl.ID)
	ev.Description = fmt.Sprintf("Created template %q", tpl.Name)
	ev.Metadata["name"] = tpl.Name
	ev.Metadata["item_count"] = len(tpl.Items)
	s.audit.Record(ctx, ev)
	return tpl, nil
}

// Update replaces the header fields and the item set of an active template.
// Running checklists keep the item snapshot taken when they were created.
func (s *TemplateService) Update(ctx context.Context, tenantID, userID, id string, in TemplateInput) (*models.ChecklistTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	tpl := in.build(tenantID, id, userID)
	ok, err := s.templates.Update(ctx, tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	if !ok {
		return nil, apperrors.NotFound("template")
	}

	updated, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	ev := audit.NewEvent(tenantID, userID, models.CategoryTemplate, audit.ActionTemplateUpdated, audit.EntityTemplate, id)
	ev.Description = fmt.Sprintf("Updated template %q", updated.Name)
	ev.Metadata["name"] = updated.Name
	ev.Metadata["item_count"] = len(updated.Items)
	s.audit.Record(ctx, ev)
	return updated, nil
}

// Deactivate hides a template from new checklists. Templates referenced by
// any checklist cannot be deactivated.
func (s *TemplateService) Deactivate(ctx context.Context, tenantID, userID, id string) error {
	tpl, err := s.templates.GetByID(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if tpl == nil || !tpl.IsActive {
		return apperrors.NotFound("template")
	}

	n, err := s.templates.CountInstances(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to check template usage: %w", err)
	}
	if n > 0 {
		return apperrors.Conflict("TEMPLATE_IN_USE", "template is used by %d checklist(s)", n).WithDetail("instance_count", n)
	}

	ok, err := s.templates.Deactivate(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate template: %w", err)
	}
	if !ok {
		return apperrors.Conflict("TEMPLATE_IN_USE", "template was used by a checklist created concurrently")
	}

	ev := audit.NewEvent(tenantID, userID, models.CategoryTemplate, audit.ActionTemplateDeactivated, audit.EntityTemplate, id)
	ev.Description = fmt.Sprintf("Deactivated template %q", tpl.Name)
	ev.Metadata["name"] = tpl.Name
	s.audit.Record(ctx, ev)
	return nil
}
