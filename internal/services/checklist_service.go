package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/audit"
	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/db/repositories"
	"github.com/propaudit/propaudit/internal/storage"
	"github.com/propaudit/propaudit/internal/telemetry"
)

// deletableStatuses are the statuses a checklist may be deleted in
var deletableStatuses = []models.ChecklistStatus{models.StatusPending, models.StatusInProgress}

// CreateChecklistInput is the body of a checklist create request. An empty
// assignee assigns the checklist to its creator.
type CreateChecklistInput struct {
	TemplateID string     `json:"template_id" binding:"notblank,uuid"`
	PropertyID string     `json:"property_id" binding:"notblank,uuid"`
	AssignedTo string     `json:"assigned_to" binding:"omitempty,uuid"`
	ApproverID *string    `json:"approver_id" binding:"omitempty,uuid"`
	DueDate    *time.Time `json:"due_date"`
}

// ListFilter narrows List
type ListFilter struct {
	PropertyID *string
	TemplateID *string
	AssignedTo *string
	Statuses   []string
	From       *time.Time
	To         *time.Time
}

// InstancePage is one page of checklists with the total match count
type InstancePage struct {
	Items   []models.ChecklistInstance `json:"items"`
	Total   int                        `json:"total"`
	Page    int                        `json:"page"`
	PerPage int                        `json:"per_page"`
}

// CompleteItemInput is the answer recorded for one item
type CompleteItemInput struct {
	ResponseValue    string  `json:"response_value" binding:"notblank,max=4000"`
	Notes            *string `json:"notes" binding:"omitempty,max=4000"`
	IssueSeverity    *string `json:"issue_severity" binding:"omitempty,severity"`
	IssueDescription *string `json:"issue_description" binding:"omitempty,max=4000"`
}

// ItemResult is the outcome of recording an answer
type ItemResult struct {
	Response models.ItemResponse      `json:"response"`
	Status   models.ChecklistStatus   `json:"status"`
	Summary  models.CompletionSummary `json:"summary"`
}

// AlertInput describes a video alert that should spawn an inspection
type AlertInput struct {
	AlertID      string   `json:"alert_id" binding:"notblank"`
	PropertyID   string   `json:"property_id" binding:"notblank,uuid"`
	TemplateID   string   `json:"template_id" binding:"notblank,uuid"`
	AssignedTo   string   `json:"assigned_to" binding:"omitempty,uuid"`
	Severity     *string  `json:"severity" binding:"omitempty,severity"`
	Description  string   `json:"description" binding:"max=4000"`
	Impact       *string  `json:"impact"`
	CostEstimate *float64 `json:"cost_estimate" binding:"omitempty,min=0"`
}

// ResolveAlertInput records that an alert was dealt with
type ResolveAlertInput struct {
	PropertyID string  `json:"property_id" binding:"notblank,uuid"`
	Notes      *string `json:"notes" binding:"omitempty,max=4000"`
}

// CommentInput is the body of a comment request
type CommentInput struct {
	Body       string  `json:"body" binding:"notblank,max=4000"`
	ResponseID *string `json:"response_id" binding:"omitempty,uuid"`
}

// ChecklistService manages checklist instances, their item responses and
// comments. Status changes are persisted in the same transaction as the
// mutation that causes them.
type ChecklistService struct {
	checklists *repositories.ChecklistRepository
	templates  *repositories.TemplateRepository
	files      *storage.Manager
	cleanup    CleanupQueue
	audit      audit.Recorder
}

// NewChecklistService creates a ChecklistService
func NewChecklistService(
	checklists *repositories.ChecklistRepository,
	templates *repositories.TemplateRepository,
	files *storage.Manager,
	cleanup CleanupQueue,
	recorder audit.Recorder,
) *ChecklistService {
	return &ChecklistService{
		checklists: checklists,
		templates:  templates,
		files:      files,
		cleanup:    cleanup,
		audit:      recorder,
	}
}

// Create instantiates an active template for a property. Every template item
// is copied into an unanswered response.
func (s *ChecklistService) Create(ctx context.Context, tenantID, userID string, in CreateChecklistInput) (*models.ChecklistInstance, error) {
	inst, err := s.create(ctx, tenantID, userID, in, nil)
	if err != nil {
		return nil, err
	}
	s.recordCreated(ctx, userID, inst)
	return inst, nil
}

func (s *ChecklistService) create(ctx context.Context, tenantID, userID string, in CreateChecklistInput, alertID *string) (*models.ChecklistInstance, error) {
	tpl, err := s.templates.GetByID(ctx, tenantID, strings.TrimSpace(in.TemplateID))
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if tpl == nil {
		return nil, apperrors.NotFound("template")
	}
	if !tpl.IsActive {
		return nil, apperrors.Validation("TEMPLATE_INACTIVE", "template %q has been deactivated", tpl.Name)
	}
	if len(tpl.Items) == 0 {
		return nil, apperrors.Validation("TEMPLATE_EMPTY", "template %q has no items", tpl.Name)
	}

	prop, err := s.checklists.GetProperty(ctx, tenantID, strings.TrimSpace(in.PropertyID))
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	if prop == nil {
		return nil, apperrors.NotFound("property")
	}

	assignee := strings.TrimSpace(in.AssignedTo)
	if assignee == "" {
		assignee = userID
	}

	inst := &models.ChecklistInstance{
		ID:            newID(),
		TenantID:      tenantID,
		TemplateID:    tpl.ID,
		PropertyID:    prop.ID,
		Status:        models.StatusPending,
		AssignedTo:    assignee,
		ApproverID:    trimmed(in.ApproverID),
		CreatedBy:     userID,
		DueDate:       in.DueDate,
		SourceAlertID: alertID,
		TemplateName:  tpl.Name,
		PropertyName:  prop.Name,
	}
	responses := make([]models.ItemResponse, len(tpl.Items))
	for i, item := range tpl.Items {
		responses[i] = models.ItemResponse{
			ID:               newID(),
			TenantID:         tenantID,
			InstanceID:       inst.ID,
			TemplateItemID:   item.ID,
			ItemText:         item.Text,
			IsRequired:       item.IsRequired,
			RequiresApproval: item.RequiresApproval,
			ResponseType:     item.ResponseType,
			SortOrder:        item.SortOrder,
			ApprovalState:    models.StateUnanswered,
		}
	}

	err = s.checklists.InTx(ctx, func(tx *repositories.ChecklistRepository) error {
		return tx.CreateInstance(ctx, inst, responses)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checklist: %w", err)
	}

	inst.Responses = responses
	inst.TotalItems = len(responses)
	inst.Finalize()
	return inst, nil
}

func (s *ChecklistService) recordCreated(ctx context.Context, userID string, inst *models.ChecklistInstance) {
	ev := s.instanceEvent(userID, models.CategoryChecklist, audit.ActionChecklistCreated, inst)
	ev.Description = fmt.Sprintf("Created checklist %q for %s", inst.TemplateName, inst.PropertyName)
	ev.Metadata["template_id"] = inst.TemplateID
	ev.Metadata["template_name"] = inst.TemplateName
	ev.Metadata["item_count"] = inst.TotalItems
	ev.Metadata["assigned_to"] = inst.AssignedTo
	if inst.SourceAlertID != nil {
		ev.Metadata["source_alert_id"] = *inst.SourceAlertID
	}
	s.audit.Record(ctx, ev)
}

// instanceEvent starts an audit event about a checklist instance
func (s *ChecklistService) instanceEvent(userID, category, action string, inst *models.ChecklistInstance) *models.AuditEvent {
	ev := audit.NewEvent(inst.TenantID, userID, category, action, audit.EntityChecklist, inst.ID)
	prop := inst.PropertyID
	ev.PropertyID = &prop
	return ev
}

// Get returns a checklist with its responses and completion summary
func (s *ChecklistService) Get(ctx context.Context, tenantID, id string) (*models.ChecklistInstance, error) {
	inst, err := s.instance(ctx, s.checklists, tenantID, id)
	if err != nil {
		return nil, err
	}
	inst.Responses, err = s.checklists.ListResponses(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklist items: %w", err)
	}
	return inst, nil
}

func (s *ChecklistService) instance(ctx context.Context, repo *repositories.ChecklistRepository, tenantID, id string) (*models.ChecklistInstance, error) {
	inst, err := repo.GetInstance(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist: %w", err)
	}
	if inst == nil {
		return nil, apperrors.NotFound("checklist")
	}
	return inst, nil
}

// List returns one page of the tenant's checklists, newest first
func (s *ChecklistService) List(ctx context.Context, tenantID string, f ListFilter, page Page) (*InstancePage, error) {
	for _, st := range f.Statuses {
		if _, err := models.ParseChecklistStatus(st); err != nil {
			return nil, apperrors.Validation("INVALID_STATUS", "%v", err)
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperrors.Validation("INVALID_DATE_RANGE", "to must not be before from")
	}

	page = page.normalize()
	items, total, err := s.checklists.ListInstances(ctx, repositories.InstanceFilters{
		TenantID:   tenantID,
		PropertyID: f.PropertyID,
		TemplateID: f.TemplateID,
		AssignedTo: f.AssignedTo,
		Statuses:   f.Statuses,
		From:       f.From,
		To:         f.To,
	}, page.PerPage, page.offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list checklists: %w", err)
	}
	return &InstancePage{Items: items, Total: total, Page: page.Number, PerPage: page.PerPage}, nil
}

// ListMine returns the checklists assigned to the caller
func (s *ChecklistService) ListMine(ctx context.Context, tenantID, userID string, statuses []string, page Page) (*InstancePage, error) {
	return s.List(ctx, tenantID, ListFilter{AssignedTo: &userID, Statuses: statuses}, page)
}

// ListForProperty returns the checklists of one property of the tenant
func (s *ChecklistService) ListForProperty(ctx context.Context, tenantID, propertyID string, statuses []string, page Page) (*InstancePage, error) {
	prop, err := s.checklists.GetProperty(ctx, tenantID, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	if prop == nil {
		return nil, apperrors.NotFound("property")
	}
	return s.List(ctx, tenantID, ListFilter{PropertyID: &prop.ID, Statuses: statuses}, page)
}

// CompleteItem records the answer to one template item of a checklist and
// moves the checklist between pending and in_progress as needed. Answers on
// approved responses are final; a finalized checklist only accepts rework of
// rejected responses.
func (s *ChecklistService) CompleteItem(ctx context.Context, tenantID, userID, instanceID, templateItemID string, in CompleteItemInput) (*ItemResult, error) {
	severity := trimmed(in.IssueSeverity)
	if severity != nil && !models.IssueSeverity(*severity).Valid() {
		return nil, apperrors.Validation("INVALID_SEVERITY", "issue severity must be one of low, medium, high, critical")
	}

	var (
		inst   *models.ChecklistInstance
		result ItemResult
	)
	err := s.checklists.InTx(ctx, func(tx *repositories.ChecklistRepository) error {
		var err error
		inst, err = s.instance(ctx, tx, tenantID, instanceID)
		if err != nil {
			return err
		}

		resp, err := tx.GetResponseByItem(ctx, tenantID, instanceID, templateItemID)
		if err != nil {
			return fmt.Errorf("failed to get checklist item: %w", err)
		}
		if resp == nil {
			return apperrors.NotFound("checklist_item")
		}
		if resp.ApprovalState == models.StateApproved {
			return apperrors.Conflict("RESPONSE_APPROVED", "item %q has been approved and can no longer be changed", resp.ItemText)
		}
		if inst.Status.IsFinal() && resp.ApprovalState != models.StateRejected {
			return apperrors.Conflict("CHECKLIST_FINALIZED", "checklist is %s and can no longer be changed", inst.Status)
		}

		value, err := resp.ResponseType.NormalizeValue(in.ResponseValue)
		if err != nil {
			return apperrors.Validation("INVALID_RESPONSE_VALUE", "%v", err).WithDetail("response_type", resp.ResponseType)
		}

		expected := resp.ApprovalState
		resp.ResponseValue = &value
		resp.Notes = trimmed(in.Notes)
		resp.IssueSeverity = severity
		resp.IssueDescription = trimmed(in.IssueDescription)
		resp.ApprovalState = models.StateAfterAnswer(resp.RequiresApproval)
		resp.CompletedBy = &userID

		ok, err := tx.SaveAnswer(ctx, resp, expected)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict("RESPONSE_CHANGED", "item %q was changed by another request, reload and retry", resp.ItemText)
		}

		answered, err := tx.CountAnswered(ctx, instanceID)
		if err != nil {
			return err
		}
		status := inst.Status.ProgressStatus(answered)
		if status != inst.Status {
			ok, err := tx.TransitionStatus(ctx, tenantID, instanceID, inst.Status, status)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.Conflict("CHECKLIST_CHANGED", "checklist status was changed by another request, reload and retry")
			}
		} else if err := tx.TouchInstance(ctx, tenantID, instanceID); err != nil {
			return err
		}

		summary, err := tx.Summary(ctx, instanceID)
		if err != nil {
			return err
		}
		result = ItemResult{Response: *resp, Status: status, Summary: summary}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.ItemResponsesTotal.WithLabelValues(string(result.Response.ApprovalState)).Inc()
	if result.Status != inst.Status {
		telemetry.ChecklistTransitionsTotal.WithLabelValues(string(result.Status)).Inc()
	}

	resp := result.Response
	ev := s.instanceEvent(userID, models.CategoryChecklist, audit.ActionItemCompleted, inst)
	ev.EntityType = audit.EntityResponse
	ev.EntityID = resp.ID
	ev.Description = fmt.Sprintf("Completed item %q", resp.ItemText)
	ev.Metadata["instance_id"] = inst.ID
	ev.Metadata["template_item_id"] = resp.TemplateItemID
	ev.Metadata["item_text"] = resp.ItemText
	ev.Metadata["response_value"] = *resp.ResponseValue
	ev.Metadata["approval_state"] = string(resp.ApprovalState)
	ev.Metadata["has_issue"] = resp.HasIssue()
	if resp.HasIssue() {
		ev.Urgency = resp.IssueSeverity
		ev.Metadata["issue_severity"] = *resp.IssueSeverity
	}
	s.audit.Record(ctx, ev)
	return &result, nil
}

// Transition applies an explicit status change. Only completed and approved
// can be requested; pending and in_progress follow from answered items.
func (s *ChecklistService) Transition(ctx context.Context, tenantID, userID, id, target string) (*models.ChecklistInstance, error) {
	to, err := models.ParseChecklistStatus(strings.TrimSpace(target))
	if err != nil {
		return nil, apperrors.Validation("INVALID_STATUS", "%v", err)
	}
	if !to.IsFinal() {
		return nil, apperrors.Validation("STATUS_DERIVED", "status %s follows from answered items and cannot be set directly", to)
	}

	var from models.ChecklistStatus
	err = s.checklists.InTx(ctx, func(tx *repositories.ChecklistRepository) error {
		inst, err := s.instance(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		from = inst.Status
		if !from.CanTransitionTo(to) {
			return apperrors.Conflict("INVALID_TRANSITION", "checklist cannot move from %s to %s", from, to)
		}

		responses, err := tx.ListResponses(ctx, tenantID, id)
		if err != nil {
			return err
		}
		switch to {
		case models.StatusCompleted:
			if outstanding := models.OutstandingItems(responses); len(outstanding) > 0 {
				return apperrors.Validation("REQUIRED_ITEMS_OUTSTANDING",
					"required items are not complete: %s", strings.Join(outstanding, ", ")).
					WithDetail("outstanding_items", outstanding)
			}
		case models.StatusApproved:
			if waiting := models.AwaitingDecision(responses); len(waiting) > 0 {
				texts := make([]string, len(waiting))
				for i, r := range waiting {
					texts[i] = fmt.Sprintf("%s (%s)", r.ItemText, r.ApprovalState)
				}
				return apperrors.Conflict("APPROVALS_OUTSTANDING",
					"items still await an approval decision: %s", strings.Join(texts, ", ")).
					WithDetail("pending_items", texts)
			}
		}

		ok, err := tx.TransitionStatus(ctx, tenantID, id, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict("CHECKLIST_CHANGED", "checklist status was changed by another request, reload and retry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.ChecklistTransitionsTotal.WithLabelValues(string(to)).Inc()

	inst, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	action := audit.ActionChecklistCompleted
	if to == models.StatusApproved {
		action = audit.ActionChecklistApproved
	}
	ev := s.instanceEvent(userID, models.CategoryChecklist, action, inst)
	ev.Description = fmt.Sprintf("Checklist %q moved from %s to %s", inst.TemplateName, from, to)
	ev.Metadata["from_status"] = string(from)
	ev.Metadata["to_status"] = string(to)
	ev.Metadata["completion_percentage"] = inst.CompletionPercentage
	s.audit.Record(ctx, ev)
	return inst, nil
}

// Delete removes a pending or in_progress checklist with all of its
// comments, attachments, approvals and responses. Attachment files are
// removed once the transaction has committed.
func (s *ChecklistService) Delete(ctx context.Context, tenantID, userID, id string) error {
	var (
		inst  *models.ChecklistInstance
		files []models.StoredFile
	)
	err := s.checklists.InTx(ctx, func(tx *repositories.ChecklistRepository) error {
		var err error
		inst, err = s.instance(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if inst.Status.IsFinal() {
			return apperrors.Conflict("CHECKLIST_FINALIZED", "%s checklists cannot be deleted", inst.Status)
		}

		var deleted bool
		files, deleted, err = tx.DeleteInstance(ctx, tenantID, id, deletableStatuses)
		if err != nil {
			return err
		}
		if !deleted {
			return apperrors.Conflict("CHECKLIST_FINALIZED", "checklist was finalized by another request")
		}
		return nil
	})
	if err != nil {
		return err
	}

	removeFiles(ctx, s.files, s.cleanup, files)

	ev := s.instanceEvent(userID, models.CategoryChecklist, audit.ActionChecklistDeleted, inst)
	ev.Description = fmt.Sprintf("Deleted checklist %q for %s", inst.TemplateName, inst.PropertyName)
	ev.Metadata["status"] = string(inst.Status)
	ev.Metadata["template_id"] = inst.TemplateID
	ev.Metadata["attachment_count"] = len(files)
	s.audit.Record(ctx, ev)
	return nil
}

// Reassign changes the assignee of a checklist
func (s *ChecklistService) Reassign(ctx context.Context, tenantID, userID, id, assignee string) (*models.ChecklistInstance, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return nil, apperrors.Validation("INVALID_ASSIGNEE", "assigned_to is required")
	}

	inst, err := s.instance(ctx, s.checklists, tenantID, id)
	if err != nil {
		return nil, err
	}
	previous := inst.AssignedTo
	if previous == assignee {
		return inst, nil
	}
	if err := s.checklists.UpdateAssignee(ctx, tenantID, id, assignee); err != nil {
		return nil, err
	}
	inst.AssignedTo = assignee

	ev := s.instanceEvent(userID, models.CategoryChecklist, audit.ActionChecklistAssigned, inst)
	ev.Description = fmt.Sprintf("Reassigned checklist %q", inst.TemplateName)
	ev.Metadata["previous_assignee"] = previous
	ev.Metadata["new_assignee"] = assignee
	s.audit.Record(ctx, ev)
	return inst, nil
}

// SpawnFromAlert creates a checklist in response to a video alert
func (s *ChecklistService) SpawnFromAlert(ctx context.Context, tenantID, userID string, in AlertInput) (*models.ChecklistInstance, error) {
	alertID := strings.TrimSpace(in.AlertID)
	if alertID == "" {
		return nil, apperrors.Validation("INVALID_ALERT", "alert_id is required")
	}
	severity := trimmed(in.Severity)
	if severity != nil && !models.IssueSeverity(*severity).Valid() {
		return nil, apperrors.Validation("INVALID_SEVERITY", "severity must be one of low, medium, high, critical")
	}

	inst, err := s.create(ctx, tenantID, userID, CreateChecklistInput{
		TemplateID: in.TemplateID,
		PropertyID: in.PropertyID,
		AssignedTo: in.AssignedTo,
	}, &alertID)
	if err != nil {
		return nil, err
	}
	s.recordCreated(ctx, userID, inst)

	ev := audit.NewEvent(tenantID, userID, models.CategoryAlert, audit.ActionAlertChecklistSpawned, audit.EntityAlert, alertID)
	ev.PropertyID = &inst.PropertyID
	ev.Description = fmt.Sprintf("Alert spawned checklist %q for %s", inst.TemplateName, inst.PropertyName)
	if d := strings.TrimSpace(in.Description); d != "" {
		ev.Description += ": " + d
	}
	ev.Urgency = severity
	ev.Impact = trimmed(in.Impact)
	ev.CostEstimate = in.CostEstimate
	ev.Metadata["instance_id"] = inst.ID
	ev.Metadata["template_id"] = inst.TemplateID
	s.audit.Record(ctx, ev)
	return inst, nil
}

// ResolveAlert records that an alert on a property has been dealt with
func (s *ChecklistService) ResolveAlert(ctx context.Context, tenantID, userID, alertID string, in ResolveAlertInput) error {
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return apperrors.Validation("INVALID_ALERT", "alert id is required")
	}
	prop, err := s.checklists.GetProperty(ctx, tenantID, strings.TrimSpace(in.PropertyID))
	if err != nil {
		return fmt.Errorf("failed to get property: %w", err)
	}
	if prop == nil {
		return apperrors.NotFound("property")
	}

	ev := audit.NewEvent(tenantID, userID, models.CategoryAlert, audit.ActionAlertResolved, audit.EntityAlert, alertID)
	ev.PropertyID = &prop.ID
	ev.Description = fmt.Sprintf("Resolved alert on %s", prop.Name)
	if notes := trimmed(in.Notes); notes != nil {
		ev.Metadata["notes"] = *notes
	}
	s.audit.Record(ctx, ev)
	return nil
}

// AddComment attaches a note to a checklist, optionally about one response
func (s *ChecklistService) AddComment(ctx context.Context, tenantID, userID, instanceID string, in CommentInput) (*models.Comment, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, apperrors.Validation("INVALID_COMMENT", "comment body is required")
	}
	inst, err := s.instance(ctx, s.checklists, tenantID, instanceID)
	if err != nil {
		return nil, err
	}

	responseID := trimmed(in.ResponseID)
	if responseID != nil {
		resp, err := s.checklists.GetResponse(ctx, tenantID, *responseID)
		if err != nil {
			return nil, fmt.Errorf("failed to get item response: %w", err)
		}
		if resp == nil || resp.InstanceID != instanceID {
			return nil, apperrors.NotFound("item_response")
		}
	}

	c := &models.Comment{
		ID:         newID(),
		TenantID:   tenantID,
		InstanceID: instanceID,
		ResponseID: responseID,
		AuthorID:   userID,
		Body:       body,
	}
	if err := s.checklists.CreateComment(ctx, c); err != nil {
		return nil, err
	}

	ev := s.instanceEvent(userID, models.CategoryChecklist, audit.ActionCommentAdded, inst)
	ev.EntityType = audit.EntityComment
	ev.EntityID = c.ID
	ev.Description = fmt.Sprintf("Commented on checklist %q", inst.TemplateName)
	ev.Metadata["instance_id"] = instanceID
	if responseID != nil {
		ev.Metadata["response_id"] = *responseID
	}
	s.audit.Record(ctx, ev)
	return c, nil
}

// ListComments returns the comments of a checklist, oldest first
func (s *ChecklistService) ListComments(ctx context.Context, tenantID, instanceID string) ([]models.Comment, error) {
	if _, err := s.instance(ctx, s.checklists, tenantID, instanceID); err != nil {
		return nil, err
	}
	return s.checklists.ListComments(ctx, tenantID, instanceID)
}
