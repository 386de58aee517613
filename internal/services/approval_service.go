package services

import (
	"context"
	"fmt"

	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/audit"
	"github.com/propaudit/propaudit/internal/db/models"
	"github.com/propaudit/propaudit/internal/db/repositories"
	"github.com/propaudit/propaudit/internal/telemetry"
)

// DecisionInput is the body of an approve or reject request
type DecisionInput struct {
	Notes *string `json:"notes" binding:"omitempty,max=4000"`
}

// DecisionResult is the outcome of an approval decision
type DecisionResult struct {
	Approval       models.Approval        `json:"approval"`
	ApprovalState  models.ApprovalState   `json:"approval_state"`
	InstanceStatus models.ChecklistStatus `json:"instance_status"`
}

// ApprovalService decides requires-approval responses
type ApprovalService struct {
	checklists *repositories.ChecklistRepository
	audit      audit.Recorder
}

// NewApprovalService creates an ApprovalService
func NewApprovalService(checklists *repositories.ChecklistRepository, recorder audit.Recorder) *ApprovalService {
	return &ApprovalService{checklists: checklists, audit: recorder}
}

// Approve signs off a response awaiting approval. A completed checklist
// whose last open decision this was moves to approved in the same
// transaction.
func (s *ApprovalService) Approve(ctx context.Context, tenantID, approverID, responseID string, notes *string) (*DecisionResult, error) {
	return s.decide(ctx, tenantID, approverID, responseID, models.DecisionApproved, trimmed(notes))
}

// Reject sends a response back for rework. Notes explaining the rejection
// are required. The checklist status is left unchanged.
func (s *ApprovalService) Reject(ctx context.Context, tenantID, approverID, responseID string, notes *string) (*DecisionResult, error) {
	n := trimmed(notes)
	if n == nil {
		return nil, apperrors.Validation("NOTES_REQUIRED", "notes are required when rejecting an item")
	}
	return s.decide(ctx, tenantID, approverID, responseID, models.DecisionRejected, n)
}

func (s *ApprovalService) decide(ctx context.Context, tenantID, approverID, responseID string, decision models.Decision, notes *string) (*DecisionResult, error) {
	state := models.StateApproved
	if decision == models.DecisionRejected {
		state = models.StateRejected
	}

	var (
		inst             *models.ChecklistInstance
		resp             *models.ItemResponse
		result           DecisionResult
		instanceApproved bool
	)
	err := s.checklists.InTx(ctx, func(tx *repositories.ChecklistRepository) error {
		var err error
		resp, err = tx.GetResponse(ctx, tenantID, responseID)
		if err != nil {
			return err
		}
		if resp == nil {
			return apperrors.NotFound("item_response")
		}
		if !resp.RequiresApproval {
			return apperrors.Conflict("APPROVAL_NOT_REQUIRED", "item %q does not require approval", resp.ItemText)
		}
		if resp.ApprovalState != models.StatePendingApproval {
			return notPending(resp)
		}

		inst, err = tx.GetInstance(ctx, tenantID, resp.InstanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return apperrors.NotFound("checklist")
		}

		ok, err := tx.DecideResponse(ctx, tenantID, responseID, state)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict("NOT_PENDING_APPROVAL", "item %q was decided by another request", resp.ItemText)
		}

		result.Approval = models.Approval{
			ID:         newID(),
			TenantID:   tenantID,
			ResponseID: responseID,
			InstanceID: inst.ID,
			ApproverID: approverID,
			Decision:   decision,
			Notes:      notes,
		}
		if err := tx.CreateApproval(ctx, &result.Approval); err != nil {
			return err
		}
		result.ApprovalState = state
		result.InstanceStatus = inst.Status

		if decision != models.DecisionApproved || inst.Status != models.StatusCompleted {
			return nil
		}
		responses, err := tx.ListResponses(ctx, tenantID, inst.ID)
		if err != nil {
			return err
		}
		if len(models.AwaitingDecision(responses)) > 0 {
			return nil
		}
		instanceApproved, err = tx.TransitionStatus(ctx, tenantID, inst.ID, models.StatusCompleted, models.StatusApproved)
		if err != nil {
			return err
		}
		if instanceApproved {
			result.InstanceStatus = models.StatusApproved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.ApprovalDecisionsTotal.WithLabelValues(string(decision)).Inc()

	action := audit.ActionChecklistApproved
	verb := "Approved"
	if decision == models.DecisionRejected {
		action = audit.ActionChecklistRejected
		verb = "Rejected"
	}
	ev := audit.NewEvent(tenantID, approverID, models.CategoryApproval, action, audit.EntityResponse, responseID)
	ev.PropertyID = &inst.PropertyID
	ev.Description = fmt.Sprintf("%s item %q", verb, resp.ItemText)
	ev.Metadata["instance_id"] = inst.ID
	ev.Metadata["approval_id"] = result.Approval.ID
	ev.Metadata["item_text"] = resp.ItemText
	if notes != nil {
		ev.Metadata["notes"] = *notes
	}
	s.audit.Record(ctx, ev)

	if instanceApproved {
		telemetry.ChecklistTransitionsTotal.WithLabelValues(string(models.StatusApproved)).Inc()
		iev := audit.NewEvent(tenantID, approverID, models.CategoryChecklist, audit.ActionChecklistApproved, audit.EntityChecklist, inst.ID)
		iev.PropertyID = &inst.PropertyID
		iev.Description = fmt.Sprintf("Checklist %q approved after its last item was signed off", inst.TemplateName)
		iev.Metadata["from_status"] = string(models.StatusCompleted)
		iev.Metadata["to_status"] = string(models.StatusApproved)
		s.audit.Record(ctx, iev)
	}
	return &result, nil
}

func notPending(resp *models.ItemResponse) error {
	switch resp.ApprovalState {
	case models.StateApproved:
		return apperrors.Conflict("ALREADY_APPROVED", "item %q has already been approved", resp.ItemText)
	case models.StateRejected:
		return apperrors.Conflict("AWAITING_REWORK", "item %q was rejected and must be answered again", resp.ItemText)
	default:
		return apperrors.Conflict("NOT_PENDING_APPROVAL", "item %q has not been answered", resp.ItemText)
	}
}

// Queue lists the tenant's responses awaiting approval, oldest first. With
// an approver only the checklists routed to them or to nobody are included.
func (s *ApprovalService) Queue(ctx context.Context, tenantID string, approverID *string) ([]models.ApprovalQueueItem, error) {
	items, err := s.checklists.ApprovalQueue(ctx, tenantID, trimmed(approverID))
	if err != nil {
		return nil, fmt.Errorf("failed to load approval queue: %w", err)
	}
	return items, nil
}

// History returns every decision recorded on a response
func (s *ApprovalService) History(ctx context.Context, tenantID, responseID string) ([]models.Approval, error) {
	resp, err := s.checklists.GetResponse(ctx, tenantID, responseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item response: %w", err)
	}
	if resp == nil {
		return nil, apperrors.NotFound("item_response")
	}
	return s.checklists.ListApprovals(ctx, tenantID, responseID)
}
