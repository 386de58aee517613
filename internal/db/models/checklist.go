// Package models - checklist.go defines checklist templates, instances and item responses,
// together with the two state machines that govern them: the instance lifecycle
// (pending → in_progress → completed → approved) and the per-response approval state.
package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ChecklistStatus is the lifecycle state of a checklist instance
type ChecklistStatus string

const (
	StatusPending    ChecklistStatus = "pending"
	StatusInProgress ChecklistStatus = "in_progress"
	StatusCompleted  ChecklistStatus = "completed"
	StatusApproved   ChecklistStatus = "approved"
)

// checklistTransitions lists the target states reachable from each state.
// pending and in_progress are derived from answered items; completed and
// approved are only entered through explicit, guarded transitions.
var checklistTransitions = map[ChecklistStatus][]ChecklistStatus{
	StatusPending:    {StatusInProgress, StatusCompleted},
	StatusInProgress: {StatusPending, StatusCompleted},
	StatusCompleted:  {StatusApproved},
	StatusApproved:   nil,
}

// ParseChecklistStatus validates a status string
func ParseChecklistStatus(s string) (ChecklistStatus, error) {
	st := ChecklistStatus(s)
	if _, ok := checklistTransitions[st]; !ok {
		return "", fmt.Errorf("unknown checklist status %q", s)
	}
	return st, nil
}

// IsFinal reports whether the checklist has been finalized. Finalized
// checklists cannot be deleted.
func (s ChecklistStatus) IsFinal() bool {
	return s == StatusCompleted || s == StatusApproved
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
// Staying in the same state is not a transition.
func (s ChecklistStatus) CanTransitionTo(next ChecklistStatus) bool {
	for _, allowed := range checklistTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ProgressStatus derives the working status of a non-final checklist from
// the number of answered items: pending while nothing is answered, in_progress
// afterwards. Final states are returned unchanged.
func (s ChecklistStatus) ProgressStatus(answered int) ChecklistStatus {
	if s.IsFinal() {
		return s
	}
	if answered == 0 {
		return StatusPending
	}
	return StatusInProgress
}

// ApprovalState is the per-response state. Responses for items without the
// requires-approval flag only ever move between unanswered and answered.
type ApprovalState string

const (
	StateUnanswered      ApprovalState = "unanswered"
	StateAnswered        ApprovalState = "answered"
	StatePendingApproval ApprovalState = "pending_approval"
	StateApproved        ApprovalState = "approved"
	StateRejected        ApprovalState = "rejected"
)

// StateAfterAnswer returns the state a response enters when a value is recorded
func StateAfterAnswer(requiresApproval bool) ApprovalState {
	if requiresApproval {
		return StatePendingApproval
	}
	return StateAnswered
}

// Counts reports whether a response in this state counts towards completion.
// Rejected responses need rework and do not count.
func (s ApprovalState) Counts() bool {
	return s == StateAnswered || s == StatePendingApproval || s == StateApproved
}

// Decision is the outcome recorded on an Approval row
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ResponseType is the kind of answer a template item expects
type ResponseType string

const (
	ResponseYesNo  ResponseType = "yes_no"
	ResponseText   ResponseType = "text"
	ResponseNumber ResponseType = "number"
	ResponseRating ResponseType = "rating"
	ResponsePhoto  ResponseType = "photo"
)

// ResponseTypes lists every supported ResponseType
var ResponseTypes = []ResponseType{ResponseYesNo, ResponseText, ResponseNumber, ResponseRating, ResponsePhoto}

// Valid reports whether t is a supported response type
func (t ResponseType) Valid() bool {
	for _, rt := range ResponseTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// NormalizeValue checks a recorded value against the response type and
// returns its canonical form (yes/no/n/a for yes_no, trimmed text otherwise).
func (t ResponseType) NormalizeValue(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("response value is required")
	}
	switch t {
	case ResponseYesNo:
		switch strings.ToLower(v) {
		case "yes", "y", "true", "pass":
			return "yes", nil
		case "no", "n", "false", "fail":
			return "no", nil
		case "n/a", "na":
			return "n/a", nil
		}
		return "", fmt.Errorf("yes_no response must be yes, no or n/a")
	case ResponseNumber:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("number response must be numeric")
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case ResponseRating:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 5 {
			return "", fmt.Errorf("rating response must be an integer from 1 to 5")
		}
		return strconv.Itoa(n), nil
	case ResponseText, ResponsePhoto:
		return v, nil
	}
	return "", fmt.Errorf("unsupported response type %q", t)
}

// IssueSeverity grades an issue flagged while answering an item
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// Valid reports whether s is a known severity
func (s IssueSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ChecklistTemplate is a tenant-owned, reusable checklist definition
type ChecklistTemplate struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description"`
	PropertyType *string   `db:"property_type" json:"property_type,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	// Joined / computed fields
	ItemCount int            `db:"item_count" json:"item_count"`
	Items     []TemplateItem `db:"-" json:"items,omitempty"`
}

// TemplateItem is one ordered entry of a template
type TemplateItem struct {
	ID               string       `db:"id" json:"id"`
	TemplateID       string       `db:"template_id" json:"template_id"`
	Text             string       `db:"text" json:"text"`
	Description      string       `db:"description" json:"description"`
	IsRequired       bool         `db:"is_required" json:"is_required"`
	RequiresApproval bool         `db:"requires_approval" json:"requires_approval"`
	ResponseType     ResponseType `db:"response_type" json:"response_type"`
	SortOrder        int          `db:"sort_order" json:"sort_order"`
}

// ChecklistInstance is one execution of a template against one property
type ChecklistInstance struct {
	ID            string          `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	TemplateID    string          `db:"template_id" json:"template_id"`
	PropertyID    string          `db:"property_id" json:"property_id"`
	Status        ChecklistStatus `db:"status" json:"status"`
	AssignedTo    string          `db:"assigned_to" json:"assigned_to"`
	ApproverID    *string         `db:"approver_id" json:"approver_id,omitempty"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	DueDate       *time.Time      `db:"due_date" json:"due_date,omitempty"`
	SourceAlertID *string         `db:"source_alert_id" json:"source_alert_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	ApprovedAt    *time.Time      `db:"approved_at" json:"approved_at,omitempty"`

	// Joined fields
	TemplateName string `db:"template_name" json:"template_name"`
	PropertyName string `db:"property_name" json:"property_name"`

	CompletionSummary

	Responses []ItemResponse `db:"-" json:"responses,omitempty"`
}

// CompletionSummary is computed from the responses table on every read
type CompletionSummary struct {
	TotalItems           int `db:"total_items" json:"total_items"`
	CompletedItems       int `db:"completed_items" json:"completed_items"`
	ItemsWithIssues      int `db:"items_with_issues" json:"items_with_issues"`
	CompletionPercentage int `db:"-" json:"completion_percentage"`
}

// CompletionPercentage returns round(100 × completed / total), and 0 when total is 0
func CompletionPercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

// Finalize fills the derived percentage from the counters
func (s *CompletionSummary) Finalize() {
	s.CompletionPercentage = CompletionPercentage(s.CompletedItems, s.TotalItems)
}

// ItemResponse is the recorded answer to one template item within one instance.
// Item fields are a snapshot taken when the instance was created.
type ItemResponse struct {
	ID               string        `db:"id" json:"id"`
	TenantID         string        `db:"tenant_id" json:"-"`
	InstanceID       string        `db:"instance_id" json:"instance_id"`
	TemplateItemID   string        `db:"template_item_id" json:"template_item_id"`
	ItemText         string        `db:"item_text" json:"item_text"`
	IsRequired       bool          `db:"is_required" json:"is_required"`
	RequiresApproval bool          `db:"requires_approval" json:"requires_approval"`
	ResponseType     ResponseType  `db:"response_type" json:"response_type"`
	SortOrder        int           `db:"sort_order" json:"sort_order"`
	ResponseValue    *string       `db:"response_value" json:"response_value,omitempty"`
	Notes            *string       `db:"notes" json:"notes,omitempty"`
	IssueSeverity    *string       `db:"issue_severity" json:"issue_severity,omitempty"`
	IssueDescription *string       `db:"issue_description" json:"issue_description,omitempty"`
	ApprovalState    ApprovalState `db:"approval_state" json:"approval_state"`
	CompletedBy      *string       `db:"completed_by" json:"completed_by,omitempty"`
	CompletedAt      *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// HasIssue reports whether an issue was flagged on the response
func (r *ItemResponse) HasIssue() bool {
	return r.IssueSeverity != nil && *r.IssueSeverity != ""
}

// OutstandingItems returns the text of every required response without a
// value, plus every response rejected and awaiting rework. A checklist can
// only be marked complete when the result is empty.
func OutstandingItems(responses []ItemResponse) []string {
	var out []string
	for _, r := range responses {
		switch {
		case r.ApprovalState == StateRejected:
			out = append(out, r.ItemText+" (rejected)")
		case r.IsRequired && (r.ResponseValue == nil || r.ApprovalState == StateUnanswered):
			out = append(out, r.ItemText)
		}
	}
	return out
}

// AwaitingDecision returns the responses still pending approval or rejected.
// A completed checklist may only be approved when none remain.
func AwaitingDecision(responses []ItemResponse) []ItemResponse {
	var out []ItemResponse
	for _, r := range responses {
		if r.ApprovalState == StatePendingApproval || r.ApprovalState == StateRejected {
			out = append(out, r)
		}
	}
	return out
}
