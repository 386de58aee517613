// Package models - approval.go defines sign-off decisions on item responses and the
// approval queue view used by approvers.
package models

import "time"

// Approval records one decision on a requires-approval response. A response
// may collect several rows over time (rejected, reworked, then approved).
type Approval struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"-"`
	ResponseID string    `db:"response_id" json:"response_id"`
	InstanceID string    `db:"instance_id" json:"instance_id"`
	ApproverID string    `db:"approver_id" json:"approver_id"`
	Decision   Decision  `db:"decision" json:"decision"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ApprovalQueueItem is a response awaiting approval with its checklist context
type ApprovalQueueItem struct {
	ResponseID       string     `db:"response_id" json:"response_id"`
	InstanceID       string     `db:"instance_id" json:"instance_id"`
	TemplateItemID   string     `db:"template_item_id" json:"template_item_id"`
	ItemText         string     `db:"item_text" json:"item_text"`
	ResponseValue    *string    `db:"response_value" json:"response_value,omitempty"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	IssueSeverity    *string    `db:"issue_severity" json:"issue_severity,omitempty"`
	IssueDescription *string    `db:"issue_description" json:"issue_description,omitempty"`
	CompletedBy      *string    `db:"completed_by" json:"completed_by,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	InstanceStatus   string     `db:"instance_status" json:"instance_status"`
	AssignedTo       string     `db:"assigned_to" json:"assigned_to"`
	ApproverID       *string    `db:"approver_id" json:"approver_id,omitempty"`
	PropertyID       string     `db:"property_id" json:"property_id"`
	PropertyName     string     `db:"property_name" json:"property_name"`
	TemplateID       string     `db:"template_id" json:"template_id"`
	TemplateName     string     `db:"template_name" json:"template_name"`
}

// Comment is a free-text note on a checklist, optionally tied to one response
type Comment struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"-"`
	InstanceID string    `db:"instance_id" json:"instance_id"`
	ResponseID *string   `db:"response_id" json:"response_id,omitempty"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	Body       string    `db:"body" json:"body"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Property is the read-only view of a property owned by the property service
type Property struct {
	ID           string  `db:"id" json:"id"`
	TenantID     string  `db:"tenant_id" json:"tenant_id"`
	Name         string  `db:"name" json:"name"`
	PropertyType *string `db:"property_type" json:"property_type,omitempty"`
}
