package services

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/audit"
	"github.com/propaudit/propaudit/internal/db/models"
)

func newApprovalService(t *testing.T) (*ApprovalService, sqlmock.Sqlmock, *fakeRecorder) {
	t.Helper()
	repo, mock := newChecklistRepo(t)
	rec := &fakeRecorder{}
	return NewApprovalService(repo, rec), mock, rec
}

var signOff = resp{id: "r2", text: "Sign-off sheet", approval: true, rtype: models.ResponseText, state: models.StatePendingApproval, value: "signed"}

func expectResponse(mock sqlmock.Sqlmock, r resp) {
	mock.ExpectQuery(`FROM checklist_item_responses\s+WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(r.id, "tenant-1").
		WillReturnRows(responseRows(r))
}

func expectDecision(mock sqlmock.Sqlmock, to models.ApprovalState, rows int64) {
	mock.ExpectExec(`UPDATE checklist_item_responses\s+SET approval_state`).
		WithArgs("r2", "tenant-1", string(to)).
		WillReturnResult(sqlmock.NewResult(0, rows))
}

func TestReject_RequiresNotes(t *testing.T) {
	svc, _, rec := newApprovalService(t)
	for _, notes := range []*string{nil, strPtr(""), strPtr("   ")} {
		_, err := svc.Reject(context.Background(), "tenant-1", "approver-1", "r2", notes)
		ae := assertKind(t, err, apperrors.KindValidation)
		assert.Equal(t, "NOTES_REQUIRED", ae.Code)
	}
	assert.Empty(t, rec.events)
}

func TestReject_ReopensResponseAndLeavesStatus(t *testing.T) {
	svc, mock, rec := newApprovalService(t)
	mock.ExpectBegin()
	expectResponse(mock, signOff)
	expectInstance(mock, models.StatusInProgress, 4, 4)
	expectDecision(mock, models.StateRejected, 1)
	mock.ExpectExec(`INSERT INTO checklist_approvals`).
		WithArgs(sqlmock.AnyArg(), "tenant-1", "r2", "inst-1", "approver-1", "rejected", "missing signature", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Reject(context.Background(), "tenant-1", "approver-1", "r2", strPtr(" missing signature "))
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, res.ApprovalState)
	assert.Equal(t, models.StatusInProgress, res.InstanceStatus)
	assert.Equal(t, models.DecisionRejected, res.Approval.Decision)

	ev := rec.last(t)
	assert.Equal(t, audit.ActionChecklistRejected, ev.Action)
	assert.Equal(t, models.CategoryApproval, ev.Category)
	assert.Equal(t, audit.EntityResponse, ev.EntityType)
	assert.Equal(t, "missing signature", ev.Metadata["notes"])
}

func TestApprove_AlreadyApproved(t *testing.T) {
	svc, mock, rec := newApprovalService(t)
	approved := signOff
	approved.state = models.StateApproved

	mock.ExpectBegin()
	expectResponse(mock, approved)
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), "tenant-1", "approver-1", "r2", nil)
	ae := assertKind(t, err, apperrors.KindConflict)
	assert.Equal(t, "ALREADY_APPROVED", ae.Code)
	assert.Empty(t, rec.events)
}

func TestApprove_StateChecks(t *testing.T) {
	tests := []struct {
		name string
		r    resp
		code string
	}{
		{"not requiring approval", resp{id: "r2", text: "Smoke detectors tested", state: models.StateAnswered, value: "yes"}, "APPROVAL_NOT_REQUIRED"},
		{"unanswered", resp{id: "r2", text: "Sign-off sheet", approval: true, state: models.StateUnanswered}, "NOT_PENDING_APPROVAL"},
		{"rejected", resp{id: "r2", text: "Sign-off sheet", approval: true, state: models.StateRejected, value: "x"}, "AWAITING_REWORK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, _ := newApprovalService(t)
			mock.ExpectBegin()
			expectResponse(mock, tt.r)
			mock.ExpectRollback()

			_, err := svc.Approve(context.Background(), "tenant-1", "approver-1", "r2", nil)
			ae := assertKind(t, err, apperrors.KindConflict)
			assert.Equal(t, tt.code, ae.Code)
		})
	}
}

func TestApprove_LosesRace(t *testing.T) {
	svc, mock, rec := newApprovalService(t)
	mock.ExpectBegin()
	expectResponse(mock, signOff)
	expectInstance(mock, models.StatusInProgress, 4, 4)
	expectDecision(mock, models.StateApproved, 0)
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), "tenant-1", "approver-1", "r2", nil)
	assertKind(t, err, apperrors.KindConflict)
	assert.Empty(t, rec.events)
}

func TestApprove_InProgressChecklistKeepsStatus(t *testing.T) {
	svc, mock, rec := newApprovalService(t)
	mock.ExpectBegin()
	expectResponse(mock, signOff)
	expectInstance(mock, models.StatusInProgress, 4, 4)
	expectDecision(mock, models.StateApproved, 1)
	mock.ExpectExec(`INSERT INTO checklist_approvals`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Approve(context.Background(), "tenant-1", "approver-1", "r2", strPtr("looks good"))
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, res.ApprovalState)
	assert.Equal(t, models.StatusInProgress, res.InstanceStatus)
	assert.Equal(t, []string{audit.ActionChecklistApproved}, rec.actions())
	assert.Equal(t, audit.EntityResponse, rec.last(t).EntityType)
}

func TestApprove_LastDecisionApprovesCompletedChecklist(t *testing.T) {
	svc, mock, rec := newApprovalService(t)
	mock.ExpectBegin()
	expectResponse(mock, signOff)
	expectInstance(mock, models.StatusCompleted, 2, 2)
	expectDecision(mock, models.StateApproved, 1)
	mock.ExpectExec(`INSERT INTO checklist_approvals`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectListResponses(mock,
		resp{id: "r1", text: "Smoke detectors tested", required: true, state: models.StateAnswered, value: "yes"},
		resp{id: "r2", text: "Sign-off sheet", approval: true, state: models.StateApproved, value: "signed"},
	)
	expectTransition(mock, models.StatusCompleted, models.StatusApproved, 1)
	mock.ExpectCommit()

	res, err := svc.Approve(context.Background(), "tenant-1", "approver-1", "r2", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, res.InstanceStatus)

	require.Equal(t, []string{audit.ActionChecklistApproved, audit.ActionChecklistApproved}, rec.actions())
	assert.Equal(t, audit.EntityResponse, rec.events[0].EntityType)
	assert.Equal(t, audit.EntityChecklist, rec.events[1].EntityType)
}

func TestApprove_CompletedChecklistWithOtherPendingItems(t *testing.T) {
	svc, mock, rec := newApprovalService(t)
	mock.ExpectBegin()
	expectResponse(mock, signOff)
	expectInstance(mock, models.StatusCompleted, 3, 3)
	expectDecision(mock, models.StateApproved, 1)
	mock.ExpectExec(`INSERT INTO checklist_approvals`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectListResponses(mock,
		resp{id: "r2", text: "Sign-off sheet", approval: true, state: models.StateApproved, value: "signed"},
		resp{id: "r3", text: "Gas certificate", approval: true, state: models.StatePendingApproval, value: "attached"},
	)
	mock.ExpectCommit()

	res, err := svc.Approve(context.Background(), "tenant-1", "approver-1", "r2", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.InstanceStatus)
	assert.Len(t, rec.events, 1)
}

func TestApprove_UnknownResponse(t *testing.T) {
	svc, mock, _ := newApprovalService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM checklist_item_responses\s+WHERE id = \$1`).WillReturnRows(sqlmock.NewRows(responseCols))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), "tenant-2", "approver-1", "r2", nil)
	assertKind(t, err, apperrors.KindNotFound)
}

// Scenario: a requires-approval answer enters the queue, is rejected with
// "missing signature", leaves the queue and stays editable while the
// checklist status is unchanged.
func TestRejectionScenario(t *testing.T) {
	repo, mock := newChecklistRepo(t)
	rec := &fakeRecorder{}
	approvals := NewApprovalService(repo, rec)
	ctx := context.Background()

	queueCols := []string{
		"response_id", "instance_id", "template_item_id", "item_text", "response_value", "notes",
		"issue_severity", "issue_description", "completed_by", "completed_at",
		"instance_status", "assigned_to", "approver_id", "property_id", "property_name",
		"template_id", "template_name",
	}
	mock.ExpectQuery(`approval_state = 'pending_approval'`).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows(queueCols).AddRow(
			"r2", "inst-1", "item-r2", "Sign-off sheet", "signed", nil, nil, nil, "user-1", time.Now(),
			"in_progress", "user-1", nil, "prop-1", "Harbor View", "tpl-1", "Monthly Safety Inspection"))

	queue, err := approvals.Queue(ctx, "tenant-1", nil)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "r2", queue[0].ResponseID)

	mock.ExpectBegin()
	expectResponse(mock, signOff)
	expectInstance(mock, models.StatusInProgress, 4, 4)
	expectDecision(mock, models.StateRejected, 1)
	mock.ExpectExec(`INSERT INTO checklist_approvals`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := approvals.Reject(ctx, "tenant-1", "approver-1", "r2", strPtr("missing signature"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, res.InstanceStatus)

	mock.ExpectQuery(`approval_state = 'pending_approval'`).WillReturnRows(sqlmock.NewRows(queueCols))
	queue, err = approvals.Queue(ctx, "tenant-1", nil)
	require.NoError(t, err)
	assert.Empty(t, queue)

	checklists := NewChecklistService(repo, nil, nil, nil, rec)
	mock.ExpectBegin()
	expectInstance(mock, models.StatusInProgress, 4, 4)
	rejected := signOff
	rejected.state = models.StateRejected
	expectResponseByItem(mock, rejected)
	mock.ExpectExec(`UPDATE checklist_item_responses\s+SET response_value`).
		WithArgs("r2", "tenant-1", "signed and dated", nil, nil, nil, "pending_approval", "user-1", sqlmock.AnyArg(), "rejected").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectAnswered(mock, 4)
	mock.ExpectExec(`UPDATE checklist_instances SET updated_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectSummary(mock, 4, 4, 0)
	mock.ExpectCommit()

	item, err := checklists.CompleteItem(ctx, "tenant-1", "user-1", "inst-1", "item-r2", CompleteItemInput{ResponseValue: "signed and dated"})
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingApproval, item.Response.ApprovalState)
}

func TestQueue_FiltersByApprover(t *testing.T) {
	svc, mock, _ := newApprovalService(t)
	mock.ExpectQuery(`i\.approver_id = \$2 OR i\.approver_id IS NULL`).
		WithArgs("tenant-1", "approver-1").
		WillReturnRows(sqlmock.NewRows([]string{"response_id"}))

	_, err := svc.Queue(context.Background(), "tenant-1", strPtr("approver-1"))
	require.NoError(t, err)
}

func TestHistory(t *testing.T) {
	svc, mock, _ := newApprovalService(t)
	expectResponse(mock, signOff)
	mock.ExpectQuery(`FROM checklist_approvals`).
		WithArgs("r2", "tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "response_id", "instance_id", "approver_id", "decision", "notes", "created_at"}).
			AddRow("ap-1", "tenant-1", "r2", "inst-1", "approver-1", "rejected", "missing signature", time.Now().Add(-time.Hour)).
			AddRow("ap-2", "tenant-1", "r2", "inst-1", "approver-1", "approved", nil, time.Now()))

	history, err := svc.History(context.Background(), "tenant-1", "r2")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.DecisionRejected, history[0].Decision)
	assert.Equal(t, models.DecisionApproved, history[1].Decision)
}

func TestHistory_UnknownResponse(t *testing.T) {
	svc, mock, _ := newApprovalService(t)
	mock.ExpectQuery(`FROM checklist_item_responses\s+WHERE id = \$1`).WillReturnRows(sqlmock.NewRows(responseCols))

	_, err := svc.History(context.Background(), "tenant-1", "r2")
	assertKind(t, err, apperrors.KindNotFound)
}
