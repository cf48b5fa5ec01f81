package service

import (
	"context"
	"errors"
	"testing"

	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
)

func newApprovalService(taskRepo *mockTaskRepo, assignmentRepo *mockAssignmentRepo, oracle *mockOracle, notifier *recordingNotifier, auditor *recordingAuditor) ApprovalService {
	return NewApprovalService(
		taskRepo,
		assignmentRepo,
		oracle,
		notifier,
		auditor,
		&mockTxManager{},
		nil,
		&mockLogger{},
	)
}

func inProgressTask(id, createdBy string) *entity.Task {
	task := pendingTask(id, createdBy)
	task.Status = entity.TaskStatusInProgress
	return task
}

func TestRequestApproval(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	assignmentRepo := &mockAssignmentRepo{
		getByTaskAndActorFunc: func(ctx context.Context, taskID, actorID string) (*entity.Assignment, error) {
			a := pendingAssignment("a-1", taskID, actorID, "alice")
			a.Status = entity.AssignmentStatusAccepted
			return a, nil
		},
	}
	notifier := &recordingNotifier{}
	svc := newApprovalService(taskRepo, assignmentRepo, &mockOracle{}, notifier, &recordingAuditor{})

	if err := svc.RequestApproval(context.Background(), "task-1", "bob"); err != nil {
		t.Fatalf("RequestApproval() error = %v", err)
	}
	if task.ApprovalStatus != entity.ApprovalStatusPending {
		t.Errorf("ApprovalStatus = %q, want %q", task.ApprovalStatus, entity.ApprovalStatusPending)
	}
	if task.ApprovalRequestedBy != "bob" {
		t.Errorf("ApprovalRequestedBy = %q, want bob", task.ApprovalRequestedBy)
	}
	if task.Status != entity.TaskStatusInProgress {
		t.Errorf("Status = %q, requesting approval must not change it", task.Status)
	}
	if len(notifier.deduped) != 1 || notifier.deduped[0].ActorID != "alice" || notifier.deduped[0].Action != entity.ActionApprovalRequested {
		t.Errorf("notifications = %+v", notifier.deduped)
	}
}

func TestRequestApprovalAlreadyPendingIsNoOp(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	task.ApprovalStatus = entity.ApprovalStatusPending
	task.ApprovalRequestedBy = "bob"
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	notifier := &recordingNotifier{}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, &mockOracle{}, notifier, &recordingAuditor{})

	if err := svc.RequestApproval(context.Background(), "task-1", "carol"); err != nil {
		t.Fatalf("RequestApproval() error = %v", err)
	}
	if task.ApprovalRequestedBy != "bob" {
		t.Errorf("ApprovalRequestedBy = %q, re-request must not overwrite", task.ApprovalRequestedBy)
	}
	if len(notifier.deduped) != 0 {
		t.Errorf("notifications = %d, want 0", len(notifier.deduped))
	}
}

func TestRequestApprovalAlreadyApproved(t *testing.T) {
	task := pendingTask("task-1", "alice")
	task.Status = entity.TaskStatusCompleted
	task.ApprovalStatus = entity.ApprovalStatusApproved
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, &mockOracle{}, &recordingNotifier{}, &recordingAuditor{})

	err := svc.RequestApproval(context.Background(), "task-1", "bob")
	if !errors.Is(err, entity.ErrInvalidState) {
		t.Errorf("RequestApproval() error = %v, want ErrInvalidState", err)
	}
}

func TestRequestApprovalWrongStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"pending task", entity.TaskStatusPending},
		{"cancelled task", entity.TaskStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := pendingTask("task-1", "alice")
			task.Status = tt.status
			taskRepo := &mockTaskRepo{
				getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
					return task, nil
				},
			}
			svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, &mockOracle{}, &recordingNotifier{}, &recordingAuditor{})

			err := svc.RequestApproval(context.Background(), "task-1", "bob")
			if !errors.Is(err, entity.ErrInvalidState) {
				t.Errorf("RequestApproval() error = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestRequestApprovalNonAssigneeNeedsPermission(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	oracle := &mockOracle{
		canPerformFunc: func(ctx context.Context, actorID string, task *entity.Task, op port.Operation) (bool, error) {
			return false, nil
		},
	}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, oracle, &recordingNotifier{}, &recordingAuditor{})

	err := svc.RequestApproval(context.Background(), "task-1", "mallory")
	if !errors.Is(err, entity.ErrPermissionDenied) {
		t.Errorf("RequestApproval() error = %v, want ErrPermissionDenied", err)
	}
}

func TestApprove(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	task.ApprovalStatus = entity.ApprovalStatusPending
	task.ApprovalRequestedBy = "bob"
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	notifier := &recordingNotifier{}
	auditor := &recordingAuditor{}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, &mockOracle{}, notifier, auditor)

	if err := svc.Approve(context.Background(), "task-1", "alice"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	// gate resolution and status move together
	if task.ApprovalStatus != entity.ApprovalStatusApproved {
		t.Errorf("ApprovalStatus = %q, want %q", task.ApprovalStatus, entity.ApprovalStatusApproved)
	}
	if task.Status != entity.TaskStatusCompleted {
		t.Errorf("Status = %q, want %q", task.Status, entity.TaskStatusCompleted)
	}
	if task.ApprovedBy != "alice" || task.ApprovedAt == nil {
		t.Error("expected approval attribution to be stamped")
	}
	if len(taskRepo.history) != 1 || taskRepo.history[0].Status != entity.TaskStatusCompleted {
		t.Errorf("history = %+v, want one COMPLETED entry", taskRepo.history)
	}
	if len(notifier.deduped) != 1 || notifier.deduped[0].ActorID != "bob" || notifier.deduped[0].Action != entity.ActionApproved {
		t.Errorf("notifications = %+v", notifier.deduped)
	}
	if len(auditor.records) != 1 || auditor.records[0][0] != "task.approved" {
		t.Errorf("audit records = %v", auditor.records)
	}
}

func TestApproveCompletedTaskAppendsNoHistory(t *testing.T) {
	task := pendingTask("task-1", "alice")
	task.Status = entity.TaskStatusCompleted
	task.ApprovalStatus = entity.ApprovalStatusPending
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, &mockOracle{}, &recordingNotifier{}, &recordingAuditor{})

	if err := svc.Approve(context.Background(), "task-1", "alice"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if len(taskRepo.history) != 0 {
		t.Errorf("history entries = %d, want 0", len(taskRepo.history))
	}
}

func TestApproveWithoutPendingRequest(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, &mockOracle{}, &recordingNotifier{}, &recordingAuditor{})

	err := svc.Approve(context.Background(), "task-1", "alice")
	if !errors.Is(err, entity.ErrInvalidState) {
		t.Errorf("Approve() error = %v, want ErrInvalidState", err)
	}
	if task.Status != entity.TaskStatusInProgress {
		t.Errorf("Status = %q, refused approval must not change it", task.Status)
	}
}

func TestApprovePermissionDenied(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	task.ApprovalStatus = entity.ApprovalStatusPending
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	oracle := &mockOracle{
		canPerformFunc: func(ctx context.Context, actorID string, task *entity.Task, op port.Operation) (bool, error) {
			return false, nil
		},
	}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, oracle, &recordingNotifier{}, &recordingAuditor{})

	err := svc.Approve(context.Background(), "task-1", "mallory")
	if !errors.Is(err, entity.ErrPermissionDenied) {
		t.Errorf("Approve() error = %v, want ErrPermissionDenied", err)
	}
	if task.ApprovalStatus != entity.ApprovalStatusPending {
		t.Errorf("ApprovalStatus = %q, denied approval must not resolve the gate", task.ApprovalStatus)
	}
}

func TestRejectApproval(t *testing.T) {
	task := pendingTask("task-1", "alice")
	task.Status = entity.TaskStatusCompleted
	task.ApprovalStatus = entity.ApprovalStatusPending
	task.ApprovalRequestedBy = "bob"
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	notifier := &recordingNotifier{}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, &mockOracle{}, notifier, &recordingAuditor{})

	if err := svc.RejectApproval(context.Background(), "task-1", "alice", "missing the appendix"); err != nil {
		t.Fatalf("RejectApproval() error = %v", err)
	}

	// rejection reopens the task
	if task.ApprovalStatus != entity.ApprovalStatusRejected {
		t.Errorf("ApprovalStatus = %q, want %q", task.ApprovalStatus, entity.ApprovalStatusRejected)
	}
	if task.Status != entity.TaskStatusInProgress {
		t.Errorf("Status = %q, want %q", task.Status, entity.TaskStatusInProgress)
	}
	if task.RejectedBy != "alice" || task.ApprovalRejectionReason != "missing the appendix" {
		t.Error("expected rejection attribution and reason to be recorded")
	}
	if len(taskRepo.history) != 1 || taskRepo.history[0].Status != entity.TaskStatusInProgress {
		t.Errorf("history = %+v, want one IN_PROGRESS entry", taskRepo.history)
	}
	if len(notifier.deduped) != 1 || notifier.deduped[0].ActorID != "bob" || notifier.deduped[0].Action != entity.ActionApprovalRejected {
		t.Errorf("notifications = %+v", notifier.deduped)
	}
}

func TestRejectApprovalReasonIsOptional(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	task.ApprovalStatus = entity.ApprovalStatusPending
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	svc := newApprovalService(taskRepo, &mockAssignmentRepo{}, &mockOracle{}, &recordingNotifier{}, &recordingAuditor{})

	if err := svc.RejectApproval(context.Background(), "task-1", "alice", ""); err != nil {
		t.Errorf("RejectApproval() with empty reason error = %v", err)
	}
}

func TestRejectApprovalThenReRequest(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	task.ApprovalStatus = entity.ApprovalStatusRejected
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	assignmentRepo := &mockAssignmentRepo{
		getByTaskAndActorFunc: func(ctx context.Context, taskID, actorID string) (*entity.Assignment, error) {
			a := pendingAssignment("a-1", taskID, actorID, "alice")
			a.Status = entity.AssignmentStatusAccepted
			return a, nil
		},
	}
	svc := newApprovalService(taskRepo, assignmentRepo, &mockOracle{}, &recordingNotifier{}, &recordingAuditor{})

	if err := svc.RequestApproval(context.Background(), "task-1", "bob"); err != nil {
		t.Fatalf("RequestApproval() after rejection error = %v", err)
	}
	if task.ApprovalStatus != entity.ApprovalStatusPending {
		t.Errorf("ApprovalStatus = %q, want %q", task.ApprovalStatus, entity.ApprovalStatusPending)
	}
}

func TestApproveNotifiesAcceptedAssignees(t *testing.T) {
	task := inProgressTask("task-1", "alice")
	task.ApprovalStatus = entity.ApprovalStatusPending
	task.ApprovalRequestedBy = "bob"
	taskRepo := &mockTaskRepo{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Task, error) {
			return task, nil
		},
	}
	assignmentRepo := &mockAssignmentRepo{
		getByTaskIDFunc: func(ctx context.Context, taskID string) ([]*entity.Assignment, error) {
			return []*entity.Assignment{
				{ID: "a-1", TaskID: taskID, ActorID: "bob", Status: entity.AssignmentStatusAccepted},
				{ID: "a-2", TaskID: taskID, ActorID: "carol", Status: entity.AssignmentStatusAccepted},
				{ID: "a-3", TaskID: taskID, ActorID: "dave", Status: entity.AssignmentStatusRejected},
			}, nil
		},
	}
	notifier := &recordingNotifier{}
	svc := newApprovalService(taskRepo, assignmentRepo, &mockOracle{}, notifier, &recordingAuditor{})

	if err := svc.Approve(context.Background(), "task-1", "alice"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	// bob requested and is accepted: one notification, not two; dave rejected
	got := map[string]bool{}
	for _, n := range notifier.deduped {
		if got[n.ActorID] {
			t.Errorf("duplicate notification for %q", n.ActorID)
		}
		got[n.ActorID] = true
	}
	if !got["bob"] || !got["carol"] || len(got) != 2 {
		t.Errorf("notified = %v, want bob and carol", got)
	}
}
