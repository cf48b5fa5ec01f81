package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskops/workflow/internal/application/dispatcher"
	"github.com/taskops/workflow/internal/application/port"
	appworkflow "github.com/taskops/workflow/internal/application/workflow"
	"github.com/taskops/workflow/internal/domain/entity"
	"github.com/taskops/workflow/internal/domain/event"
	domainwf "github.com/taskops/workflow/internal/domain/workflow"
)

// ApprovalService runs the task approval gate: request, approve, reject.
// Approval is a sub-state of the task, coupled to its status — approving
// completes the task, rejecting approval reopens it.
type ApprovalService interface {
	// RequestApproval moves the gate to pending. The task must be in
	// progress or completed. Requesting while already pending is a no-op;
	// requesting an approved task is a state conflict.
	RequestApproval(ctx context.Context, taskID, actorID string) error

	// Approve resolves the gate to approved and completes the task in the
	// same transaction.
	Approve(ctx context.Context, taskID, actorID string) error

	// RejectApproval resolves a pending gate to rejected and reopens the
	// task to in progress. The reason is optional and carries no length
	// floor; rejection here is a review outcome, not an arbitration claim.
	RejectApproval(ctx context.Context, taskID, actorID, reason string) error
}

type approvalServiceImpl struct {
	taskRepo       port.TaskRepository
	assignmentRepo port.AssignmentRepository
	oracle         port.PermissionOracle
	notifier       Notifier
	auditor        Auditor
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	taskRepo port.TaskRepository,
	assignmentRepo port.AssignmentRepository,
	oracle port.PermissionOracle,
	notifier Notifier,
	auditor Auditor,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		taskRepo:       taskRepo,
		assignmentRepo: assignmentRepo,
		oracle:         oracle,
		notifier:       notifier,
		auditor:        auditor,
		txManager:      txManager,
		dispatcher:     d,
		logger:         logger,
	}
}

// RequestApproval moves the approval gate to pending and asks the task
// creator to review.
func (s *approvalServiceImpl) RequestApproval(ctx context.Context, taskID, actorID string) error {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.checkRequester(ctx, actorID, task); err != nil {
		return err
	}

	switch task.ApprovalStatus {
	case entity.ApprovalStatusApproved:
		return fmt.Errorf("%w: task %s is already approved", entity.ErrInvalidState, taskID)
	case entity.ApprovalStatusPending:
		// Already awaiting review
		return nil
	}

	if task.Status != entity.TaskStatusInProgress && task.Status != entity.TaskStatusCompleted {
		return fmt.Errorf("%w: task %s must be in progress or completed to request approval, got %s",
			entity.ErrInvalidState, taskID, task.Status)
	}

	if err := s.fireApproval(ctx, task, appworkflow.TriggerRequestApproval); err != nil {
		return err
	}

	task.ApprovalRequestedBy = actorID
	task.UpdatedAt = time.Now()

	if err := s.taskRepo.Update(ctx, task); err != nil {
		s.logger.Error("Failed to request approval", "error", err, "task_id", taskID)
		return fmt.Errorf("update task: %w", err)
	}

	s.auditor.Record(ctx, "task.approval_requested", entity.EntityKindTask, task.ID, actorID,
		"", task.ApprovalStatus)

	s.notifier.NotifyDedup(ctx, NotificationRequest{
		ActorID:  task.CreatedBy,
		TaskID:   task.ID,
		Kind:     entity.NotificationKindApproval,
		Title:    fmt.Sprintf("%s requested approval for task %q", actorID, task.Title),
		Action:   entity.ActionApprovalRequested,
		Metadata: event.ApprovalMetadata{RequestedBy: actorID},
	})

	s.logger.Info("Approval requested", "task_id", taskID, "requested_by", actorID)
	return nil
}

// Approve resolves the gate and completes the task atomically.
func (s *approvalServiceImpl) Approve(ctx context.Context, taskID, actorID string) error {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.checkPermission(ctx, actorID, task, port.OpApprove); err != nil {
		return err
	}

	if task.ApprovalStatus != entity.ApprovalStatusPending {
		return fmt.Errorf("%w: task %s has no pending approval request", entity.ErrInvalidState, taskID)
	}

	if err := s.fireApproval(ctx, task, appworkflow.TriggerApprove); err != nil {
		return err
	}

	now := time.Now()
	oldStatus := task.Status
	task.ApprovedBy = actorID
	task.ApprovedAt = &now
	task.Status = entity.TaskStatusCompleted
	task.StatusUpdatedBy = actorID
	task.StatusUpdatedAt = &now
	task.UpdatedAt = now

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.taskRepo.Update(txCtx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if oldStatus != task.Status {
			change := &entity.StatusChange{
				ID:        ulid.Make().String(),
				TaskID:    task.ID,
				Status:    task.Status,
				Actor:     actorID,
				Timestamp: now,
			}
			if err := s.taskRepo.AppendStatusHistory(txCtx, change); err != nil {
				return fmt.Errorf("append status history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to approve task", "error", err, "task_id", taskID)
		return err
	}

	s.auditor.Record(ctx, "task.approved", entity.EntityKindTask, task.ID, actorID,
		entity.ApprovalStatusPending, task.ApprovalStatus)

	s.notifyResolved(ctx, task, actorID, entity.ActionApproved,
		fmt.Sprintf("Task %q was approved by %s", task.Title, actorID), "")

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewApprovalResolvedEvent(task.ID, actorID,
			entity.ApprovalStatusPending, task.ApprovalStatus))
	}

	s.logger.Info("Task approved", "task_id", taskID, "approved_by", actorID)
	return nil
}

// RejectApproval resolves a pending gate to rejected and reopens the task.
func (s *approvalServiceImpl) RejectApproval(ctx context.Context, taskID, actorID, reason string) error {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.checkPermission(ctx, actorID, task, port.OpRejectApproval); err != nil {
		return err
	}

	if task.ApprovalStatus != entity.ApprovalStatusPending {
		return fmt.Errorf("%w: task %s has no pending approval request", entity.ErrInvalidState, taskID)
	}

	if err := s.fireApproval(ctx, task, appworkflow.TriggerRejectApproval); err != nil {
		return err
	}

	now := time.Now()
	oldStatus := task.Status
	task.RejectedBy = actorID
	task.RejectedAt = &now
	task.ApprovalRejectionReason = reason
	task.Status = entity.TaskStatusInProgress
	task.UpdatedAt = now

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if oldStatus != task.Status {
			task.StatusUpdatedBy = actorID
			task.StatusUpdatedAt = &now
		}
		if err := s.taskRepo.Update(txCtx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if oldStatus != task.Status {
			change := &entity.StatusChange{
				ID:        ulid.Make().String(),
				TaskID:    task.ID,
				Status:    task.Status,
				Actor:     actorID,
				Timestamp: now,
			}
			if err := s.taskRepo.AppendStatusHistory(txCtx, change); err != nil {
				return fmt.Errorf("append status history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to reject approval", "error", err, "task_id", taskID)
		return err
	}

	s.auditor.Record(ctx, "task.approval_rejected", entity.EntityKindTask, task.ID, actorID,
		entity.ApprovalStatusPending, task.ApprovalStatus)

	s.notifyResolved(ctx, task, actorID, entity.ActionApprovalRejected,
		fmt.Sprintf("Approval for task %q was rejected by %s", task.Title, actorID), reason)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewApprovalResolvedEvent(task.ID, actorID,
			entity.ApprovalStatusPending, task.ApprovalStatus))
	}

	s.logger.Info("Approval rejected", "task_id", taskID, "rejected_by", actorID)
	return nil
}

// notifyResolved fans an approval gate decision out to the requester and the
// task's accepted assignees, excluding the deciding actor, deduplicated.
func (s *approvalServiceImpl) notifyResolved(ctx context.Context, task *entity.Task, decidedBy, action, title, body string) {
	targets := map[string]bool{}
	if task.ApprovalRequestedBy != "" {
		targets[task.ApprovalRequestedBy] = true
	}

	assignments, err := s.assignmentRepo.GetByTaskID(ctx, task.ID)
	if err != nil {
		s.logger.Error("Failed to load assignments for approval fan-out",
			"error", err, "task_id", task.ID)
	} else {
		for _, a := range assignments {
			if a.Status == entity.AssignmentStatusAccepted {
				targets[a.ActorID] = true
			}
		}
	}
	delete(targets, decidedBy)

	meta := event.ApprovalMetadata{ResolvedBy: decidedBy, Reason: body}
	for target := range targets {
		s.notifier.NotifyDedup(ctx, NotificationRequest{
			ActorID:  target,
			TaskID:   task.ID,
			Kind:     entity.NotificationKindApproval,
			Title:    title,
			Body:     body,
			Action:   action,
			Metadata: meta,
		})
	}
}

// checkRequester allows an accepted assignee to request approval; anyone else
// must be cleared by the permission oracle.
func (s *approvalServiceImpl) checkRequester(ctx context.Context, actorID string, task *entity.Task) error {
	assignment, err := s.assignmentRepo.GetByTaskAndActor(ctx, task.ID, actorID)
	if err != nil {
		return fmt.Errorf("get assignment: %w", err)
	}
	if assignment != nil && assignment.Status == entity.AssignmentStatusAccepted {
		return nil
	}
	return s.checkPermission(ctx, actorID, task, port.OpRequestApproval)
}

// fireApproval validates and applies an approval gate transition.
func (s *approvalServiceImpl) fireApproval(ctx context.Context, task *entity.Task, trigger domainwf.Trigger) error {
	machine, err := appworkflow.BuildApprovalMachine(domainwf.State(task.ApprovalStatus))
	if err != nil {
		return fmt.Errorf("%w: task %s has approval status %q", entity.ErrInvalidState, task.ID, task.ApprovalStatus)
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("%w: cannot %s task %s from approval status %s",
			entity.ErrInvalidState, trigger, task.ID, task.ApprovalStatus)
	}
	task.ApprovalStatus = machine.State().String()
	return nil
}

func (s *approvalServiceImpl) loadTask(ctx context.Context, taskID string) (*entity.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task %s", entity.ErrNotFound, taskID)
	}
	return task, nil
}

func (s *approvalServiceImpl) checkPermission(ctx context.Context, actorID string, task *entity.Task, op port.Operation) error {
	allowed, err := s.oracle.CanPerform(ctx, actorID, task, op)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s may not perform %s on task %s", entity.ErrPermissionDenied, actorID, op, task.ID)
	}
	return nil
}
