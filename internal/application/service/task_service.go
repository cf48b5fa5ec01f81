package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskops/workflow/internal/application/dispatcher"
	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
	"github.com/taskops/workflow/internal/domain/event"
)

// TaskService owns the task lifecycle: creation, status transitions, and the
// cascade delete. It is the only writer of Task.Status.
//
// No transition table is enforced on the status value itself, with one
// exception: the completed status belongs to the approval gate. Which actor
// may move a task to which remaining status is the permission oracle's call.
// The engine guarantees atomicity of the write, the append-only history, and
// the audit trail.
type TaskService interface {
	CreateTask(ctx context.Context, title, description, createdBy string) (*entity.Task, error)
	GetTask(ctx context.Context, taskID string) (*entity.Task, error)
	ListTasks(ctx context.Context, limit, offset int) ([]*entity.Task, error)
	GetStatusHistory(ctx context.Context, taskID string) ([]*entity.StatusChange, error)

	// UpdateStatus applies a status change. Setting the current status again
	// is a successful no-op that appends no history entry. The completed
	// status is owned by the approval gate: a task cannot be completed here,
	// and an approved task's status is final.
	UpdateStatus(ctx context.Context, taskID, newStatus, actorID string) error

	// DeleteTask hard-deletes a task after removing its dependent
	// notification, assignment, and status history records (cascade before
	// parent). Only the audit trail survives.
	DeleteTask(ctx context.Context, taskID, actorID string) error
}

type taskServiceImpl struct {
	taskRepo         port.TaskRepository
	assignmentRepo   port.AssignmentRepository
	notificationRepo port.NotificationRepository
	oracle           port.PermissionOracle
	notifier         Notifier
	auditor          Auditor
	txManager        port.TransactionManager
	dispatcher       dispatcher.Dispatcher
	logger           Logger
}

// NewTaskService creates a new TaskService
func NewTaskService(
	taskRepo port.TaskRepository,
	assignmentRepo port.AssignmentRepository,
	notificationRepo port.NotificationRepository,
	oracle port.PermissionOracle,
	notifier Notifier,
	auditor Auditor,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) TaskService {
	return &taskServiceImpl{
		taskRepo:         taskRepo,
		assignmentRepo:   assignmentRepo,
		notificationRepo: notificationRepo,
		oracle:           oracle,
		notifier:         notifier,
		auditor:          auditor,
		txManager:        txManager,
		dispatcher:       d,
		logger:           logger,
	}
}

// CreateTask creates a task in PENDING with an empty approval gate and seeds
// the status history with the creation entry.
func (s *taskServiceImpl) CreateTask(ctx context.Context, title, description, createdBy string) (*entity.Task, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title must not be empty", entity.ErrValidation)
	}
	if createdBy == "" {
		return nil, fmt.Errorf("%w: creator must not be empty", entity.ErrValidation)
	}

	now := time.Now()
	task := &entity.Task{
		ID:             ulid.Make().String(),
		Title:          title,
		Description:    description,
		CreatedBy:      createdBy,
		Status:         entity.TaskStatusPending,
		ApprovalStatus: entity.ApprovalStatusNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.taskRepo.Create(txCtx, task); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		change := &entity.StatusChange{
			ID:        ulid.Make().String(),
			TaskID:    task.ID,
			Status:    task.Status,
			Actor:     createdBy,
			Timestamp: now,
		}
		if err := s.taskRepo.AppendStatusHistory(txCtx, change); err != nil {
			return fmt.Errorf("append status history: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create task", "error", err, "created_by", createdBy)
		return nil, err
	}

	s.auditor.Record(ctx, "task.created", entity.EntityKindTask, task.ID, createdBy, "", task.Status)

	s.logger.Info("Task created", "task_id", task.ID, "created_by", createdBy)
	return task, nil
}

// GetTask retrieves a task by ID.
func (s *taskServiceImpl) GetTask(ctx context.Context, taskID string) (*entity.Task, error) {
	return s.loadTask(ctx, taskID)
}

// ListTasks retrieves a paginated list of tasks.
func (s *taskServiceImpl) ListTasks(ctx context.Context, limit, offset int) ([]*entity.Task, error) {
	tasks, err := s.taskRepo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list tasks", "error", err)
		return nil, err
	}
	return tasks, nil
}

// GetStatusHistory returns the task's append-only status history.
func (s *taskServiceImpl) GetStatusHistory(ctx context.Context, taskID string) ([]*entity.StatusChange, error) {
	if _, err := s.loadTask(ctx, taskID); err != nil {
		return nil, err
	}
	history, err := s.taskRepo.GetStatusHistory(ctx, taskID)
	if err != nil {
		s.logger.Error("Failed to get status history", "error", err, "task_id", taskID)
		return nil, err
	}
	return history, nil
}

// UpdateStatus applies a status change atomically, appends exactly one history
// entry on an actual change, and fans out audit and notifications afterwards.
func (s *taskServiceImpl) UpdateStatus(ctx context.Context, taskID, newStatus, actorID string) error {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	if !entity.ValidTaskStatus(newStatus) {
		return fmt.Errorf("%w: unknown status %q", entity.ErrValidation, newStatus)
	}

	if err := s.checkPermission(ctx, actorID, task, port.OpUpdateStatus); err != nil {
		return err
	}

	// Same status is a successful no-op: nothing written, no history entry
	if task.Status == newStatus {
		return nil
	}

	// Completion is granted through the approval gate, never set directly,
	// and an approved task's status may not move again. Keeps approved and
	// completed locked together.
	if newStatus == entity.TaskStatusCompleted {
		return fmt.Errorf("%w: task %s completes through its approval gate", entity.ErrInvalidState, taskID)
	}
	if task.ApprovalStatus == entity.ApprovalStatusApproved {
		return fmt.Errorf("%w: task %s is approved; its status is final", entity.ErrInvalidState, taskID)
	}

	oldStatus := task.Status
	now := time.Now()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		task.Status = newStatus
		task.StatusUpdatedBy = actorID
		task.StatusUpdatedAt = &now
		task.UpdatedAt = now
		if err := s.taskRepo.Update(txCtx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		change := &entity.StatusChange{
			ID:        ulid.Make().String(),
			TaskID:    task.ID,
			Status:    newStatus,
			Actor:     actorID,
			Timestamp: now,
		}
		if err := s.taskRepo.AppendStatusHistory(txCtx, change); err != nil {
			return fmt.Errorf("append status history: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update task status",
			"error", err, "task_id", taskID, "status", newStatus)
		return err
	}

	s.auditor.Record(ctx, "task.status_updated", entity.EntityKindTask, task.ID, actorID, oldStatus, newStatus)

	s.notifyStatusChanged(ctx, task, actorID, oldStatus, newStatus)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewStatusChangedEvent(task.ID, actorID, oldStatus, newStatus))
	}

	s.logger.Info("Task status updated",
		"task_id", taskID, "old_status", oldStatus, "new_status", newStatus, "actor_id", actorID)
	return nil
}

// DeleteTask removes dependent records first, then the task itself. Audit
// entries are immutable and survive the delete. A missing task is fatal.
func (s *taskServiceImpl) DeleteTask(ctx context.Context, taskID, actorID string) error {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.checkPermission(ctx, actorID, task, port.OpDeleteTask); err != nil {
		return err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.notificationRepo.DeleteByTaskID(txCtx, taskID); err != nil {
			return fmt.Errorf("delete notifications: %w", err)
		}
		if err := s.assignmentRepo.DeleteByTaskID(txCtx, taskID); err != nil {
			return fmt.Errorf("delete assignments: %w", err)
		}
		if err := s.taskRepo.DeleteStatusHistoryByTaskID(txCtx, taskID); err != nil {
			return fmt.Errorf("delete status history: %w", err)
		}
		if err := s.taskRepo.Delete(txCtx, taskID); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to delete task", "error", err, "task_id", taskID)
		return err
	}

	s.auditor.Record(ctx, "task.deleted", entity.EntityKindTask, taskID, actorID, task.Status, "")

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewTaskDeletedEvent(taskID, actorID))
	}

	s.logger.Info("Task deleted", "task_id", taskID, "actor_id", actorID)
	return nil
}

// notifyStatusChanged fans the change out to the creator and every actor
// holding a non-rejected assignment, skipping the acting actor.
func (s *taskServiceImpl) notifyStatusChanged(ctx context.Context, task *entity.Task, actorID, oldStatus, newStatus string) {
	meta := event.StatusChangedMetadata{Previous: oldStatus, Current: newStatus}
	title := fmt.Sprintf("Task %q moved to %s", task.Title, newStatus)

	notified := map[string]bool{actorID: true}

	if !notified[task.CreatedBy] {
		notified[task.CreatedBy] = true
		s.notifier.Notify(ctx, NotificationRequest{
			ActorID:  task.CreatedBy,
			TaskID:   task.ID,
			Kind:     entity.NotificationKindStatus,
			Title:    title,
			Action:   entity.ActionStatusChanged,
			Metadata: meta,
		})
	}

	for _, assignee := range s.activeAssignees(ctx, task.ID) {
		if notified[assignee] {
			continue
		}
		notified[assignee] = true
		s.notifier.Notify(ctx, NotificationRequest{
			ActorID:  assignee,
			TaskID:   task.ID,
			Kind:     entity.NotificationKindStatus,
			Title:    title,
			Action:   entity.ActionStatusChanged,
			Metadata: meta,
		})
	}
}

// activeAssignees resolves the actors holding a non-rejected assignment from
// the assignment collection, the source of truth.
func (s *taskServiceImpl) activeAssignees(ctx context.Context, taskID string) []string {
	assignments, err := s.assignmentRepo.GetByTaskID(ctx, taskID)
	if err != nil {
		s.logger.Error("Failed to resolve assignees for fan-out", "error", err, "task_id", taskID)
		return nil
	}
	actors := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if a.Active() {
			actors = append(actors, a.ActorID)
		}
	}
	return actors
}

func (s *taskServiceImpl) loadTask(ctx context.Context, taskID string) (*entity.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		s.logger.Error("Failed to get task", "error", err, "task_id", taskID)
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task %s", entity.ErrNotFound, taskID)
	}
	return task, nil
}

func (s *taskServiceImpl) checkPermission(ctx context.Context, actorID string, task *entity.Task, op port.Operation) error {
	allowed, err := s.oracle.CanPerform(ctx, actorID, task, op)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s may not perform %s on task %s", entity.ErrPermissionDenied, actorID, op, task.ID)
	}
	return nil
}
