package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/taskops/workflow/internal/application/port"
	appworkflow "github.com/taskops/workflow/internal/application/workflow"
	"github.com/taskops/workflow/internal/domain/entity"
	"github.com/taskops/workflow/internal/domain/event"
	domainwf "github.com/taskops/workflow/internal/domain/workflow"
)

// AssignmentService owns the assignment lifecycle: assign, accept, reject,
// the rejection-dispute arbitration, and removal. Only this service writes
// Assignment records.
type AssignmentService interface {
	// Assign creates a pending assignment binding the actor to the task.
	// Re-assigning an actor who already holds a non-rejected assignment
	// returns the existing record (idempotent).
	Assign(ctx context.Context, taskID, actorID, assignedBy string) (*entity.Assignment, error)

	// Accept moves a pending assignment to accepted. Accepting the first
	// assignment on a pending task also moves the task to in progress.
	Accept(ctx context.Context, assignmentID, actorID string) error

	// Reject moves a pending assignment to rejected with a reason of at
	// least MinRejectionReasonLen characters. The actor stays in the task's
	// assignee set until explicitly removed.
	Reject(ctx context.Context, assignmentID, actorID, reason string) error

	// ApproveRejection upholds a rejection; the assignment becomes terminal.
	ApproveRejection(ctx context.Context, assignmentID, actorID string) error

	// DisputeRejection overturns a rejection: the assignment reopens as
	// pending with the arbitration note recorded and the original rejection
	// reason cleared.
	DisputeRejection(ctx context.Context, assignmentID, actorID, reason string) error

	// Remove deletes the actor's assignment from the task. A missing
	// assignment is an idempotent no-op.
	Remove(ctx context.Context, taskID, actorID, removedBy string) error

	GetByTask(ctx context.Context, taskID string) ([]*entity.Assignment, error)
}

type assignmentServiceImpl struct {
	taskRepo       port.TaskRepository
	assignmentRepo port.AssignmentRepository
	oracle         port.PermissionOracle
	directory      port.TeamDirectory
	notifier       Notifier
	auditor        Auditor
	txManager      port.TransactionManager
	logger         Logger
}

// NewAssignmentService creates a new AssignmentService
func NewAssignmentService(
	taskRepo port.TaskRepository,
	assignmentRepo port.AssignmentRepository,
	oracle port.PermissionOracle,
	directory port.TeamDirectory,
	notifier Notifier,
	auditor Auditor,
	txManager port.TransactionManager,
	logger Logger,
) AssignmentService {
	return &assignmentServiceImpl{
		taskRepo:       taskRepo,
		assignmentRepo: assignmentRepo,
		oracle:         oracle,
		directory:      directory,
		notifier:       notifier,
		auditor:        auditor,
		txManager:      txManager,
		logger:         logger,
	}
}

// Assign creates a pending assignment and unions the actor into the task's
// assignee mirror.
func (s *assignmentServiceImpl) Assign(ctx context.Context, taskID, actorID, assignedBy string) (*entity.Assignment, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if err := s.checkPermission(ctx, assignedBy, task, port.OpAssign); err != nil {
		return nil, err
	}

	existing, err := s.assignmentRepo.GetByTaskAndActor(ctx, taskID, actorID)
	if err != nil {
		return nil, fmt.Errorf("check existing assignment: %w", err)
	}
	if existing != nil && existing.Active() {
		s.logger.Info("Assignment already exists",
			"task_id", taskID, "actor_id", actorID, "assignment_id", existing.ID)
		return existing, nil
	}

	now := time.Now()
	assignment := &entity.Assignment{
		ID:         ulid.Make().String(),
		TaskID:     taskID,
		ActorID:    actorID,
		AssignedBy: assignedBy,
		Status:     entity.AssignmentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.assignmentRepo.Create(txCtx, assignment); err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		task.AddAssignedUser(actorID)
		task.UpdatedAt = now
		if err := s.taskRepo.Update(txCtx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to assign actor",
			"error", err, "task_id", taskID, "actor_id", actorID)
		return nil, err
	}

	s.auditor.Record(ctx, "assignment.created", entity.EntityKindAssignment, assignment.ID, assignedBy, "", assignment.Status)

	s.notifier.Notify(ctx, NotificationRequest{
		ActorID:  actorID,
		TaskID:   taskID,
		Kind:     entity.NotificationKindAssignment,
		Title:    fmt.Sprintf("You were assigned to task %q", task.Title),
		Action:   entity.ActionAssigned,
		Metadata: event.AssignedMetadata{AssignedBy: assignedBy},
	})

	s.logger.Info("Actor assigned",
		"task_id", taskID, "actor_id", actorID, "assigned_by", assignedBy, "assignment_id", assignment.ID)
	return assignment, nil
}

// Accept transitions the assignment to accepted, promotes a pending task to
// in progress, updates the outstanding "assigned" notification in place, and
// informs the task's team leads.
func (s *assignmentServiceImpl) Accept(ctx context.Context, assignmentID, actorID string) error {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	task, err := s.loadTask(ctx, assignment.TaskID)
	if err != nil {
		return err
	}

	if assignment.ActorID != actorID {
		return fmt.Errorf("%w: only the assigned actor may accept assignment %s", entity.ErrPermissionDenied, assignmentID)
	}

	if err := s.fireAssignment(ctx, assignment, appworkflow.TriggerAccept); err != nil {
		return err
	}

	now := time.Now()
	oldTaskStatus := task.Status

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		assignment.AcceptedAt = &now
		assignment.UpdatedAt = now
		if err := s.assignmentRepo.Update(txCtx, assignment); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}

		// Accepting the first assignment starts the work
		if task.Status == entity.TaskStatusPending {
			task.Status = entity.TaskStatusInProgress
			task.StatusUpdatedBy = actorID
			task.StatusUpdatedAt = &now
			task.UpdatedAt = now
			if err := s.taskRepo.Update(txCtx, task); err != nil {
				return fmt.Errorf("update task: %w", err)
			}
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
		s.logger.Error("Failed to accept assignment",
			"error", err, "assignment_id", assignmentID, "actor_id", actorID)
		return err
	}

	s.auditor.Record(ctx, "assignment.accepted", entity.EntityKindAssignment, assignment.ID, actorID,
		entity.AssignmentStatusPending, assignment.Status)
	if oldTaskStatus != task.Status {
		s.auditor.Record(ctx, "task.status_updated", entity.EntityKindTask, task.ID, actorID, oldTaskStatus, task.Status)
	}

	// Update the "you were assigned" notification in place rather than
	// piling up a duplicate
	s.notifier.MarkActioned(ctx, actorID, task.ID, entity.ActionAssigned, entity.ActionAccepted)

	for _, lead := range s.teamLeads(ctx, task) {
		if lead == actorID {
			continue
		}
		s.notifier.Notify(ctx, NotificationRequest{
			ActorID: lead,
			TaskID:  task.ID,
			Kind:    entity.NotificationKindAssignment,
			Title:   fmt.Sprintf("%s accepted task %q", actorID, task.Title),
			Action:  entity.ActionAccepted,
		})
	}

	s.logger.Info("Assignment accepted",
		"assignment_id", assignmentID, "task_id", task.ID, "actor_id", actorID)
	return nil
}

// Reject transitions the assignment to rejected. Notification order is
// deliberate: the assigner arbitrates the rejection, so they are informed
// first and always.
func (s *assignmentServiceImpl) Reject(ctx context.Context, assignmentID, actorID, reason string) error {
	if utf8.RuneCountInString(reason) < entity.MinRejectionReasonLen {
		return fmt.Errorf("%w: rejection reason must be at least %d characters", entity.ErrValidation, entity.MinRejectionReasonLen)
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	task, err := s.loadTask(ctx, assignment.TaskID)
	if err != nil {
		return err
	}

	if assignment.ActorID != actorID {
		return fmt.Errorf("%w: only the assigned actor may reject assignment %s", entity.ErrPermissionDenied, assignmentID)
	}

	if err := s.fireAssignment(ctx, assignment, appworkflow.TriggerReject); err != nil {
		return err
	}

	now := time.Now()
	assignment.RejectionReason = reason
	assignment.UpdatedAt = now

	if err := s.assignmentRepo.Update(ctx, assignment); err != nil {
		s.logger.Error("Failed to reject assignment",
			"error", err, "assignment_id", assignmentID)
		return fmt.Errorf("update assignment: %w", err)
	}

	s.auditor.Record(ctx, "assignment.rejected", entity.EntityKindAssignment, assignment.ID, actorID,
		entity.AssignmentStatusPending, assignment.Status)

	meta := event.RejectionMetadata{RejectedBy: actorID, Reason: reason}
	title := fmt.Sprintf("%s rejected task %q", actorID, task.Title)

	notified := map[string]bool{actorID: true}

	// 1. the assigner, who is empowered to dispute the rejection
	if !notified[assignment.AssignedBy] {
		notified[assignment.AssignedBy] = true
		s.notifier.Notify(ctx, NotificationRequest{
			ActorID:  assignment.AssignedBy,
			TaskID:   task.ID,
			Kind:     entity.NotificationKindAssignment,
			Title:    title,
			Body:     reason,
			Action:   entity.ActionRejected,
			Metadata: meta,
		})
	}

	// 2. the task creator, if distinct from the assigner
	if !notified[task.CreatedBy] {
		notified[task.CreatedBy] = true
		s.notifier.Notify(ctx, NotificationRequest{
			ActorID:  task.CreatedBy,
			TaskID:   task.ID,
			Kind:     entity.NotificationKindAssignment,
			Title:    title,
			Body:     reason,
			Action:   entity.ActionRejected,
			Metadata: meta,
		})
	}

	// 3. team leads distinct from both
	for _, lead := range s.teamLeads(ctx, task) {
		if notified[lead] {
			continue
		}
		notified[lead] = true
		s.notifier.Notify(ctx, NotificationRequest{
			ActorID:  lead,
			TaskID:   task.ID,
			Kind:     entity.NotificationKindAssignment,
			Title:    title,
			Body:     reason,
			Action:   entity.ActionRejected,
			Metadata: meta,
		})
	}

	s.logger.Info("Assignment rejected",
		"assignment_id", assignmentID, "task_id", task.ID, "actor_id", actorID)
	return nil
}

// ApproveRejection upholds the rejection; the assignment becomes terminal and
// the rejecting actor is released.
func (s *assignmentServiceImpl) ApproveRejection(ctx context.Context, assignmentID, actorID string) error {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	task, err := s.loadTask(ctx, assignment.TaskID)
	if err != nil {
		return err
	}

	if err := s.checkArbiter(ctx, actorID, assignment, task); err != nil {
		return err
	}
	if err := s.checkDisputable(assignment); err != nil {
		return err
	}

	now := time.Now()
	assignment.RejectionApprovedBy = actorID
	assignment.RejectionApprovedAt = &now
	assignment.UpdatedAt = now

	if err := s.assignmentRepo.Update(ctx, assignment); err != nil {
		s.logger.Error("Failed to approve rejection",
			"error", err, "assignment_id", assignmentID)
		return fmt.Errorf("update assignment: %w", err)
	}

	s.auditor.Record(ctx, "assignment.rejection_approved", entity.EntityKindAssignment, assignment.ID, actorID,
		entity.AssignmentStatusRejected, entity.AssignmentStatusRejected)

	s.notifier.Notify(ctx, NotificationRequest{
		ActorID:  assignment.ActorID,
		TaskID:   task.ID,
		Kind:     entity.NotificationKindArbitration,
		Title:    fmt.Sprintf("Your rejection of task %q stands; you are released", task.Title),
		Action:   entity.ActionRejectionApproved,
		Metadata: event.ArbitrationMetadata{ArbitratedBy: actorID},
	})

	s.logger.Info("Rejection approved",
		"assignment_id", assignmentID, "task_id", task.ID, "arbitrated_by", actorID)
	return nil
}

// DisputeRejection overturns the rejection and puts the actor back on the
// task as if newly assigned.
func (s *assignmentServiceImpl) DisputeRejection(ctx context.Context, assignmentID, actorID, reason string) error {
	if utf8.RuneCountInString(reason) < entity.MinRejectionReasonLen {
		return fmt.Errorf("%w: dispute reason must be at least %d characters", entity.ErrValidation, entity.MinRejectionReasonLen)
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	task, err := s.loadTask(ctx, assignment.TaskID)
	if err != nil {
		return err
	}

	if err := s.checkArbiter(ctx, actorID, assignment, task); err != nil {
		return err
	}
	if err := s.checkDisputable(assignment); err != nil {
		return err
	}

	if err := s.fireAssignment(ctx, assignment, appworkflow.TriggerDispute); err != nil {
		return err
	}

	now := time.Now()
	assignment.RejectionRejectedBy = actorID
	assignment.RejectionRejectedAt = &now
	assignment.RejectionRejectionReason = reason
	assignment.RejectionReason = ""
	assignment.UpdatedAt = now

	if err := s.assignmentRepo.Update(ctx, assignment); err != nil {
		s.logger.Error("Failed to dispute rejection",
			"error", err, "assignment_id", assignmentID)
		return fmt.Errorf("update assignment: %w", err)
	}

	s.auditor.Record(ctx, "assignment.rejection_disputed", entity.EntityKindAssignment, assignment.ID, actorID,
		entity.AssignmentStatusRejected, assignment.Status)

	s.notifier.Notify(ctx, NotificationRequest{
		ActorID:  assignment.ActorID,
		TaskID:   task.ID,
		Kind:     entity.NotificationKindArbitration,
		Title:    fmt.Sprintf("Your rejection of task %q was overturned; you are back on the task", task.Title),
		Body:     reason,
		Action:   entity.ActionRejectionDisputed,
		Metadata: event.ArbitrationMetadata{ArbitratedBy: actorID, Note: reason},
	})

	s.logger.Info("Rejection disputed",
		"assignment_id", assignmentID, "task_id", task.ID, "arbitrated_by", actorID)
	return nil
}

// Remove deletes the actor's assignment and removes them from the assignee
// mirror. Removing an actor with no assignment succeeds without effect.
func (s *assignmentServiceImpl) Remove(ctx context.Context, taskID, actorID, removedBy string) error {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.checkPermission(ctx, removedBy, task, port.OpRemoveAssignee); err != nil {
		return err
	}

	assignment, err := s.assignmentRepo.GetByTaskAndActor(ctx, taskID, actorID)
	if err != nil {
		return fmt.Errorf("get assignment: %w", err)
	}

	now := time.Now()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if assignment != nil {
			if err := s.assignmentRepo.Delete(txCtx, assignment.ID); err != nil {
				return fmt.Errorf("delete assignment: %w", err)
			}
		}
		if task.HasAssignedUser(actorID) {
			task.RemoveAssignedUser(actorID)
			task.UpdatedAt = now
			if err := s.taskRepo.Update(txCtx, task); err != nil {
				return fmt.Errorf("update task: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to remove assignment",
			"error", err, "task_id", taskID, "actor_id", actorID)
		return err
	}

	if assignment != nil {
		s.auditor.Record(ctx, "assignment.removed", entity.EntityKindAssignment, assignment.ID, removedBy,
			assignment.Status, "")
	}

	s.logger.Info("Assignment removed",
		"task_id", taskID, "actor_id", actorID, "removed_by", removedBy)
	return nil
}

// GetByTask retrieves all assignments for a task.
func (s *assignmentServiceImpl) GetByTask(ctx context.Context, taskID string) ([]*entity.Assignment, error) {
	if _, err := s.loadTask(ctx, taskID); err != nil {
		return nil, err
	}
	assignments, err := s.assignmentRepo.GetByTaskID(ctx, taskID)
	if err != nil {
		s.logger.Error("Failed to get assignments", "error", err, "task_id", taskID)
		return nil, err
	}
	return assignments, nil
}

// fireAssignment validates and applies an assignment status transition,
// translating a machine refusal into the engine's state-conflict error.
func (s *assignmentServiceImpl) fireAssignment(ctx context.Context, assignment *entity.Assignment, trigger domainwf.Trigger) error {
	if assignment.Terminal() {
		return fmt.Errorf("%w: assignment %s is terminal", entity.ErrInvalidState, assignment.ID)
	}
	machine, err := appworkflow.BuildAssignmentMachine(domainwf.State(assignment.Status))
	if err != nil {
		return fmt.Errorf("%w: assignment %s has status %q", entity.ErrInvalidState, assignment.ID, assignment.Status)
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("%w: cannot %s assignment %s from status %s",
			entity.ErrInvalidState, trigger, assignment.ID, assignment.Status)
	}
	assignment.Status = machine.State().String()
	return nil
}

// checkDisputable guards the two arbitration operations: they are valid only
// on a rejected, not-yet-arbitrated assignment, and mutually exclusive.
func (s *assignmentServiceImpl) checkDisputable(assignment *entity.Assignment) error {
	if assignment.Terminal() {
		return fmt.Errorf("%w: rejection of assignment %s was already upheld", entity.ErrInvalidState, assignment.ID)
	}
	if assignment.Status != entity.AssignmentStatusRejected {
		return fmt.Errorf("%w: assignment %s is not rejected", entity.ErrInvalidState, assignment.ID)
	}
	return nil
}

// checkArbiter allows the assigner to arbitrate; anyone else must be cleared
// by the permission oracle.
func (s *assignmentServiceImpl) checkArbiter(ctx context.Context, actorID string, assignment *entity.Assignment, task *entity.Task) error {
	if actorID == assignment.AssignedBy {
		return nil
	}
	return s.checkPermission(ctx, actorID, task, port.OpArbitrate)
}

func (s *assignmentServiceImpl) teamLeads(ctx context.Context, task *entity.Task) []string {
	leads, err := s.directory.TeamLeads(ctx, task)
	if err != nil {
		s.logger.Error("Failed to resolve team leads", "error", err, "task_id", task.ID)
		return nil
	}
	return leads
}

func (s *assignmentServiceImpl) loadTask(ctx context.Context, taskID string) (*entity.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task %s", entity.ErrNotFound, taskID)
	}
	return task, nil
}

func (s *assignmentServiceImpl) loadAssignment(ctx context.Context, assignmentID string) (*entity.Assignment, error) {
	assignment, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if assignment == nil {
		return nil, fmt.Errorf("%w: assignment %s", entity.ErrNotFound, assignmentID)
	}
	return assignment, nil
}

func (s *assignmentServiceImpl) checkPermission(ctx context.Context, actorID string, task *entity.Task, op port.Operation) error {
	allowed, err := s.oracle.CanPerform(ctx, actorID, task, op)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s may not perform %s on task %s", entity.ErrPermissionDenied, actorID, op, task.ID)
	}
	return nil
}
