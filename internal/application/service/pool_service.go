package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
	"github.com/taskops/workflow/internal/domain/event"
)

// PoolService runs the claim coordination flow: a task is offered to a pool
// of eligible actors, actors raise claims, and the task creator resolves
// them. Approving a claim converts it into an accepted assignment without
// passing through the assign/accept handshake.
type PoolService interface {
	// AddToPool offers the task to the given actors. Re-offering a pooled
	// task with no outstanding claims refreshes nothing and succeeds;
	// re-offering while claims are outstanding is a state conflict.
	AddToPool(ctx context.Context, taskID, actorID string, eligible []string) error

	// RequestClaim records the claimant's interest. The task must be in the
	// pool; duplicate claims are a state conflict.
	RequestClaim(ctx context.Context, taskID, claimantID string) error

	// ApproveClaim grants the task to the claimant: an accepted assignment
	// is created, the claim is consumed, and unless keepInPool is set the
	// task leaves the pool and remaining claimants are told their claim
	// was dropped.
	ApproveClaim(ctx context.Context, taskID, approverID, claimantID string, keepInPool bool) error

	// RejectClaim removes the claimant's claim; the task stays in the pool.
	RejectClaim(ctx context.Context, taskID, approverID, claimantID string) error
}

type poolServiceImpl struct {
	taskRepo       port.TaskRepository
	assignmentRepo port.AssignmentRepository
	oracle         port.PermissionOracle
	notifier       Notifier
	auditor        Auditor
	txManager      port.TransactionManager
	logger         Logger
}

// NewPoolService creates a new PoolService
func NewPoolService(
	taskRepo port.TaskRepository,
	assignmentRepo port.AssignmentRepository,
	oracle port.PermissionOracle,
	notifier Notifier,
	auditor Auditor,
	txManager port.TransactionManager,
	logger Logger,
) PoolService {
	return &poolServiceImpl{
		taskRepo:       taskRepo,
		assignmentRepo: assignmentRepo,
		oracle:         oracle,
		notifier:       notifier,
		auditor:        auditor,
		txManager:      txManager,
		logger:         logger,
	}
}

// AddToPool offers the task to the eligible actors and notifies each of them,
// except the caller and the task creator.
func (s *poolServiceImpl) AddToPool(ctx context.Context, taskID, actorID string, eligible []string) error {
	var task *entity.Task
	offered := false

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		task, err = s.loadTask(txCtx, taskID)
		if err != nil {
			return err
		}
		if err := s.checkPermission(txCtx, actorID, task, port.OpAddToPool); err != nil {
			return err
		}

		if task.IsInPool {
			if len(task.PoolRequests) > 0 {
				return fmt.Errorf("%w: task %s has outstanding claims", entity.ErrInvalidState, taskID)
			}
			// Already offered, nothing pending to disturb
			return nil
		}

		task.IsInPool = true
		task.UpdatedAt = time.Now()
		offered = true

		if err := s.taskRepo.Update(txCtx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to add task to pool", "error", err, "task_id", taskID)
		return err
	}
	if !offered {
		return nil
	}

	s.auditor.Record(ctx, "task.pooled", entity.EntityKindTask, task.ID, actorID, "", "")

	// The caller and the task creator already know about the offer
	for _, target := range eligible {
		if target == actorID || target == task.CreatedBy {
			continue
		}
		s.notifier.Notify(ctx, NotificationRequest{
			ActorID:  target,
			TaskID:   task.ID,
			Kind:     entity.NotificationKindPool,
			Title:    fmt.Sprintf("Task %q is open for claims", task.Title),
			Action:   entity.ActionPooled,
			Metadata: event.PoolMetadata{AddedBy: actorID},
		})
	}

	s.logger.Info("Task added to pool",
		"task_id", taskID, "added_by", actorID, "eligible", len(eligible))
	return nil
}

// RequestClaim records the claimant's interest and tells the task creator.
// The claim union happens inside the transaction so concurrent claimants
// cannot overwrite each other's entry.
func (s *poolServiceImpl) RequestClaim(ctx context.Context, taskID, claimantID string) error {
	var task *entity.Task

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		task, err = s.loadTask(txCtx, taskID)
		if err != nil {
			return err
		}

		if !task.IsInPool {
			return fmt.Errorf("%w: task %s is not in the pool", entity.ErrInvalidState, taskID)
		}
		if task.HasPoolRequest(claimantID) {
			return fmt.Errorf("%w: %s already has a claim on task %s", entity.ErrInvalidState, claimantID, taskID)
		}

		task.AddPoolRequest(claimantID)
		task.UpdatedAt = time.Now()

		if err := s.taskRepo.Update(txCtx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to request claim",
			"error", err, "task_id", taskID, "claimant", claimantID)
		return err
	}

	s.auditor.Record(ctx, "task.claim_requested", entity.EntityKindTask, task.ID, claimantID, "", "")

	s.notifier.Notify(ctx, NotificationRequest{
		ActorID:  task.CreatedBy,
		TaskID:   task.ID,
		Kind:     entity.NotificationKindPool,
		Title:    fmt.Sprintf("%s wants to claim task %q", claimantID, task.Title),
		Action:   entity.ActionClaimRequested,
		Metadata: event.PoolMetadata{Claimant: claimantID},
	})

	s.logger.Info("Claim requested", "task_id", taskID, "claimant", claimantID)
	return nil
}

// ApproveClaim grants the task to the claimant. The assignment is born
// accepted: the claim itself already expressed the claimant's consent.
func (s *poolServiceImpl) ApproveClaim(ctx context.Context, taskID, approverID, claimantID string, keepInPool bool) error {
	now := time.Now()
	assignment := &entity.Assignment{
		ID:         ulid.Make().String(),
		TaskID:     taskID,
		ActorID:    claimantID,
		AssignedBy: approverID,
		Status:     entity.AssignmentStatusAccepted,
		AcceptedAt: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var task *entity.Task
	var dropped []string

	// The claim is validated against the row read inside the transaction, so
	// of two racing approvals only the first consumes it; the second finds no
	// claim and fails.
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		task, err = s.loadTask(txCtx, taskID)
		if err != nil {
			return err
		}

		if approverID != task.CreatedBy {
			return fmt.Errorf("%w: only the task creator may resolve claims on task %s", entity.ErrPermissionDenied, taskID)
		}
		if !task.HasPoolRequest(claimantID) {
			return fmt.Errorf("%w: %s has no claim on task %s", entity.ErrInvalidState, claimantID, taskID)
		}

		if err := s.assignmentRepo.Create(txCtx, assignment); err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}

		oldStatus := task.Status
		task.RemovePoolRequest(claimantID)
		task.AddAssignedUser(claimantID)
		if !keepInPool {
			dropped = append(dropped, task.PoolRequests...)
			task.PoolRequests = nil
			task.IsInPool = false
		}
		if task.Status == entity.TaskStatusPending {
			task.Status = entity.TaskStatusInProgress
			task.StatusUpdatedBy = claimantID
			task.StatusUpdatedAt = &now
		}
		task.UpdatedAt = now

		if err := s.taskRepo.Update(txCtx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if task.Status != oldStatus {
			change := &entity.StatusChange{
				ID:        ulid.Make().String(),
				TaskID:    task.ID,
				Status:    task.Status,
				Actor:     claimantID,
				Timestamp: now,
			}
			if err := s.taskRepo.AppendStatusHistory(txCtx, change); err != nil {
				return fmt.Errorf("append status history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to approve claim",
			"error", err, "task_id", taskID, "claimant", claimantID)
		return err
	}

	s.auditor.Record(ctx, "task.claim_approved", entity.EntityKindTask, task.ID, approverID, "", claimantID)

	s.notifier.Notify(ctx, NotificationRequest{
		ActorID:  claimantID,
		TaskID:   task.ID,
		Kind:     entity.NotificationKindPool,
		Title:    fmt.Sprintf("Your claim on task %q was approved", task.Title),
		Action:   entity.ActionClaimApproved,
		Metadata: event.ClaimResolvedMetadata{ResolvedBy: approverID, Claimant: claimantID, KeptInPool: keepInPool},
	})

	for _, other := range dropped {
		s.notifier.Notify(ctx, NotificationRequest{
			ActorID:  other,
			TaskID:   task.ID,
			Kind:     entity.NotificationKindPool,
			Title:    fmt.Sprintf("Task %q was claimed by someone else", task.Title),
			Action:   entity.ActionClaimDropped,
			Metadata: event.ClaimResolvedMetadata{ResolvedBy: approverID, Claimant: claimantID},
		})
	}

	s.logger.Info("Claim approved",
		"task_id", taskID, "claimant", claimantID, "approved_by", approverID, "keep_in_pool", keepInPool)
	return nil
}

// RejectClaim removes the claim and leaves the task in the pool.
func (s *poolServiceImpl) RejectClaim(ctx context.Context, taskID, approverID, claimantID string) error {
	var task *entity.Task

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		task, err = s.loadTask(txCtx, taskID)
		if err != nil {
			return err
		}

		if approverID != task.CreatedBy {
			return fmt.Errorf("%w: only the task creator may resolve claims on task %s", entity.ErrPermissionDenied, taskID)
		}
		if !task.HasPoolRequest(claimantID) {
			return fmt.Errorf("%w: %s has no claim on task %s", entity.ErrInvalidState, claimantID, taskID)
		}

		task.RemovePoolRequest(claimantID)
		task.UpdatedAt = time.Now()

		if err := s.taskRepo.Update(txCtx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to reject claim",
			"error", err, "task_id", taskID, "claimant", claimantID)
		return err
	}

	s.auditor.Record(ctx, "task.claim_rejected", entity.EntityKindTask, task.ID, approverID, "", claimantID)

	s.notifier.Notify(ctx, NotificationRequest{
		ActorID:  claimantID,
		TaskID:   task.ID,
		Kind:     entity.NotificationKindPool,
		Title:    fmt.Sprintf("Your claim on task %q was rejected", task.Title),
		Action:   entity.ActionClaimRejected,
		Metadata: event.ClaimResolvedMetadata{ResolvedBy: approverID, Claimant: claimantID},
	})

	s.logger.Info("Claim rejected",
		"task_id", taskID, "claimant", claimantID, "rejected_by", approverID)
	return nil
}

func (s *poolServiceImpl) loadTask(ctx context.Context, taskID string) (*entity.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task %s", entity.ErrNotFound, taskID)
	}
	return task, nil
}

func (s *poolServiceImpl) checkPermission(ctx context.Context, actorID string, task *entity.Task, op port.Operation) error {
	allowed, err := s.oracle.CanPerform(ctx, actorID, task, op)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s may not perform %s on task %s", entity.ErrPermissionDenied, actorID, op, task.ID)
	}
	return nil
}
