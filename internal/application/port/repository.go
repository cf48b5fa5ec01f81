package port

import (
	"context"

	"github.com/taskops/workflow/internal/domain/entity"
)

// TaskRepository defines persistence operations for Task. Writes to a single
// task row are atomic; callers needing read-modify-write atomicity run inside
// TransactionManager.WithTransaction.
type TaskRepository interface {
	Create(ctx context.Context, task *entity.Task) error
	GetByID(ctx context.Context, id string) (*entity.Task, error)
	Update(ctx context.Context, task *entity.Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*entity.Task, error)

	// AppendStatusHistory appends one entry to the task's status history
	AppendStatusHistory(ctx context.Context, change *entity.StatusChange) error

	// GetStatusHistory returns the task's status history in append order
	GetStatusHistory(ctx context.Context, taskID string) ([]*entity.StatusChange, error)

	// DeleteStatusHistoryByTaskID removes the task's status history; part of
	// the cascade when the task itself is deleted
	DeleteStatusHistoryByTaskID(ctx context.Context, taskID string) error
}

// AssignmentRepository defines persistence operations for Assignment
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *entity.Assignment) error
	GetByID(ctx context.Context, id string) (*entity.Assignment, error)
	GetByTaskID(ctx context.Context, taskID string) ([]*entity.Assignment, error)
	GetByTaskAndActor(ctx context.Context, taskID, actorID string) (*entity.Assignment, error)
	Update(ctx context.Context, assignment *entity.Assignment) error
	Delete(ctx context.Context, id string) error
	DeleteByTaskID(ctx context.Context, taskID string) error
}

// NotificationRepository defines persistence operations for the in-app feed
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id string) (*entity.Notification, error)

	// GetUnread returns the unread notification matching the duplicate
	// suppression key (actor, task, action), or nil if none exists
	GetUnread(ctx context.Context, actorID, taskID, action string) (*entity.Notification, error)

	ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error)
	Update(ctx context.Context, n *entity.Notification) error
	MarkRead(ctx context.Context, id string) error
	DeleteByTaskID(ctx context.Context, taskID string) error
}

// AuditRepository defines persistence operations for the append-only audit log
type AuditRepository interface {
	Create(ctx context.Context, e *entity.AuditEntry) error
	ListByEntity(ctx context.Context, entityKind, entityID string) ([]*entity.AuditEntry, error)
}

// ActorRepository defines read operations over the actor directory
type ActorRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Actor, error)
	List(ctx context.Context) ([]*entity.Actor, error)
	ListByRoleAndDepartment(ctx context.Context, role, department string) ([]*entity.Actor, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
