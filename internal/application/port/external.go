package port

import (
	"context"

	"github.com/taskops/workflow/internal/domain/entity"
)

// Operation identifies an engine operation for permission checks
type Operation string

const (
	OpCreateTask      Operation = "task.create"
	OpDeleteTask      Operation = "task.delete"
	OpUpdateStatus    Operation = "task.update_status"
	OpAssign          Operation = "assignment.assign"
	OpAccept          Operation = "assignment.accept"
	OpReject          Operation = "assignment.reject"
	OpRemoveAssignee  Operation = "assignment.remove"
	OpArbitrate       Operation = "assignment.arbitrate"
	OpRequestApproval Operation = "approval.request"
	OpApprove         Operation = "approval.approve"
	OpRejectApproval  Operation = "approval.reject"
	OpAddToPool       Operation = "pool.add"
	OpRequestClaim    Operation = "pool.request_claim"
	OpResolveClaim    Operation = "pool.resolve_claim"
)

// PermissionOracle answers whether an actor may perform an operation on a
// task. The engine calls it before mutating state; a false answer aborts the
// operation with no side effects.
type PermissionOracle interface {
	CanPerform(ctx context.Context, actorID string, task *entity.Task, op Operation) (bool, error)
}

// TeamDirectory resolves the team leads responsible for a task. The set is
// derived from department and manager lookups outside the engine; the engine
// only fans notifications out to it.
type TeamDirectory interface {
	TeamLeads(ctx context.Context, task *entity.Task) ([]string, error)
}

// EmailSender delivers the best-effort email mirror of a feed notification.
// Errors are logged and discarded, never propagated to the workflow caller.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}
