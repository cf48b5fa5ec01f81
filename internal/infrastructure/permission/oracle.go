// Package permission implements the role-table permission oracle and the
// team directory on top of the actor repository. Permission policy lives
// entirely here; the engine services only consume the yes/no answer.
package permission

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
)

// RoleOracle answers permission checks from the actor's role and their
// relationship to the task. Admins may do everything; the task creator owns
// the task-level operations; team leaders arbitrate and approve.
type RoleOracle struct {
	actorRepo port.ActorRepository
	logger    *zap.Logger
}

// NewRoleOracle creates a new role-based permission oracle
func NewRoleOracle(actorRepo port.ActorRepository, logger *zap.Logger) *RoleOracle {
	return &RoleOracle{
		actorRepo: actorRepo,
		logger:    logger,
	}
}

// CanPerform reports whether the actor may perform op on the task. An
// unknown actor is denied, not an error.
func (o *RoleOracle) CanPerform(ctx context.Context, actorID string, task *entity.Task, op port.Operation) (bool, error) {
	actor, err := o.actorRepo.GetByID(ctx, actorID)
	if err != nil {
		return false, fmt.Errorf("get actor: %w", err)
	}
	if actor == nil {
		o.logger.Warn("Permission check for unknown actor",
			zap.String("actor_id", actorID),
			zap.String("operation", string(op)))
		return false, nil
	}

	if actor.Role == entity.RoleAdmin {
		return true, nil
	}

	switch op {
	case port.OpCreateTask:
		return true, nil

	case port.OpDeleteTask, port.OpAddToPool, port.OpResolveClaim:
		// Owner operations
		return task != nil && task.CreatedBy == actorID, nil

	case port.OpUpdateStatus:
		if task == nil {
			return false, nil
		}
		return task.CreatedBy == actorID || task.HasAssignedUser(actorID), nil

	case port.OpAssign, port.OpRemoveAssignee:
		if actor.Role == entity.RoleTeamLeader {
			return true, nil
		}
		return task != nil && task.CreatedBy == actorID, nil

	case port.OpArbitrate, port.OpApprove, port.OpRejectApproval:
		if actor.Role == entity.RoleTeamLeader {
			return true, nil
		}
		return task != nil && task.CreatedBy == actorID, nil

	case port.OpRequestApproval:
		// Accepted assignees are cleared by the engine before it asks here
		return actor.Role == entity.RoleTeamLeader, nil

	case port.OpAccept, port.OpReject, port.OpRequestClaim:
		// Identity-bound operations; the engine enforces the identity itself
		return true, nil
	}

	o.logger.Warn("Permission check for unknown operation",
		zap.String("actor_id", actorID),
		zap.String("operation", string(op)))
	return false, nil
}

// DepartmentDirectory resolves team leads as the team leaders of the task
// creator's department.
type DepartmentDirectory struct {
	actorRepo port.ActorRepository
	logger    *zap.Logger
}

// NewDepartmentDirectory creates a new department-based team directory
func NewDepartmentDirectory(actorRepo port.ActorRepository, logger *zap.Logger) *DepartmentDirectory {
	return &DepartmentDirectory{
		actorRepo: actorRepo,
		logger:    logger,
	}
}

// TeamLeads returns the IDs of the team leaders in the task creator's
// department. A creator with no department yields an empty set.
func (d *DepartmentDirectory) TeamLeads(ctx context.Context, task *entity.Task) ([]string, error) {
	creator, err := d.actorRepo.GetByID(ctx, task.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("get creator: %w", err)
	}
	if creator == nil || creator.Department == "" {
		return nil, nil
	}

	leads, err := d.actorRepo.ListByRoleAndDepartment(ctx, entity.RoleTeamLeader, creator.Department)
	if err != nil {
		return nil, fmt.Errorf("list team leaders: %w", err)
	}

	ids := make([]string, 0, len(leads))
	for _, lead := range leads {
		ids = append(ids, lead.ID)
	}
	return ids, nil
}

var (
	_ port.PermissionOracle = (*RoleOracle)(nil)
	_ port.TeamDirectory    = (*DepartmentDirectory)(nil)
)
