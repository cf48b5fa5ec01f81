// Package workflow wires the generic state machine to the two lifecycles the
// engine enforces preconditions on: the approval gate and the assignment
// accept/reject cycle. Task status itself carries no transition table — the
// engine is deliberately transition-agnostic there and leaves legality to the
// permission oracle.
package workflow

import (
	"github.com/taskops/workflow/internal/domain/entity"
	domainwf "github.com/taskops/workflow/internal/domain/workflow"
)

// Approval gate triggers
const (
	TriggerRequestApproval domainwf.Trigger = "REQUEST_APPROVAL"
	TriggerApprove         domainwf.Trigger = "APPROVE"
	TriggerRejectApproval  domainwf.Trigger = "REJECT_APPROVAL"
)

// Assignment triggers
const (
	TriggerAccept   domainwf.Trigger = "ACCEPT"
	TriggerReject   domainwf.Trigger = "REJECT"
	TriggerDispute  domainwf.Trigger = "DISPUTE"
	TriggerComplete domainwf.Trigger = "COMPLETE"
)

// BuildApprovalMachine creates the approval gate machine positioned at the
// task's current approval status. APPROVED is terminal; a rejected approval
// may be requested again once the task has been reworked.
func BuildApprovalMachine(initial domainwf.State) (domainwf.StateMachine, error) {
	b := domainwf.NewBuilder()

	b.Configure(domainwf.State(entity.ApprovalStatusNone)).
		Permit(TriggerRequestApproval, domainwf.State(entity.ApprovalStatusPending))

	b.Configure(domainwf.State(entity.ApprovalStatusPending)).
		Permit(TriggerApprove, domainwf.State(entity.ApprovalStatusApproved)).
		Permit(TriggerRejectApproval, domainwf.State(entity.ApprovalStatusRejected))

	b.Configure(domainwf.State(entity.ApprovalStatusRejected)).
		Permit(TriggerRequestApproval, domainwf.State(entity.ApprovalStatusPending))

	return b.Build(initial)
}

// BuildAssignmentMachine creates the assignment lifecycle machine positioned
// at the assignment's current status. A rejected assignment can be disputed
// back to PENDING; upholding a rejection is a field-level terminality decision
// handled by the engine, not a status transition.
func BuildAssignmentMachine(initial domainwf.State) (domainwf.StateMachine, error) {
	b := domainwf.NewBuilder()

	b.Configure(domainwf.State(entity.AssignmentStatusPending)).
		Permit(TriggerAccept, domainwf.State(entity.AssignmentStatusAccepted)).
		Permit(TriggerReject, domainwf.State(entity.AssignmentStatusRejected))

	b.Configure(domainwf.State(entity.AssignmentStatusAccepted)).
		Permit(TriggerComplete, domainwf.State(entity.AssignmentStatusCompleted))

	b.Configure(domainwf.State(entity.AssignmentStatusRejected)).
		Permit(TriggerDispute, domainwf.State(entity.AssignmentStatusPending))

	return b.Build(initial)
}
