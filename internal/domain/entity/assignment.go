package entity

import "time"

// Assignment binds one actor to one task with its own accept/reject lifecycle.
// Only the workflow engine mutates assignments.
//
// The rejection dispute sub-state lives on the same record: for a given
// rejection event at most one of RejectionApprovedBy / RejectionRejectedBy is
// ever set. Once RejectionApprovedBy is set the assignment is terminal.
type Assignment struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	ActorID    string `json:"actor_id"`
	AssignedBy string `json:"assigned_by"`

	Status     string     `json:"status"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`

	RejectionReason string `json:"rejection_reason,omitempty"`

	// Dispute sub-state
	RejectionApprovedBy      string     `json:"rejection_approved_by,omitempty"`
	RejectionApprovedAt      *time.Time `json:"rejection_approved_at,omitempty"`
	RejectionRejectedBy      string     `json:"rejection_rejected_by,omitempty"`
	RejectionRejectedAt      *time.Time `json:"rejection_rejected_at,omitempty"`
	RejectionRejectionReason string     `json:"rejection_rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the assignment can accept no further transitions
func (a *Assignment) Terminal() bool {
	return a.RejectionApprovedBy != ""
}

// Active reports whether the assignment counts toward the task's assignee set
func (a *Assignment) Active() bool {
	return a.Status != AssignmentStatusRejected
}

// StatusChange is one entry of a task's append-only status history. Every
// accepted status change appends exactly one entry; same-status no-ops append
// none.
type StatusChange struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}
