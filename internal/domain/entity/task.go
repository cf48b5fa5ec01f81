package entity

import "time"

// Task represents a unit of work moving through the assignment and approval
// workflow. Status, approval status and the pool fields are owned exclusively
// by the workflow engine; no other writer may touch them.
//
// AssignedUsers is a denormalized mirror of the actors holding a non-rejected
// Assignment, kept for fast membership checks. The Assignment collection is
// the source of truth.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`

	Status          string     `json:"status"`
	StatusUpdatedBy string     `json:"status_updated_by,omitempty"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`

	// Approval gate
	ApprovalStatus          string     `json:"approval_status"`
	ApprovalRequestedBy     string     `json:"approval_requested_by,omitempty"`
	ApprovedBy              string     `json:"approved_by,omitempty"`
	ApprovedAt              *time.Time `json:"approved_at,omitempty"`
	RejectedBy              string     `json:"rejected_by,omitempty"`
	RejectedAt              *time.Time `json:"rejected_at,omitempty"`
	ApprovalRejectionReason string     `json:"approval_rejection_reason,omitempty"`

	// Pool coordination
	IsInPool     bool     `json:"is_in_pool"`
	PoolRequests []string `json:"pool_requests,omitempty"`

	AssignedUsers []string `json:"assigned_users,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAssignedUser reports whether actorID is in the denormalized assignee set
func (t *Task) HasAssignedUser(actorID string) bool {
	for _, id := range t.AssignedUsers {
		if id == actorID {
			return true
		}
	}
	return false
}

// AddAssignedUser adds actorID to the assignee set if absent (idempotent union)
func (t *Task) AddAssignedUser(actorID string) {
	if !t.HasAssignedUser(actorID) {
		t.AssignedUsers = append(t.AssignedUsers, actorID)
	}
}

// RemoveAssignedUser removes actorID from the assignee set
func (t *Task) RemoveAssignedUser(actorID string) {
	filtered := t.AssignedUsers[:0]
	for _, id := range t.AssignedUsers {
		if id != actorID {
			filtered = append(filtered, id)
		}
	}
	t.AssignedUsers = filtered
}

// HasPoolRequest reports whether actorID has an outstanding claim request
func (t *Task) HasPoolRequest(actorID string) bool {
	for _, id := range t.PoolRequests {
		if id == actorID {
			return true
		}
	}
	return false
}

// AddPoolRequest appends actorID to the claim request set
func (t *Task) AddPoolRequest(actorID string) {
	if !t.HasPoolRequest(actorID) {
		t.PoolRequests = append(t.PoolRequests, actorID)
	}
}

// RemovePoolRequest removes actorID from the claim request set
func (t *Task) RemovePoolRequest(actorID string) {
	filtered := t.PoolRequests[:0]
	for _, id := range t.PoolRequests {
		if id != actorID {
			filtered = append(filtered, id)
		}
	}
	t.PoolRequests = filtered
}
