package entity

// Status constants for Task
const (
	TaskStatusPending    = "PENDING"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusCompleted  = "COMPLETED"
	TaskStatusCancelled  = "CANCELLED"
)

// Approval status constants for Task
const (
	ApprovalStatusNone     = "NONE"
	ApprovalStatusPending  = "PENDING"
	ApprovalStatusApproved = "APPROVED"
	ApprovalStatusRejected = "REJECTED"
)

// Status constants for Assignment
const (
	AssignmentStatusPending   = "PENDING"
	AssignmentStatusAccepted  = "ACCEPTED"
	AssignmentStatusRejected  = "REJECTED"
	AssignmentStatusCompleted = "COMPLETED"
)

// Role constants for Actor
const (
	RoleAdmin      = "ADMIN"
	RoleTeamLeader = "TEAM_LEADER"
	RoleMember     = "MEMBER"
)

// Notification action constants, used for in-place updates and duplicate suppression
const (
	ActionAssigned          = "ASSIGNED"
	ActionAccepted          = "ACCEPTED"
	ActionRejected          = "REJECTED"
	ActionRejectionApproved = "REJECTION_APPROVED"
	ActionRejectionDisputed = "REJECTION_DISPUTED"
	ActionApprovalRequested = "APPROVAL_REQUESTED"
	ActionApproved          = "APPROVED"
	ActionApprovalRejected  = "APPROVAL_REJECTED"
	ActionStatusChanged     = "STATUS_CHANGED"
	ActionPooled            = "POOLED"
	ActionClaimRequested    = "CLAIM_REQUESTED"
	ActionClaimApproved     = "CLAIM_APPROVED"
	ActionClaimRejected     = "CLAIM_REJECTED"
	ActionClaimDropped      = "CLAIM_DROPPED"
)

// Notification kind constants
const (
	NotificationKindAssignment  = "ASSIGNMENT"
	NotificationKindStatus      = "STATUS"
	NotificationKindApproval    = "APPROVAL"
	NotificationKindArbitration = "ARBITRATION"
	NotificationKindPool        = "POOL"
)

// MinRejectionReasonLen is the structural floor for rejection and dispute reasons
const MinRejectionReasonLen = 20

// ValidTaskStatus reports whether s is a known task status value
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}
