package event

// Type identifies the type of domain event
type Type string

const (
	TypeNotificationCreated Type = "notification.created"
	TypeStatusChanged       Type = "task.status_changed"
	TypeApprovalResolved    Type = "task.approval_resolved"
	TypeTaskDeleted         Type = "task.deleted"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeNotificationCreated, TypeStatusChanged, TypeApprovalResolved, TypeTaskDeleted:
		return true
	default:
		return false
	}
}
