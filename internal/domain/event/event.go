package event

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskops/workflow/internal/domain/entity"
)

// Event represents a domain event emitted after a workflow transition has
// committed. Handlers run off the caller's success path; an event is a fact,
// not a command.
type Event struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	TaskID  string `json:"task_id,omitempty"`
	ActorID string `json:"actor_id,omitempty"`

	// Notification is set for TypeNotificationCreated
	Notification *entity.Notification `json:"notification,omitempty"`

	// Previous and Current are set for TypeStatusChanged and TypeApprovalResolved
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewNotificationEvent creates an event announcing a freshly created
// notification feed record
func NewNotificationEvent(n *entity.Notification) *Event {
	return &Event{
		ID:           ulid.Make().String(),
		Type:         TypeNotificationCreated,
		TaskID:       n.TaskID,
		ActorID:      n.ActorID,
		Notification: n,
		Timestamp:    time.Now(),
	}
}

// NewStatusChangedEvent creates an event announcing a committed task status change
func NewStatusChangedEvent(taskID, actorID, previous, current string) *Event {
	return &Event{
		ID:        ulid.Make().String(),
		Type:      TypeStatusChanged,
		TaskID:    taskID,
		ActorID:   actorID,
		Previous:  previous,
		Current:   current,
		Timestamp: time.Now(),
	}
}

// NewApprovalResolvedEvent creates an event announcing an approval gate decision
func NewApprovalResolvedEvent(taskID, actorID, previous, current string) *Event {
	return &Event{
		ID:        ulid.Make().String(),
		Type:      TypeApprovalResolved,
		TaskID:    taskID,
		ActorID:   actorID,
		Previous:  previous,
		Current:   current,
		Timestamp: time.Now(),
	}
}

// NewTaskDeletedEvent creates an event announcing a completed cascade delete
func NewTaskDeletedEvent(taskID, actorID string) *Event {
	return &Event{
		ID:        ulid.Make().String(),
		Type:      TypeTaskDeleted,
		TaskID:    taskID,
		ActorID:   actorID,
		Timestamp: time.Now(),
	}
}
