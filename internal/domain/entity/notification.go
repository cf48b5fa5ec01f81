package entity

import "time"

// Notification is one record of the in-app notification feed. Email delivery
// is a best-effort mirror and is tracked nowhere on this record.
//
// The (ActorID, TaskID, Action, Read) tuple is the duplicate-suppression key:
// a second notification with the same key is not created while an unread one
// exists.
type Notification struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	TaskID  string `json:"task_id,omitempty"`

	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
	Action string `json:"action,omitempty"`

	// Metadata is the JSON-encoded typed metadata for this notification kind
	Metadata string `json:"metadata,omitempty"`

	Read bool `json:"read"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditEntry is one immutable record of the append-only audit log. Entries are
// never updated or deleted, and survive deletion of the entity they describe.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id"`
	Before     string    `json:"before,omitempty"`
	After      string    `json:"after,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit entity kinds
const (
	EntityKindTask       = "TASK"
	EntityKindAssignment = "ASSIGNMENT"
)

// Actor is a directory record for a human participant. The engine reads it
// for role checks and team-lead lookups only.
type Actor struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Role       string    `json:"role"`
	Department string    `json:"department,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
