package domain

import (
	"encoding/json"
	"time"
)

type User struct {
	ID     string   `json:"id"`
	Email  string   `json:"email,omitempty"`
	Groups []string `json:"groups"`
}

func (u User) InGroup(name string) bool {
	for _, g := range u.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// APIKey lets a service account act as a user. Only the hash is stored.
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at"`
}

type ActivityKind string

const (
	ActivityCreate     ActivityKind = "create"
	ActivityUpdate     ActivityKind = "update"
	ActivityTransition ActivityKind = "transition"
	ActivityDelete     ActivityKind = "delete"
)

// Key events derived from a diff.
const (
	KeyEventStatusUpdate   = "status_update"
	KeyEventReassign       = "reassign"
	KeyEventCourtChange    = "court_change"
	KeyEventAmendmentAdded = "amendment_added"
)

type FieldChange struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
}

type Diff map[string]FieldChange

// Activity is one append-only audit record.
type Activity struct {
	Seq        int64        `json:"seq,omitempty"`
	ID         string       `json:"id"`
	EntityKind Kind         `json:"entity_kind"`
	EntityID   string       `json:"entity_id"`
	ActorID    string       `json:"actor_id"`
	At         time.Time    `json:"at" format:"date-time"`
	Kind       ActivityKind `json:"kind" enum:"create,update,transition,delete"`
	FromStatus Status       `json:"from_status,omitempty"`
	ToStatus   Status       `json:"to_status,omitempty"`
	Transition string       `json:"transition,omitempty"`
	Diff       Diff         `json:"diff"`
	KeyEvents  []string     `json:"key_events"`
	Intents    []string     `json:"intents,omitempty"`
}

// Intent asks an external mailer to notify recipients.
type Intent struct {
	ID         string         `json:"id"`
	Template   string         `json:"template"`
	Recipients []string       `json:"recipients"`
	Context    map[string]any `json:"context"`
}

// Query selects entities of one kind by equality on top-level fields.
type Query struct {
	Kind  Kind
	Where map[string]any
}
