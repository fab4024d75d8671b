package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/supervisr/internal/process"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventRegistered EventType = "registered"
	EventFailed     EventType = "failed"
	EventRestarted  EventType = "restarted"
	EventGaveUp     EventType = "gave_up"
	EventStopped    EventType = "stopped"
)

// Record is the process snapshot attached to an event.
type Record struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	InstanceID string `json:"instance_id,omitempty"`
	Restarts   int    `json:"restarts"`
	Strategy   string `json:"strategy,omitempty"`
	// Trigger names the failed process whose restart set caused this event.
	Trigger    string `json:"trigger,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// NewEvent builds an event for st with a fresh id.
func NewEvent(t EventType, at time.Time, st process.Status) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UTC(),
		Record: Record{
			Name:       st.Name,
			State:      st.State.String(),
			InstanceID: st.InstanceID,
			Restarts:   st.Restarts,
		},
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
