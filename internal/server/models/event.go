package models

import (
	"encoding/json"
	"time"
)

// EventType names the real-time events pushed to connected clients.
type EventType string

const (
	EventTaskCreated  EventType = "task.created"
	EventTaskUpdated  EventType = "task.updated"
	EventTaskDeleted  EventType = "task.deleted"
	EventTaskAssigned EventType = "task.assigned"
	EventStarAdded    EventType = "star.added"
	EventStarRemoved  EventType = "star.removed"

	// EventTaskDuplicated exists in the documented taxonomy but is not
	// emitted: duplication publishes EventTaskCreated for the new task.
	EventTaskDuplicated EventType = "task.duplicated"
)

// Event is one fan-out message. On the wire the payload fields are flattened
// next to eventId/emittedAt/type for client-side deduplication and ordering.
type Event struct {
	EventID   string         `json:"eventId"`
	EmittedAt time.Time      `json:"emittedAt"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"-"`
}

// MarshalJSON flattens Payload into the top-level object. Payload keys never
// shadow the envelope fields.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["eventId"] = e.EventID
	out["emittedAt"] = e.EmittedAt
	out["type"] = e.Type
	return json.Marshal(out)
}
