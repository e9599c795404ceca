// Package sse pushes catalog notifications to browsers over Server-Sent Events.
package sse

import (
	"time"

	"github.com/openbay/openbay-node/internal/catalog"
)

// Notifications carry no state. Clients re-query the API when they see one,
// which is how the catalog's own consumers treat them too.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventResourcesChanged is sent whenever the resource index changes.
	EventResourcesChanged EventType = EventType(catalog.ResourcesChanged)
	// EventFeedbackChanged is sent whenever a tally may have changed.
	EventFeedbackChanged EventType = EventType(catalog.FeedbackChanged)
	// EventIdentityChanged is sent on login, logout and session resume.
	EventIdentityChanged EventType = EventType(catalog.IdentityChanged)
	// EventWriteFailed reports an authoritative write that was not acknowledged.
	EventWriteFailed EventType = EventType(catalog.WriteFailed)

	// EventConnected is the first event on every stream.
	EventConnected EventType = "connected"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time  `json:"timestamp"`
	Data      *EventData `json:"data,omitempty"`
	Type      EventType  `json:"type"`
}

// EventData is the optional payload of a change event.
type EventData struct {
	ResourceID string `json:"resource_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FromNotification converts a catalog notification.
func FromNotification(n catalog.Notification) Event {
	evt := Event{
		Type:      EventType(n.Change),
		Timestamp: time.Now(),
	}
	if n.ResourceID != "" || n.Error != "" {
		evt.Data = &EventData{ResourceID: n.ResourceID, Error: n.Error}
	}
	return evt
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
	}
}
