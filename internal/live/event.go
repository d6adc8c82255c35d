// Package live delivers real-time events to connected clients over
// server-sent event streams. The hub is an explicit dependency owned by the
// application root; it keeps all connection state in process memory.
package live

// Event types published by the sync engine.
const (
	EventSyncStarted      = "calendar.sync.started"
	EventSyncCompleted    = "calendar.sync.completed"
	EventConflictDetected = "calendar.conflict.detected"
	EventConflictResolved = "calendar.conflict.resolved"
	EventEventCreated     = "calendar.event.created"
	EventEventUpdated     = "calendar.event.updated"
	EventEventDeleted     = "calendar.event.deleted"
)

// Control event types owned by the hub itself.
const (
	EventConnected    = "connected"
	EventHeartbeat    = "heartbeat"
	EventError        = "error"
	EventDisconnected = "disconnected"
)

// Event is a single framed message. Data is JSON-encoded at write time.
// ID and RetryMillis are optional; zero values omit their lines.
type Event struct {
	ID          string
	RetryMillis int
	Type        string
	Data        any
}
