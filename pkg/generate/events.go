package generate

// EventType classifies session events.
type EventType string

const (
	// EventProgress is emitted at phase transitions within a chunk and
	// after each completed chunk.
	EventProgress EventType = "progress"

	// EventComplete is emitted once when the full collection is generated.
	EventComplete EventType = "complete"

	// EventError is emitted once when the session fails.
	EventError EventType = "error"

	// EventCancelled is emitted once when the caller cancels the session.
	EventCancelled EventType = "cancelled"
)

// Status texts carried by progress events.
const (
	// StatusSolving means the session is solving assignments for the
	// current chunk.
	StatusSolving = "solving"

	// StatusComposing means the current chunk is being composited on the
	// worker pool.
	StatusComposing = "compositing"
)

// Event is a session progress notification. The caller owns how events
// become UI state; the engine only emits them.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Generated int       `json:"generated"`
	Total     int       `json:"total"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
}
