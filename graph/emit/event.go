// Package emit provides the caller event stream for stategraph runs.
package emit

// Type classifies an event on the caller stream.
//
// The engine itself emits interrupt, complete, error, and status events.
// Progress and token events originate in business nodes and are passed
// through unmodified — the engine never interprets or buffers them.
type Type string

const (
	// TypeStatus marks engine lifecycle events (superstep start/commit).
	TypeStatus Type = "status"

	// TypeProgress marks node-originated progress updates.
	TypeProgress Type = "progress"

	// TypeToken marks streamed partial output from a node, typically one
	// LLM token or chunk per event.
	TypeToken Type = "token"

	// TypeInterrupt marks a run suspending for external input. Meta
	// carries the opaque interrupt payload under "payload".
	TypeInterrupt Type = "interrupt"

	// TypeComplete marks a run finishing with a final state.
	TypeComplete Type = "complete"

	// TypeError marks a failed superstep or run.
	TypeError Type = "error"
)

// Event is one entry on the caller event stream.
//
// Events exist for presentation layers (CLI/TUI) and observability
// backends; engine correctness never depends on them being consumed.
type Event struct {
	// ThreadID identifies the run that emitted this event.
	ThreadID string

	// Superstep is the superstep during which the event was emitted.
	// Zero for thread-level events emitted before the first superstep.
	Superstep int

	// Node names the node this event concerns. Empty for engine-level
	// events.
	Node string

	// Type classifies the event.
	Type Type

	// Msg is a short human-readable description.
	Msg string

	// Meta carries event-specific structured data. Common keys:
	//   "payload":     opaque interrupt payload
	//   "error":       error text
	//   "code":        machine-readable error code
	//   "duration_ms": superstep or task duration
	//   "tasks":       frontier size
	Meta map[string]any
}
