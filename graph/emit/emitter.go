package emit

// Emitter receives events from run execution.
//
// Implementations should be:
//   - Non-blocking: a slow backend must not stall the superstep loop,
//     and must never delay node-originated token events
//   - Thread-safe: tasks in one superstep emit concurrently
//   - Resilient: Emit must not panic; internal failures are swallowed
//     or logged, never surfaced into the run
type Emitter interface {
	// Emit delivers one event. Implementations must not retain the Meta
	// map beyond the call unless they copy it.
	Emit(event Event)
}

// MultiEmitter fans each event out to several emitters in order.
type MultiEmitter []Emitter

// Emit delivers the event to every wrapped emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
