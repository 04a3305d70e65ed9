package emit

// NullEmitter implements Emitter by discarding all events. Use it when no
// presentation layer or observability backend is attached.
type NullEmitter struct{}

// NewNullEmitter creates an emitter that drops every event.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}
