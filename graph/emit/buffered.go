package emit

import "sync"

// BufferedEmitter implements Emitter by retaining events in memory, keyed
// by thread ID. It exists for tests, debugging, and dashboards that want
// to inspect a run's event history after the fact.
//
// All events are kept until cleared; for long-running production threads
// prefer LogEmitter or OTelEmitter.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // threadID -> events in emission order
}

// HistoryFilter selects a subset of a thread's events. Zero fields are
// ignored; set fields combine with AND.
type HistoryFilter struct {
	Node         string // filter by node name
	Type         Type   // filter by event type
	MinSuperstep *int   // inclusive lower bound
	MaxSuperstep *int   // inclusive upper bound
}

// NewBufferedEmitter creates an empty buffered emitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its thread's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ThreadID] = append(b.events[event.ThreadID], event)
}

// History returns a copy of the thread's events in emission order.
func (b *BufferedEmitter) History(threadID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[threadID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// HistoryWithFilter returns the thread's events matching the filter.
func (b *BufferedEmitter) HistoryWithFilter(threadID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[threadID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

// Clear removes the thread's history; an empty threadID clears everything.
func (b *BufferedEmitter) Clear(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if threadID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, threadID)
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.Node != "" && event.Node != filter.Node {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.MinSuperstep != nil && event.Superstep < *filter.MinSuperstep {
		return false
	}
	if filter.MaxSuperstep != nil && event.Superstep > *filter.MaxSuperstep {
		return false
	}
	return true
}
