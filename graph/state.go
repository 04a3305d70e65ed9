package graph

import (
	"encoding/json"
	"fmt"
	"sort"
)

// deepCopy clones a value using JSON round-trip serialization.
//
// This works for anything that survives JSON: primitives, structs with
// exported fields, slices, and maps. Channels, functions, and cyclic values
// do not. Tasks execute against deep copies so concurrent branches never
// observe each other's writes.
func deepCopy[T any](value T) (T, error) {
	var zero T

	data, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied T
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return copied, nil
}

// StateView is the read-only window a node or router gets onto thread state.
// The underlying map is a per-task deep copy, so reads are isolated from
// concurrent tasks in the same superstep.
type StateView struct {
	state State
}

func viewOf(state State) StateView {
	return StateView{state: state}
}

// Get returns the value of a channel and whether it is set.
func (v StateView) Get(channel string) (any, bool) {
	value, ok := v.state[channel]
	return value, ok
}

// GetString returns a channel's value as a string, or "" when the channel is
// unset or holds a different type.
func (v StateView) GetString(channel string) string {
	s, _ := v.state[channel].(string)
	return s
}

// GetSlice returns a channel's value as a list, or nil when unset. Non-slice
// values are returned as a single-element list.
func (v StateView) GetSlice(channel string) []any {
	value, ok := v.state[channel]
	if !ok {
		return nil
	}
	return toSlice(value)
}

// Channels returns the set channels in sorted order.
func (v StateView) Channels() []string {
	names := make([]string, 0, len(v.state))
	for name := range v.state {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a shallow copy of the state map. Callers must not mutate
// nested values.
func (v StateView) Snapshot() State {
	snapshot := make(State, len(v.state))
	for name, value := range v.state {
		snapshot[name] = value
	}
	return snapshot
}
