// Package graph provides the superstep workflow engine for StateGraph-Go.
package graph

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// State is the shared thread state: a map of named channels to values.
// Values must survive a JSON round trip, since state is deep-copied for task
// isolation and persisted through the checkpoint store.
type State map[string]any

// Update is a partial state produced by one task: the channels it wants to
// write and their new contributions. Channels absent from an Update are left
// untouched by the merge.
type Update map[string]any

// Reducer merges one task's contribution into a channel's current value.
//
// Reducers run sequentially during the merge phase, ordered by task index
// within a superstep. A reducer registered on a channel that multiple tasks
// write in the same superstep should be order-independent (see UpsertByID);
// that property is the registrant's contract, not enforced by the engine.
type Reducer func(current, update any) (any, error)

// Channel declares one named slot in the state schema.
type Channel struct {
	// Name is the channel key in State and Update maps.
	Name string

	// Reducer merges task contributions into this channel.
	Reducer Reducer

	// Default seeds the channel when a new thread starts. May be nil.
	Default any
}

// Schema is the validated set of channels a graph's state consists of.
// Updates naming a channel outside the schema fail the merge.
type Schema struct {
	channels map[string]Channel
}

// NewSchema validates and builds a state schema from channel declarations.
func NewSchema(channels ...Channel) (*Schema, error) {
	if len(channels) == 0 {
		return nil, &CompileError{Message: "schema requires at least one channel"}
	}

	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		if ch.Name == "" {
			return nil, &CompileError{Message: "channel name cannot be empty"}
		}
		if ch.Reducer == nil {
			return nil, &CompileError{Message: "channel " + ch.Name + " has no reducer"}
		}
		if _, exists := byName[ch.Name]; exists {
			return nil, &CompileError{Message: "duplicate channel: " + ch.Name}
		}
		byName[ch.Name] = ch
	}

	return &Schema{channels: byName}, nil
}

// reducerFor returns the reducer for a channel, or false when the channel is
// not part of the schema.
func (s *Schema) reducerFor(name string) (Reducer, bool) {
	ch, ok := s.channels[name]
	if !ok {
		return nil, false
	}
	return ch.Reducer, true
}

// initialState builds a fresh state from channel defaults. Defaults are
// deep-copied so threads never share mutable values.
func (s *Schema) initialState() (State, error) {
	state := make(State, len(s.channels))
	for name, ch := range s.channels {
		if ch.Default == nil {
			continue
		}
		copied, err := deepCopy(ch.Default)
		if err != nil {
			return nil, fmt.Errorf("default for channel %s: %w", name, err)
		}
		state[name] = copied
	}
	return state, nil
}

// Replace returns a reducer where the update overwrites the current value.
// When multiple tasks write the channel in one superstep, the task with the
// highest index wins; the merge order is deterministic, so the result is too.
func Replace() Reducer {
	return func(_, update any) (any, error) {
		return update, nil
	}
}

// Append returns a reducer that concatenates the update onto the current
// list. A non-slice update is appended as a single element. Contributions
// from one superstep land in task-index order.
func Append() Reducer {
	return func(current, update any) (any, error) {
		merged := make([]any, 0)
		merged = append(merged, toSlice(current)...)
		merged = append(merged, toSlice(update)...)
		return merged, nil
	}
}

// UpsertByID returns a reducer for lists of records keyed by a string id
// field. Each update record replaces the existing record with the same id or
// inserts a new one. The merged list is sorted by id, so for distinct ids the
// result is identical under any permutation of task outputs.
//
// Records may be maps or JSON-marshalable structs; structs are normalized to
// maps on merge.
func UpsertByID(idField string) Reducer {
	return func(current, update any) (any, error) {
		byID := make(map[string]map[string]any)

		for _, item := range toSlice(current) {
			record, id, err := recordID(item, idField)
			if err != nil {
				return nil, err
			}
			byID[id] = record
		}
		for _, item := range toSlice(update) {
			record, id, err := recordID(item, idField)
			if err != nil {
				return nil, err
			}
			byID[id] = record
		}

		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		merged := make([]any, 0, len(byID))
		for _, id := range ids {
			merged = append(merged, byID[id])
		}
		return merged, nil
	}
}

// toSlice views a channel value as a list of elements. Slices and arrays of
// any element type are flattened; nil is empty; anything else is a single
// element.
func toSlice(v any) []any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// recordID normalizes one upsert record to a map and extracts its id.
func recordID(item any, idField string) (map[string]any, string, error) {
	record, ok := item.(map[string]any)
	if !ok {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, "", fmt.Errorf("upsert record is not an object: %w", err)
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, "", fmt.Errorf("upsert record is not an object: %w", err)
		}
	}

	id, ok := record[idField].(string)
	if !ok || id == "" {
		return nil, "", fmt.Errorf("upsert record missing string id field %q", idField)
	}
	return record, id, nil
}
