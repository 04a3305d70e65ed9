// Package store provides checkpoint persistence for stategraph threads.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for the requested thread ID.
var ErrNotFound = errors.New("not found")

// Task is a scheduled node invocation persisted as part of a checkpoint's
// frontier. Ordinary edges produce one task per target node; a fan-out
// routing decision produces N tasks for the same node, each carrying its
// own input.
type Task struct {
	// Node is the name of the node to invoke.
	Node string `json:"node"`

	// Input is the task-specific input override, nil for tasks produced
	// by ordinary edges. Must be JSON-serializable.
	Input any `json:"input,omitempty"`

	// Index is the task's position within its superstep. Merge order is
	// sequenced by Index, which is what makes last-write-wins channels
	// deterministic regardless of completion order.
	Index int `json:"index"`
}

// Interrupt records a node's pending request for external input. While an
// Interrupt is attached to a checkpoint, the thread is suspended and only
// a resume call (or another invoke, which re-surfaces the payload) makes
// progress.
type Interrupt struct {
	// ID is the node-chosen identifier for this interrupt point.
	ID string `json:"id"`

	// Node is the name of the node that raised the interrupt.
	Node string `json:"node"`

	// TaskIndex is the index of the interrupting task within the
	// suspended frontier. The resume value is delivered to this task only.
	TaskIndex int `json:"task_index"`

	// Payload is the opaque, business-defined data surfaced to the
	// caller. The engine transports it without interpretation.
	Payload any `json:"payload"`
}

// Checkpoint is the durable snapshot of a thread's run state. It is written
// atomically at the end of every committed superstep and immediately before
// surfacing an interrupt; it is the single source of truth for whether a
// thread has run and what its latest state is.
type Checkpoint struct {
	// ThreadID is the caller-supplied identifier scoping this run.
	ThreadID string `json:"thread_id"`

	// Superstep is the number of committed supersteps. Zero for a thread
	// that has not completed its first superstep.
	Superstep int `json:"superstep"`

	// State maps channel names to their merged values.
	State map[string]any `json:"state"`

	// Frontier holds the tasks to dispatch next. Empty when the run has
	// completed; on a suspended thread it holds the interrupted superstep's
	// tasks so resume can re-dispatch them.
	Frontier []Task `json:"frontier"`

	// Pending is the unanswered interrupt, if any.
	Pending *Interrupt `json:"pending_interrupt,omitempty"`

	// UpdatedAt records when this checkpoint was written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the checkpointed run has finished: nothing left to
// dispatch and no interrupt awaiting an answer.
func (c Checkpoint) Done() bool {
	return len(c.Frontier) == 0 && c.Pending == nil
}

// Store persists one checkpoint per thread ID.
//
// Save must be atomic: a concurrent or subsequent Load never observes a
// half-written checkpoint. Implementations achieve this with a mutex and
// deep copy (memory), temp-file-then-rename (file), or a transaction
// (sqlite, mysql).
type Store interface {
	// Save writes or overwrites the checkpoint for cp.ThreadID.
	Save(ctx context.Context, cp Checkpoint) error

	// Load returns the latest checkpoint for the thread, or ErrNotFound.
	Load(ctx context.Context, threadID string) (Checkpoint, error)

	// Delete removes the thread's checkpoint. Deleting a thread that was
	// never saved is not an error.
	Delete(ctx context.Context, threadID string) error
}
