package graph

import "errors"

// ErrNoPendingInterrupt indicates Resume was called on a thread whose latest
// checkpoint has no pending interrupt. The checkpoint is left untouched.
var ErrNoPendingInterrupt = errors.New("no pending interrupt for thread")

// ErrMaxSuperstepsExceeded indicates a run reached the configured superstep
// cap without terminating. This prevents unbounded loops in cyclic graphs.
var ErrMaxSuperstepsExceeded = errors.New("execution exceeded superstep limit")

// ErrConcurrentInterrupts indicates more than one task raised an interrupt in
// the same superstep. The resume protocol carries a single resume point, so
// the superstep fails instead of silently dropping an interrupt.
var ErrConcurrentInterrupts = errors.New("multiple interrupts raised in one superstep")

// ErrInvalidRetryPolicy indicates a RetryPolicy failed validation.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// CompileError reports a graph definition problem detected at build time:
// duplicate nodes, unknown edge references, a missing start node, or
// unreachable nodes. A graph that compiles never fails for these reasons at
// runtime.
type CompileError struct {
	// Message is the human-readable description.
	Message string

	// Node identifies the offending node, when one is known.
	Node string
}

func (e *CompileError) Error() string {
	if e.Node != "" {
		return "compile: node " + e.Node + ": " + e.Message
	}
	return "compile: " + e.Message
}

// NodeError reports a failed task execution. It aborts the enclosing
// superstep; the thread's previous checkpoint remains intact and the thread
// can be re-invoked.
type NodeError struct {
	// Node is the node whose task failed.
	Node string

	// TaskIndex is the failed task's position in the frontier.
	TaskIndex int

	// Message is the human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *NodeError) Error() string {
	if e.Node != "" {
		return "node " + e.Node + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}

// ReducerError reports a failed state merge. It is treated like a task
// failure: the superstep does not commit.
type ReducerError struct {
	// Channel is the state channel whose reducer failed.
	Channel string

	// Node is the node whose update was being merged.
	Node string

	// Cause is the reducer's error.
	Cause error
}

func (e *ReducerError) Error() string {
	return "reducer: channel " + e.Channel + ": " + e.Cause.Error()
}

func (e *ReducerError) Unwrap() error {
	return e.Cause
}

// CheckpointError reports a persistence failure. The superstep whose commit
// failed is not observable; re-invoking the thread retries from the last
// durable checkpoint.
type CheckpointError struct {
	// Op names the failed store operation ("save", "load", "delete").
	Op string

	// Cause is the store's error.
	Cause error
}

func (e *CheckpointError) Error() string {
	return "checkpoint " + e.Op + ": " + e.Cause.Error()
}

func (e *CheckpointError) Unwrap() error {
	return e.Cause
}

// EngineError reports runner configuration misuse (missing store, unknown
// thread, invalid option values).
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
