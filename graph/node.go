package graph

import (
	"context"

	"github.com/dshills/stategraph-go/graph/emit"
)

// NodeFunc is one unit of work in the graph. It receives a read-only view of
// the thread state and the task's input (nil except for fan-out tasks that
// carry one), and reports its outcome through NodeResult.
//
// A node must not mutate the view; all writes go through the returned Update
// and are merged by the channel reducers after the superstep barrier.
type NodeFunc func(ctx context.Context, view StateView, input any) NodeResult

// NodeResult is the explicit three-way outcome of a task: a state update, an
// interrupt request, or an error. Exactly one of Interrupt and Err should be
// set when the task does not complete normally; Err wins when both are.
type NodeResult struct {
	// Update is the partial state this task contributes to the merge.
	// Ignored when the superstep does not commit.
	Update Update

	// Interrupt, when non-nil, suspends the thread for external input.
	Interrupt *InterruptSignal

	// Err marks the task failed. The superstep aborts without committing.
	Err error
}

// InterruptSignal is a node's request to suspend the thread. Build one with
// Suspend.
type InterruptSignal struct {
	// ID names the interrupt point. Stable IDs let callers correlate a
	// resume value with the question that raised it.
	ID string

	// Payload is shown to the caller, e.g. a question or a draft awaiting
	// approval. It must survive a JSON round trip.
	Payload any
}

// Suspend builds a NodeResult that suspends the thread until Resume is
// called. On resume the whole frontier re-executes; the interrupted task
// finds the resume value via ResumeValue.
func Suspend(id string, payload any) NodeResult {
	return NodeResult{Interrupt: &InterruptSignal{ID: id, Payload: payload}}
}

type ctxKey int

const (
	resumeValueKey ctxKey = iota
	emitFuncKey
)

type resumeEnvelope struct {
	value any
}

func withResumeValue(ctx context.Context, value any) context.Context {
	return context.WithValue(ctx, resumeValueKey, &resumeEnvelope{value: value})
}

// ResumeValue returns the caller-supplied resume value when the current task
// is being re-executed after an interrupt it raised. A node that calls
// Suspend should check ResumeValue first: present means the answer arrived
// and the node proceeds instead of suspending again.
func ResumeValue(ctx context.Context) (any, bool) {
	env, ok := ctx.Value(resumeValueKey).(*resumeEnvelope)
	if !ok {
		return nil, false
	}
	return env.value, true
}

type emitFunc func(typ emit.Type, msg string, meta map[string]any)

func withEmit(ctx context.Context, fn emitFunc) context.Context {
	return context.WithValue(ctx, emitFuncKey, fn)
}

// Emit publishes a pass-through event (progress, token) from inside a node.
// The engine stamps thread, superstep, and node and forwards it to the
// runner's emitter unbuffered. Outside a task context this is a no-op.
func Emit(ctx context.Context, typ emit.Type, msg string, meta map[string]any) {
	fn, ok := ctx.Value(emitFuncKey).(emitFunc)
	if !ok {
		return
	}
	fn(typ, msg, meta)
}

// RouteDecision is a router's verdict on where execution goes after a
// superstep commits. Build one with Next, FanOut, or Halt.
type RouteDecision struct {
	targets []FanOutTarget
	halt    bool
}

// FanOutTarget names one node to schedule, optionally with a task-specific
// input delivered to that task alone.
type FanOutTarget struct {
	Node  string
	Input any
}

// Next routes to a single node.
func Next(node string) RouteDecision {
	return RouteDecision{targets: []FanOutTarget{{Node: node}}}
}

// FanOut routes to several tasks in parallel. Unlike static edges, fan-out
// tasks are never deduplicated: two targets naming the same node become two
// tasks, each with its own input.
func FanOut(targets ...FanOutTarget) RouteDecision {
	return RouteDecision{targets: targets}
}

// Halt stops this branch. The thread completes when no branch schedules
// further work.
func Halt() RouteDecision {
	return RouteDecision{halt: true}
}

// Router picks the next hop(s) for a node after the merge phase. It sees the
// committed state of the superstep its node ran in. Routers should be pure:
// same state, same decision.
type Router func(view StateView) RouteDecision
