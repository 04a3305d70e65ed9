package graph

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dshills/stategraph-go/graph/emit"
	"github.com/dshills/stategraph-go/graph/store"
)

// RunStatus is the terminal disposition of one Invoke or Resume call.
type RunStatus string

const (
	// StatusCompleted means the run terminated with an empty frontier.
	StatusCompleted RunStatus = "completed"

	// StatusInterrupted means the run suspended awaiting external input.
	StatusInterrupted RunStatus = "interrupted"

	// StatusFailed means a superstep aborted; the thread remains at its
	// last committed checkpoint and can be re-invoked.
	StatusFailed RunStatus = "failed"
)

// Result is the outcome of one Invoke or Resume call. Exactly one status
// applies; State and Superstep always reflect the last committed checkpoint.
type Result struct {
	// ThreadID identifies the run.
	ThreadID string

	// Status is the terminal disposition of this call.
	Status RunStatus

	// State is the committed thread state at return time. On failure this
	// is the state before the aborted superstep.
	State State

	// Superstep is the last committed superstep number.
	Superstep int

	// Interrupt carries the pending interrupt when Status is
	// StatusInterrupted.
	Interrupt *store.Interrupt

	// Err is the failure cause when Status is StatusFailed.
	Err error
}

// Runner executes a CompiledGraph as bulk-synchronous supersteps.
//
// Each superstep: dispatch every frontier task concurrently against deep
// state snapshots, wait at the barrier, classify results (error beats
// interrupt beats merge), merge updates through channel reducers in task
// index order, persist a checkpoint, then compute the next frontier from
// edges and routers. Supersteps are fail-atomic: an aborted superstep leaves
// no trace in the checkpoint store.
//
// A single Runner serves any number of threads; per-thread calls must not
// overlap (the caller serializes Invoke/Resume on one thread ID).
//
// Example:
//
//	runner, err := graph.NewRunner(g, store.NewMemStore(), emit.NewLogEmitter(nil, false))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := runner.Invoke(ctx, "thread-1", graph.Update{"query": "hello"})
type Runner struct {
	graph   *CompiledGraph
	store   store.Store
	emitter emit.Emitter
	cfg     runnerConfig
}

// NewRunner creates a Runner over a compiled graph and a checkpoint store.
// emitter may be nil to discard events.
//
// A graph that cannot be proven acyclic (a cycle through static edges or
// declared router targets, or any router without declared targets) is
// rejected unless WithMaxSupersteps sets a cap.
func NewRunner(g *CompiledGraph, st store.Store, emitter emit.Emitter, opts ...Option) (*Runner, error) {
	if g == nil {
		return nil, &EngineError{Message: "compiled graph is required", Code: "MISSING_GRAPH"}
	}
	if st == nil {
		return nil, &EngineError{Message: "checkpoint store is required", Code: "MISSING_STORE"}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.maxSupersteps == 0 && !g.provablyAcyclic() {
		return nil, &EngineError{
			Message: "graph is not provably acyclic; set WithMaxSupersteps",
			Code:    "UNBOUNDED_CYCLE",
		}
	}

	return &Runner{graph: g, store: st, emitter: emitter, cfg: cfg}, nil
}

// Invoke starts or continues a thread.
//
// With a non-nil initial update the thread starts fresh: channel defaults
// are seeded, initial is merged through the reducers, and execution begins
// at the start node. Any previous checkpoint under this thread ID is
// overwritten.
//
// With a nil initial the thread continues from its checkpoint: a pending
// interrupt is re-surfaced without executing anything, a completed thread
// returns StatusCompleted with its final state, and a thread with pending
// frontier tasks (e.g. after a crash or failure) resumes execution.
func (r *Runner) Invoke(ctx context.Context, threadID string, initial Update) (Result, error) {
	if threadID == "" {
		err := &EngineError{Message: "thread ID cannot be empty", Code: "INVALID_THREAD_ID"}
		return Result{Status: StatusFailed, Err: err}, err
	}

	if initial == nil {
		cp, err := r.load(ctx, threadID)
		if err != nil {
			return Result{ThreadID: threadID, Status: StatusFailed, Err: err}, err
		}
		if cp.Pending != nil {
			return Result{
				ThreadID:  threadID,
				Status:    StatusInterrupted,
				State:     cp.State,
				Superstep: cp.Superstep,
				Interrupt: cp.Pending,
			}, nil
		}
		return r.run(ctx, cp, nil)
	}

	state, err := r.graph.schema.initialState()
	if err != nil {
		engineErr := &EngineError{Message: "failed to seed state: " + err.Error(), Code: "SCHEMA_ERROR"}
		return Result{ThreadID: threadID, Status: StatusFailed, Err: engineErr}, engineErr
	}
	state, err = r.applyUpdate(state, r.graph.start, initial)
	if err != nil {
		return Result{ThreadID: threadID, Status: StatusFailed, Err: err}, err
	}

	cp := store.Checkpoint{
		ThreadID:  threadID,
		Superstep: 0,
		State:     state,
		Frontier:  []store.Task{{Node: r.graph.start, Index: 0}},
	}
	if err := r.save(ctx, cp); err != nil {
		return r.fail(cp, err), err
	}
	return r.run(ctx, cp, nil)
}

// Resume continues a thread suspended on an interrupt. The suspended
// frontier re-executes in full; the task that raised the interrupt sees
// value through ResumeValue, the rest re-run blind. Resume on a thread with
// no pending interrupt returns ErrNoPendingInterrupt and leaves the
// checkpoint untouched.
func (r *Runner) Resume(ctx context.Context, threadID string, value any) (Result, error) {
	cp, err := r.load(ctx, threadID)
	if err != nil {
		return Result{ThreadID: threadID, Status: StatusFailed, Err: err}, err
	}
	if cp.Pending == nil {
		return r.fail(cp, ErrNoPendingInterrupt), ErrNoPendingInterrupt
	}

	resume := &resumeInjection{taskIndex: cp.Pending.TaskIndex, value: value}
	cp.Pending = nil
	return r.run(ctx, cp, resume)
}

// GetState returns the thread's latest checkpoint.
func (r *Runner) GetState(ctx context.Context, threadID string) (store.Checkpoint, error) {
	return r.load(ctx, threadID)
}

// run drives the superstep loop from a loaded checkpoint until the thread
// completes, suspends, or fails. resume applies to the first superstep only.
func (r *Runner) run(ctx context.Context, cp store.Checkpoint, resume *resumeInjection) (Result, error) {
	for {
		if cp.Done() {
			r.emitter.Emit(emit.Event{
				ThreadID:  cp.ThreadID,
				Superstep: cp.Superstep,
				Type:      emit.TypeComplete,
			})
			return Result{
				ThreadID:  cp.ThreadID,
				Status:    StatusCompleted,
				State:     cp.State,
				Superstep: cp.Superstep,
			}, nil
		}

		if r.cfg.maxSupersteps > 0 && cp.Superstep >= r.cfg.maxSupersteps {
			return r.abort(cp, cp.Superstep+1, "max_supersteps", ErrMaxSuperstepsExceeded)
		}
		if err := ctx.Err(); err != nil {
			return r.fail(cp, err), err
		}

		superstep := cp.Superstep + 1
		start := time.Now()
		r.emitter.Emit(emit.Event{
			ThreadID:  cp.ThreadID,
			Superstep: superstep,
			Type:      emit.TypeStatus,
			Msg:       "superstep_start",
			Meta:      map[string]any{"tasks": len(cp.Frontier)},
		})

		results := r.dispatch(ctx, cp, resume)
		resume = nil

		// Classification: any error aborts before interrupts are
		// considered, interrupts suspend before updates are merged.
		var interrupts []*store.Interrupt
		for _, res := range results {
			if res.err != nil {
				return r.abort(cp, superstep, "node_error", res.err)
			}
			if res.interrupt != nil {
				interrupts = append(interrupts, res.interrupt)
			}
		}

		if len(interrupts) > 1 {
			return r.abort(cp, superstep, "concurrent_interrupts", ErrConcurrentInterrupts)
		}
		if len(interrupts) == 1 {
			return r.suspend(ctx, cp, superstep, interrupts[0])
		}

		merged, err := r.merge(cp.State, results)
		if err != nil {
			return r.abort(cp, superstep, "reducer_error", err)
		}

		frontier, err := r.nextFrontier(merged, results)
		if err != nil {
			return r.abort(cp, superstep, "node_error", err)
		}

		next := store.Checkpoint{
			ThreadID:  cp.ThreadID,
			Superstep: superstep,
			State:     merged,
			Frontier:  frontier,
		}
		if err := r.save(ctx, next); err != nil {
			return r.abort(cp, superstep, "checkpoint_error", err)
		}

		if r.cfg.metrics != nil {
			r.cfg.metrics.RecordSuperstepLatency(cp.ThreadID, time.Since(start))
		}
		r.emitter.Emit(emit.Event{
			ThreadID:  cp.ThreadID,
			Superstep: superstep,
			Type:      emit.TypeStatus,
			Msg:       "superstep_commit",
			Meta: map[string]any{
				"tasks":       len(results),
				"duration_ms": time.Since(start).Milliseconds(),
			},
		})

		cp = next
	}
}

// suspend persists the interrupt alongside the unchanged state and frontier,
// so Resume re-dispatches the same superstep.
func (r *Runner) suspend(ctx context.Context, cp store.Checkpoint, superstep int, intr *store.Interrupt) (Result, error) {
	suspended := cp
	suspended.Pending = intr
	if err := r.save(ctx, suspended); err != nil {
		return r.abort(cp, superstep, "checkpoint_error", err)
	}

	if r.cfg.metrics != nil {
		r.cfg.metrics.IncrementInterrupts(cp.ThreadID, intr.Node)
	}
	r.emitter.Emit(emit.Event{
		ThreadID:  cp.ThreadID,
		Superstep: superstep,
		Node:      intr.Node,
		Type:      emit.TypeInterrupt,
		Msg:       intr.ID,
		Meta:      map[string]any{"payload": intr.Payload},
	})

	return Result{
		ThreadID:  cp.ThreadID,
		Status:    StatusInterrupted,
		State:     cp.State,
		Superstep: cp.Superstep,
		Interrupt: intr,
	}, nil
}

// abort reports a failed superstep. Nothing is persisted; the thread stays
// at its last committed checkpoint.
func (r *Runner) abort(cp store.Checkpoint, superstep int, reason string, err error) (Result, error) {
	if r.cfg.metrics != nil {
		r.cfg.metrics.IncrementSuperstepFailures(cp.ThreadID, reason)
	}

	node := ""
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		node = nodeErr.Node
	}
	r.emitter.Emit(emit.Event{
		ThreadID:  cp.ThreadID,
		Superstep: superstep,
		Node:      node,
		Type:      emit.TypeError,
		Msg:       "superstep_failed",
		Meta:      map[string]any{"error": err.Error(), "code": reason},
	})

	return r.fail(cp, err), err
}

func (r *Runner) fail(cp store.Checkpoint, err error) Result {
	return Result{
		ThreadID:  cp.ThreadID,
		Status:    StatusFailed,
		State:     cp.State,
		Superstep: cp.Superstep,
		Err:       err,
	}
}

// merge folds every task's update into a deep copy of the committed state.
// Results arrive in frontier order, so contributions apply in ascending task
// index; within one update, channels merge in sorted name order.
func (r *Runner) merge(state State, results []taskResult) (State, error) {
	merged, err := deepCopy(state)
	if err != nil {
		return nil, &ReducerError{Channel: "", Cause: err}
	}
	if merged == nil {
		merged = make(State)
	}

	for _, res := range results {
		names := make([]string, 0, len(res.update))
		for name := range res.update {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			reducer, ok := r.graph.schema.reducerFor(name)
			if !ok {
				return nil, &ReducerError{
					Channel: name,
					Node:    res.task.Node,
					Cause:   errors.New("channel not in schema"),
				}
			}
			value, err := reducer(merged[name], res.update[name])
			if err != nil {
				return nil, &ReducerError{Channel: name, Node: res.task.Node, Cause: err}
			}
			merged[name] = value
		}
	}
	return merged, nil
}

// applyUpdate merges a caller-supplied update (Invoke's initial) through the
// schema reducers.
func (r *Runner) applyUpdate(state State, node string, update Update) (State, error) {
	results := []taskResult{{task: store.Task{Node: node}, update: update}}
	return r.merge(state, results)
}

// nextFrontier computes the tasks of the following superstep from the
// committed state: router decisions for nodes with conditional edges, static
// edges otherwise. Static-edge targets are deduplicated by node within the
// superstep; router targets are not, so fan-out can schedule one node many
// times with distinct inputs. A node with no outgoing edges terminates its
// branch.
func (r *Runner) nextFrontier(state State, results []taskResult) ([]store.Task, error) {
	view := viewOf(state)
	var tasks []store.Task
	seen := make(map[string]bool)

	for _, res := range results {
		node := res.task.Node

		if re, ok := r.graph.routers[node]; ok {
			decision := re.router(view)
			if decision.halt {
				continue
			}
			for _, target := range decision.targets {
				if target.Node == End {
					continue
				}
				if _, exists := r.graph.nodes[target.Node]; !exists {
					return nil, &NodeError{
						Node:    node,
						Message: "router returned unknown node: " + target.Node,
					}
				}
				if len(re.targets) > 0 && !containsTarget(re.targets, target.Node) {
					return nil, &NodeError{
						Node:    node,
						Message: "router returned undeclared target: " + target.Node,
					}
				}
				tasks = append(tasks, store.Task{Node: target.Node, Input: target.Input, Index: len(tasks)})
			}
			continue
		}

		for _, to := range r.graph.edgesByFrom[node] {
			if to == End || seen[to] {
				continue
			}
			seen[to] = true
			tasks = append(tasks, store.Task{Node: to, Index: len(tasks)})
		}
	}
	return tasks, nil
}

func containsTarget(targets []string, node string) bool {
	for _, t := range targets {
		if t == node {
			return true
		}
	}
	return false
}

func (r *Runner) load(ctx context.Context, threadID string) (store.Checkpoint, error) {
	cp, err := r.store.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Checkpoint{}, &EngineError{
				Message: "unknown thread: " + threadID,
				Code:    "THREAD_NOT_FOUND",
			}
		}
		return store.Checkpoint{}, &CheckpointError{Op: "load", Cause: err}
	}
	return cp, nil
}

func (r *Runner) save(ctx context.Context, cp store.Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()

	start := time.Now()
	if err := r.store.Save(ctx, cp); err != nil {
		return &CheckpointError{Op: "save", Cause: err}
	}
	if r.cfg.metrics != nil {
		r.cfg.metrics.RecordCheckpointWrite(time.Since(start))
	}
	return nil
}
