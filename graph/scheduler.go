package graph

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/stategraph-go/graph/emit"
	"github.com/dshills/stategraph-go/graph/store"
)

// taskResult pairs a frontier task with its execution outcome. Exactly one
// of update, interrupt, and err is meaningful, in that priority order
// reversed: err beats interrupt beats update during classification.
type taskResult struct {
	task      store.Task
	update    Update
	interrupt *store.Interrupt
	err       error
}

// resumeInjection delivers a resume value to one task of the first
// re-executed superstep after an interrupt.
type resumeInjection struct {
	taskIndex int
	value     any
}

// dispatch executes every frontier task with bounded concurrency and blocks
// at the barrier until all tasks report. Results are returned in frontier
// order (ascending task index).
func (r *Runner) dispatch(ctx context.Context, cp store.Checkpoint, resume *resumeInjection) []taskResult {
	frontier := cp.Frontier
	results := make([]taskResult, len(frontier))

	if r.cfg.metrics != nil {
		r.cfg.metrics.UpdateFrontierDepth(len(frontier))
		defer r.cfg.metrics.UpdateFrontierDepth(0)
	}

	sem := make(chan struct{}, r.cfg.maxConcurrent)
	var wg sync.WaitGroup
	var inflight atomic.Int64

	for i, task := range frontier {
		wg.Add(1)
		go func(slot int, task store.Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if r.cfg.metrics != nil {
				r.cfg.metrics.UpdateInflightTasks(int(inflight.Add(1)))
				defer func() { r.cfg.metrics.UpdateInflightTasks(int(inflight.Add(-1))) }()
			}

			results[slot] = r.executeTask(ctx, cp, task, resume)
		}(i, task)
	}
	wg.Wait()

	return results
}

// executeTask runs one task against a deep-copied state snapshot, applying
// the runner's timeout and retry policy.
func (r *Runner) executeTask(ctx context.Context, cp store.Checkpoint, task store.Task, resume *resumeInjection) taskResult {
	out := taskResult{task: task}

	fn, ok := r.graph.nodes[task.Node]
	if !ok {
		out.err = &NodeError{Node: task.Node, TaskIndex: task.Index, Message: "node not found"}
		return out
	}

	snapshot, err := deepCopy(cp.State)
	if err != nil {
		out.err = &NodeError{Node: task.Node, TaskIndex: task.Index, Message: "failed to snapshot state", Cause: err}
		return out
	}

	superstep := cp.Superstep + 1
	taskCtx := withEmit(ctx, func(typ emit.Type, msg string, meta map[string]any) {
		r.emitter.Emit(emit.Event{
			ThreadID:  cp.ThreadID,
			Superstep: superstep,
			Node:      task.Node,
			Type:      typ,
			Msg:       msg,
			Meta:      meta,
		})
	})
	if resume != nil && task.Index == resume.taskIndex {
		taskCtx = withResumeValue(taskCtx, resume.value)
	}

	start := time.Now()
	result := r.runWithRetry(taskCtx, cp.ThreadID, task, fn, viewOf(snapshot))

	status := "success"
	switch {
	case result.Err != nil:
		status = "error"
		if nodeErr, ok := result.Err.(*NodeError); ok {
			out.err = nodeErr
		} else {
			out.err = &NodeError{
				Node:      task.Node,
				TaskIndex: task.Index,
				Message:   result.Err.Error(),
				Cause:     result.Err,
			}
		}
	case result.Interrupt != nil:
		status = "interrupt"
		out.interrupt = &store.Interrupt{
			ID:        result.Interrupt.ID,
			Node:      task.Node,
			TaskIndex: task.Index,
			Payload:   result.Interrupt.Payload,
		}
	default:
		out.update = result.Update
	}

	if r.cfg.metrics != nil {
		r.cfg.metrics.RecordTaskLatency(cp.ThreadID, task.Node, time.Since(start), status)
	}
	return out
}

// runWithRetry executes the node, retrying failed attempts per the runner's
// retry policy. Interrupts are never retried; every attempt sees the same
// state snapshot.
func (r *Runner) runWithRetry(ctx context.Context, threadID string, task store.Task, fn NodeFunc, view StateView) NodeResult {
	policy := r.cfg.retryPolicy
	attempts := 1
	if policy != nil {
		attempts = policy.MaxAttempts
	}

	var result NodeResult
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, policy.BaseDelay, policy.MaxDelay)
			select {
			case <-ctx.Done():
				return NodeResult{Err: ctx.Err()}
			case <-time.After(delay):
			}
			if r.cfg.metrics != nil {
				r.cfg.metrics.IncrementRetries(threadID, task.Node)
			}
		}

		result = executeWithTimeout(ctx, r.cfg.taskTimeout, task.Node, func(taskCtx context.Context) NodeResult {
			return fn(taskCtx, view, task.Input)
		})
		if result.Err == nil {
			return result
		}
		if policy == nil || policy.Retryable == nil || !policy.Retryable(result.Err) {
			return result
		}
	}
	return result
}
