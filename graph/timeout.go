package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// executeWithTimeout runs one task attempt under an optional deadline.
//
// The node runs in its own goroutine so a node that ignores its context
// cannot stall the superstep barrier past the deadline; its result is
// discarded when it eventually returns.
func executeWithTimeout(ctx context.Context, timeout time.Duration, node string, run func(context.Context) NodeResult) NodeResult {
	if timeout <= 0 {
		return run(ctx)
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan NodeResult, 1)
	go func() {
		done <- run(taskCtx)
	}()

	select {
	case result := <-done:
		return result
	case <-taskCtx.Done():
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return NodeResult{Err: &NodeError{
				Node:    node,
				Message: fmt.Sprintf("exceeded timeout of %v", timeout),
				Cause:   context.DeadlineExceeded,
			}}
		}
		return NodeResult{Err: taskCtx.Err()}
	}
}
