package graph

import (
	"math/rand"
	"time"
)

// RetryPolicy defines automatic retry behavior for transient task failures.
//
// When a task returns an error and the policy deems it retryable, the task
// re-executes against the same state snapshot after an exponential backoff
// with jitter. Retries happen inside the task's slot in the superstep, so
// the superstep stays fail-atomic: either the final attempt succeeds and the
// task's update joins the merge, or the superstep aborts.
type RetryPolicy struct {
	// MaxAttempts is the total number of execution attempts, including the
	// first. Must be >= 1; a value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base for exponential backoff. The delay before
	// attempt n (zero-based retry counter) is
	// min(BaseDelay * 2^n, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth retrying. Nil means no
	// error is retryable.
	Retryable func(error) bool
}

// Validate checks the policy's constraints.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff calculates the delay before a retry: exponential growth
// capped at maxDelay, plus jitter in [0, base) to spread out concurrent
// retries.
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	// Jitter timing is not security-sensitive.
	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404
	return delay + jitter
}
