package graph

import "time"

// Option configures a Runner.
//
// Example:
//
//	runner, err := graph.NewRunner(g, st, emitter,
//	    graph.WithMaxConcurrent(16),
//	    graph.WithMaxSupersteps(50),
//	    graph.WithTaskTimeout(30*time.Second),
//	)
type Option func(*runnerConfig) error

type runnerConfig struct {
	maxConcurrent int
	maxSupersteps int
	taskTimeout   time.Duration
	retryPolicy   *RetryPolicy
	metrics       *PrometheusMetrics
}

func defaultConfig() runnerConfig {
	return runnerConfig{maxConcurrent: 8}
}

// WithMaxConcurrent bounds the number of tasks executing in parallel within
// one superstep.
//
// Default: 8. Each in-flight task holds a deep copy of thread state, so
// memory scales linearly with this bound. I/O-bound graphs (LLM calls)
// tolerate higher values; CPU-bound graphs should stay near runtime.NumCPU().
func WithMaxConcurrent(n int) Option {
	return func(cfg *runnerConfig) error {
		if n < 1 {
			return &EngineError{Message: "max concurrent must be >= 1", Code: "INVALID_OPTION"}
		}
		cfg.maxConcurrent = n
		return nil
	}
}

// WithMaxSupersteps caps the number of supersteps a run may execute before
// failing with ErrMaxSuperstepsExceeded.
//
// Default: 0 (no cap). A cap is mandatory for graphs that are not provably
// acyclic: any cycle through static edges or declared router targets, or any
// router without declared targets. NewRunner rejects such graphs without a
// cap.
func WithMaxSupersteps(n int) Option {
	return func(cfg *runnerConfig) error {
		if n < 0 {
			return &EngineError{Message: "max supersteps cannot be negative", Code: "INVALID_OPTION"}
		}
		cfg.maxSupersteps = n
		return nil
	}
}

// WithTaskTimeout sets the maximum execution time for a single task attempt.
// A timed-out attempt fails with a NodeError wrapping
// context.DeadlineExceeded; retries (if configured) count the timeout as a
// failure.
//
// Default: 0 (no timeout).
func WithTaskTimeout(d time.Duration) Option {
	return func(cfg *runnerConfig) error {
		if d < 0 {
			return &EngineError{Message: "task timeout cannot be negative", Code: "INVALID_OPTION"}
		}
		cfg.taskTimeout = d
		return nil
	}
}

// WithRetryPolicy sets the retry policy applied to every task. Retries run
// inside the task's superstep slot, preserving fail-atomic semantics.
//
// Default: nil (no retries).
func WithRetryPolicy(policy *RetryPolicy) Option {
	return func(cfg *runnerConfig) error {
		if policy != nil {
			if err := policy.Validate(); err != nil {
				return err
			}
		}
		cfg.retryPolicy = policy
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection. See NewPrometheusMetrics
// for the exposed metric set.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *runnerConfig) error {
		cfg.metrics = metrics
		return nil
	}
}
