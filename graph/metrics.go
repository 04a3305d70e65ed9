package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects run execution metrics for production
// monitoring. All metrics use the "stategraph" namespace.
//
// Metrics exposed:
//   - inflight_tasks (gauge): tasks currently executing
//   - frontier_depth (gauge): tasks in the frontier being dispatched
//   - task_latency_ms (histogram): per-task duration; labels thread_id,
//     node, status (success/error/interrupt)
//   - superstep_latency_ms (histogram): dispatch-to-commit duration per
//     superstep; label thread_id
//   - checkpoint_write_ms (histogram): checkpoint save duration
//   - interrupts_total (counter): interrupts raised; labels thread_id, node
//   - superstep_failures_total (counter): aborted supersteps; labels
//     thread_id, reason
//   - retries_total (counter): task retry attempts; labels thread_id, node
//
// Expose via HTTP for scraping:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	inflightTasks prometheus.Gauge
	frontierDepth prometheus.Gauge

	taskLatency      *prometheus.HistogramVec
	superstepLatency *prometheus.HistogramVec
	checkpointWrite  prometheus.Histogram

	interrupts        *prometheus.CounterVec
	superstepFailures *prometheus.CounterVec
	retries           *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the metric set with the given
// registry (prometheus.DefaultRegisterer when nil). Use a fresh registry per
// runner in tests to avoid duplicate registration.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightTasks = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "stategraph",
		Name:      "inflight_tasks",
		Help:      "Current number of tasks executing concurrently",
	})

	pm.frontierDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "stategraph",
		Name:      "frontier_depth",
		Help:      "Number of tasks in the frontier being dispatched",
	})

	pm.taskLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stategraph",
		Name:      "task_latency_ms",
		Help:      "Task execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
	}, []string{"thread_id", "node", "status"})

	pm.superstepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stategraph",
		Name:      "superstep_latency_ms",
		Help:      "Superstep duration from dispatch to commit in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
	}, []string{"thread_id"})

	pm.checkpointWrite = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stategraph",
		Name:      "checkpoint_write_ms",
		Help:      "Checkpoint save duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
	})

	pm.interrupts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stategraph",
		Name:      "interrupts_total",
		Help:      "Interrupts raised by tasks",
	}, []string{"thread_id", "node"})

	pm.superstepFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stategraph",
		Name:      "superstep_failures_total",
		Help:      "Supersteps aborted without committing",
	}, []string{"thread_id", "reason"}) // reason: node_error, reducer_error, checkpoint_error, concurrent_interrupts

	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stategraph",
		Name:      "retries_total",
		Help:      "Task retry attempts",
	}, []string{"thread_id", "node"})

	return pm
}

// RecordTaskLatency records one task's duration. status is "success",
// "error", or "interrupt".
func (pm *PrometheusMetrics) RecordTaskLatency(threadID, node string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.taskLatency.WithLabelValues(threadID, node, status).Observe(float64(latency.Milliseconds()))
}

// RecordSuperstepLatency records one superstep's dispatch-to-commit duration.
func (pm *PrometheusMetrics) RecordSuperstepLatency(threadID string, latency time.Duration) {
	if !pm.isEnabled() {
		return
	}
	pm.superstepLatency.WithLabelValues(threadID).Observe(float64(latency.Milliseconds()))
}

// RecordCheckpointWrite records one checkpoint save's duration.
func (pm *PrometheusMetrics) RecordCheckpointWrite(latency time.Duration) {
	if !pm.isEnabled() {
		return
	}
	pm.checkpointWrite.Observe(float64(latency.Milliseconds()))
}

// IncrementInterrupts counts an interrupt raised by a node.
func (pm *PrometheusMetrics) IncrementInterrupts(threadID, node string) {
	if !pm.isEnabled() {
		return
	}
	pm.interrupts.WithLabelValues(threadID, node).Inc()
}

// IncrementSuperstepFailures counts an aborted superstep.
func (pm *PrometheusMetrics) IncrementSuperstepFailures(threadID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.superstepFailures.WithLabelValues(threadID, reason).Inc()
}

// IncrementRetries counts one retry attempt for a node's task.
func (pm *PrometheusMetrics) IncrementRetries(threadID, node string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(threadID, node).Inc()
}

// UpdateFrontierDepth sets the current frontier size.
func (pm *PrometheusMetrics) UpdateFrontierDepth(depth int) {
	if !pm.isEnabled() {
		return
	}
	pm.frontierDepth.Set(float64(depth))
}

// UpdateInflightTasks sets the current number of executing tasks.
func (pm *PrometheusMetrics) UpdateInflightTasks(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightTasks.Set(float64(count))
}

// Disable stops metric recording (useful in tests).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
