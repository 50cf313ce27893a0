// Package metrics exposes Prometheus counters/gauges for the registry, executions, and
// stream drainer, served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the Session Registry's current occupancy.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cc_executor",
		Name:      "active_sessions",
		Help:      "Number of sessions currently admitted.",
	})

	// SessionsRejected counts admission rejections due to the max_sessions cap.
	SessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cc_executor",
		Name:      "sessions_rejected_total",
		Help:      "Number of session admission attempts rejected because the registry was at capacity.",
	})

	// ExecutionsTotal counts completed executions by terminal status.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cc_executor",
		Name:      "executions_total",
		Help:      "Number of executions that reached a terminal status, labeled by status.",
	}, []string{"status"})

	// ExecutionDurationSeconds observes wall-clock execution duration.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cc_executor",
		Name:      "execution_duration_seconds",
		Help:      "Execution wall-clock duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16),
	})

	// BytesDroppedTotal counts bytes dropped by the Stream Drainer once max_total_bytes
	// is exceeded.
	BytesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cc_executor",
		Name:      "bytes_dropped_total",
		Help:      "Total bytes dropped across all executions after exceeding max_total_bytes.",
	})

	// HookFailuresTotal counts hook invocations that errored, timed out, or aborted.
	HookFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cc_executor",
		Name:      "hook_failures_total",
		Help:      "Number of hook invocations that failed, labeled by hook point and kind.",
	}, []string{"hook_point", "kind"})
)
