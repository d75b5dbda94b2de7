// Package metrics provides Prometheus metrics for Turnover.
// Counters, gauges and histograms for workflow progression, evidence uploads,
// gate rejections, tasks and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Workflows ──────────────────────────────────────────────────────────────

// WorkflowsCreated tracks workflows lazily created on first open.
var WorkflowsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "workflows_created_total",
	Help:      "Total workflows created.",
})

// WorkflowsCompleted tracks handoffs.
var WorkflowsCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "workflows_completed_total",
	Help:      "Total workflows that reached the terminal state.",
})

// WorkflowDuration tracks time from first access photo to handoff.
var WorkflowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "turnover",
	Name:      "workflow_duration_seconds",
	Help:      "Time from step 1 completion to handoff.",
	Buckets:   []float64{600, 1800, 3600, 2 * 3600, 4 * 3600, 8 * 3600, 24 * 3600},
})

// StepsCompleted tracks step completions by step name.
var StepsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "steps_completed_total",
	Help:      "Total workflow steps completed.",
}, []string{"step"})

// GateRejections tracks actions refused by the step gate or controller.
var GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "gate_rejections_total",
	Help:      "Workflow actions rejected, by operation and reason.",
}, []string{"op", "reason"})

// OperationLatency tracks controller operations end to end.
var OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "turnover",
	Name:      "operation_latency_seconds",
	Help:      "Workflow controller operation duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"op"})

// ─── Evidence ───────────────────────────────────────────────────────────────

// EvidenceUploaded tracks stored photos by step.
var EvidenceUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "evidence_uploaded_total",
	Help:      "Total evidence photos stored.",
}, []string{"step"})

// EvidenceBytes tracks stored photo volume.
var EvidenceBytes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "evidence_bytes_total",
	Help:      "Total bytes of evidence stored.",
})

// UploadLatency tracks single-photo upload time by backend.
var UploadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "turnover",
	Name:      "upload_latency_seconds",
	Help:      "Evidence upload duration in seconds.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"backend"})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TaskTransitions tracks task status changes by target status.
var TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "task_transitions_total",
	Help:      "Task status transitions by target status.",
}, []string{"status"})

// StatusRetries tracks queued task status repairs by outcome
// (scheduled, applied, skipped, exhausted).
var StatusRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "task_status_retries_total",
	Help:      "Deferred task status changes, by outcome.",
}, []string{"outcome"})

// StatusRetryQueue tracks task status repairs waiting for their next attempt.
var StatusRetryQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "turnover",
	Name:      "task_status_retry_queue",
	Help:      "Task status changes pending retry.",
})

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsPublished tracks events per sink and outcome.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "turnover",
	Name:      "events_published_total",
	Help:      "Workflow events published, by sink and result.",
}, []string{"sink", "result"})

// EventSubscribers tracks live websocket subscribers.
var EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "turnover",
	Name:      "event_subscribers",
	Help:      "Connected realtime event subscribers.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "turnover",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
