// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMRequestDuration tracks inference call duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM inference request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	// LLMRequestsTotal counts inference calls by outcome.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total LLM inference requests",
		},
		[]string{"provider", "model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// TurnsTotal counts engine invocations by terminal outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_total",
			Help: "Engine invocations by outcome",
		},
		[]string{"outcome"},
	)

	// TurnStepsTotal counts state machine transitions by target phase.
	TurnStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_steps_total",
			Help: "State machine transitions by target phase",
		},
		[]string{"phase"},
	)

	// SuspensionsTotal counts conversations suspended for authorization.
	SuspensionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "suspensions_total",
			Help: "Conversations suspended pending tool authorization",
		},
	)

	// ResumesTotal counts resumed conversations by state source.
	ResumesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resumes_total",
			Help: "Resumed conversations by state source",
		},
		[]string{"source"},
	)

	// ReconciledResultsTotal counts placeholder tool results inserted on resume.
	ReconciledResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciled_tool_results_total",
			Help: "Placeholder tool results synthesized during reconciliation",
		},
	)

	// ToolExecutionsTotal counts tool executions by outcome.
	ToolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_executions_total",
			Help: "Tool executions by tool and status",
		},
		[]string{"tool", "status"},
	)

	// ToolExecutionDuration tracks tool execution latency.
	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tool_execution_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// DedupRejectionsTotal counts redelivered events that were skipped.
	DedupRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_rejections_total",
			Help: "Inbound events rejected as duplicates",
		},
	)

	// NATSStreamMessages tracks messages in NATS stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMRequest records metrics for one inference call.
func RecordLLMRequest(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, model).Observe(duration)
	LLMRequestsTotal.WithLabelValues(provider, model, status).Inc()
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordToolExecution records metrics for one tool call.
func RecordToolExecution(tool, status string, duration float64) {
	ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
	ToolExecutionDuration.WithLabelValues(tool).Observe(duration)
}
