// Package observability provides the metrics and tracing collaborators
// shared by the agent loop, tool executor, and event fan-out, grounded on
// the teacher's internal/observability package (scaled to the series this
// core actually emits).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics centralizes the Prometheus series this core exposes. A nil
// *Metrics is valid everywhere it's accepted: every Record* method is
// nil-safe, so components can be constructed without metrics wired in.
type Metrics struct {
	// EventStreamDropped counts events dropped from a subscriber's queue
	// (spec §4.7's dropped_events counter made externally observable).
	// Labels: session_id, lane (mailbox|stream)
	EventStreamDropped *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionTotal counts tool executions by outcome.
	// Labels: tool_name, status (success|error)
	ToolExecutionTotal *prometheus.CounterVec

	// CompactionTrigger counts compaction runs by trigger reason.
	// Labels: reason (token_budget|message_count)
	CompactionTrigger *prometheus.CounterVec

	// AgentTurnDuration measures wall time per agent turn.
	AgentTurnDuration prometheus.Histogram
}

// NewMetrics registers and returns the core's Prometheus series. Call once
// per process; promauto registers against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventStreamDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_eventstream_dropped_total",
				Help: "Events dropped from a subscriber queue by session and lane",
			},
			[]string{"session_id", "lane"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Tool execution duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"tool_name"},
		),
		ToolExecutionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_execution_total",
				Help: "Total tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		CompactionTrigger: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_compaction_trigger_total",
				Help: "Compaction runs by trigger reason",
			},
			[]string{"reason"},
		),
		AgentTurnDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcore_agent_turn_duration_seconds",
				Help:    "Wall time per agent turn",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
	}
}

// RecordEventDropped increments the dropped-event counter for a subscriber.
func (m *Metrics) RecordEventDropped(sessionID, lane string) {
	if m == nil {
		return
	}
	m.EventStreamDropped.WithLabelValues(sessionID, lane).Inc()
}

// RecordToolExecution records one tool execution's outcome and duration.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionTotal.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordCompactionTrigger records one compaction run's trigger reason.
func (m *Metrics) RecordCompactionTrigger(reason string) {
	if m == nil {
		return
	}
	m.CompactionTrigger.WithLabelValues(reason).Inc()
}

// RecordTurnDuration records one agent turn's wall time.
func (m *Metrics) RecordTurnDuration(durationSeconds float64) {
	if m == nil {
		return
	}
	m.AgentTurnDuration.Observe(durationSeconds)
}
