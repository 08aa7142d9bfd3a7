// Package metrics holds Prometheus metrics for pipeline observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors used across the pipeline.
type Metrics struct {
	TurnsTotal       *prometheus.CounterVec // turns processed, by classified intent
	TurnDuration     prometheus.Histogram   // end-to-end turn latency
	StageErrorsTotal *prometheus.CounterVec // absorbed stage failures, by stage
	FallbacksTotal   *prometheus.CounterVec // deterministic fallbacks served, by component
	IncidentsTotal   prometheus.Counter     // durable incident logs materialized
	ToolCallsTotal   *prometheus.CounterVec // tool executions, by tool name and outcome
	ActiveSessions   prometheus.GaugeFunc   // live sessions in the store
}

// New creates and registers the pipeline metrics with the given registerer.
// The sessionCount function feeds the active-sessions gauge.
func New(reg prometheus.Registerer, sessionCount func() int) *Metrics {
	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guido_turns_total",
			Help: "Total turns processed, labeled by classified intent",
		}, []string{"intent"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guido_turn_duration_seconds",
			Help:    "End-to-end turn processing latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		StageErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guido_stage_errors_total",
			Help: "Stage failures absorbed by the pipeline, labeled by stage",
		}, []string{"stage"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guido_fallbacks_total",
			Help: "Deterministic fallback values served, labeled by component",
		}, []string{"component"}),
		IncidentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guido_incidents_total",
			Help: "Durable incident logs materialized",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guido_tool_calls_total",
			Help: "Tool executions, labeled by tool name and outcome",
		}, []string{"tool", "outcome"}),
		ActiveSessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "guido_active_sessions",
			Help: "Live sessions currently held in the store",
		}, func() float64 { return float64(sessionCount()) }),
	}

	reg.MustRegister(
		m.TurnsTotal,
		m.TurnDuration,
		m.StageErrorsTotal,
		m.FallbacksTotal,
		m.IncidentsTotal,
		m.ToolCallsTotal,
		m.ActiveSessions,
	)
	return m
}

// NewUnregistered creates metrics bound to a throwaway registry, for tests
// that do not inspect metric output.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry(), func() int { return 0 })
}
