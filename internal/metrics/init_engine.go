package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initEngineMetrics() {
	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputeflow_engine_runs_total",
			Help: "Total number of completed workflow runs",
		},
		[]string{"stop_reason"}, // action, end, cycle, no-edge, missing-target, decision-unrouted
	)

	r.RunSteps = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "disputeflow_engine_run_steps",
			Help:    "Edges traversed per run",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	r.RunDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "disputeflow_engine_run_duration_seconds",
			Help:    "Duration of workflow runs in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	r.DecisionsRouted = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputeflow_engine_decisions_routed_total",
			Help: "Decisions routed at decision nodes",
		},
		[]string{"class", "method"},
	)

	r.RouteConfidence = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "disputeflow_engine_route_confidence",
			Help:    "Score margin of heuristically routed decisions",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 8},
		},
	)

	r.RunErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputeflow_engine_run_errors_total",
			Help: "Runs rejected before or during traversal",
		},
		[]string{"kind"}, // malformed, no-entry, hook, cancelled, other
	)

	r.DefinitionLoads = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "disputeflow_definition_loads_total",
			Help: "Workflow definition lookups by outcome",
		},
		[]string{"status"}, // ok, not_found, error
	)
}
