package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/kingrea/disputeflow/internal/workflow"
	"github.com/kingrea/disputeflow/internal/workflow/engine"
	"github.com/kingrea/disputeflow/internal/workflow/router"
	"github.com/kingrea/disputeflow/internal/workflow/store"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RunFinished implements engine.Observer.
func (r *Registry) RunFinished(result engine.Result) {
	r.RunsTotal.WithLabelValues(string(result.Stop)).Inc()
	r.RunSteps.Observe(float64(result.Steps))
	r.RunDuration.Observe(result.Duration.Seconds())
}

// DecisionRouted implements engine.Observer.
func (r *Registry) DecisionRouted(selection router.Selection) {
	r.DecisionsRouted.WithLabelValues(string(selection.Class), string(selection.Method)).Inc()
	if selection.Method == router.MethodHeuristic {
		r.RouteConfidence.Observe(float64(selection.Confidence))
	}
}

// RecordRunError classifies a fatal engine error.
func (r *Registry) RecordRunError(err error) {
	if err == nil {
		return
	}
	r.RunErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
}

// RecordDefinitionLoad records the outcome of a store lookup.
func (r *Registry) RecordDefinitionLoad(err error) {
	switch {
	case err == nil:
		r.DefinitionLoads.WithLabelValues("ok").Inc()
	case errors.Is(err, store.ErrWorkflowNotFound):
		r.DefinitionLoads.WithLabelValues("not_found").Inc()
	default:
		r.DefinitionLoads.WithLabelValues("error").Inc()
	}
}

// ErrorKind maps engine errors onto the run_errors kind label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, workflow.ErrMalformedInput):
		return "malformed"
	case errors.Is(err, engine.ErrNoEntryNode):
		return "no-entry"
	case errors.Is(err, engine.ErrHook):
		return "hook"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

var _ engine.Observer = (*Registry)(nil)
