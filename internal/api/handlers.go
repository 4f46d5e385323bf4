package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kingrea/disputeflow/internal/workflow"
	"github.com/kingrea/disputeflow/internal/workflow/engine"
	"github.com/kingrea/disputeflow/internal/workflow/graph"
	"github.com/kingrea/disputeflow/internal/workflow/router"
	"github.com/kingrea/disputeflow/internal/workflow/store"
)

// Outcome is the caller-facing summary of a soft stop.
type Outcome string

const (
	OutcomeAwaitingAction Outcome = "awaiting_action"
	OutcomeClosed         Outcome = "closed"
	OutcomeStalled        Outcome = "stalled"
)

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	StoreReady    bool   `json:"storeReady"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// RunResponse is the body of a successful run.
type RunResponse struct {
	RunID    string             `json:"runId"`
	Workflow string             `json:"workflow,omitempty"`
	Outcome  Outcome            `json:"outcome"`
	Stop     engine.StopReason  `json:"stop"`
	NextNode graph.Node         `json:"nextNode"`
	Steps    int                `json:"steps"`
	Log      engine.Log         `json:"log"`
	Routes   []router.Selection `json:"routes,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type workflowsResponse struct {
	Workflows []string `json:"workflows"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		StoreReady:    s.store != nil,
		UptimeSeconds: s.uptimeSeconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !s.decode(w, r, &req) {
		return
	}
	payload, err := validatePayload(req.Payload)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.engine.RunJSON(r.Context(), req.Nodes, req.Edges, payload, s.hooks(""))
	if err != nil {
		s.runError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse("", result))
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.fail(w, r, http.StatusNotFound, "no workflow store configured")
		return
	}
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Printf("api: list workflows: %v", err)
		s.fail(w, r, http.StatusInternalServerError, "unable to list workflows")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, workflowsResponse{Workflows: ids})
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.fail(w, r, http.StatusNotFound, "no workflow store configured")
		return
	}
	id := r.PathValue("id")
	var req WorkflowRunRequest
	if !s.decode(w, r, &req) {
		return
	}
	payload, err := validatePayload(req.Payload)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	def, err := s.store.Load(r.Context(), id)
	if s.metrics != nil {
		s.metrics.RecordDefinitionLoad(err)
	}
	if err != nil {
		s.runError(w, r, err)
		return
	}
	result, err := s.engine.Run(r.Context(), engine.Request{
		Nodes:   def.Nodes,
		Edges:   def.Edges,
		Payload: payload,
		Hooks:   s.hooks(def.ID),
	})
	if err != nil {
		s.runError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(def.ID, result))
}

// decode reads a size-limited JSON body into dst. An empty body decodes as
// the zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.fail(w, r, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return false
		}
		s.fail(w, r, http.StatusBadRequest, "unable to read body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.fail(w, r, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) runError(w http.ResponseWriter, r *http.Request, err error) {
	if s.metrics != nil && !errors.Is(err, store.ErrWorkflowNotFound) && !errors.Is(err, store.ErrInvalidID) {
		s.metrics.RecordRunError(err)
	}
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("api: run failed: %v", err)
	}
	s.fail(w, r, status, err.Error())
}

// StatusForError maps fatal run errors onto HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, workflow.ErrMalformedInput), errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNoEntryNode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, RequestID: w.Header().Get(requestIDHeader)})
}

// hooks log the two points where a run hands control back to people.
func (s *Server) hooks(workflowID string) engine.Hooks {
	label := workflowID
	if label == "" {
		label = "inline"
	}
	return engine.Hooks{
		OnAction: func(_ context.Context, node graph.Node, _ engine.Payload, _ engine.Log) error {
			s.logger.Printf("api: %s awaiting action at %s", label, node.ID)
			return nil
		},
		OnEnd: func(_ context.Context, node graph.Node, _ engine.Payload, _ engine.Log) error {
			s.logger.Printf("api: %s workflow closed at %s", label, node.ID)
			return nil
		},
	}
}

func newRunResponse(workflowID string, result engine.Result) RunResponse {
	return RunResponse{
		RunID:    result.RunID,
		Workflow: workflowID,
		Outcome:  outcomeFor(result.Stop),
		Stop:     result.Stop,
		NextNode: result.NextNode,
		Steps:    result.Steps,
		Log:      result.Log,
		Routes:   result.Routes,
	}
}

func outcomeFor(stop engine.StopReason) Outcome {
	switch stop {
	case engine.StopAction:
		return OutcomeAwaitingAction
	case engine.StopEnd:
		return OutcomeClosed
	default:
		return OutcomeStalled
	}
}
