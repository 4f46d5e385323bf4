package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/disputeflow/internal/workflow"
	"github.com/kingrea/disputeflow/internal/workflow/condition"
	"github.com/kingrea/disputeflow/internal/workflow/graph"
	"github.com/kingrea/disputeflow/internal/workflow/router"
)

var (
	// ErrNoEntryNode is returned when neither control field nor a start node
	// yields a node to begin from.
	ErrNoEntryNode = errors.New("engine: no entry node")
	// ErrHook wraps failures returned by OnAction or OnEnd.
	ErrHook = errors.New("engine: hook failed")
)

// StopReason explains why a run returned.
type StopReason string

const (
	StopAction           StopReason = "action"
	StopEnd              StopReason = "end"
	StopCycle            StopReason = "cycle"
	StopNoEdge           StopReason = "no-edge"
	StopMissingTarget    StopReason = "missing-target"
	StopDecisionUnrouted StopReason = "decision-unrouted"
)

// EntrySource records which rule picked the entry node.
type EntrySource string

const (
	EntryForced  EntrySource = KeyForceNextNode
	EntryCurrent EntrySource = KeyCurrentNodeID
	EntryStart   EntrySource = "start"
)

// HookFunc is invoked when a run stops at an action or end node. It sees the
// log up to and including the stop entry.
type HookFunc func(ctx context.Context, node graph.Node, payload Payload, log Log) error

// Hooks are optional callbacks awaited in place.
type Hooks struct {
	OnAction HookFunc
	OnEnd    HookFunc
}

// Request is the input of a single run.
type Request struct {
	Nodes   []workflow.NodeRecord
	Edges   []workflow.EdgeRecord
	Payload Payload
	Hooks   Hooks
}

// Result is the outcome of a run.
type Result struct {
	RunID     string             `json:"runId"`
	NextNode  graph.Node         `json:"nextNode"`
	Stop      StopReason         `json:"stop"`
	Entry     EntrySource        `json:"entry"`
	Log       Log                `json:"log"`
	Steps     int                `json:"steps"`
	Routes    []router.Selection `json:"routes,omitempty"`
	StartedAt time.Time          `json:"startedAt"`
	Duration  time.Duration      `json:"duration"`
}

// Logger is satisfied by *log.Logger and the logging package.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Observer receives run outcomes, typically for metrics.
type Observer interface {
	RunFinished(Result)
	DecisionRouted(router.Selection)
}

// Engine runs workflow traversals. It holds configuration only and is safe
// for concurrent use.
type Engine struct {
	logger    Logger
	observers []Observer
	routeOpts []router.Option
	newID     func() string
	clock     func() time.Time
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithLogger routes run summaries to logger.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers an observer for finished runs and routed decisions.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observers = append(e.observers, observer)
		}
	}
}

// WithStrictDecisions makes decisions that match neither keyword set stop the
// run instead of routing as approvals.
func WithStrictDecisions(strict bool) Option {
	return func(e *Engine) {
		if strict {
			e.routeOpts = append(e.routeOpts, router.Strict())
		}
	}
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New builds an engine.
func New(opts ...Option) *Engine {
	engine := &Engine{
		logger: nopLogger{},
		newID:  uuid.NewString,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine
}

// Run executes req with a default engine.
func Run(ctx context.Context, req Request) (Result, error) {
	return New().Run(ctx, req)
}

// RunJSON decodes JSON node and edge lists before running. Non-list input is
// reported as workflow.ErrMalformedInput.
func (e *Engine) RunJSON(ctx context.Context, nodesJSON, edgesJSON []byte, payload Payload, hooks Hooks) (Result, error) {
	nodes, edges, err := workflow.DecodeRecords(nodesJSON, edgesJSON)
	if err != nil {
		return Result{}, err
	}
	return e.Run(ctx, Request{Nodes: nodes, Edges: edges, Payload: payload, Hooks: hooks})
}

// Run normalizes the request graph and walks it.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := e.clock()
	g := graph.Normalize(req.Nodes, req.Edges)
	payload := req.Payload
	if payload == nil {
		payload = Payload{}
	}

	current, source, ok := resolveEntry(g, payload)
	if !ok {
		return Result{}, ErrNoEntryNode
	}

	t := &traversal{
		engine:  e,
		graph:   g,
		payload: payload,
		hooks:   req.Hooks,
		visited: make(map[string]struct{}),
		result: Result{
			RunID:     e.newID(),
			Entry:     source,
			StartedAt: started,
		},
	}
	t.log.add(EventEntry, current, "entered at %s via %s", describe(current), source)

	stop, err := t.walk(ctx, current)
	if err != nil {
		return Result{}, err
	}
	result := t.result
	result.Stop = stop
	result.Log = t.log.snapshot()
	result.Duration = e.clock().Sub(started)

	e.logger.Printf("engine: run %s stopped at %s (%s) after %d steps", result.RunID, result.NextNode.ID, result.Stop, result.Steps)
	for _, observer := range e.observers {
		observer.RunFinished(result)
	}
	return result, nil
}

func resolveEntry(g *graph.Graph, payload Payload) (graph.Node, EntrySource, bool) {
	if id := payload.ForceNextNode(); id != "" {
		if node, ok := g.Node(id); ok {
			return node, EntryForced, true
		}
	}
	if id := payload.CurrentNodeID(); id != "" {
		if node, ok := g.Node(id); ok {
			return node, EntryCurrent, true
		}
	}
	if node, ok := g.FirstOfType(graph.TypeStart); ok {
		return node, EntryStart, true
	}
	return graph.Node{}, "", false
}

type traversal struct {
	engine  *Engine
	graph   *graph.Graph
	payload Payload
	hooks   Hooks
	visited map[string]struct{}
	log     recorder
	result  Result
}

func (t *traversal) walk(ctx context.Context, current graph.Node) (StopReason, error) {
	currentID := t.payload.CurrentNodeID()
	decision := t.payload.Decision()
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("engine: run cancelled at %s: %w", current.ID, err)
		}
		t.result.NextNode = current

		if current.Is(graph.TypeAction) {
			switch {
			case currentID == "":
				t.log.add(EventActionStop, current, "first action node for assignment: %s", describe(current))
				return StopAction, t.fire(ctx, t.hooks.OnAction, current)
			case current.ID != currentID:
				t.log.add(EventActionStop, current, "next action node awaiting decision: %s", describe(current))
				return StopAction, t.fire(ctx, t.hooks.OnAction, current)
			default:
				// A loop back to the current node reaches here before the cycle guard.
				if _, seen := t.visited[current.ID]; !seen {
					t.log.add(EventActionResume, current, "processing decision at current action node %s", describe(current))
				}
			}
		}

		if current.IsEnd {
			t.log.add(EventEnd, current, "end node reached: %s", describe(current))
			return StopEnd, t.fire(ctx, t.hooks.OnEnd, current)
		}

		if _, seen := t.visited[current.ID]; seen {
			t.log.add(EventCycle, current, "cycle detected: %s already visited", describe(current))
			return StopCycle, nil
		}
		t.visited[current.ID] = struct{}{}

		var edges []graph.Edge
		if condition.Matches(current, t.payload) {
			edges = t.graph.Outgoing(current.ID)
		}
		if len(edges) == 0 {
			t.log.add(EventNoEdge, current, "no suitable outgoing edges from %s", describe(current))
			return StopNoEdge, nil
		}

		var edge graph.Edge
		if current.Is(graph.TypeDecision) {
			selection, err := router.Route(current, edges, decision, t.graph, t.engine.routeOpts...)
			if err != nil {
				t.log.add(EventUnrouted, current, "decision not routed at %s: %v", describe(current), err)
				return StopDecisionUnrouted, nil
			}
			t.recordRoute(current, selection)
			edge = selection.Edge
		} else {
			edge = preferForward(edges)
		}

		target, ok := t.graph.Node(edge.Target)
		if !ok {
			t.log.add(EventMissing, current, "missing target %s on edge %s", edge.Target, edge.ID)
			return StopMissingTarget, nil
		}
		t.log.add(EventAdvance, target, "advanced from %s to %s via edge %s (%s)", current.ID, describe(target), edge.ID, edge.Direction)
		t.result.Steps++
		current = target

		if current.Is(graph.TypeDecision) && decision != "" {
			t.log.add(EventAutoContinue, current, "auto-continuing into decision node %s with decision %q", describe(current), decision)
		}
	}
}

func (t *traversal) recordRoute(node graph.Node, selection router.Selection) {
	t.result.Routes = append(t.result.Routes, selection)
	note := ""
	if selection.Class == router.ClassUnrecognized && selection.Method != router.MethodExact {
		note = ", unrecognized decision routed as approval"
	}
	t.log.add(EventRoute, node, "decision %q routed to edge %s by %s match (%s, confidence %d%s)",
		selection.Decision, selection.Edge.ID, selection.Method, selection.Class, selection.Confidence, note)
	for _, observer := range t.engine.observers {
		observer.DecisionRouted(selection)
	}
}

func (t *traversal) fire(ctx context.Context, hook HookFunc, node graph.Node) error {
	if hook == nil {
		return nil
	}
	if err := hook(ctx, node, t.payload, t.log.snapshot()); err != nil {
		return fmt.Errorf("%w at %s: %w", ErrHook, node.ID, err)
	}
	return nil
}

func preferForward(edges []graph.Edge) graph.Edge {
	for _, edge := range edges {
		if edge.Direction == graph.DirectionForward {
			return edge
		}
	}
	return edges[0]
}

func describe(node graph.Node) string {
	if node.Label == "" {
		return node.ID
	}
	return fmt.Sprintf("%s (%s)", node.ID, node.Label)
}
