package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/kingrea/disputeflow/internal/workflow"
	"github.com/kingrea/disputeflow/internal/workflow/graph"
	"github.com/kingrea/disputeflow/internal/workflow/router"
)

// disputeGraph is Start -> A(action) -> D(decision) with D -yes-> B(end) and
// D -no-> C(end).
func disputeGraph() ([]workflow.NodeRecord, []workflow.EdgeRecord) {
	nodes := []workflow.NodeRecord{
		{ID: "start", Type: "start", Label: "Dispute opened"},
		{ID: "A", Type: "action", Label: "Analyst review"},
		{ID: "D", Type: "decision", Label: "Refund?"},
		{ID: "B", Type: "end", Label: "Refund issued"},
		{ID: "C", Type: "end", Label: "Chargeback upheld"},
	}
	edges := []workflow.EdgeRecord{
		{ID: "start-A", Source: "start", Target: "A"},
		{ID: "A-D", Source: "A", Target: "D"},
		{ID: "D-B", Source: "D", Target: "B", Label: "yes"},
		{ID: "D-C", Source: "D", Target: "C", Label: "no"},
	}
	return nodes, edges
}

func run(t *testing.T, nodes []workflow.NodeRecord, edges []workflow.EdgeRecord, payload Payload, opts ...Option) Result {
	t.Helper()
	result, err := New(opts...).Run(context.Background(), Request{Nodes: nodes, Edges: edges, Payload: payload})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return result
}

func hasMessage(log Log, fragment string) bool {
	for _, message := range log.Messages() {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

func TestRunStopsAtFirstActionForNewItem(t *testing.T) {
	nodes, edges := disputeGraph()
	result := run(t, nodes, edges, Payload{})
	if result.NextNode.ID != "A" || result.Stop != StopAction {
		t.Fatalf("expected stop at A, got %s (%s)", result.NextNode.ID, result.Stop)
	}
	if result.Entry != EntryStart {
		t.Fatalf("expected start entry, got %s", result.Entry)
	}
	if !hasMessage(result.Log, "first action node for assignment") {
		t.Fatalf("missing assignment entry in %v", result.Log.Messages())
	}
}

func TestRunResumesDecisionAndRoutesRejection(t *testing.T) {
	nodes, edges := disputeGraph()
	result := run(t, nodes, edges, Payload{KeyCurrentNodeID: "A", KeyDecision: "rejected"})
	if result.NextNode.ID != "C" || result.Stop != StopEnd {
		t.Fatalf("expected end at C, got %s (%s)", result.NextNode.ID, result.Stop)
	}
	want := []Event{EventEntry, EventActionResume, EventAdvance, EventAutoContinue, EventRoute, EventAdvance, EventEnd}
	got := result.Log.Events()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected events\n got: %v\nwant: %v", got, want)
	}
	for i, entry := range result.Log {
		if entry.Step != i+1 {
			t.Fatalf("entry %d has step %d", i, entry.Step)
		}
	}
	if len(result.Routes) != 1 || result.Routes[0].Class != router.ClassRejection {
		t.Fatalf("expected one rejection route, got %+v", result.Routes)
	}
	if result.Steps != 2 {
		t.Fatalf("expected 2 steps, got %d", result.Steps)
	}
}

func TestRunApprovalTakesYesEdge(t *testing.T) {
	nodes, edges := disputeGraph()
	result := run(t, nodes, edges, Payload{KeyCurrentNodeID: "A", KeyDecision: "approved"})
	if result.NextNode.ID != "B" {
		t.Fatalf("expected B, got %s", result.NextNode.ID)
	}
}

func TestRunStopsAtNextActionNode(t *testing.T) {
	nodes := []workflow.NodeRecord{
		{ID: "s", Type: "start"},
		{ID: "A", Type: "action"},
		{ID: "A2", Type: "action", Label: "Second review"},
		{ID: "e", Type: "end"},
	}
	edges := []workflow.EdgeRecord{
		{ID: "1", Source: "s", Target: "A"},
		{ID: "2", Source: "A", Target: "A2"},
		{ID: "3", Source: "A2", Target: "e"},
	}
	result := run(t, nodes, edges, Payload{KeyCurrentNodeID: "A"})
	if result.NextNode.ID != "A2" || result.Stop != StopAction {
		t.Fatalf("expected stop at A2, got %s (%s)", result.NextNode.ID, result.Stop)
	}
	if !hasMessage(result.Log, "next action node awaiting decision") {
		t.Fatalf("missing next action entry in %v", result.Log.Messages())
	}
}

func TestRunDecisionWithoutPassingEdges(t *testing.T) {
	nodes := []workflow.NodeRecord{
		{ID: "s", Type: "start"},
		{ID: "D", Type: "decision", ActionFilters: []workflow.Filter{{Field: "amount", Comparator: ">", Value: 100}}},
		{ID: "e", Type: "end"},
	}
	edges := []workflow.EdgeRecord{
		{ID: "1", Source: "s", Target: "D"},
		{ID: "2", Source: "D", Target: "e", Label: "yes"},
	}
	result := run(t, nodes, edges, Payload{KeyDecision: "approved", "amount": 50})
	if result.NextNode.ID != "D" || result.Stop != StopNoEdge {
		t.Fatalf("expected no-edge stop at D, got %s (%s)", result.NextNode.ID, result.Stop)
	}
	last, _ := result.Log.Last()
	if !strings.Contains(last.Message, "no suitable outgoing edges") {
		t.Fatalf("unexpected last entry %q", last.Message)
	}
}

func TestRunStopsOnCycle(t *testing.T) {
	nodes := []workflow.NodeRecord{
		{ID: "s", Type: "start"},
		{ID: "x", Type: "default"},
		{ID: "y", Type: "default"},
	}
	edges := []workflow.EdgeRecord{
		{ID: "1", Source: "s", Target: "x"},
		{ID: "2", Source: "x", Target: "y"},
		{ID: "3", Source: "y", Target: "x"},
	}
	result := run(t, nodes, edges, nil)
	if result.Stop != StopCycle || result.NextNode.ID != "x" {
		t.Fatalf("expected cycle stop at x, got %s (%s)", result.NextNode.ID, result.Stop)
	}
}

func TestRunStopsOnMissingTarget(t *testing.T) {
	nodes := []workflow.NodeRecord{{ID: "s", Type: "start"}}
	edges := []workflow.EdgeRecord{{ID: "dangling", Source: "s", Target: "ghost"}}
	result := run(t, nodes, edges, nil)
	if result.Stop != StopMissingTarget || result.NextNode.ID != "s" {
		t.Fatalf("expected missing-target stop at s, got %s (%s)", result.NextNode.ID, result.Stop)
	}
	if !hasMessage(result.Log, "missing target ghost") {
		t.Fatalf("missing target entry absent: %v", result.Log.Messages())
	}
}

func TestRunPrefersForwardEdge(t *testing.T) {
	nodes := []workflow.NodeRecord{
		{ID: "s", Type: "start"},
		{ID: "side", Type: "end"},
		{ID: "main", Type: "end"},
	}
	edges := []workflow.EdgeRecord{
		{ID: "1", Source: "s", Target: "side", Label: "escalate"},
		{ID: "2", Source: "s", Target: "main"},
	}
	result := run(t, nodes, edges, nil)
	if result.NextNode.ID != "main" {
		t.Fatalf("expected forward edge to main, got %s", result.NextNode.ID)
	}
}

func TestRunDecisionWithoutDecisionStops(t *testing.T) {
	nodes, edges := disputeGraph()
	result := run(t, nodes, edges, Payload{KeyForceNextNode: "D"})
	if result.Stop != StopDecisionUnrouted || result.NextNode.ID != "D" {
		t.Fatalf("expected unrouted stop at D, got %s (%s)", result.NextNode.ID, result.Stop)
	}
	if result.Entry != EntryForced {
		t.Fatalf("expected forced entry, got %s", result.Entry)
	}
}

func TestRunUnrecognizedDecision(t *testing.T) {
	nodes, edges := disputeGraph()
	payload := Payload{KeyCurrentNodeID: "A", KeyDecision: "let me think"}

	lenient := run(t, nodes, edges, payload)
	if lenient.NextNode.ID != "B" {
		t.Fatalf("unrecognized decision should route as approval, got %s", lenient.NextNode.ID)
	}
	if !hasMessage(lenient.Log, "unrecognized decision routed as approval") {
		t.Fatalf("expected unrecognized note in log: %v", lenient.Log.Messages())
	}

	strict := run(t, nodes, edges, payload, WithStrictDecisions(true))
	if strict.Stop != StopDecisionUnrouted || strict.NextNode.ID != "D" {
		t.Fatalf("strict mode should stop at D, got %s (%s)", strict.NextNode.ID, strict.Stop)
	}
}

func TestRunLoopBackToCurrentNodeLogsResumeOnce(t *testing.T) {
	nodes := []workflow.NodeRecord{
		{ID: "start", Type: "start"},
		{ID: "A", Type: "action", Label: "Analyst review"},
		{ID: "D", Type: "decision"},
		{ID: "C", Type: "end"},
	}
	edges := []workflow.EdgeRecord{
		{ID: "start-A", Source: "start", Target: "A"},
		{ID: "A-D", Source: "A", Target: "D"},
		{ID: "D-A", Source: "D", Target: "A", Label: "yes"},
		{ID: "D-C", Source: "D", Target: "C", Label: "no"},
	}
	result := run(t, nodes, edges, Payload{KeyCurrentNodeID: "A", KeyDecision: "yes"})
	if result.Stop != StopCycle || result.NextNode.ID != "A" {
		t.Fatalf("expected cycle stop at A, got %s (%s)", result.NextNode.ID, result.Stop)
	}
	resumes := 0
	for _, event := range result.Log.Events() {
		if event == EventActionResume {
			resumes++
		}
	}
	if resumes != 1 {
		t.Fatalf("expected one resume entry, got %d: %v", resumes, result.Log.Messages())
	}
}

func TestRunStrictDecisionsKeepExactMatch(t *testing.T) {
	nodes, edges := disputeGraph()
	nodes = append(nodes, workflow.NodeRecord{ID: "E", Type: "end", Label: "Escalated to network"})
	edges = append(edges, workflow.EdgeRecord{ID: "D-E", Source: "D", Target: "E", Label: "Escalate"})

	result := run(t, nodes, edges, Payload{KeyCurrentNodeID: "A", KeyDecision: "escalate"}, WithStrictDecisions(true))
	if result.Stop != StopEnd || result.NextNode.ID != "E" {
		t.Fatalf("exact direction should route under strict mode, got %s (%s)", result.NextNode.ID, result.Stop)
	}
	if len(result.Routes) != 1 || result.Routes[0].Method != router.MethodExact {
		t.Fatalf("expected one exact route, got %+v", result.Routes)
	}
	if hasMessage(result.Log, "routed as approval") {
		t.Fatalf("exact match must not be reported as an approval fallback: %v", result.Log.Messages())
	}
}

func TestRunEntryResolution(t *testing.T) {
	nodes, edges := disputeGraph()
	result := run(t, nodes, edges, Payload{KeyForceNextNode: "missing", KeyCurrentNodeID: "A"})
	if result.Entry != EntryCurrent {
		t.Fatalf("expected fallback to currentNodeId entry, got %s", result.Entry)
	}
	if result.NextNode.ID != "D" || result.Stop != StopDecisionUnrouted {
		t.Fatalf("expected to wait at D without a decision, got %s (%s)", result.NextNode.ID, result.Stop)
	}

	_, err := Run(context.Background(), Request{Nodes: []workflow.NodeRecord{{ID: "x", Type: "action"}}})
	if !errors.Is(err, ErrNoEntryNode) {
		t.Fatalf("expected ErrNoEntryNode, got %v", err)
	}
}

func TestRunJSONRejectsMalformedInput(t *testing.T) {
	_, err := New().RunJSON(context.Background(), []byte(`{"id":"x"}`), []byte(`[]`), nil, Hooks{})
	if !errors.Is(err, workflow.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	result, err := New().RunJSON(context.Background(),
		[]byte(`[{"id":"s","type":"start"},{"id":"e","data":"{\"isEnd\":true,\"label\":\"Done\"}"}]`),
		[]byte(`[{"id":"1","source":"s","target":"e"}]`), nil, Hooks{})
	if err != nil {
		t.Fatalf("run json: %v", err)
	}
	if result.Stop != StopEnd || result.NextNode.Label != "Done" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunInvokesHooks(t *testing.T) {
	nodes, edges := disputeGraph()
	var actions, ends []string
	hooks := Hooks{
		OnAction: func(_ context.Context, node graph.Node, _ Payload, log Log) error {
			actions = append(actions, node.ID)
			if last, _ := log.Last(); last.Event != EventActionStop {
				return fmt.Errorf("hook saw %s as last event", last.Event)
			}
			return nil
		},
		OnEnd: func(_ context.Context, node graph.Node, _ Payload, _ Log) error {
			ends = append(ends, node.ID)
			return nil
		},
	}
	eng := New()
	if _, err := eng.Run(context.Background(), Request{Nodes: nodes, Edges: edges, Hooks: hooks}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := eng.Run(context.Background(), Request{Nodes: nodes, Edges: edges, Hooks: hooks,
		Payload: Payload{KeyCurrentNodeID: "A", KeyDecision: "yes"}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if fmt.Sprint(actions) != "[A]" || fmt.Sprint(ends) != "[B]" {
		t.Fatalf("unexpected hook calls: actions=%v ends=%v", actions, ends)
	}

	boom := errors.New("notify failed")
	hooks.OnEnd = func(context.Context, graph.Node, Payload, Log) error { return boom }
	_, err := eng.Run(context.Background(), Request{Nodes: nodes, Edges: edges, Hooks: hooks,
		Payload: Payload{KeyCurrentNodeID: "A", KeyDecision: "yes"}})
	if !errors.Is(err, ErrHook) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped hook error, got %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	nodes, edges := disputeGraph()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Run(ctx, Request{Nodes: nodes, Edges: edges}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type recordingObserver struct {
	runs   []Result
	routes []router.Selection
}

func (o *recordingObserver) RunFinished(result Result)            { o.runs = append(o.runs, result) }
func (o *recordingObserver) DecisionRouted(sel router.Selection) { o.routes = append(o.routes, sel) }

func TestRunOptions(t *testing.T) {
	nodes, edges := disputeGraph()
	observer := &recordingObserver{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var lines []string
	eng := New(
		WithObserver(observer),
		WithIDGenerator(func() string { return "run-1" }),
		WithClock(func() time.Time { return now }),
		WithLogger(loggerFunc(func(format string, args ...any) {
			lines = append(lines, fmt.Sprintf(format, args...))
		})),
	)
	result, err := eng.Run(context.Background(), Request{Nodes: nodes, Edges: edges,
		Payload: Payload{KeyCurrentNodeID: "A", KeyDecision: "deny"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.RunID != "run-1" || !result.StartedAt.Equal(now) || result.Duration != 0 {
		t.Fatalf("options not applied: %+v", result)
	}
	if len(observer.runs) != 1 || len(observer.routes) != 1 {
		t.Fatalf("observer not notified: runs=%d routes=%d", len(observer.runs), len(observer.routes))
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "run-1") {
		t.Fatalf("unexpected log lines %v", lines)
	}
}

type loggerFunc func(format string, args ...any)

func (f loggerFunc) Printf(format string, args ...any) { f(format, args...) }

func TestRunDoesNotShareState(t *testing.T) {
	nodes, edges := disputeGraph()
	payload := Payload{KeyCurrentNodeID: "A", KeyDecision: "approved"}
	first := run(t, nodes, edges, payload)
	second := run(t, nodes, edges, payload)
	if fmt.Sprint(first.Log.Messages()) != fmt.Sprint(second.Log.Messages()) {
		t.Fatalf("identical requests produced different logs")
	}
	if first.RunID == second.RunID {
		t.Fatalf("expected distinct run ids")
	}
	if len(payload) != 2 {
		t.Fatalf("payload was mutated: %v", payload)
	}
}

var nodeTypes = []string{"start", "action", "decision", "end", "default"}

// TestNoNodeVisitedTwice builds random graphs and checks that every node entered
// during a run is distinct, except for a final re-entry that ends the run as a
// cycle.
func TestNoNodeVisitedTwice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property test in short mode")
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	const size = 6
	properties.Property("runs terminate without revisiting nodes", prop.ForAll(
		func(types []int, links []int, current int, decision string) bool {
			nodes := make([]workflow.NodeRecord, size)
			for i := range nodes {
				nodes[i] = workflow.NodeRecord{ID: fmt.Sprintf("n%d", i), Type: nodeTypes[types[i]]}
			}
			nodes[0].Type = "start"
			edges := make([]workflow.EdgeRecord, 0, len(links))
			for i, link := range links {
				edges = append(edges, workflow.EdgeRecord{
					ID:     fmt.Sprintf("e%d", i),
					Source: fmt.Sprintf("n%d", link/size),
					Target: fmt.Sprintf("n%d", link%size),
					Label:  []string{"yes", "no", ""}[i%3],
				})
			}
			payload := Payload{KeyDecision: decision}
			if current >= 0 {
				payload[KeyCurrentNodeID] = fmt.Sprintf("n%d", current)
			}
			result, err := Run(context.Background(), Request{Nodes: nodes, Edges: edges, Payload: payload})
			if err != nil {
				return false
			}
			if result.Steps > size {
				return false
			}
			seen := map[string]bool{result.Log[0].Node.ID: true}
			entered := 0
			for _, entry := range result.Log {
				if entry.Event != EventAdvance {
					continue
				}
				entered++
				if seen[entry.Node.ID] {
					return entered == result.Steps && result.Stop == StopCycle
				}
				seen[entry.Node.ID] = true
			}
			return true
		},
		gen.SliceOfN(size, gen.IntRange(0, len(nodeTypes)-1)),
		gen.SliceOf(gen.IntRange(0, size*size-1)),
		gen.IntRange(-1, size-1),
		gen.OneConstOf("approved", "rejected", "maybe", ""),
	))

	properties.TestingRun(t)
}
