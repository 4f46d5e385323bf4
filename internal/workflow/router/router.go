// Package router picks the outgoing edge of a decision node from a free-text
// human decision. An edge whose direction equals the decision wins outright;
// otherwise every edge is scored on an approval and a rejection axis and the
// most confident edge on the decision's side is chosen.
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kingrea/disputeflow/internal/workflow/graph"
)

var (
	// ErrNoDecision is returned when the decision string is blank.
	ErrNoDecision = errors.New("router: decision is required")
	// ErrNoEdge is returned when there is no outgoing edge to choose from.
	ErrNoEdge = errors.New("router: no outgoing edge")
	// ErrUnrecognizedDecision is returned in strict mode when the decision
	// matches neither keyword set.
	ErrUnrecognizedDecision = errors.New("router: unrecognized decision")
)

// Class is the side a decision leans towards.
type Class string

const (
	ClassApproval     Class = "approval"
	ClassRejection    Class = "rejection"
	ClassUnrecognized Class = "unrecognized"
)

// Rejects reports whether routing should favour the rejection axis.
// Unrecognized decisions route as approvals.
func (c Class) Rejects() bool {
	return c == ClassRejection
}

// Method records how an edge was selected.
type Method string

const (
	MethodExact     Method = "exact"
	MethodHeuristic Method = "heuristic"
	MethodFallback  Method = "fallback"
)

var (
	approvalDecisions  = []string{"approved", "approve", "accept", "yes", "confirm", "allow", "grant"}
	rejectionDecisions = []string{"rejected", "reject", "deny", "no", "decline", "refuse", "cancel"}

	approvalEdgeWords  = []string{"yes", "approve", "forward", "accept", "allow"}
	rejectionEdgeWords = []string{"no", "reject", "deny", "decline", "refuse"}

	terminationWords  = []string{"reject", "deny", "end", "close", "terminate"}
	continuationWords = []string{"approve", "escalate", "continue", "next", "forward"}
)

// Classify maps a lowercased decision onto a Class using whole-word matches.
// A decision carrying words from both sets is treated as an approval.
func Classify(want string) Class {
	words := strings.FieldsFunc(strings.ToLower(want), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	approval, rejection := false, false
	for _, word := range words {
		if containsWord(approvalDecisions, word) {
			approval = true
		}
		if containsWord(rejectionDecisions, word) {
			rejection = true
		}
	}
	switch {
	case approval:
		return ClassApproval
	case rejection:
		return ClassRejection
	default:
		return ClassUnrecognized
	}
}

// EdgeScore is the heuristic weight of one edge on each axis.
type EdgeScore struct {
	Approval  int `json:"approval"`
	Rejection int `json:"rejection"`
}

// Confidence is the absolute distance between the two axes.
func (s EdgeScore) Confidence() int {
	if s.Approval > s.Rejection {
		return s.Approval - s.Rejection
	}
	return s.Rejection - s.Approval
}

// Score weighs a single edge. index and total describe the edge's position
// among the node's outgoing edges; g resolves the target node and may be nil.
func Score(edge graph.Edge, index, total int, g *graph.Graph) EdgeScore {
	var score EdgeScore
	text := strings.ToLower(edge.Label + " " + edge.Direction)
	if containsAny(text, approvalEdgeWords) {
		score.Approval += 3
	}
	if containsAny(text, rejectionEdgeWords) {
		score.Rejection += 3
	}
	if target, ok := g.Node(edge.Target); ok {
		if target.IsEnd {
			score.Rejection += 2
		} else if target.Is(graph.TypeAction) {
			score.Approval++
		}
		label := strings.ToLower(target.Label)
		if containsAny(label, terminationWords) {
			score.Rejection += 2
		}
		if containsAny(label, continuationWords) {
			score.Approval += 2
		}
	}
	if total == 2 {
		if index == 0 {
			score.Approval++
		} else {
			score.Rejection++
		}
	}
	return score
}

// Selection is the outcome of routing a decision.
type Selection struct {
	Edge       graph.Edge  `json:"edge"`
	Decision   string      `json:"decision"`
	Class      Class       `json:"class"`
	Method     Method      `json:"method"`
	Scores     []EdgeScore `json:"scores,omitempty"`
	Confidence int         `json:"confidence"`
}

// Option customizes routing.
type Option func(*options)

type options struct {
	strict bool
}

// Strict rejects decisions that match neither keyword set instead of routing
// them as approvals.
func Strict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// Route selects one of edges for the decision made at node.
func Route(node graph.Node, edges []graph.Edge, decision string, g *graph.Graph, opts ...Option) (Selection, error) {
	var cfg options
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	want := strings.ToLower(strings.TrimSpace(decision))
	if want == "" {
		return Selection{}, fmt.Errorf("%w at node %s", ErrNoDecision, node.ID)
	}
	class := Classify(want)
	selection := Selection{Decision: want, Class: class}
	if len(edges) == 0 {
		return selection, fmt.Errorf("%w at node %s", ErrNoEdge, node.ID)
	}

	for _, edge := range edges {
		if edge.Direction == want {
			selection.Edge = edge
			selection.Method = MethodExact
			return selection, nil
		}
	}
	// Strict mode only applies once no edge names the decision directly.
	if class == ClassUnrecognized && cfg.strict {
		return Selection{}, fmt.Errorf("%w %q at node %s", ErrUnrecognizedDecision, decision, node.ID)
	}

	scores := make([]EdgeScore, len(edges))
	for i, edge := range edges {
		scores[i] = Score(edge, i, len(edges), g)
	}
	selection.Scores = scores

	candidates := make([]int, 0, len(edges))
	for i, score := range scores {
		if class.Rejects() && score.Rejection > score.Approval {
			candidates = append(candidates, i)
		}
		if !class.Rejects() && score.Approval > score.Rejection {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return scores[candidates[a]].Confidence() > scores[candidates[b]].Confidence()
	})
	if len(candidates) > 0 {
		best := candidates[0]
		selection.Edge = edges[best]
		selection.Method = MethodHeuristic
		selection.Confidence = scores[best].Confidence()
		return selection, nil
	}

	pick := 0
	if class.Rejects() && len(edges) > 1 {
		pick = 1
	}
	selection.Edge = edges[pick]
	selection.Method = MethodFallback
	selection.Confidence = scores[pick].Confidence()
	return selection, nil
}

func containsWord(words []string, word string) bool {
	for _, candidate := range words {
		if candidate == word {
			return true
		}
	}
	return false
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
