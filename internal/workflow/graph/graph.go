// Package graph turns raw workflow node and edge records into the typed graph
// the traversal engine walks. Normalization is the only place the embedded
// extra-data blob is parsed.
package graph

import (
	"strings"

	"github.com/kingrea/disputeflow/internal/workflow"
)

// NodeType enumerates node variants.
type NodeType string

const (
	TypeStart    NodeType = "start"
	TypeAction   NodeType = "action"
	TypeDecision NodeType = "decision"
	TypeEnd      NodeType = "end"
	TypeDefault  NodeType = "default"
)

// DirectionForward is the direction assigned to edges with neither an
// explicit direction nor a label.
const DirectionForward = "forward"

// ParseNodeType maps a type designator onto a NodeType. Unknown designators
// become TypeDefault.
func ParseNodeType(value string) NodeType {
	switch NodeType(strings.ToLower(strings.TrimSpace(value))) {
	case TypeStart:
		return TypeStart
	case TypeAction:
		return TypeAction
	case TypeDecision:
		return TypeDecision
	case TypeEnd:
		return TypeEnd
	default:
		return TypeDefault
	}
}

// Filter is a predicate attached to a node.
type Filter = workflow.Filter

// Node is a normalized workflow step.
type Node struct {
	ID            string   `json:"id"`
	Type          NodeType `json:"type"`
	Label         string   `json:"label"`
	IsEnd         bool     `json:"isEnd"`
	ActionFilters []Filter `json:"actionFilters,omitempty"`
}

// Edge is a normalized directed connection.
type Edge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Label     string `json:"label,omitempty"`
	Direction string `json:"direction"`
}

// Graph holds nodes keyed by id and outgoing edges grouped by source id. Edge
// order within a source is the input order.
type Graph struct {
	nodes    map[string]Node
	order    []string
	outgoing map[string][]Edge
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	node, ok := g.nodes[id]
	return node, ok
}

// Outgoing returns a copy of the edges leaving id, in input order.
func (g *Graph) Outgoing(id string) []Edge {
	if g == nil {
		return nil
	}
	edges := g.outgoing[id]
	if len(edges) == 0 {
		return nil
	}
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}

// FirstOfType returns the first node, in input order, with the given type.
func (g *Graph) FirstOfType(t NodeType) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	for _, id := range g.order {
		if node := g.nodes[id]; node.Type == t {
			return node, true
		}
	}
	return Node{}, false
}

// NodeIDs returns node ids in input order.
func (g *Graph) NodeIDs() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len reports the number of nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.order)
}

// Is reports whether the node has type t.
func (n Node) Is(t NodeType) bool {
	return n.Type == t
}
