package graph

import (
	"encoding/json"
	"strings"

	"github.com/kingrea/disputeflow/internal/workflow"
)

// extraData is the subset of the embedded blob the engine understands.
type extraData struct {
	Label   string
	Type    string
	IsEnd   bool
	Filters []Filter
}

// Normalize builds a Graph from raw records. It never fails: unparsable blobs
// are treated as empty, duplicate node ids keep the first record, and edges
// pointing at unknown nodes are kept for the engine to stop on.
func Normalize(nodes []workflow.NodeRecord, edges []workflow.EdgeRecord) *Graph {
	g := &Graph{
		nodes:    make(map[string]Node, len(nodes)),
		order:    make([]string, 0, len(nodes)),
		outgoing: make(map[string][]Edge),
	}
	for _, rec := range nodes {
		if _, exists := g.nodes[rec.ID]; exists {
			continue
		}
		node := normalizeNode(rec)
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}
	for _, rec := range edges {
		edge := NormalizeEdge(rec)
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
	}
	return g
}

func normalizeNode(rec workflow.NodeRecord) Node {
	extra := parseExtraData(string(rec.Data))
	typ := rec.Type
	if strings.TrimSpace(typ) == "" {
		typ = extra.Type
	}
	label := rec.Label
	if strings.TrimSpace(label) == "" {
		label = extra.Label
	}
	filters := rec.ActionFilters
	if len(filters) == 0 {
		filters = extra.Filters
	}
	node := Node{
		ID:    rec.ID,
		Type:  ParseNodeType(typ),
		Label: label,
	}
	node.IsEnd = node.Type == TypeEnd || extra.IsEnd
	if len(filters) > 0 {
		node.ActionFilters = make([]Filter, len(filters))
		copy(node.ActionFilters, filters)
	}
	return node
}

// NormalizeEdge lowercases the direction, defaulting to the label and then to
// DirectionForward.
func NormalizeEdge(rec workflow.EdgeRecord) Edge {
	direction := strings.ToLower(strings.TrimSpace(rec.Direction))
	if direction == "" {
		direction = strings.ToLower(strings.TrimSpace(rec.Label))
	}
	if direction == "" {
		direction = DirectionForward
	}
	return Edge{
		ID:        rec.ID,
		Source:    rec.Source,
		Target:    rec.Target,
		Label:     rec.Label,
		Direction: direction,
	}
}

func parseExtraData(blob string) extraData {
	var extra extraData
	if strings.TrimSpace(blob) == "" {
		return extra
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return extra
	}
	extra.Label = rawString(raw["label"])
	extra.Type = rawString(raw["type"])
	extra.IsEnd = rawBool(raw["isEnd"]) || rawBool(raw["is_end"])
	filters := raw["actionFilters"]
	if len(filters) == 0 {
		filters = raw["action_filters"]
	}
	extra.Filters = rawFilters(filters)
	return extra
}

func rawString(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ""
	}
	return s
}

func rawBool(data json.RawMessage) bool {
	if len(data) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return b
	}
	return strings.EqualFold(rawString(data), "true")
}

func rawFilters(data json.RawMessage) []Filter {
	if len(data) == 0 {
		return nil
	}
	var items []struct {
		Field      string `json:"field"`
		Comparator string `json:"comparator"`
		Operator   string `json:"operator"`
		Value      any    `json:"value"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	filters := make([]Filter, 0, len(items))
	for _, item := range items {
		comparator := item.Comparator
		if comparator == "" {
			comparator = item.Operator
		}
		filters = append(filters, Filter{Field: item.Field, Comparator: comparator, Value: item.Value})
	}
	return filters
}
