package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedInput is returned when node or edge records are not list-shaped.
var ErrMalformedInput = errors.New("workflow: malformed input")

// Definition is a workflow graph as supplied by a collaborator: raw node and
// edge records in their original order plus descriptive metadata.
type Definition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeRecord      `json:"nodes" yaml:"nodes"`
	Edges       []EdgeRecord      `json:"edges" yaml:"edges"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NodeRecord is a node row before normalization. Data carries the embedded
// serialized extra-data blob.
type NodeRecord struct {
	ID            string   `json:"id" yaml:"id"`
	Type          string   `json:"type,omitempty" yaml:"type,omitempty"`
	Label         string   `json:"label,omitempty" yaml:"label,omitempty"`
	Data          Blob     `json:"data,omitempty" yaml:"data,omitempty"`
	ActionFilters []Filter `json:"actionFilters,omitempty" yaml:"action_filters,omitempty"`
}

// EdgeRecord is an edge row before normalization.
type EdgeRecord struct {
	ID        string `json:"id" yaml:"id"`
	Source    string `json:"source" yaml:"source"`
	Target    string `json:"target" yaml:"target"`
	Label     string `json:"label,omitempty" yaml:"label,omitempty"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// Filter is a single predicate attached to a node.
type Filter struct {
	Field      string `json:"field" yaml:"field"`
	Comparator string `json:"comparator" yaml:"comparator"`
	Value      any    `json:"value" yaml:"value"`
}

// Blob holds serialized extra data. JSON callers may send either a string
// containing JSON or an inline object; both end up as the raw JSON text.
type Blob string

// UnmarshalJSON accepts a JSON string or any other JSON value.
func (b *Blob) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*b = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*b = Blob(s)
		return nil
	}
	*b = Blob(trimmed)
	return nil
}

// UnmarshalYAML accepts a scalar string or an inline mapping, which is
// re-encoded as JSON.
func (b *Blob) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*b = Blob(value.Value)
		return nil
	}
	var inline any
	if err := value.Decode(&inline); err != nil {
		return err
	}
	encoded, err := json.Marshal(inline)
	if err != nil {
		return fmt.Errorf("workflow: encode inline data: %w", err)
	}
	*b = Blob(encoded)
	return nil
}

// Clone returns a deep copy of the definition. Filter values are copied by
// reference.
func (def Definition) Clone() Definition {
	clone := Definition{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Metadata:    cloneStringMap(def.Metadata),
	}
	if len(def.Nodes) > 0 {
		clone.Nodes = make([]NodeRecord, len(def.Nodes))
		for i, node := range def.Nodes {
			clone.Nodes[i] = node.Clone()
		}
	}
	if len(def.Edges) > 0 {
		clone.Edges = make([]EdgeRecord, len(def.Edges))
		copy(clone.Edges, def.Edges)
	}
	return clone
}

// Clone returns a copy of the node record with its own filter slice.
func (rec NodeRecord) Clone() NodeRecord {
	if len(rec.ActionFilters) > 0 {
		filters := make([]Filter, len(rec.ActionFilters))
		copy(filters, rec.ActionFilters)
		rec.ActionFilters = filters
	}
	return rec
}

// Validate checks the definition is loadable. The engine itself never
// validates; dangling edges are tolerated at traversal time.
func (def Definition) Validate() error {
	if strings.TrimSpace(def.ID) == "" {
		return fmt.Errorf("workflow: id is required")
	}
	if len(def.Nodes) == 0 {
		return fmt.Errorf("workflow %s: at least one node is required", def.ID)
	}
	for idx, node := range def.Nodes {
		if strings.TrimSpace(node.ID) == "" {
			return fmt.Errorf("workflow %s node[%d]: id is required", def.ID, idx)
		}
	}
	for idx, edge := range def.Edges {
		if strings.TrimSpace(edge.Source) == "" || strings.TrimSpace(edge.Target) == "" {
			return fmt.Errorf("workflow %s edge[%d]: source and target are required", def.ID, idx)
		}
	}
	return nil
}

// NodeIDs returns node ids in declaration order.
func (def Definition) NodeIDs() []string {
	ids := make([]string, 0, len(def.Nodes))
	for _, node := range def.Nodes {
		ids = append(ids, node.ID)
	}
	return ids
}

// DecodeRecords decodes JSON node and edge lists. Anything other than a JSON
// array (including null) is rejected with ErrMalformedInput.
func DecodeRecords(nodesJSON, edgesJSON []byte) ([]NodeRecord, []EdgeRecord, error) {
	if !isJSONArray(nodesJSON) {
		return nil, nil, fmt.Errorf("%w: nodes must be a list", ErrMalformedInput)
	}
	if !isJSONArray(edgesJSON) {
		return nil, nil, fmt.Errorf("%w: edges must be a list", ErrMalformedInput)
	}
	var nodes []NodeRecord
	if err := json.Unmarshal(nodesJSON, &nodes); err != nil {
		return nil, nil, fmt.Errorf("%w: nodes: %v", ErrMalformedInput, err)
	}
	var edges []EdgeRecord
	if err := json.Unmarshal(edgesJSON, &edges); err != nil {
		return nil, nil, fmt.Errorf("%w: edges: %v", ErrMalformedInput, err)
	}
	return nodes, edges, nil
}

func isJSONArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	clone := make(map[string]string, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
