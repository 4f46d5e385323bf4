package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultWorkflowDir points to the conventional location for workflow
// definitions when loading from disk.
const DefaultWorkflowDir = "workflows"

// Extensions lists the file suffixes LoadDefinitionFile understands, in the
// order they are probed when resolving a definition by id.
var Extensions = []string{".yaml", ".yml", ".hcl", ".json"}

// ParseDefinitionYAML decodes a workflow definition from YAML bytes.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ParseDefinitionJSON decodes a workflow definition from JSON bytes. The node
// and edge lists go through DecodeRecords so non-list shapes are reported as
// ErrMalformedInput.
func ParseDefinitionJSON(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var envelope struct {
		ID          string            `json:"id"`
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Nodes       json.RawMessage   `json:"nodes"`
		Edges       json.RawMessage   `json:"edges"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Definition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	edgesJSON := envelope.Edges
	if len(bytes.TrimSpace(edgesJSON)) == 0 {
		edgesJSON = json.RawMessage("[]")
	}
	nodes, edges, err := DecodeRecords(envelope.Nodes, edgesJSON)
	if err != nil {
		return Definition{}, err
	}
	def := Definition{
		ID:          envelope.ID,
		Name:        envelope.Name,
		Description: envelope.Description,
		Nodes:       nodes,
		Edges:       edges,
		Metadata:    envelope.Metadata,
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ParseDefinition picks a decoder from the file extension.
func ParseDefinition(name string, data []byte) (Definition, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hcl":
		return ParseDefinitionHCL(name, data)
	case ".json":
		return ParseDefinitionJSON(data)
	case ".yaml", ".yml", "":
		return ParseDefinitionYAML(data)
	default:
		return Definition{}, fmt.Errorf("workflow: unsupported definition format %q", filepath.Ext(name))
	}
}

// LoadDefinitionReader reads a YAML workflow definition from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a workflow definition from an explicit file path.
func LoadDefinitionFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	def, parseErr := ParseDefinition(path, content)
	if parseErr != nil {
		return Definition{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return def, nil
}

// LoadDefinitionRelative loads a definition from the workflows directory (or a
// custom baseDir if provided).
func LoadDefinitionRelative(baseDir, name string) (Definition, error) {
	if baseDir == "" {
		baseDir = DefaultWorkflowDir
	}
	return LoadDefinitionFile(filepath.Join(baseDir, name))
}
