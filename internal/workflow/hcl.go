package workflow

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level shape of an HCL workflow file. Exactly one
// workflow block is expected per file.
type hclFile struct {
	Workflows []hclWorkflow `hcl:"workflow,block"`
}

type hclWorkflow struct {
	ID          string            `hcl:"id,label"`
	Name        string            `hcl:"name,optional"`
	Description string            `hcl:"description,optional"`
	Metadata    map[string]string `hcl:"metadata,optional"`
	Nodes       []hclNode         `hcl:"node,block"`
	Edges       []hclEdge         `hcl:"edge,block"`
}

type hclNode struct {
	ID      string      `hcl:"id,label"`
	Type    string      `hcl:"type,optional"`
	Label   string      `hcl:"label,optional"`
	Data    string      `hcl:"data,optional"`
	Filters []hclFilter `hcl:"filter,block"`
}

type hclFilter struct {
	Field      string    `hcl:"field"`
	Comparator string    `hcl:"comparator"`
	Value      cty.Value `hcl:"value"`
}

type hclEdge struct {
	ID        string `hcl:"id,label"`
	Source    string `hcl:"source"`
	Target    string `hcl:"target"`
	Label     string `hcl:"label,optional"`
	Direction string `hcl:"direction,optional"`
}

// ParseDefinitionHCL decodes a workflow definition written in HCL:
//
//	workflow "card-dispute" {
//	  node "review" {
//	    type = "action"
//	    filter {
//	      field      = "amount"
//	      comparator = ">"
//	      value      = 100
//	    }
//	  }
//	  edge "e1" {
//	    source = "start"
//	    target = "review"
//	  }
//	}
func ParseDefinitionHCL(filename string, data []byte) (Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return Definition{}, fmt.Errorf("workflow: parse hcl: %w", diags)
	}
	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return Definition{}, fmt.Errorf("workflow: decode hcl: %w", diags)
	}
	if len(parsed.Workflows) != 1 {
		return Definition{}, fmt.Errorf("workflow: expected exactly one workflow block, found %d", len(parsed.Workflows))
	}
	block := parsed.Workflows[0]
	def := Definition{
		ID:          block.ID,
		Name:        block.Name,
		Description: block.Description,
		Metadata:    cloneStringMap(block.Metadata),
	}
	for _, node := range block.Nodes {
		rec := NodeRecord{
			ID:    node.ID,
			Type:  node.Type,
			Label: node.Label,
			Data:  Blob(node.Data),
		}
		for _, f := range node.Filters {
			value, err := ctyToGo(f.Value)
			if err != nil {
				return Definition{}, fmt.Errorf("workflow: node %s filter %s: %w", node.ID, f.Field, err)
			}
			rec.ActionFilters = append(rec.ActionFilters, Filter{
				Field:      f.Field,
				Comparator: f.Comparator,
				Value:      value,
			})
		}
		def.Nodes = append(def.Nodes, rec)
	}
	for _, edge := range block.Edges {
		def.Edges = append(def.Edges, EdgeRecord(edge))
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case cty.Bool:
		return v.True(), nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", v.Type().FriendlyName())
	}
}
