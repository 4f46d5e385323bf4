package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kingrea/disputeflow/internal/workflow"
	"github.com/kingrea/disputeflow/internal/workflow/graph"
)

func validateCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: flowctl validate FILE...")
		return 2
	}
	code := 0
	for _, path := range args {
		def, err := workflow.LoadDefinitionFile(path)
		if err != nil {
			fmt.Printf("Invalid: %s\n- %v\n", path, err)
			code = 1
			continue
		}
		problems := lintDefinition(def)
		if len(problems) == 0 {
			fmt.Printf("OK: %s (%s, %d nodes, %d edges)\n", path, def.ID, len(def.Nodes), len(def.Edges))
			continue
		}
		code = 1
		fmt.Printf("Invalid: %s (%s)\n", path, def.ID)
		for _, problem := range problems {
			fmt.Printf("- %s\n", problem)
		}
	}
	return code
}

// lintDefinition reports structural issues the engine tolerates at run time
// but that almost always indicate an authoring mistake.
func lintDefinition(def workflow.Definition) []string {
	var problems []string
	seen := make(map[string]struct{}, len(def.Nodes))
	for _, rec := range def.Nodes {
		if _, dup := seen[rec.ID]; dup {
			problems = append(problems, fmt.Sprintf("node %s is declared more than once", rec.ID))
		}
		seen[rec.ID] = struct{}{}
		if rec.Type != "" && graph.ParseNodeType(rec.Type) == graph.TypeDefault && !strings.EqualFold(rec.Type, string(graph.TypeDefault)) {
			problems = append(problems, fmt.Sprintf("node %s has unknown type %q", rec.ID, rec.Type))
		}
	}

	g := graph.Normalize(def.Nodes, def.Edges)
	if _, ok := g.FirstOfType(graph.TypeStart); !ok {
		problems = append(problems, "no start node")
	}
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)
		edges := g.Outgoing(id)
		for _, edge := range edges {
			if _, ok := g.Node(edge.Target); !ok {
				problems = append(problems, fmt.Sprintf("edge %s targets missing node %s", edge.ID, edge.Target))
			}
		}
		if node.Is(graph.TypeDecision) && len(edges) < 2 {
			problems = append(problems, fmt.Sprintf("decision node %s has %d outgoing edge(s)", id, len(edges)))
		}
		if !node.IsEnd && len(edges) == 0 && !node.Is(graph.TypeAction) {
			problems = append(problems, fmt.Sprintf("node %s is a dead end", id))
		}
	}
	for _, edge := range def.Edges {
		if _, ok := g.Node(edge.Source); !ok {
			problems = append(problems, fmt.Sprintf("edge %s starts at missing node %s", edge.ID, edge.Source))
		}
	}
	return problems
}
