package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/disputeflow/internal/workflow"
	"github.com/kingrea/disputeflow/internal/workflow/engine"
)

func TestKeyValueFlag(t *testing.T) {
	kv := keyValueFlag{}
	if err := kv.Set("amount=250"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set("note=a=b"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set("missing"); err == nil {
		t.Fatalf("expected error without '='")
	}
	if err := kv.Set(" =x"); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if got := kv.String(); got != "amount=250, note=a=b" {
		t.Fatalf("unexpected String() %q", got)
	}
}

func TestBuildPayloadLayersSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.yaml")
	content := "amount: 100\nregion: EU\ndecision: from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	overrides := keyValueFlag{"amount": "250", "vip": "true", "tags": "[a, b]"}
	payload, err := buildPayload(path, overrides, controlFlags{Decision: " approve ", CurrentNodeID: "review"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if payload["amount"] != 250 {
		t.Fatalf("override should win and parse as int, got %#v", payload["amount"])
	}
	if payload["vip"] != true || payload["region"] != "EU" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload["tags"] != "[a, b]" {
		t.Fatalf("non-scalar values should stay raw, got %#v", payload["tags"])
	}
	if payload.Decision() != "approve" || payload.CurrentNodeID() != "review" {
		t.Fatalf("control flags should win, got %#v", payload)
	}
	if _, ok := payload[engine.KeyForceNextNode]; ok {
		t.Fatalf("empty control flags must not be set")
	}

	if _, err := buildPayload(filepath.Join(t.TempDir(), "nope.yaml"), nil, controlFlags{}); err == nil {
		t.Fatalf("expected error for missing payload file")
	}
}

func TestLintDefinition(t *testing.T) {
	def := workflow.Definition{
		ID: "broken",
		Nodes: []workflow.NodeRecord{
			{ID: "a", Type: "action"},
			{ID: "a", Type: "action"},
			{ID: "d", Type: "decision"},
			{ID: "x", Type: "gateway"},
		},
		Edges: []workflow.EdgeRecord{
			{ID: "e1", Source: "a", Target: "d"},
			{ID: "e2", Source: "d", Target: "ghost"},
			{ID: "e3", Source: "ghost", Target: "a"},
		},
	}
	problems := strings.Join(lintDefinition(def), "\n")
	for _, want := range []string{
		"node a is declared more than once",
		`node x has unknown type "gateway"`,
		"no start node",
		"edge e2 targets missing node ghost",
		"decision node d has 1 outgoing edge(s)",
		"node x is a dead end",
		"edge e3 starts at missing node ghost",
	} {
		if !strings.Contains(problems, want) {
			t.Fatalf("expected %q in problems:\n%s", want, problems)
		}
	}

	clean := workflow.Definition{
		ID: "ok",
		Nodes: []workflow.NodeRecord{
			{ID: "s", Type: "start"},
			{ID: "r", Type: "action"},
			{ID: "d", Type: "decision"},
			{ID: "y", Type: "end"},
			{ID: "n", Type: "end"},
		},
		Edges: []workflow.EdgeRecord{
			{ID: "e1", Source: "s", Target: "r"},
			{ID: "e2", Source: "r", Target: "d"},
			{ID: "e3", Source: "d", Target: "y", Label: "approve"},
			{ID: "e4", Source: "d", Target: "n", Label: "reject"},
		},
	}
	if problems := lintDefinition(clean); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}
