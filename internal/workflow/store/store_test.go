package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/disputeflow/internal/config"
	"github.com/kingrea/disputeflow/internal/workflow"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirStoreLoadAndList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "card.yaml", "id: card\nnodes:\n  - id: s\n    type: start\n")
	writeFile(t, dir, "wire.json", `{"id":"wire","nodes":[{"id":"s","type":"start"}]}`)
	writeFile(t, dir, "card.hcl", "workflow \"card\" {\n  node \"other\" {}\n}\n")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "upper.YAML", "id: upper\nnodes:\n  - id: s\n    type: start\n")

	s := NewDirStore(dir)
	ids, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Join(ids, ",") != "card,wire" {
		t.Fatalf("unexpected ids %v", ids)
	}
	def, err := s.Load(context.Background(), "card")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Nodes[0].ID != "s" {
		t.Fatalf("yaml should be preferred over hcl, got node %s", def.Nodes[0].ID)
	}
	for _, id := range ids {
		if _, err := s.Load(context.Background(), id); err != nil {
			t.Fatalf("listed id %s does not load: %v", id, err)
		}
	}
}

func TestDirStoreErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "renamed.yaml", "id: original\nnodes:\n  - id: s\n")
	s := NewDirStore(dir)

	if _, err := s.Load(context.Background(), "missing"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
	if _, err := s.Load(context.Background(), "../etc/passwd"); err == nil || errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected invalid id error, got %v", err)
	}
	if _, err := s.Load(context.Background(), "renamed"); err == nil || !strings.Contains(err.Error(), `declares id "original"`) {
		t.Fatalf("expected id mismatch error, got %v", err)
	}
	ids, err := NewDirStore(filepath.Join(dir, "absent")).List(context.Background())
	if err != nil || len(ids) != 0 {
		t.Fatalf("missing directory should list nothing, got %v %v", ids, err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore(workflow.Definition{ID: "b", Nodes: []workflow.NodeRecord{{ID: "x"}}}, workflow.Definition{ID: "a"})
	ids, _ := s.List(context.Background())
	if strings.Join(ids, ",") != "a,b" {
		t.Fatalf("unexpected ids %v", ids)
	}
	def, err := s.Load(context.Background(), "b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def.Nodes[0].ID = "mutated"
	again, _ := s.Load(context.Background(), "b")
	if again.Nodes[0].ID != "x" {
		t.Fatalf("store returned shared slice")
	}
	if _, err := s.Load(context.Background(), "zzz"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"card-dispute", "v1.2_flow"} {
		if err := ValidateID(id); err != nil {
			t.Fatalf("ValidateID(%q): %v", id, err)
		}
	}
	for _, id := range []string{"", "..", "a/b", "a b", "x;drop"} {
		if err := ValidateID(id); err == nil {
			t.Fatalf("ValidateID(%q) should fail", id)
		}
	}
}

func TestOpenFallsBackToDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Workflows.Dir = dir
	st, closeStore, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeStore()
	dirStore, ok := st.(*DirStore)
	if !ok {
		t.Fatalf("expected *DirStore, got %T", st)
	}
	if dirStore.Dir() != dir {
		t.Fatalf("store dir %s, want %s", dirStore.Dir(), dir)
	}

	cfg.Database.URL = "postgres://%zz"
	if _, _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unparsable database url")
	}
}
