// Package store resolves workflow identifiers to definitions. The engine never
// reads from a store itself; callers load a definition and hand its records to
// engine.Run.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/kingrea/disputeflow/internal/workflow"
)

var (
	// ErrWorkflowNotFound is returned when no definition exists for an id.
	ErrWorkflowNotFound = errors.New("store: workflow not found")
	// ErrInvalidID is returned for ids outside [A-Za-z0-9._-].
	ErrInvalidID = errors.New("store: invalid workflow id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Store loads workflow definitions by id.
type Store interface {
	Load(ctx context.Context, id string) (workflow.Definition, error)
	List(ctx context.Context) ([]string, error)
}

// ValidateID rejects ids that could escape a directory or break a query.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// MemoryStore keeps definitions in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]workflow.Definition
}

// NewMemoryStore seeds a store with defs.
func NewMemoryStore(defs ...workflow.Definition) *MemoryStore {
	s := &MemoryStore{defs: make(map[string]workflow.Definition, len(defs))}
	for _, def := range defs {
		s.Put(def)
	}
	return s
}

// Put adds or replaces a definition.
func (s *MemoryStore) Put(def workflow.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def.Clone()
}

// Load returns a copy of the stored definition.
func (s *MemoryStore) Load(_ context.Context, id string) (workflow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return workflow.Definition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return def.Clone(), nil
}

// List returns stored ids in sorted order.
func (s *MemoryStore) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.defs))
	for id := range s.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
