package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/disputeflow/internal/workflow"
)

// DirStore reads definitions from <dir>/<id>.<ext>, probing
// workflow.Extensions in order.
type DirStore struct {
	dir string
}

// NewDirStore creates a store rooted at dir (workflow.DefaultWorkflowDir when
// empty).
func NewDirStore(dir string) *DirStore {
	if strings.TrimSpace(dir) == "" {
		dir = workflow.DefaultWorkflowDir
	}
	return &DirStore{dir: dir}
}

// Dir returns the root directory.
func (s *DirStore) Dir() string {
	return s.dir
}

// Load parses the first matching definition file. The id declared inside the
// file must match the file name.
func (s *DirStore) Load(ctx context.Context, id string) (workflow.Definition, error) {
	if err := ValidateID(id); err != nil {
		return workflow.Definition{}, err
	}
	if err := ctx.Err(); err != nil {
		return workflow.Definition{}, err
	}
	for _, ext := range workflow.Extensions {
		def, err := workflow.LoadDefinitionRelative(s.dir, id+ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return workflow.Definition{}, fmt.Errorf("store: %w", err)
		}
		if def.ID != id {
			return workflow.Definition{}, fmt.Errorf("store: %s%s declares id %q", id, ext, def.ID)
		}
		return def, nil
	}
	return workflow.Definition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
}

// List returns the ids of every definition file in the directory.
func (s *DirStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", s.dir, err)
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// Match Load, which probes the extensions verbatim.
		ext := filepath.Ext(entry.Name())
		if !knownExtension(ext) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		if ValidateID(id) != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func knownExtension(ext string) bool {
	for _, candidate := range workflow.Extensions {
		if candidate == ext {
			return true
		}
	}
	return false
}
