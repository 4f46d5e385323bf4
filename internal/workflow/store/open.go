package store

import (
	"context"

	"github.com/kingrea/disputeflow/internal/config"
)

// Open returns the PostgreSQL store when cfg names a database and the
// directory store otherwise. The returned func releases the pool.
func Open(ctx context.Context, cfg config.Config) (Store, func(), error) {
	if cfg.UsesDatabase() {
		pg, err := NewPGStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	}
	return NewDirStore(cfg.Workflows.Dir), func() {}, nil
}
