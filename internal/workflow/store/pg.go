package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kingrea/disputeflow/internal/workflow"
)

// PGStore reads workflow rows from PostgreSQL. Node and edge order is the
// position column, which the engine relies on for tie-breaks.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to databaseURL and creates the schema if needed.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: database unreachable: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Migrate creates the workflow tables if they do not exist.
func (s *PGStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		metadata JSONB
	);

	CREATE TABLE IF NOT EXISTS workflow_nodes (
		workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL DEFAULT '',
		action_filters JSONB,
		PRIMARY KEY (workflow_id, position)
	);

	CREATE TABLE IF NOT EXISTS workflow_edges (
		workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (workflow_id, position)
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Load reads a workflow and its rows in position order.
func (s *PGStore) Load(ctx context.Context, id string) (workflow.Definition, error) {
	if err := ValidateID(id); err != nil {
		return workflow.Definition{}, err
	}
	def := workflow.Definition{ID: id}
	var metadataJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT name, description, metadata FROM workflows WHERE id = $1`, id,
	).Scan(&def.Name, &def.Description, &metadataJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return workflow.Definition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if err != nil {
		return workflow.Definition{}, fmt.Errorf("store: load workflow %s: %w", id, err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &def.Metadata); err != nil {
			return workflow.Definition{}, fmt.Errorf("store: workflow %s metadata: %w", id, err)
		}
	}

	nodes, err := s.loadNodes(ctx, id)
	if err != nil {
		return workflow.Definition{}, err
	}
	edges, err := s.loadEdges(ctx, id)
	if err != nil {
		return workflow.Definition{}, err
	}
	def.Nodes = nodes
	def.Edges = edges
	return def, nil
}

func (s *PGStore) loadNodes(ctx context.Context, id string) ([]workflow.NodeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, label, data, action_filters
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("store: query nodes for %s: %w", id, err)
	}
	defer rows.Close()

	var nodes []workflow.NodeRecord
	for rows.Next() {
		var (
			node        workflow.NodeRecord
			data        string
			filtersJSON []byte
		)
		if err := rows.Scan(&node.ID, &node.Type, &node.Label, &data, &filtersJSON); err != nil {
			return nil, fmt.Errorf("store: scan node for %s: %w", id, err)
		}
		node.Data = workflow.Blob(data)
		if len(filtersJSON) > 0 {
			if err := json.Unmarshal(filtersJSON, &node.ActionFilters); err != nil {
				return nil, fmt.Errorf("store: node %s filters: %w", node.ID, err)
			}
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read nodes for %s: %w", id, err)
	}
	return nodes, nil
}

func (s *PGStore) loadEdges(ctx context.Context, id string) ([]workflow.EdgeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, target, label, direction
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("store: query edges for %s: %w", id, err)
	}
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (workflow.EdgeRecord, error) {
		var edge workflow.EdgeRecord
		err := row.Scan(&edge.ID, &edge.Source, &edge.Target, &edge.Label, &edge.Direction)
		return edge, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: read edges for %s: %w", id, err)
	}
	return edges, nil
}

// Save replaces a workflow and all of its rows in one transaction.
func (s *PGStore) Save(ctx context.Context, def workflow.Definition) error {
	if err := ValidateID(def.ID); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}
	metadataJSON, err := json.Marshal(def.Metadata)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, def.ID); err != nil {
			return fmt.Errorf("store: clear workflow %s: %w", def.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO workflows (id, name, description, metadata) VALUES ($1, $2, $3, $4)`,
			def.ID, def.Name, def.Description, metadataJSON,
		); err != nil {
			return fmt.Errorf("store: insert workflow %s: %w", def.ID, err)
		}
		batch := &pgx.Batch{}
		for i, node := range def.Nodes {
			var filtersJSON []byte
			if len(node.ActionFilters) > 0 {
				if filtersJSON, err = json.Marshal(node.ActionFilters); err != nil {
					return fmt.Errorf("store: encode filters for %s: %w", node.ID, err)
				}
			}
			batch.Queue(`
				INSERT INTO workflow_nodes (workflow_id, position, id, type, label, data, action_filters)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, def.ID, i, node.ID, node.Type, node.Label, string(node.Data), filtersJSON)
		}
		for i, edge := range def.Edges {
			batch.Queue(`
				INSERT INTO workflow_edges (workflow_id, position, id, source, target, label, direction)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, def.ID, i, edge.ID, edge.Source, edge.Target, edge.Label, edge.Direction)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("store: insert rows for %s: %w", def.ID, err)
		}
		return nil
	})
}

// List returns workflow ids in sorted order.
func (s *PGStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM workflows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list workflows: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("store: list workflows: %w", err)
	}
	return ids, nil
}

// Ping checks database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
