// Package relations loads the parent/child relation registry used by join
// queries, from Postgres when it is enabled and from configuration otherwise.
package relations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/join"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/resilience"
)

// Source lists declared relations.
type Source interface {
	List(ctx context.Context) ([]join.Relation, error)
}

// Store keeps relations in a `doc_relations` table:
//
//	CREATE TABLE doc_relations (
//	    name        TEXT PRIMARY KEY,
//	    parent_type TEXT NOT NULL,
//	    child_type  TEXT NOT NULL
//	);
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the relations table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS doc_relations (
		name        TEXT PRIMARY KEY,
		parent_type TEXT NOT NULL,
		child_type  TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating doc_relations: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]join.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, parent_type, child_type FROM doc_relations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	defer rows.Close()
	var out []join.Relation
	for rows.Next() {
		var rel join.Relation
		if err := rows.Scan(&rel.Name, &rel.Parent, &rel.Child); err != nil {
			return nil, fmt.Errorf("scanning relation row: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// Put inserts or replaces a relation.
func (s *Store) Put(ctx context.Context, rel join.Relation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO doc_relations (name, parent_type, child_type) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET parent_type = EXCLUDED.parent_type, child_type = EXCLUDED.child_type`,
		rel.Name, rel.Parent, rel.Child,
	)
	if err != nil {
		return fmt.Errorf("saving relation %s: %w", rel.Name, err)
	}
	return nil
}

// FromConfig converts configured relations.
func FromConfig(cfg []config.RelationConfig) []join.Relation {
	out := make([]join.Relation, 0, len(cfg))
	for _, r := range cfg {
		out = append(out, join.Relation{Name: r.Name, Parent: r.Parent, Child: r.Child})
	}
	return out
}

// Load builds the registry from src, retrying transient failures. When src
// is nil, or still failing after the retries, the configured relations are
// used instead.
func Load(ctx context.Context, src Source, fallback []config.RelationConfig) (*join.Relations, error) {
	logger := slog.Default().With("component", "relations")
	rels := FromConfig(fallback)
	origin := "config"
	if src != nil {
		var stored []join.Relation
		err := resilience.Retry(ctx, "load-relations", resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
		}, func(ctx context.Context) error {
			var err error
			stored, err = src.List(ctx)
			return err
		})
		if err != nil {
			logger.Warn("relation store unavailable, using configured relations", "error", err)
		} else {
			rels, origin = stored, "postgres"
		}
	}
	registry, err := join.NewRelations(rels...)
	if err != nil {
		return nil, fmt.Errorf("building relation registry from %s: %w", origin, err)
	}
	if registry.Cyclic() {
		return nil, fmt.Errorf("relations from %s form a cycle", origin)
	}
	logger.Info("relation registry loaded", "source", origin, "relations", registry.Len())
	return registry, nil
}
