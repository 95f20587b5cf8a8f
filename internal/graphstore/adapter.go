// Package graphstore implements the Graph Store Adapter (C3): memories as
// nodes and typed, confidence-scored edges between them, with a degrade-
// gracefully posture when the store is disabled or unreachable.
package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memkernel/internal/memory"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter implements memory.GraphStore as a SQLite-backed adjacency
// table. Grounded on the teacher's internal/store/local_graph.go
// (KnowledgeLink, StoreLink, queryLinksLocked's direction-switched query).
type SQLiteAdapter struct {
	db *sql.DB
	mu sync.RWMutex
}

const schema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS graph_edges (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	type TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	UNIQUE(source_id, target_id, type)
);
CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(source_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(target_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_type ON graph_edges(type);
`

// Open creates or attaches to a SQLite database at path, initializing the
// graph schema.
func Open(path string) (*SQLiteAdapter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteAdapter{db: db}, nil
}

func (a *SQLiteAdapter) Close() error { return a.db.Close() }

// EnsureNode registers a memory as a graph node, idempotently.
func (a *SQLiteAdapter) EnsureNode(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `INSERT OR IGNORE INTO graph_nodes (id) VALUES (?)`, id)
	if err != nil {
		return &memory.GraphUnavailable{Op: "ensure_node", Cause: err}
	}
	return nil
}

// Link creates an edge, idempotent per (source, target, type) via a unique
// index plus INSERT OR IGNORE — a second call with the same triple is a
// no-op, matching spec §8's edge-idempotence property.
func (a *SQLiteAdapter) Link(ctx context.Context, rel memory.Relationship) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	createdAt := rel.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO graph_edges (source_id, target_id, type, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rel.SourceID, rel.TargetID, string(rel.Type), rel.Confidence, createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &memory.GraphUnavailable{Op: "link", Cause: err}
	}
	return nil
}

// Neighbors performs a breadth-first walk up to depth (capped at 2 per spec
// §4.3), optionally restricted to the given edge types, reusing the
// teacher's direction-agnostic (both-ways) edge query idiom.
func (a *SQLiteAdapter) Neighbors(ctx context.Context, id string, types []memory.RelationType, depth int) ([]string, error) {
	if depth <= 0 || depth > 2 {
		depth = 2
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	typeSet := make(map[memory.RelationType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var out []string

	for d := 0; d < depth; d++ {
		var next []string
		for _, node := range frontier {
			neighbors, err := a.adjacent(ctx, node)
			if err != nil {
				return nil, &memory.GraphUnavailable{Op: "neighbors", Cause: err}
			}
			for _, e := range neighbors {
				if len(typeSet) > 0 && !typeSet[e.Type] {
					continue
				}
				other := e.TargetID
				if other == node {
					other = e.SourceID
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				out = append(out, other)
				next = append(next, other)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return out, nil
}

func (a *SQLiteAdapter) adjacent(ctx context.Context, id string) ([]memory.Relationship, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT source_id, target_id, type, confidence, created_at
		FROM graph_edges WHERE source_id = ? OR target_id = ?`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Relationship
	for rows.Next() {
		var rel memory.Relationship
		var typ, createdAt string
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &typ, &rel.Confidence, &createdAt); err != nil {
			return nil, err
		}
		rel.Type = memory.RelationType(typ)
		rel.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, rel)
	}
	return out, rows.Err()
}

// Stats reports node and per-type edge counts for health checks.
func (a *SQLiteAdapter) Stats(ctx context.Context) (memory.GraphStats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var nodeCount int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_nodes`).Scan(&nodeCount); err != nil {
		return memory.GraphStats{}, &memory.GraphUnavailable{Op: "stats", Cause: err}
	}

	rows, err := a.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM graph_edges GROUP BY type`)
	if err != nil {
		return memory.GraphStats{}, &memory.GraphUnavailable{Op: "stats", Cause: err}
	}
	defer rows.Close()

	byType := make(map[memory.RelationType]int)
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return memory.GraphStats{}, &memory.GraphUnavailable{Op: "stats", Cause: err}
		}
		byType[memory.RelationType(typ)] = count
	}
	return memory.GraphStats{NodeCount: nodeCount, EdgeCountByType: byType}, rows.Err()
}

// DeleteNode removes a node and all incident edges.
func (a *SQLiteAdapter) DeleteNode(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.db.ExecContext(ctx, `DELETE FROM graph_edges WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return &memory.GraphUnavailable{Op: "delete_node", Cause: err}
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM graph_nodes WHERE id = ?`, id); err != nil {
		return &memory.GraphUnavailable{Op: "delete_node", Cause: err}
	}
	return nil
}

// SweepOrphanEdges removes edges whose endpoints no longer both exist, as
// spec §3's invariant requires after a scheduled sweep.
func (a *SQLiteAdapter) SweepOrphanEdges(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, err := a.db.ExecContext(ctx, `
		DELETE FROM graph_edges
		WHERE source_id NOT IN (SELECT id FROM graph_nodes)
		   OR target_id NOT IN (SELECT id FROM graph_nodes)`)
	if err != nil {
		return 0, &memory.GraphUnavailable{Op: "sweep_orphan_edges", Cause: err}
	}
	return res.RowsAffected()
}

var _ memory.GraphStore = (*SQLiteAdapter)(nil)
