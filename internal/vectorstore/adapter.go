// Package vectorstore implements the Vector Store Adapter (C2): durable
// storage of memory payloads plus their dense and sparse vectors, and the
// hybrid k-NN/keyword query contract the rest of the kernel relies on.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memkernel/internal/embedding"
	"memkernel/internal/memory"
	"memkernel/internal/telemetry"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter implements memory.VectorStore and
// embedding.DocumentFrequencyProvider over a local SQLite database.
// Grounded on the teacher's internal/store/local_core.go (schema bootstrap,
// PRAGMA choices) and vector_store.go (embedding-aware upsert/query shape).
type SQLiteAdapter struct {
	db  *sql.DB
	mu  sync.RWMutex
	dim int
}

// Open creates or attaches to a SQLite database at path, initializing the
// memory-kernel schema. dim is the dense vector dimension this collection
// was created for; it is validated on every Upsert/Query.
func Open(path string, dim int) (*SQLiteAdapter, error) {
	log := telemetry.Get(telemetry.CategoryVectorStore)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debugw("failed to set busy_timeout", "err", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debugw("failed to set journal_mode=WAL", "err", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debugw("failed to set synchronous=NORMAL", "err", err)
	}

	a := &SQLiteAdapter{db: db, dim: dim}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	log.Infow("vector store opened", "path", path, "dim", dim)
	return a, nil
}

func (a *SQLiteAdapter) Close() error { return a.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	project TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	solution TEXT NOT NULL DEFAULT '',
	prevention TEXT NOT NULL DEFAULT '',
	rationale TEXT NOT NULL DEFAULT '',
	alternatives TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	last_accessed TEXT NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	importance REAL NOT NULL DEFAULT 0,
	strength REAL NOT NULL DEFAULT 1,
	quality_score REAL NOT NULL DEFAULT 0,
	emotional_weight REAL NOT NULL DEFAULT 0,
	resolved INTEGER NOT NULL DEFAULT 0,
	pinned INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL DEFAULT 'draft',
	session_tag TEXT NOT NULL DEFAULT '',
	dense BLOB,
	sparse TEXT NOT NULL DEFAULT '{}',
	annotations TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_pinned ON memories(pinned);
`

func (a *SQLiteAdapter) initSchema() error {
	_, err := a.db.Exec(schema)
	return err
}

// Upsert persists a memory payload plus its vectors, idempotent on id.
func (a *SQLiteAdapter) Upsert(ctx context.Context, m memory.Memory) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dim != 0 && len(m.DenseVector) != 0 && len(m.DenseVector) != a.dim {
		return &memory.DimensionMismatch{Expected: a.dim, Got: len(m.DenseVector)}
	}

	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	sparseJSON, err := json.Marshal(m.SparseVector)
	if err != nil {
		return fmt.Errorf("marshal sparse vector: %w", err)
	}
	annotationsJSON, err := json.Marshal(m.Annotations)
	if err != nil {
		return fmt.Errorf("marshal annotations: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, type, content, tags, project, source, error_message, solution,
			prevention, rationale, alternatives, created_at, last_accessed,
			access_count, importance, strength, quality_score, emotional_weight,
			resolved, pinned, state, session_tag, dense, sparse, annotations
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, content=excluded.content, tags=excluded.tags,
			project=excluded.project, source=excluded.source,
			error_message=excluded.error_message, solution=excluded.solution,
			prevention=excluded.prevention, rationale=excluded.rationale,
			alternatives=excluded.alternatives, last_accessed=excluded.last_accessed,
			access_count=excluded.access_count, importance=excluded.importance,
			strength=excluded.strength, quality_score=excluded.quality_score,
			emotional_weight=excluded.emotional_weight, resolved=excluded.resolved,
			pinned=excluded.pinned, state=excluded.state,
			session_tag=excluded.session_tag, dense=excluded.dense, sparse=excluded.sparse,
			annotations=excluded.annotations
	`,
		m.ID, string(m.Type), m.Content, string(tagsJSON), m.Project, m.Source,
		m.ErrorMessage, m.Solution, m.Prevention, m.Rationale, m.Alternatives,
		m.CreatedAt.UTC().Format(time.RFC3339Nano), m.LastAccessed.UTC().Format(time.RFC3339Nano),
		m.AccessCount, m.Importance, m.Strength, m.QualityScore, m.EmotionalWeight,
		boolToInt(m.Resolved), boolToInt(m.Pinned), string(m.State), m.SessionTag,
		encodeFloat32Slice(m.DenseVector), string(sparseJSON), string(annotationsJSON),
	)
	if err != nil {
		return &memory.StoreUnavailable{Op: "upsert", Cause: err}
	}
	return nil
}

// Delete tombstones a memory; subsequent Get calls report not-found.
func (a *SQLiteAdapter) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return &memory.StoreUnavailable{Op: "delete", Cause: err}
	}
	return nil
}

// Get fetches a single memory by id.
func (a *SQLiteAdapter) Get(ctx context.Context, id string) (memory.Memory, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return memory.Memory{}, false, nil
	}
	if err != nil {
		return memory.Memory{}, false, &memory.StoreUnavailable{Op: "get", Cause: err}
	}
	return m, true, nil
}

// Touch updates access bookkeeping for a batch of ids, used by the read
// path's reinforcement step.
func (a *SQLiteAdapter) Touch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	stmt, err := a.db.PrepareContext(ctx, `UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`)
	if err != nil {
		return &memory.StoreUnavailable{Op: "touch", Cause: err}
	}
	defer stmt.Close()

	ts := at.UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, ts, id); err != nil {
			return &memory.StoreUnavailable{Op: "touch", Cause: err}
		}
	}
	return nil
}

// RecreateCollection destructively resets the store for a new dense
// dimension; used by migrate (spec §6/§8/S6).
func (a *SQLiteAdapter) RecreateCollection(ctx context.Context, dim int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return &memory.StoreUnavailable{Op: "recreate_collection", Cause: err}
	}
	a.dim = dim
	return nil
}

// DocumentFrequency implements embedding.DocumentFrequencyProvider so C1's
// sparse vectors can be IDF-weighted against this collection's corpus.
func (a *SQLiteAdapter) DocumentFrequency(termHash uint32) (int, int) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var total int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&total); err != nil {
		return 0, 0
	}
	if total == 0 {
		return 0, 0
	}

	key := fmt.Sprintf(`"%d"`, termHash)
	var df int
	row := a.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE sparse LIKE ?`, "%"+key+"%")
	_ = row.Scan(&df)
	return df, total
}

var (
	_ embedding.DocumentFrequencyProvider = (*SQLiteAdapter)(nil)
	_ memory.VectorStore                  = (*SQLiteAdapter)(nil)
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeFloat32Slice(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func decodeFloat32Slice(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
