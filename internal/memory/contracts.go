package memory

import (
	"context"
	"time"
)

// QueryMode selects which ranked list(s) a VectorStore.Query call draws
// candidates from.
type QueryMode string

const (
	ModeDense  QueryMode = "dense"
	ModeSparse QueryMode = "sparse"
	ModeHybrid QueryMode = "hybrid"
)

// Embedder is C1's contract as consumed by the collection: produce a dense
// and sparse representation for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) (dense []float32, sparse map[uint32]float32, err error)
	Dimensions() int
}

// VectorStore is C2's contract, implemented by internal/vectorstore.
type VectorStore interface {
	Upsert(ctx context.Context, m Memory) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Memory, bool, error)
	Scroll(ctx context.Context, filter Filter, limit, offset int) ([]Memory, error)
	Query(ctx context.Context, dense []float32, sparse map[uint32]float32, filter Filter, limit int, mode QueryMode) ([]ScoredMemory, error)
	RecreateCollection(ctx context.Context, dim int) error
	// Touch updates access bookkeeping (access_count, last_accessed) for ids,
	// used by the read path's reinforcement step.
	Touch(ctx context.Context, ids []string, at time.Time) error
}

// GraphStats summarizes the graph store's contents for Collection.Stats.
type GraphStats struct {
	NodeCount      int
	EdgeCountByType map[RelationType]int
}

// GraphStore is C3's contract, implemented by internal/graphstore. A nil
// GraphStore means the system runs without C3 (spec §4.3): callers must
// nil-check before use, mirroring the teacher's optional-engine pattern.
type GraphStore interface {
	EnsureNode(ctx context.Context, id string) error
	Link(ctx context.Context, rel Relationship) error
	Neighbors(ctx context.Context, id string, types []RelationType, depth int) ([]string, error)
	Stats(ctx context.Context) (GraphStats, error)
	DeleteNode(ctx context.Context, id string) error
}

// Cache is C4's contract, implemented by internal/querycache.
type Cache interface {
	Lookup(dense []float32, filterSig string) ([]ScoredMemory, bool)
	Insert(dense []float32, filterSig string, results []ScoredMemory)
	Clear()
}

// Reranker is C6's contract, implemented by internal/reranker.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []ScoredMemory) ([]ScoredMemory, error)
}

// InferenceEngine is C7's contract, implemented by internal/inference.
type InferenceEngine interface {
	// OnWrite runs all applicable on-write strategies for a newly stored
	// memory against the given stores, returning created relationships.
	OnWrite(ctx context.Context, n Memory, vs VectorStore, gs GraphStore) ([]Relationship, error)
	// TrackCoAccess records a search's top results for co-access promotion
	// (strategy 4), returning any newly-created CO_ACTIVATED edges.
	TrackCoAccess(ctx context.Context, ids []string, gs GraphStore) ([]Relationship, error)
}

// Scorer is C8's contract, implemented by internal/scoring.
type Scorer interface {
	BaseImportance(t Type) float64
	Recency(now, lastAccessed time.Time) float64
	Utility(m Memory, normalizedAccessRate float64) float64
	ReinforceOnAccess(m Memory, now time.Time) Memory
	ApplyForgettingCurve(m Memory, now time.Time) Memory
	EmotionalWeight(content string) float64
}

// LifecycleManager is C9's contract, implemented by internal/lifecycle.
type LifecycleManager interface {
	OnFirstRetrieval(m Memory) Memory
	Promote(m Memory) Memory
	Archive(m Memory) Memory
	Restore(m Memory) Memory
}

// SessionTagger is C11's contract as consumed by the collection: assign the
// current session tag for a project, implemented by internal/session.Tracker.
type SessionTagger interface {
	Tag(project string) string
}
