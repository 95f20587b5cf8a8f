package inference

import (
	"context"
	"sync"
	"testing"
	"time"

	"memkernel/internal/memory"

	"github.com/stretchr/testify/require"
)

// fakeVectorStore is a minimal in-memory memory.VectorStore sufficient to
// exercise the inference passes without a real SQLite file.
type fakeVectorStore struct {
	mu   sync.Mutex
	byID map[string]memory.Memory
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{byID: make(map[string]memory.Memory)}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, m memory.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[m.ID] = m
	return nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeVectorStore) Get(ctx context.Context, id string) (memory.Memory, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	return m, ok, nil
}

func (f *fakeVectorStore) Scroll(ctx context.Context, filter memory.Filter, limit, offset int) ([]memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memory.Memory
	for _, m := range f.byID {
		if filter.Project != "" && m.Project != filter.Project {
			continue
		}
		if filter.CreatedAfter != nil && m.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		if filter.CreatedBefore != nil && m.CreatedAt.After(*filter.CreatedBefore) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeVectorStore) Query(ctx context.Context, dense []float32, sparse map[uint32]float32, filter memory.Filter, limit int, mode memory.QueryMode) ([]memory.ScoredMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memory.ScoredMemory
	for _, m := range f.byID {
		sim, err := cosine(dense, m.DenseVector)
		if err != nil {
			continue
		}
		out = append(out, memory.ScoredMemory{Memory: m, Score: sim})
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeVectorStore) RecreateCollection(ctx context.Context, dim int) error { return nil }

func (f *fakeVectorStore) Touch(ctx context.Context, ids []string, at time.Time) error { return nil }

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, nil
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (sqrtApprox(na) * sqrtApprox(nb)), nil
}

func sqrtApprox(x float64) float64 {
	z := x
	for i := 0; i < 30; i++ {
		if z == 0 {
			break
		}
		z -= (z*z - x) / (2 * z)
	}
	return z
}

type fakeGraphStore struct {
	mu    sync.Mutex
	nodes map[string]bool
	edges []memory.Relationship
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{nodes: make(map[string]bool)}
}

func (g *fakeGraphStore) EnsureNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = true
	return nil
}

func (g *fakeGraphStore) Link(ctx context.Context, rel memory.Relationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.edges {
		if e.SourceID == rel.SourceID && e.TargetID == rel.TargetID && e.Type == rel.Type {
			return nil
		}
	}
	g.edges = append(g.edges, rel)
	return nil
}

func (g *fakeGraphStore) Neighbors(ctx context.Context, id string, types []memory.RelationType, depth int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, e := range g.edges {
		if e.SourceID == id {
			out = append(out, e.TargetID)
		} else if e.TargetID == id {
			out = append(out, e.SourceID)
		}
	}
	return out, nil
}

func (g *fakeGraphStore) Stats(ctx context.Context) (memory.GraphStats, error) {
	return memory.GraphStats{}, nil
}

func (g *fakeGraphStore) DeleteNode(ctx context.Context, id string) error { return nil }

func TestOnWrite_ErrorToFixLinking(t *testing.T) {
	vs := newFakeVectorStore()
	gs := newFakeGraphStore()
	eng := New()
	ctx := context.Background()

	now := time.Now().UTC()
	e1 := memory.Memory{
		ID: "E1", Type: memory.TypeError, Project: "api",
		Content: "PostgreSQL connection timeout after 30s during pool exhaustion",
		Tags:    []string{"postgres", "pool"}, CreatedAt: now,
		DenseVector: []float32{1, 0, 0}, Resolved: false,
	}
	require.NoError(t, vs.Upsert(ctx, e1))

	l1 := memory.Memory{
		ID: "L1", Type: memory.TypeLearning, Project: "api",
		Content: "Increased pg_pool max_conn from 20 to 100, timeout set to 10s, resolved connection errors",
		Tags:    []string{"postgres", "pool"}, CreatedAt: now.Add(30 * time.Minute),
		DenseVector: []float32{0.99, 0.01, 0},
	}
	require.NoError(t, vs.Upsert(ctx, l1))

	rels, err := eng.OnWrite(ctx, l1, vs, gs)
	require.NoError(t, err)

	var foundFix bool
	for _, r := range rels {
		if r.Type == memory.RelFixes && r.SourceID == "L1" && r.TargetID == "E1" {
			foundFix = true
			require.InDelta(t, 0.9, r.Confidence, 1e-9)
		}
	}
	require.True(t, foundFix, "expected L1 FIXES E1 edge, got %+v", rels)

	updated, ok, err := vs.Get(ctx, "E1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, updated.Resolved)
}

func TestOnWrite_FollowsWhenNoFixMatch(t *testing.T) {
	vs := newFakeVectorStore()
	gs := newFakeGraphStore()
	eng := New()
	ctx := context.Background()

	now := time.Now().UTC()
	prior := memory.Memory{ID: "P1", Type: memory.TypeContext, Project: "api", Content: "context note", CreatedAt: now, DenseVector: []float32{0, 1, 0}}
	require.NoError(t, vs.Upsert(ctx, prior))

	n := memory.Memory{ID: "N1", Type: memory.TypeContext, Project: "api", Content: "another note", CreatedAt: now.Add(time.Minute), DenseVector: []float32{0, 0, 1}}
	require.NoError(t, vs.Upsert(ctx, n))

	rels, err := eng.OnWrite(ctx, n, vs, gs)
	require.NoError(t, err)

	var foundFollows bool
	for _, r := range rels {
		if r.Type == memory.RelFollows && r.SourceID == "N1" && r.TargetID == "P1" {
			foundFollows = true
		}
	}
	require.True(t, foundFollows)
}

func TestOnWrite_TagOverlapSkippedWhenAlreadyLinked(t *testing.T) {
	vs := newFakeVectorStore()
	gs := newFakeGraphStore()
	eng := New()
	ctx := context.Background()

	now := time.Now().UTC()
	m := memory.Memory{ID: "M1", Type: memory.TypeError, Project: "x", Content: "errors are errors", Tags: []string{"a", "b"}, CreatedAt: now, DenseVector: []float32{1, 0}}
	require.NoError(t, vs.Upsert(ctx, m))

	n := memory.Memory{ID: "N1", Type: memory.TypeError, Project: "x", Content: "errors again", Tags: []string{"a", "b"}, CreatedAt: now.Add(time.Minute), DenseVector: []float32{0.99, 0.1}}

	rels, err := eng.OnWrite(ctx, n, vs, gs)
	require.NoError(t, err)

	var relatedCount int
	for _, r := range rels {
		if r.Type == memory.RelRelated {
			relatedCount++
		}
	}
	require.Equal(t, 0, relatedCount, "SIMILAR_TO should have already been created by the semantic pass, preempting tag overlap")
}

func TestTrackCoAccess_PromotesAfterFiveOccurrences(t *testing.T) {
	eng := New()
	gs := newFakeGraphStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := eng.TrackCoAccess(ctx, []string{"A", "B", "other"}, gs)
		require.NoError(t, err)
	}
	require.Empty(t, gs.edges)

	rels, err := eng.TrackCoAccess(ctx, []string{"A", "B"}, gs)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, memory.RelCoActivated, rels[0].Type)
}

func TestJaccard_PartialOverlap(t *testing.T) {
	require.InDelta(t, 1.0/3.0, jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
}

func TestMatchCombination_FirstRowWins(t *testing.T) {
	edgeType, confidence, ok := matchCombination(memory.TypeLearning, memory.TypeError, 0.9, defaultSemanticFloor, defaultFixesFloor)
	require.True(t, ok)
	require.Equal(t, memory.RelFixes, edgeType)
	require.Equal(t, 0.9, confidence)
}

func TestMatchCombination_NoRowBelowAnyFloor(t *testing.T) {
	_, _, ok := matchCombination(memory.TypeContext, memory.TypeContext, 0.5, defaultSemanticFloor, defaultFixesFloor)
	require.False(t, ok)
}

func TestMatchCombination_LiveFloorsOverrideTableDefaults(t *testing.T) {
	// 0.8 is below both a raised live fixesFloor (0.95) and the default, so
	// the learning/error pair falls through to the any/any RELATED row at
	// 0.80; once the live fixesFloor is lowered to 0.75 it matches FIXES.
	edgeType, _, ok := matchCombination(memory.TypeLearning, memory.TypeError, 0.8, defaultSemanticFloor, 0.95)
	require.True(t, ok)
	require.Equal(t, memory.RelRelated, edgeType, "similarity below the raised fixesFloor must not match FIXES")

	edgeType, _, ok = matchCombination(memory.TypeLearning, memory.TypeError, 0.8, defaultSemanticFloor, 0.75)
	require.True(t, ok)
	require.Equal(t, memory.RelFixes, edgeType)
}

func TestExtractCausalClause_FindsCuePhrase(t *testing.T) {
	clause, ok := extractCausalClause("The outage was caused by a stale DNS cache entry")
	require.True(t, ok)
	require.Equal(t, "a stale DNS cache entry", clause)
}

func TestExtractCausalClause_NoMatch(t *testing.T) {
	_, ok := extractCausalClause("nothing interesting here")
	require.False(t, ok)
}
