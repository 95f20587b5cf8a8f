package vectorstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"memkernel/internal/memory"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteAdapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernel.db")
	a, err := Open(path, 4)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleMemory(id string, dense []float32) memory.Memory {
	now := time.Now().UTC()
	return memory.Memory{
		ID:           id,
		Type:         memory.TypeContext,
		Content:      "some long enough content to pass validation checks",
		Tags:         []string{"x", "y"},
		CreatedAt:    now,
		LastAccessed: now,
		Importance:   0.5,
		Strength:     1.0,
		State:        memory.StateDraft,
		DenseVector:  dense,
		SparseVector: map[uint32]float32{1: 0.5, 2: 0.2},
	}
}

func TestSQLiteAdapter_UpsertGetRoundTrip(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	m := sampleMemory("m1", []float32{1, 0, 0, 0})
	require.NoError(t, a.Upsert(ctx, m))

	got, ok, err := a.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.Content, got.Content)
	require.Equal(t, m.Tags, got.Tags)
	require.Equal(t, m.DenseVector, got.DenseVector)
}

func TestSQLiteAdapter_Upsert_IsIdempotentOnSameID(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	m := sampleMemory("m1", []float32{1, 0, 0, 0})
	require.NoError(t, a.Upsert(ctx, m))
	m.Content = "updated content that is still long enough to pass validation"
	require.NoError(t, a.Upsert(ctx, m))

	got, ok, err := a.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.Content, got.Content)
}

func TestSQLiteAdapter_DeleteThenGetNotFound(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, a.Upsert(ctx, sampleMemory("m1", []float32{1, 0, 0, 0})))
	require.NoError(t, a.Delete(ctx, "m1"))

	_, ok, err := a.Get(ctx, "m1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteAdapter_Upsert_DimensionMismatch(t *testing.T) {
	a := openTestStore(t)
	err := a.Upsert(context.Background(), sampleMemory("m1", []float32{1, 0, 0}))
	require.Error(t, err)

	var dm *memory.DimensionMismatch
	require.ErrorAs(t, err, &dm)
}

func TestSQLiteAdapter_Query_DenseOrdersByCosine(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, a.Upsert(ctx, sampleMemory("close", []float32{1, 0, 0, 0})))
	require.NoError(t, a.Upsert(ctx, sampleMemory("far", []float32{0, 1, 0, 0})))

	results, err := a.Query(ctx, []float32{1, 0, 0, 0}, nil, memory.Filter{}, 10, memory.ModeDense)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "close", results[0].Memory.ID)
}

func TestSQLiteAdapter_Query_HybridFusesLists(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	m1 := sampleMemory("m1", []float32{1, 0, 0, 0})
	m1.SparseVector = map[uint32]float32{10: 1.0}
	m2 := sampleMemory("m2", []float32{0, 1, 0, 0})
	m2.SparseVector = map[uint32]float32{10: 1.0}
	require.NoError(t, a.Upsert(ctx, m1))
	require.NoError(t, a.Upsert(ctx, m2))

	results, err := a.Query(ctx, []float32{1, 0, 0, 0}, map[uint32]float32{10: 1.0}, memory.Filter{}, 10, memory.ModeHybrid)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// m1 ranks first on both dense and sparse lists.
	require.Equal(t, "m1", results[0].Memory.ID)
}

func TestSQLiteAdapter_Scroll_FiltersByProject(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	m1 := sampleMemory("m1", []float32{1, 0, 0, 0})
	m1.Project = "api"
	m2 := sampleMemory("m2", []float32{0, 1, 0, 0})
	m2.Project = "web"
	require.NoError(t, a.Upsert(ctx, m1))
	require.NoError(t, a.Upsert(ctx, m2))

	results, err := a.Scroll(ctx, memory.Filter{Project: "api"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "m1", results[0].ID)
}

func TestSQLiteAdapter_Touch_IncrementsAccessCount(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, a.Upsert(ctx, sampleMemory("m1", []float32{1, 0, 0, 0})))
	require.NoError(t, a.Touch(ctx, []string{"m1"}, time.Now().UTC()))

	got, _, err := a.Get(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, 1, got.AccessCount)
}

func TestSQLiteAdapter_RecreateCollection_ClearsAll(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, a.Upsert(ctx, sampleMemory("m1", []float32{1, 0, 0, 0})))
	require.NoError(t, a.RecreateCollection(ctx, 8))

	_, ok, err := a.Get(ctx, "m1")
	require.NoError(t, err)
	require.False(t, ok)

	// New dimension is now enforced.
	err = a.Upsert(ctx, sampleMemory("m2", []float32{1, 0, 0, 0}))
	require.Error(t, err)
}

func TestSQLiteAdapter_DocumentFrequency(t *testing.T) {
	a := openTestStore(t)
	ctx := context.Background()

	m1 := sampleMemory("m1", []float32{1, 0, 0, 0})
	m1.SparseVector = map[uint32]float32{7: 1.0}
	m2 := sampleMemory("m2", []float32{0, 1, 0, 0})
	m2.SparseVector = map[uint32]float32{8: 1.0}
	require.NoError(t, a.Upsert(ctx, m1))
	require.NoError(t, a.Upsert(ctx, m2))

	df, total := a.DocumentFrequency(7)
	require.Equal(t, 2, total)
	require.Equal(t, 1, df)
}
