package graphstore

import (
	"context"
	"path/filepath"
	"testing"

	"memkernel/internal/memory"

	"github.com/stretchr/testify/require"
)

func openTestGraph(t *testing.T) *SQLiteAdapter {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLiteAdapter_Link_IsIdempotentPerTriple(t *testing.T) {
	a := openTestGraph(t)
	ctx := context.Background()

	require.NoError(t, a.EnsureNode(ctx, "m1"))
	require.NoError(t, a.EnsureNode(ctx, "m2"))

	rel := memory.Relationship{SourceID: "m1", TargetID: "m2", Type: memory.RelFixes, Confidence: 0.9}
	require.NoError(t, a.Link(ctx, rel))
	require.NoError(t, a.Link(ctx, rel))

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.EdgeCountByType[memory.RelFixes])
}

func TestSQLiteAdapter_Neighbors_IsDirectionAgnostic(t *testing.T) {
	a := openTestGraph(t)
	ctx := context.Background()

	require.NoError(t, a.EnsureNode(ctx, "m1"))
	require.NoError(t, a.EnsureNode(ctx, "m2"))
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "m2", TargetID: "m1", Type: memory.RelRelated, Confidence: 0.5}))

	neighbors, err := a.Neighbors(ctx, "m1", nil, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"m2"}, neighbors)
}

func TestSQLiteAdapter_Neighbors_DepthTwoReachesTransitive(t *testing.T) {
	a := openTestGraph(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, a.EnsureNode(ctx, id))
	}
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "a", TargetID: "b", Type: memory.RelRelated, Confidence: 0.5}))
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "b", TargetID: "c", Type: memory.RelRelated, Confidence: 0.5}))

	depth1, err := a.Neighbors(ctx, "a", nil, 1)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b"}, depth1)

	depth2, err := a.Neighbors(ctx, "a", nil, 2)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b", "c"}, depth2)
}

func TestSQLiteAdapter_Neighbors_FiltersByType(t *testing.T) {
	a := openTestGraph(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, a.EnsureNode(ctx, id))
	}
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "a", TargetID: "b", Type: memory.RelFixes, Confidence: 0.9}))
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "a", TargetID: "c", Type: memory.RelRelated, Confidence: 0.5}))

	neighbors, err := a.Neighbors(ctx, "a", []memory.RelationType{memory.RelFixes}, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, neighbors)
}

func TestSQLiteAdapter_DeleteNode_RemovesIncidentEdges(t *testing.T) {
	a := openTestGraph(t)
	ctx := context.Background()

	require.NoError(t, a.EnsureNode(ctx, "m1"))
	require.NoError(t, a.EnsureNode(ctx, "m2"))
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "m1", TargetID: "m2", Type: memory.RelRelated, Confidence: 0.5}))

	require.NoError(t, a.DeleteNode(ctx, "m1"))

	neighbors, err := a.Neighbors(ctx, "m2", nil, 1)
	require.NoError(t, err)
	require.Empty(t, neighbors)

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.NodeCount)
}

func TestSQLiteAdapter_Stats_CountsNodesAndEdgeTypes(t *testing.T) {
	a := openTestGraph(t)
	ctx := context.Background()

	require.NoError(t, a.EnsureNode(ctx, "m1"))
	require.NoError(t, a.EnsureNode(ctx, "m2"))
	require.NoError(t, a.EnsureNode(ctx, "m3"))
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "m1", TargetID: "m2", Type: memory.RelFixes, Confidence: 0.9}))
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "m2", TargetID: "m3", Type: memory.RelFixes, Confidence: 0.8}))
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "m1", TargetID: "m3", Type: memory.RelRelated, Confidence: 0.5}))

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.NodeCount)
	require.Equal(t, 2, stats.EdgeCountByType[memory.RelFixes])
	require.Equal(t, 1, stats.EdgeCountByType[memory.RelRelated])
}

func TestSQLiteAdapter_SweepOrphanEdges_RemovesDanglingEdges(t *testing.T) {
	a := openTestGraph(t)
	ctx := context.Background()

	require.NoError(t, a.EnsureNode(ctx, "m1"))
	require.NoError(t, a.EnsureNode(ctx, "m2"))
	require.NoError(t, a.Link(ctx, memory.Relationship{SourceID: "m1", TargetID: "m2", Type: memory.RelRelated, Confidence: 0.5}))

	_, err := a.db.ExecContext(ctx, `DELETE FROM graph_nodes WHERE id = ?`, "m2")
	require.NoError(t, err)

	removed, err := a.SweepOrphanEdges(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}
