package reranker

import (
	"context"
	"errors"
	"testing"
	"time"

	"memkernel/internal/memory"

	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	delay   time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, map[uint32]float32, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil, nil
	}
	return []float32{0, 0, 0}, nil, nil
}

func TestRerank_FewerThanTwoCandidates_ReturnsUnchanged(t *testing.T) {
	r := New(&fakeEmbedder{})
	candidates := []memory.ScoredMemory{{Memory: memory.Memory{ID: "m1"}, Score: 0.5}}

	out, err := r.Rerank(context.Background(), "query", candidates)
	require.NoError(t, err)
	require.Equal(t, candidates, out)
}

func TestRerank_ReordersBySemanticBlend(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"query":              {1, 0},
		"query\nfar match":   {0, 1},
		"query\nclose match": {1, 0},
	}}
	r := New(emb)

	candidates := []memory.ScoredMemory{
		{Memory: memory.Memory{ID: "far", Content: "far match"}, Score: 0.9},
		{Memory: memory.Memory{ID: "close", Content: "close match"}, Score: 0.1},
	}

	out, err := r.Rerank(context.Background(), "query", candidates)
	require.NoError(t, err)
	require.Equal(t, "close", out[0].Memory.ID)
}

func TestRerank_EmbedFailure_FallsBackToFusionOrder(t *testing.T) {
	r := New(&fakeEmbedder{err: errors.New("engine down")})
	candidates := []memory.ScoredMemory{
		{Memory: memory.Memory{ID: "m1"}, Score: 0.9},
		{Memory: memory.Memory{ID: "m2"}, Score: 0.1},
	}

	out, err := r.Rerank(context.Background(), "query", candidates)
	require.Error(t, err)
	var unavailable *memory.RerankerUnavailable
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, candidates, out)
}

func TestRerank_Timeout_FallsBackToFusionOrder(t *testing.T) {
	r := New(&fakeEmbedder{delay: time.Second})
	candidates := []memory.ScoredMemory{
		{Memory: memory.Memory{ID: "m1"}, Score: 0.9},
		{Memory: memory.Memory{ID: "m2"}, Score: 0.1},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	out, err := r.Rerank(ctx, "query", candidates)
	require.Error(t, err)
	require.Equal(t, candidates, out)
}
