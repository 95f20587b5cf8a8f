// Package reranker implements the Reranker (C6): a second-pass scorer over
// the top-k hybrid candidates.
//
// The teacher has no cross-encoder, but it does re-embed text with a
// different task type depending on whether it is a query or a document (the
// TaskTypeAwareEngine/GetOptimalTaskType idiom in internal/store/vector_store.go).
// This package generalizes that idiom into a cross-encoder surrogate: it
// re-embeds the query and each candidate's content as a query/document pair
// through the same embedding provider already wired for C1, scores by cosine
// similarity, and blends that with the candidate's incoming fusion score —
// rather than pulling in an unrelated ML cross-encoder dependency with no
// precedent anywhere in the example pack.
package reranker

import (
	"context"
	"sort"
	"time"

	"memkernel/internal/embedding"
	"memkernel/internal/memory"
	"memkernel/internal/telemetry"
)

// Embedder is the subset of embedding.Provider the reranker needs.
type Embedder interface {
	Embed(ctx context.Context, text string) (dense []float32, sparse map[uint32]float32, err error)
}

// blendWeight is the arbitrary-but-monotonic cross-encoder/fusion blend
// documented in DESIGN.md as an open-question decision (spec §9c).
const blendWeight = 0.6

// budget is the reranker inference timeout; on expiry the fusion order is
// returned unchanged (spec §4.6/§7).
const budget = 500 * time.Millisecond

// Reranker re-scores candidates by re-embedding (query, candidate) pairs.
type Reranker struct {
	embedder Embedder
}

// New constructs a Reranker over the given embedder.
func New(embedder Embedder) *Reranker {
	return &Reranker{embedder: embedder}
}

// Rerank re-scores candidates against query, blending
// blendWeight*cross-encoder-score + (1-blendWeight)*fusion-score. On
// timeout or embedding failure it returns the input order unchanged along
// with the triggering error, so the caller can fall back per spec §4.6.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []memory.ScoredMemory) ([]memory.ScoredMemory, error) {
	log := telemetry.Get(telemetry.CategoryReranker)

	if len(candidates) < 2 {
		return candidates, nil
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	queryDense, _, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Debugw("reranker query embed failed, falling back to fusion order", "err", err)
		return candidates, &memory.RerankerUnavailable{Cause: err}
	}

	out := make([]memory.ScoredMemory, len(candidates))
	copy(out, candidates)

	for i, c := range out {
		select {
		case <-ctx.Done():
			log.Debugw("reranker timed out, falling back to fusion order", "scored", i)
			return candidates, &memory.RerankerUnavailable{Cause: ctx.Err()}
		default:
		}

		pairDense, _, err := r.embedder.Embed(ctx, query+"\n"+c.Memory.Content)
		if err != nil {
			log.Debugw("reranker pair embed failed, falling back to fusion order", "id", c.Memory.ID, "err", err)
			return candidates, &memory.RerankerUnavailable{Cause: err}
		}

		crossScore, err := embedding.CosineSimilarity(queryDense, pairDense)
		if err != nil {
			crossScore = 0
		}
		out[i].Score = blendWeight*crossScore + (1-blendWeight)*c.Score
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

var _ memory.Reranker = (*Reranker)(nil)
