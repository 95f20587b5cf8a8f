package inference

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"memkernel/internal/embedding"
	"memkernel/internal/memory"
	"memkernel/internal/telemetry"
)

const (
	temporalWindow          = 2 * time.Hour
	temporalSimilarityFloor = 0.85
	semanticK               = 10
	tagOverlapFloor         = 0.5
	tagOverlapConfidence    = 0.5
	followsConfidence       = 0.6
	causalSimilarityFloor   = 0.8
	causalConfidence        = 0.7
	coAccessThreshold       = 5
	coAccessConfidence      = 0.7

	// defaultSemanticFloor and defaultFixesFloor seed combinationTable's
	// generic RELATED row and its two FIXES rows (kernelconfig.InferenceConfig's
	// semantic_floor/fixes_floor, spec §6) before SetFloors is ever called.
	defaultSemanticFloor = 0.80
	defaultFixesFloor    = 0.85
)

// Engine implements memory.InferenceEngine. It is safe for concurrent use;
// the co-access multiset is protected by its own mutex, mirroring the
// teacher's single-lock-per-subsystem convention (internal/store's
// LocalStore.mu). The combination-table floors are protected separately so
// SetFloors can be called from the scheduler's meta_learning job without
// contending with every write's co-access bookkeeping.
type Engine struct {
	mu       sync.Mutex
	coAccess map[string]int

	floorMu       sync.RWMutex
	semanticFloor float64
	fixesFloor    float64
}

// New constructs an Engine with an empty co-access tracker and the
// combination table's default floors. The tracker is process-local and is
// allowed to be lost on restart (spec §4.7 strategy 4).
func New() *Engine {
	return &Engine{coAccess: make(map[string]int), semanticFloor: defaultSemanticFloor, fixesFloor: defaultFixesFloor}
}

// SetFloors updates the live similarity floors strategy 2's combination
// table matches against. Passing a non-positive value leaves that floor
// unchanged, so callers can adjust just one (MetaLearner only ever shifts
// semantic_floor, never fixes_floor; spec §4.11).
func (e *Engine) SetFloors(semanticFloor, fixesFloor float64) {
	e.floorMu.Lock()
	defer e.floorMu.Unlock()
	if semanticFloor > 0 {
		e.semanticFloor = semanticFloor
	}
	if fixesFloor > 0 {
		e.fixesFloor = fixesFloor
	}
}

func (e *Engine) floors() (semanticFloor, fixesFloor float64) {
	e.floorMu.RLock()
	defer e.floorMu.RUnlock()
	return e.semanticFloor, e.fixesFloor
}

// OnWrite runs the three on-write strategies (temporal, semantic, tag
// overlap) for a newly stored memory n, in the order spec §4.7 lists them.
func (e *Engine) OnWrite(ctx context.Context, n memory.Memory, vs memory.VectorStore, gs memory.GraphStore) ([]memory.Relationship, error) {
	log := telemetry.Get(telemetry.CategoryInference)
	var created []memory.Relationship
	linkedTargets := make(map[string]bool)

	link := func(rel memory.Relationship) {
		if gs != nil {
			if err := gs.Link(ctx, rel); err != nil {
				log.Debugw("graph link failed", "err", err)
				return
			}
		}
		created = append(created, rel)
		linkedTargets[rel.TargetID] = true
	}

	if err := e.temporalPass(ctx, n, vs, link); err != nil {
		log.Debugw("temporal pass failed", "err", err)
	}

	candidates, err := e.semanticPass(ctx, n, vs, link)
	if err != nil {
		log.Debugw("semantic pass failed", "err", err)
	}

	e.tagOverlapPass(n, candidates, linkedTargets, link)

	return created, nil
}

type linkFunc func(memory.Relationship)

// temporalPass implements spec §4.7 strategy 1.
func (e *Engine) temporalPass(ctx context.Context, n memory.Memory, vs memory.VectorStore, link linkFunc) error {
	after := n.CreatedAt.Add(-temporalWindow)
	before := n.CreatedAt.Add(temporalWindow)
	filter := memory.Filter{Project: n.Project, CreatedAfter: &after, CreatedBefore: &before}

	neighbors, err := vs.Scroll(ctx, filter, 100, 0)
	if err != nil {
		return err
	}

	var window []memory.Memory
	for _, m := range neighbors {
		if m.ID == n.ID {
			continue
		}
		window = append(window, m)
	}
	if len(window) == 0 {
		return nil
	}

	if n.Type == memory.TypeLearning || n.Type == memory.TypeDecision {
		var best *memory.Memory
		var bestSim float64
		for i := range window {
			m := window[i]
			if m.Type != memory.TypeError || m.Resolved {
				continue
			}
			sim, err := embedding.CosineSimilarity(n.DenseVector, m.DenseVector)
			if err != nil {
				continue
			}
			if sim >= temporalSimilarityFloor && sim > bestSim {
				best, bestSim = &window[i], sim
			}
		}
		if best != nil {
			link(memory.Relationship{SourceID: n.ID, TargetID: best.ID, Type: memory.RelFixes, Confidence: 0.9, CreatedAt: n.CreatedAt})
			best.Resolved = true
			_ = vs.Upsert(ctx, *best)
			return nil
		}
	}

	sort.Slice(window, func(i, j int) bool { return window[i].CreatedAt.After(window[j].CreatedAt) })
	link(memory.Relationship{SourceID: n.ID, TargetID: window[0].ID, Type: memory.RelFollows, Confidence: followsConfidence, CreatedAt: n.CreatedAt})
	return nil
}

// semanticPass implements spec §4.7 strategy 2, returning the k-NN
// candidate list so tagOverlapPass can reuse it.
func (e *Engine) semanticPass(ctx context.Context, n memory.Memory, vs memory.VectorStore, link linkFunc) ([]memory.ScoredMemory, error) {
	if len(n.DenseVector) == 0 {
		return nil, nil
	}
	results, err := vs.Query(ctx, n.DenseVector, nil, memory.Filter{}, semanticK+1, memory.ModeDense)
	if err != nil {
		return nil, err
	}

	semanticFloor, fixesFloor := e.floors()
	var candidates []memory.ScoredMemory
	for _, r := range results {
		if r.Memory.ID == n.ID {
			continue
		}
		candidates = append(candidates, r)
		if edgeType, confidence, ok := matchCombination(n.Type, r.Memory.Type, r.Score, semanticFloor, fixesFloor); ok {
			link(memory.Relationship{SourceID: n.ID, TargetID: r.Memory.ID, Type: edgeType, Confidence: confidence, CreatedAt: n.CreatedAt})
		}
	}
	return candidates, nil
}

// RunSemanticSweep re-runs the semantic k-NN pass (strategy 2) for each
// memory in page, for the scheduler's relationship_inference job. Relies on
// Link's idempotency to make repeated sweeps safe.
func (e *Engine) RunSemanticSweep(ctx context.Context, vs memory.VectorStore, gs memory.GraphStore, page []memory.Memory) ([]memory.Relationship, error) {
	var created []memory.Relationship
	for _, n := range page {
		link := func(rel memory.Relationship) {
			if gs != nil {
				if err := gs.Link(ctx, rel); err != nil {
					return
				}
			}
			created = append(created, rel)
		}
		if _, err := e.semanticPass(ctx, n, vs, link); err != nil {
			continue
		}
	}
	return created, nil
}

// tagOverlapPass implements spec §4.7 strategy 3: only fires for a
// candidate that received no semantic or temporal edge this write.
func (e *Engine) tagOverlapPass(n memory.Memory, candidates []memory.ScoredMemory, linkedTargets map[string]bool, link linkFunc) {
	for _, c := range candidates {
		if linkedTargets[c.Memory.ID] {
			continue
		}
		if jaccard(n.Tags, c.Memory.Tags) >= tagOverlapFloor {
			link(memory.Relationship{SourceID: n.ID, TargetID: c.Memory.ID, Type: memory.RelRelated, Confidence: tagOverlapConfidence, CreatedAt: n.CreatedAt})
		}
	}
}

// TrackCoAccess implements spec §4.7 strategy 4: every unordered pair among
// a search's top results increments a shared counter; reaching
// coAccessThreshold creates a CO_ACTIVATED edge and resets that pair.
func (e *Engine) TrackCoAccess(ctx context.Context, ids []string, gs memory.GraphStore) ([]memory.Relationship, error) {
	if len(ids) < 2 {
		return nil, nil
	}

	e.mu.Lock()
	var toLink []memory.Relationship
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			key := pairKey(ids[i], ids[j])
			e.coAccess[key]++
			if e.coAccess[key] >= coAccessThreshold {
				toLink = append(toLink, memory.Relationship{SourceID: ids[i], TargetID: ids[j], Type: memory.RelCoActivated, Confidence: coAccessConfidence})
				e.coAccess[key] = 0
			}
		}
	}
	e.mu.Unlock()

	if gs == nil {
		return nil, nil
	}
	var created []memory.Relationship
	for _, rel := range toLink {
		if rel.CreatedAt.IsZero() {
			rel.CreatedAt = time.Now().UTC()
		}
		if err := gs.Link(ctx, rel); err == nil {
			created = append(created, rel)
		}
	}
	return created, nil
}

func pairKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}

// RunCausalSweep implements spec §4.7 strategy 5: a scheduled scan over a
// page of memories for causal cue phrases, searching the clause that
// follows the cue phrase against the vector store and linking on a strong
// match. Invoked by internal/scheduler's relationship_inference job.
func (e *Engine) RunCausalSweep(ctx context.Context, vs memory.VectorStore, gs memory.GraphStore, embedder memory.Embedder, page []memory.Memory) ([]memory.Relationship, error) {
	var created []memory.Relationship
	for _, m := range page {
		clause, ok := extractCausalClause(m.Content)
		if !ok {
			continue
		}
		dense, _, err := embedder.Embed(ctx, clause)
		if err != nil {
			continue
		}
		results, err := vs.Query(ctx, dense, nil, memory.Filter{}, 5, memory.ModeDense)
		if err != nil {
			continue
		}
		for _, r := range results {
			if r.Memory.ID == m.ID || r.Score < causalSimilarityFloor {
				continue
			}
			rel := memory.Relationship{SourceID: m.ID, TargetID: r.Memory.ID, Type: memory.RelCauses, Confidence: causalConfidence, CreatedAt: time.Now().UTC()}
			if gs != nil {
				if err := gs.Link(ctx, rel); err != nil {
					continue
				}
			}
			created = append(created, rel)
			break
		}
	}
	return created, nil
}

// extractCausalClause returns the text following the first cue phrase
// found in content.
func extractCausalClause(content string) (string, bool) {
	lower := strings.ToLower(content)
	for _, phrase := range cueCausalPhrases {
		if idx := strings.Index(lower, phrase); idx >= 0 {
			clause := strings.TrimSpace(content[idx+len(phrase):])
			if clause == "" {
				continue
			}
			return clause, true
		}
	}
	return "", false
}

var _ memory.InferenceEngine = (*Engine)(nil)
