package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"memkernel/internal/embedding"
	"memkernel/internal/telemetry"

	"github.com/google/uuid"
)

// Config tunes the read path; values mirror the defaults in
// internal/kernelconfig.
type Config struct {
	MinScore             float64
	DefaultOverfetch      int
	MinCandidatesForRerank int
	UseQueryUnderstanding bool
	GraphEnabled          bool
}

// DefaultConfig matches spec §4.5/§6's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinScore:               0.3,
		DefaultOverfetch:       3,
		MinCandidatesForRerank: 2,
		UseQueryUnderstanding:  true,
		GraphEnabled:           true,
	}
}

// Collection is the Memory Collection (C5): the orchestrator tying together
// C1-C4 and C6-C9 into the write and read paths of spec §4.5. Grounded on
// the teacher's LocalStore.StoreVectorWithEmbedding (write) and
// VectorRecallSemantic (read) shapes, generalized to the full contract.
type Collection struct {
	embedder  Embedder
	vecStore  VectorStore
	graph     GraphStore // nil when graph_enabled=false
	cache     Cache
	reranker  Reranker
	inference InferenceEngine
	scorer    Scorer
	lifecycle LifecycleManager
	session   SessionTagger // nil disables automatic session tagging

	cfg Config
}

// New builds a Collection from its component dependencies. graph, cache,
// reranker, and session may be nil, each degrading the corresponding feature
// per spec §4.3/§4.4/§4.6/§4.11.
func New(embedder Embedder, vecStore VectorStore, graph GraphStore, cache Cache, reranker Reranker, inference InferenceEngine, scorer Scorer, lifecycle LifecycleManager, session SessionTagger, cfg Config) *Collection {
	return &Collection{
		embedder:  embedder,
		vecStore:  vecStore,
		graph:     graph,
		cache:     cache,
		reranker:  reranker,
		inference: inference,
		scorer:    scorer,
		lifecycle: lifecycle,
		session:   session,
		cfg:       cfg,
	}
}

// Store runs the write path of spec §4.5 steps 1-7.
func (c *Collection) Store(ctx context.Context, m Memory) (string, error) {
	log := telemetry.Get(telemetry.CategoryCollection)

	if err := Validate(m); err != nil {
		return "", err
	}

	dense, sparse, err := c.embedder.Embed(ctx, m.Content)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.LastAccessed = now
	m.AccessCount = 0
	m.Importance = c.scorer.BaseImportance(m.Type)
	m.Strength = 1.0
	if m.QualityScore == 0 {
		m.QualityScore = 0.5
	}
	m.State = StateDraft
	m.DenseVector = dense
	m.SparseVector = sparse
	if c.session != nil {
		m.SessionTag = c.session.Tag(m.Project)
	}

	if err := c.upsertWithRetry(ctx, m); err != nil {
		return "", err
	}

	if c.graph != nil && c.cfg.GraphEnabled {
		if err := c.graph.EnsureNode(ctx, m.ID); err != nil {
			log.Warnw("ensure_node failed, continuing without graph node", "id", m.ID, "err", &GraphUnavailable{Op: "ensure_node", Cause: err})
		}
	}

	if c.inference != nil {
		created, err := c.inference.OnWrite(ctx, m, c.vecStore, c.graphOrNil())
		if err != nil {
			log.Warnw("on-write inference failed, store still succeeds", "id", m.ID, "err", &InferenceError{Strategy: "on-write", Cause: err})
		} else if c.graphOrNil() == nil && len(created) > 0 {
			m.Annotations = append(m.Annotations, created...)
			if err := c.upsertWithRetry(ctx, m); err != nil {
				log.Warnw("persisting inferred annotations failed", "id", m.ID, "err", err)
			}
		}
	}

	return m.ID, nil
}

// BulkStore is a best-effort batch: partial failures are returned per item,
// indexed the same as the input slice.
func (c *Collection) BulkStore(ctx context.Context, ms []Memory) ([]string, []error) {
	ids := make([]string, len(ms))
	errs := make([]error, len(ms))
	for i, m := range ms {
		id, err := c.Store(ctx, m)
		ids[i] = id
		errs[i] = err
	}
	return ids, errs
}

func (c *Collection) graphOrNil() GraphStore {
	if !c.cfg.GraphEnabled {
		return nil
	}
	return c.graph
}

// upsertWithRetry retries StoreUnavailable up to 3 attempts with the
// backoff schedule of spec §7 (0.2s, 0.5s, 1.5s).
func (c *Collection) upsertWithRetry(ctx context.Context, m Memory) error {
	backoffs := []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1500 * time.Millisecond}
	var lastErr error
	for attempt := 0; attempt <= len(backoffs); attempt++ {
		err := c.vecStore.Upsert(ctx, m)
		if err == nil {
			return nil
		}
		var unavailable *StoreUnavailable
		if !errors.As(err, &unavailable) {
			return err
		}
		lastErr = err
		if attempt == len(backoffs) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffs[attempt]):
		}
	}
	return lastErr
}

// SearchOptions parameterizes Search, mirroring spec §4.5/§6.
type SearchOptions struct {
	Filter        Filter
	Limit         int
	UseCache      bool
	UseReranking  bool
	ForceMode     QueryMode // empty means "choose via query understanding"
}

// Search runs the read path of spec §4.5 steps 1-10.
func (c *Collection) Search(ctx context.Context, queryText string, opts SearchOptions) ([]ScoredMemory, SearchMetadata, error) {
	log := telemetry.Get(telemetry.CategoryCollection)
	meta := SearchMetadata{GraphAvailable: c.graph != nil && c.cfg.GraphEnabled}

	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	dense, sparse, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, meta, err
	}

	filterSig := opts.Filter.Signature()

	if opts.UseCache && c.cache != nil {
		if hits, ok := c.cache.Lookup(dense, filterSig); ok {
			meta.CacheHit = true
			return hits, meta, nil
		}
	}

	mode := opts.ForceMode
	if mode == "" {
		mode = c.chooseMode(queryText)
	}
	meta.Mode = string(mode)

	overfetch := c.cfg.DefaultOverfetch
	if overfetch <= 0 {
		overfetch = 3
	}
	fetchLimit := opts.Limit * overfetch
	if fetchLimit < 50 {
		fetchLimit = 50
	}

	candidates, err := c.vecStore.Query(ctx, dense, sparse, opts.Filter, fetchLimit, mode)
	if err != nil {
		return nil, meta, err
	}

	minScore := c.cfg.MinScore
	if minScore <= 0 {
		minScore = 0.3
	}
	var filtered []ScoredMemory
	for _, sm := range candidates {
		if sm.Score >= minScore {
			filtered = append(filtered, sm)
		}
	}
	candidates = filtered

	if opts.UseReranking && len(candidates) >= c.cfg.MinCandidatesForRerank && c.reranker != nil {
		reranked, err := c.reranker.Rerank(ctx, queryText, candidates)
		if err != nil {
			log.Warnw("reranker unavailable, preserving fusion order", "err", &RerankerUnavailable{Cause: err})
		} else {
			candidates = reranked
			meta.Reranked = true
		}
	}

	sortScored(candidates)

	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	ids := make([]string, len(candidates))
	for i, sm := range candidates {
		ids[i] = sm.Memory.ID
	}
	if len(ids) > 0 {
		if err := c.vecStore.Touch(ctx, ids, time.Now().UTC()); err != nil {
			log.Warnw("touch (access bookkeeping) failed", "err", err)
		} else {
			c.advanceLifecycle(ctx, candidates)
		}
	}

	if c.inference != nil && len(ids) > 0 {
		top := ids
		if len(top) > 5 {
			top = top[:5]
		}
		if _, err := c.inference.TrackCoAccess(ctx, top, c.graphOrNil()); err != nil {
			log.Warnw("co-access tracking failed", "err", &InferenceError{Strategy: "co-access", Cause: err})
		}
	}

	if opts.UseCache && c.cache != nil {
		c.cache.Insert(dense, filterSig, candidates)
	}

	return candidates, meta, nil
}

// advanceLifecycle runs C9's first-retrieval and promotion transitions on
// every memory a read just touched, persisting any resulting state change.
// A touched memory's access_count was just incremented by Touch; reflecting
// that here before asking the lifecycle manager to promote keeps the
// promotion floor check (spec §4.9) in sync with what was just persisted.
func (c *Collection) advanceLifecycle(ctx context.Context, candidates []ScoredMemory) {
	log := telemetry.Get(telemetry.CategoryCollection)
	for i, sm := range candidates {
		m := sm.Memory
		m.AccessCount++
		before := m.State
		m = c.lifecycle.OnFirstRetrieval(m)
		m = c.lifecycle.Promote(m)
		if m.State == before {
			continue
		}
		if err := c.upsertWithRetry(ctx, m); err != nil {
			log.Warnw("lifecycle transition persist failed", "id", m.ID, "err", err)
			continue
		}
		candidates[i].Memory.State = m.State
	}
}

// chooseMode implements step 3 of §4.5's read path: exact-token queries
// route to sparse-only, natural language to hybrid.
func (c *Collection) chooseMode(query string) QueryMode {
	if !c.cfg.UseQueryUnderstanding {
		return ModeHybrid
	}
	if embedding.IsExactToken(query) {
		return ModeSparse
	}
	return ModeHybrid
}

// sortScored applies the tie-break order of spec §4.5: score desc, pinned
// first, importance desc, created_at desc, id stable.
func sortScored(s []ScoredMemory) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.Pinned != b.Memory.Pinned {
			return a.Memory.Pinned
		}
		if a.Memory.Importance != b.Memory.Importance {
			return a.Memory.Importance > b.Memory.Importance
		}
		if !a.Memory.CreatedAt.Equal(b.Memory.CreatedAt) {
			return a.Memory.CreatedAt.After(b.Memory.CreatedAt)
		}
		return a.Memory.ID < b.Memory.ID
	})
}

// Get returns a memory by id, or NotFoundError.
func (c *Collection) Get(ctx context.Context, id string) (Memory, error) {
	m, ok, err := c.vecStore.Get(ctx, id)
	if err != nil {
		return Memory{}, err
	}
	if !ok {
		return Memory{}, &NotFoundError{ID: id}
	}
	return m, nil
}

// Mutations lists the fields Update is allowed to change. id, created_at,
// and dense_vector are forbidden (dense_vector changes only via re-embed on
// content change, handled internally).
type Mutations struct {
	Content      *string
	Tags         []string
	Project      *string
	Source       *string
	ErrorMessage *string
	Solution     *string
	Prevention   *string
	Rationale    *string
	Alternatives *string
	Resolved     *bool
	QualityScore *float64
}

// Update applies a partial update to a stored memory. A content change
// triggers re-embedding, replacing dense_vector and sparse_vector.
func (c *Collection) Update(ctx context.Context, id string, mut Mutations) error {
	m, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	contentChanged := mut.Content != nil && *mut.Content != m.Content
	if mut.Content != nil {
		m.Content = *mut.Content
	}
	if mut.Tags != nil {
		m.Tags = mut.Tags
	}
	if mut.Project != nil {
		m.Project = *mut.Project
	}
	if mut.Source != nil {
		m.Source = *mut.Source
	}
	if mut.ErrorMessage != nil {
		m.ErrorMessage = *mut.ErrorMessage
	}
	if mut.Solution != nil {
		m.Solution = *mut.Solution
	}
	if mut.Prevention != nil {
		m.Prevention = *mut.Prevention
	}
	if mut.Rationale != nil {
		m.Rationale = *mut.Rationale
	}
	if mut.Alternatives != nil {
		m.Alternatives = *mut.Alternatives
	}
	if mut.Resolved != nil {
		m.Resolved = *mut.Resolved
	}
	if mut.QualityScore != nil {
		m.QualityScore = Clamp01(*mut.QualityScore)
	}

	if err := Validate(m); err != nil {
		return err
	}

	if contentChanged {
		dense, sparse, err := c.embedder.Embed(ctx, m.Content)
		if err != nil {
			return err
		}
		m.DenseVector = dense
		m.SparseVector = sparse
	}

	return c.upsertWithRetry(ctx, m)
}

// Forget hard-deletes a memory from the vector store and, if present, its
// graph node and incident edges.
func (c *Collection) Forget(ctx context.Context, id string) error {
	if err := c.vecStore.Delete(ctx, id); err != nil {
		return err
	}
	if c.graph != nil && c.cfg.GraphEnabled {
		if err := c.graph.DeleteNode(ctx, id); err != nil {
			telemetry.Get(telemetry.CategoryCollection).Warnw("graph delete_node failed", "id", id, "err", &GraphUnavailable{Op: "delete_node", Cause: err})
		}
	}
	return nil
}

// Pin sets or clears a memory's pinned flag; setting it true twice is a
// no-op on the second call.
func (c *Collection) Pin(ctx context.Context, id string, pinned bool) error {
	m, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Pinned == pinned {
		return nil
	}
	m.Pinned = pinned
	return c.upsertWithRetry(ctx, m)
}

// Archive transitions a memory to the archived lifecycle state.
func (c *Collection) Archive(ctx context.Context, id string) error {
	m, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Pinned {
		return nil
	}
	m = c.lifecycle.Archive(m)
	return c.upsertWithRetry(ctx, m)
}

// Resolve marks an error memory resolved, recording its solution.
func (c *Collection) Resolve(ctx context.Context, id string, solution string) error {
	m, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	m.Resolved = true
	if solution != "" {
		m.Solution = solution
	}
	return c.upsertWithRetry(ctx, m)
}

// Link creates an explicit edge. Idempotent per (src, dst, type).
func (c *Collection) Link(ctx context.Context, srcID, dstID string, relType RelationType, confidence float64) error {
	if c.graph == nil || !c.cfg.GraphEnabled {
		return &GraphUnavailable{Op: "link", Cause: fmt.Errorf("graph store disabled")}
	}
	rel := Relationship{SourceID: srcID, TargetID: dstID, Type: relType, Confidence: confidence, CreatedAt: time.Now().UTC()}
	return c.graph.Link(ctx, rel)
}

// FindRelated returns the graph neighborhood of a memory. When the graph is
// disabled or unreachable, returns an empty slice with GraphAvailable=false
// rather than an error (spec §4.3/§8).
func (c *Collection) FindRelated(ctx context.Context, id string, depth int, types []RelationType) ([]string, SearchMetadata, error) {
	meta := SearchMetadata{GraphAvailable: c.graph != nil && c.cfg.GraphEnabled}
	if !meta.GraphAvailable {
		return nil, meta, nil
	}
	if depth <= 0 || depth > 2 {
		depth = 2
	}
	neighbors, err := c.graph.Neighbors(ctx, id, types, depth)
	if err != nil {
		telemetry.Get(telemetry.CategoryCollection).Warnw("neighbors failed, degrading to empty", "id", id, "err", &GraphUnavailable{Op: "neighbors", Cause: err})
		meta.GraphAvailable = false
		return nil, meta, nil
	}
	return neighbors, meta, nil
}

// Stats reports collection and graph counters for health checks.
type Stats struct {
	GraphAvailable bool
	Graph          GraphStats
}

func (c *Collection) Stats(ctx context.Context) (Stats, error) {
	s := Stats{GraphAvailable: c.graph != nil && c.cfg.GraphEnabled}
	if s.GraphAvailable {
		gs, err := c.graph.Stats(ctx)
		if err != nil {
			telemetry.Get(telemetry.CategoryCollection).Warnw("graph stats failed", "err", &GraphUnavailable{Op: "stats", Cause: err})
			s.GraphAvailable = false
			return s, nil
		}
		s.Graph = gs
	}
	return s, nil
}

// InferenceKind names a group of inference strategies (spec §6
// run_inference). RunInference accepts it but does not consult it.
type InferenceKind string

const (
	InferenceAll           InferenceKind = "all"
	InferenceSemantic      InferenceKind = "semantic"
	InferenceTemporal      InferenceKind = "temporal"
	InferenceCausal        InferenceKind = "causal"
	InferenceErrorSolution InferenceKind = "error-solution"
)

// RunInference is the manual trigger surface for C7. Whatever the kind, it
// re-runs the on-write strategies (temporal, semantic, tag overlap) for the
// memory with the given id; the causal sweep is not run from here. The
// scheduler (C10) runs the semantic and causal sweeps on fixed intervals.
func (c *Collection) RunInference(ctx context.Context, kind InferenceKind, id string) ([]Relationship, error) {
	m, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	created, err := c.inference.OnWrite(ctx, m, c.vecStore, c.graphOrNil())
	if err != nil {
		return created, err
	}
	if c.graphOrNil() == nil && len(created) > 0 {
		m.Annotations = append(m.Annotations, created...)
		if err := c.upsertWithRetry(ctx, m); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Migrate destructively resets the vector collection for a new dense
// dimension. Previous ids are gone after this call; spec §8/S6.
func (c *Collection) Migrate(ctx context.Context, newDim int) error {
	return c.vecStore.RecreateCollection(ctx, newDim)
}
