package vectorstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"memkernel/internal/embedding"
	"memkernel/internal/memory"
)

const selectColumns = `SELECT id, type, content, tags, project, source, error_message, solution,
	prevention, rationale, alternatives, created_at, last_accessed, access_count,
	importance, strength, quality_score, emotional_weight, resolved, pinned, state,
	session_tag, dense, sparse, annotations FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (memory.Memory, error) {
	var m memory.Memory
	var typ, state, createdAt, lastAccessed, tagsJSON, sparseJSON, annotationsJSON string
	var resolved, pinned int
	var dense []byte

	err := row.Scan(
		&m.ID, &typ, &m.Content, &tagsJSON, &m.Project, &m.Source,
		&m.ErrorMessage, &m.Solution, &m.Prevention, &m.Rationale, &m.Alternatives,
		&createdAt, &lastAccessed, &m.AccessCount,
		&m.Importance, &m.Strength, &m.QualityScore, &m.EmotionalWeight,
		&resolved, &pinned, &state, &m.SessionTag, &dense, &sparseJSON, &annotationsJSON,
	)
	if err != nil {
		return memory.Memory{}, err
	}

	m.Type = memory.Type(typ)
	m.State = memory.State(state)
	m.Resolved = resolved != 0
	m.Pinned = pinned != 0
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.LastAccessed, _ = time.Parse(time.RFC3339Nano, lastAccessed)
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	var sparse map[uint32]float32
	_ = json.Unmarshal([]byte(sparseJSON), &sparse)
	m.SparseVector = sparse
	m.DenseVector = decodeFloat32Slice(dense)
	_ = json.Unmarshal([]byte(annotationsJSON), &m.Annotations)

	return m, nil
}

// buildFilterSQL translates a memory.Filter into a WHERE clause and args,
// matching the conjunctive filter shape of spec §6.
func buildFilterSQL(f memory.Filter) (string, []any) {
	var clauses []string
	var args []any

	if f.Type != nil {
		clauses = append(clauses, "type = ?")
		args = append(args, string(*f.Type))
	}
	if f.Project != "" {
		clauses = append(clauses, "project = ?")
		args = append(args, f.Project)
	}
	if len(f.Tags) > 0 {
		var tagClauses []string
		for _, t := range f.Tags {
			tagClauses = append(tagClauses, "tags LIKE ?")
			args = append(args, `%"`+t+`"%`)
		}
		clauses = append(clauses, "("+strings.Join(tagClauses, " OR ")+")")
	}
	if f.CreatedAfter != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.CreatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if f.CreatedBefore != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.CreatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if f.Pinned != nil {
		clauses = append(clauses, "pinned = ?")
		args = append(args, boolToInt(*f.Pinned))
	}
	if f.Resolved != nil {
		clauses = append(clauses, "resolved = ?")
		args = append(args, boolToInt(*f.Resolved))
	}
	if f.MinImportance != nil {
		clauses = append(clauses, "importance >= ?")
		args = append(args, *f.MinImportance)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Scroll returns payloads matching filter, paginated. Used by scheduler jobs
// and by manual inspection.
func (a *SQLiteAdapter) Scroll(ctx context.Context, filter memory.Filter, limit, offset int) ([]memory.Memory, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	where, args := buildFilterSQL(filter)
	query := selectColumns + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &memory.StoreUnavailable{Op: "scroll", Cause: err}
	}
	defer rows.Close()

	var out []memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, &memory.StoreUnavailable{Op: "scroll", Cause: err}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Query answers dense-only, sparse-only, or fused hybrid k-NN, per spec §4.2.
// Dense scoring is brute-force cosine in Go over the filtered candidate set
// (the teacher's own vectorRecallBruteForce fallback path, adopted here as
// the primary path — see DESIGN.md). Sparse scoring is a dot product over
// term-hash weight maps. Hybrid fusion is reciprocal-rank fusion, k=60, ties
// broken by dense score.
func (a *SQLiteAdapter) Query(ctx context.Context, dense []float32, sparse map[uint32]float32, filter memory.Filter, limit int, mode memory.QueryMode) ([]memory.ScoredMemory, error) {
	if a.dim != 0 && len(dense) != 0 && len(dense) != a.dim {
		return nil, &memory.DimensionMismatch{Expected: a.dim, Got: len(dense)}
	}

	a.mu.RLock()
	where, args := buildFilterSQL(filter)
	query := selectColumns + where
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		a.mu.RUnlock()
		return nil, &memory.StoreUnavailable{Op: "query", Cause: err}
	}
	var candidates []memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			rows.Close()
			a.mu.RUnlock()
			return nil, &memory.StoreUnavailable{Op: "query", Cause: err}
		}
		candidates = append(candidates, m)
	}
	rows.Close()
	a.mu.RUnlock()

	switch mode {
	case memory.ModeDense:
		return topK(denseRanked(dense, candidates), limit), nil
	case memory.ModeSparse:
		return topK(sparseRanked(sparse, candidates), limit), nil
	default:
		denseList := denseRanked(dense, candidates)
		sparseList := sparseRanked(sparse, candidates)
		return topK(reciprocalRankFusion(denseList, sparseList), limit), nil
	}
}

const rrfK = 60.0

func denseRanked(query []float32, candidates []memory.Memory) []memory.ScoredMemory {
	if len(query) == 0 {
		return nil
	}
	out := make([]memory.ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		if len(m.DenseVector) == 0 {
			continue
		}
		sim, err := embedding.CosineSimilarity(query, m.DenseVector)
		if err != nil {
			continue
		}
		out = append(out, memory.ScoredMemory{Memory: m, Score: sim})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func sparseRanked(query map[uint32]float32, candidates []memory.Memory) []memory.ScoredMemory {
	if len(query) == 0 {
		return nil
	}
	out := make([]memory.ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		var dot float64
		for term, qw := range query {
			if dw, ok := m.SparseVector[term]; ok {
				dot += float64(qw) * float64(dw)
			}
		}
		if dot > 0 {
			out = append(out, memory.ScoredMemory{Memory: m, Score: dot})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// reciprocalRankFusion merges two ranked lists via RRF with constant k≈60,
// breaking ties by dense score (spec §4.2).
func reciprocalRankFusion(dense, sparse []memory.ScoredMemory) []memory.ScoredMemory {
	type acc struct {
		m         memory.Memory
		rrf       float64
		denseScore float64
	}
	byID := make(map[string]*acc)

	for rank, sm := range dense {
		a, ok := byID[sm.Memory.ID]
		if !ok {
			a = &acc{m: sm.Memory}
			byID[sm.Memory.ID] = a
		}
		a.rrf += 1.0 / (rrfK + float64(rank+1))
		a.denseScore = sm.Score
	}
	for rank, sm := range sparse {
		a, ok := byID[sm.Memory.ID]
		if !ok {
			a = &acc{m: sm.Memory}
			byID[sm.Memory.ID] = a
		}
		a.rrf += 1.0 / (rrfK + float64(rank+1))
	}

	out := make([]memory.ScoredMemory, 0, len(byID))
	for _, a := range byID {
		out = append(out, memory.ScoredMemory{Memory: a.m, Score: a.rrf})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return byID[out[i].Memory.ID].denseScore > byID[out[j].Memory.ID].denseScore
	})
	return out
}

func topK(s []memory.ScoredMemory, k int) []memory.ScoredMemory {
	if k <= 0 || k >= len(s) {
		return s
	}
	return s[:k]
}
