package scheduler

import (
	"context"
	"math"
	"time"

	"memkernel/internal/embedding"
	"memkernel/internal/inference"
	"memkernel/internal/lifecycle"
	"memkernel/internal/memory"
	"memkernel/internal/scoring"
	"memkernel/internal/session"
)

const pageSize = 100

// Deps bundles the collaborators the nine spec §4.10 jobs operate over.
// GraphStore may be nil (graph disabled); the jobs degrade by skipping
// graph writes, matching Collection's own nil-GraphStore convention. Cache
// may also be nil (query caching disabled).
type Deps struct {
	VectorStore memory.VectorStore
	GraphStore  memory.GraphStore
	Embedder    memory.Embedder
	Cache       memory.Cache
	Inference   *inference.Engine
	Scorer      *scoring.Scorer
	Lifecycle   *lifecycle.Manager
	MetaLearner *session.MetaLearner
}

// orphanEdgeSweeper is implemented by graph stores that can repair C3
// against deletions C2 never reported back (spec §5's "scheduled sweep
// repairs"). memory.GraphStore itself has no such method since most of the
// kernel never needs it; this is the embedding package's
// HealthChecker/TaskTypeAwareEngine optional-capability pattern, reused here.
type orphanEdgeSweeper interface {
	SweepOrphanEdges(ctx context.Context) (int64, error)
}

// similarityThresholdSetter is implemented by caches whose admission
// threshold can be changed after construction, letting MetaLearningJob feed
// its adjusted cache_similarity_threshold (spec §4.11) back into the live
// cache.
type similarityThresholdSetter interface {
	SetSimilarityThreshold(threshold float64)
}

// persistAnnotations appends rels to their source memory's Annotations
// field and upserts every affected memory found in page. Used when the
// graph store is disabled so C7's inferred edges still reach C2 as spec
// §4.7 requires ("otherwise stored as annotations in C2 payload") instead
// of being silently dropped.
func persistAnnotations(ctx context.Context, vs memory.VectorStore, page []memory.Memory, rels []memory.Relationship) int {
	if len(rels) == 0 {
		return 0
	}
	byID := make(map[string]memory.Memory, len(page))
	for _, m := range page {
		byID[m.ID] = m
	}
	dirty := make(map[string]memory.Memory)
	for _, rel := range rels {
		m, ok := dirty[rel.SourceID]
		if !ok {
			m, ok = byID[rel.SourceID]
			if !ok {
				continue
			}
		}
		m.Annotations = append(m.Annotations, rel)
		dirty[rel.SourceID] = m
	}
	failed := 0
	for _, m := range dirty {
		if err := vs.Upsert(ctx, m); err != nil {
			failed++
		}
	}
	return failed
}

// scrollAll pages through every memory matching filter, 100 at a time,
// invoking fn per page. A job never holds a long-running exclusive lock
// because Scroll pages independently of any in-process mutex.
func scrollAll(ctx context.Context, vs memory.VectorStore, filter memory.Filter, fn func([]memory.Memory) (processed, failed int)) (Result, error) {
	var total Result
	offset := 0
	for {
		page, err := vs.Scroll(ctx, filter, pageSize, offset)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}
		p, f := fn(page)
		total.Processed += p
		total.Failed += f
		if len(page) < pageSize {
			return total, nil
		}
		offset += pageSize
	}
}

// RelationshipInferenceJob runs C7's semantic and causal sweeps over every
// memory (spec §4.10 row 1), then sweeps C3 for edges orphaned by deletions
// (spec §5) when the graph store supports it.
func RelationshipInferenceJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		result, err := scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			failed := 0
			semantic, err := d.Inference.RunSemanticSweep(ctx, d.VectorStore, d.GraphStore, page)
			if err != nil {
				failed += len(page)
			}
			causal, err := d.Inference.RunCausalSweep(ctx, d.VectorStore, d.GraphStore, d.Embedder, page)
			if err != nil {
				failed += len(page)
			}
			if d.GraphStore == nil {
				failed += persistAnnotations(ctx, d.VectorStore, page, append(semantic, causal...))
			}
			return len(page), failed
		})
		if err != nil {
			return result, err
		}

		if sweeper, ok := d.GraphStore.(orphanEdgeSweeper); ok {
			if _, sweepErr := sweeper.SweepOrphanEdges(ctx); sweepErr != nil {
				result.Failed++
			}
		}
		return result, nil
	}
}

// strengthEpsilon is the decay floor below which an unpinned, non-archived,
// unresolved memory becomes eligible for hard deletion (spec.md:75).
const strengthEpsilon = 0.05

// decayHorizon is how old a memory must be before strength decay alone can
// destroy it. Not numerically specified in the source; set to 90 days
// (DESIGN.md open question).
const decayHorizon = 90 * 24 * time.Hour

// AdaptiveImportanceJob recomputes importance from access stats, applying
// the reinforcement-on-access rule and the forgetting-curve strength decay
// (spec §4.10 row 2, §4.8), then destroys anything decay has hollowed out
// past spec.md:75's destroy condition.
func AdaptiveImportanceJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		return scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			failed := 0
			now := time.Now().UTC()
			for _, m := range page {
				reinforced := d.Scorer.ReinforceOnAccess(m, now)
				decayed := d.Scorer.ApplyForgettingCurve(reinforced, now)

				if isDecayDestroyable(decayed, now) {
					if err := destroyDecayed(ctx, d, decayed.ID); err != nil {
						failed++
					}
					continue
				}

				if decayed.Importance == m.Importance && decayed.Strength == m.Strength {
					continue
				}
				if err := d.VectorStore.Upsert(ctx, decayed); err != nil {
					failed++
				}
			}
			return len(page), failed
		})
	}
}

// isDecayDestroyable reports whether m meets spec.md:75's destroy-by-decay
// condition: unpinned, non-archived, unresolved, decayed below
// strengthEpsilon, and older than decayHorizon.
func isDecayDestroyable(m memory.Memory, now time.Time) bool {
	if m.Pinned || m.Resolved || m.State == memory.StateArchived {
		return false
	}
	if m.Strength >= strengthEpsilon {
		return false
	}
	return now.Sub(m.CreatedAt) >= decayHorizon
}

// destroyDecayed hard-deletes a memory whose strength has decayed past the
// destroy floor, mirroring Collection.Forget. Jobs have no *Collection of
// their own to call through, so the vector/graph cleanup is repeated here.
func destroyDecayed(ctx context.Context, d Deps, id string) error {
	if err := d.VectorStore.Delete(ctx, id); err != nil {
		return err
	}
	if d.GraphStore != nil {
		if err := d.GraphStore.DeleteNode(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// retentionWindow is how long a memory must sit at low utility before
// utility_archival archives it. Not numerically specified in the source;
// set to 30 days (DESIGN.md open question).
const retentionWindow = 30 * 24 * time.Hour

// UtilityArchivalJob transitions low-utility, unpinned memories to archived
// (spec §4.10 row 3).
func UtilityArchivalJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		return scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			failed := 0
			now := time.Now().UTC()
			for _, m := range page {
				if m.Pinned || m.State == memory.StateArchived {
					continue
				}
				utility := d.Scorer.Utility(m, normalizedAccessRate(m))
				if scoring.ClassifyUtility(utility) != scoring.BucketLow {
					continue
				}
				if now.Sub(m.LastAccessed) < retentionWindow {
					continue
				}
				archived := d.Lifecycle.Archive(m)
				if err := d.VectorStore.Upsert(ctx, archived); err != nil {
					failed++
				}
			}
			return len(page), failed
		})
	}
}

// consolidationSimilarityFloor is the near-duplicate threshold (spec §4.10
// row 4).
const consolidationSimilarityFloor = 0.95

// ConsolidationJob merges near-duplicate memories of the same type within
// each page, linking the newer SUPERSEDES the older and archiving the
// older (spec §4.10 row 4, S5 scenario).
func ConsolidationJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		return scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			failed := 0
			for i := 0; i < len(page); i++ {
				for j := i + 1; j < len(page); j++ {
					a, b := page[i], page[j]
					if a.Type != b.Type {
						continue
					}
					sim, err := embedding.CosineSimilarity(a.DenseVector, b.DenseVector)
					if err != nil || sim < consolidationSimilarityFloor {
						continue
					}
					older, newer := a, b
					if newer.CreatedAt.Before(older.CreatedAt) {
						older, newer = newer, older
					}
					rel := memory.Relationship{SourceID: newer.ID, TargetID: older.ID, Type: memory.RelSupersedes, Confidence: 0.9, CreatedAt: time.Now().UTC()}
					if d.GraphStore != nil {
						if err := d.GraphStore.Link(ctx, rel); err != nil {
							failed++
							continue
						}
					}
					if !older.Pinned {
						archived := d.Lifecycle.Archive(older)
						if err := d.VectorStore.Upsert(ctx, archived); err != nil {
							failed++
						}
					}
				}
			}
			return len(page), failed
		})
	}
}

// reviewInterval is how long a memory can go unaccessed before
// spaced_repetition selects it for reinforcement.
const reviewInterval = 7 * 24 * time.Hour

// SpacedRepetitionJob reinforces memories whose review interval has
// elapsed (spec §4.10 row 5).
func SpacedRepetitionJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		return scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			failed := 0
			now := time.Now().UTC()
			for _, m := range page {
				if now.Sub(m.LastAccessed) < reviewInterval {
					continue
				}
				reinforced := d.Scorer.ReinforceOnAccess(m, m.LastAccessed.Add(time.Hour))
				reinforced.LastAccessed = now
				if err := d.VectorStore.Upsert(ctx, reinforced); err != nil {
					failed++
				}
			}
			return len(page), failed
		})
	}
}

// replayImportanceFloor selects "high-importance" memories for replay.
const replayImportanceFloor = 0.7

// MemoryReplayJob samples high-importance memories and re-runs C7 on each
// (spec §4.10 row 6).
func MemoryReplayJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		return scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			failed := 0
			var sample []memory.Memory
			for _, m := range page {
				if m.Importance >= replayImportanceFloor {
					sample = append(sample, m)
				}
			}
			created, err := d.Inference.RunSemanticSweep(ctx, d.VectorStore, d.GraphStore, sample)
			if err != nil {
				failed += len(sample)
			}
			if d.GraphStore == nil {
				failed += persistAnnotations(ctx, d.VectorStore, sample, created)
			}
			return len(page), failed
		})
	}
}

// EmotionalAnalysisJob refreshes emotional_weight for every memory (spec
// §4.10 row 7).
func EmotionalAnalysisJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		return scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			failed := 0
			for _, m := range page {
				weight := d.Scorer.EmotionalWeight(m.Content)
				if weight == m.EmotionalWeight {
					continue
				}
				m.EmotionalWeight = weight
				if math.Abs(weight) >= d.MetaLearner.EmotionalThreshold() {
					m.Importance = memory.Clamp01(m.Importance + scoring.TypeCompatibleBoost(m.Type, weight))
				}
				if err := d.VectorStore.Upsert(ctx, m); err != nil {
					failed++
				}
			}
			return len(page), failed
		})
	}
}

// interferenceSimilarityBand is the range in which two same-type memories
// are considered contradicting rather than duplicate (duplicates are
// consolidation's job, at a higher floor) or unrelated.
var interferenceSimilarityBand = [2]float64{0.5, consolidationSimilarityFloor}

// InterferenceDetectionJob finds contradicting pairs: same type/project,
// moderately similar content, opposite emotional polarity. The newer or
// higher-importance one SUPERSEDES the other, which is archived unless
// pinned (spec §4.10 row 8). A zero emotional weight has no polarity. The
// source does not define "contradicting" precisely; this is the
// implementer's interpretation, recorded in DESIGN.md.
func InterferenceDetectionJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		return scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			failed := 0
			for i := 0; i < len(page); i++ {
				for j := i + 1; j < len(page); j++ {
					a, b := page[i], page[j]
					if a.Type != b.Type || a.Project != b.Project {
						continue
					}
					sim, err := embedding.CosineSimilarity(a.DenseVector, b.DenseVector)
					if err != nil || sim < interferenceSimilarityBand[0] || sim >= interferenceSimilarityBand[1] {
						continue
					}
					aWeight := d.Scorer.EmotionalWeight(a.Content)
					bWeight := d.Scorer.EmotionalWeight(b.Content)
					if aWeight == 0 || bWeight == 0 || (aWeight < 0) == (bWeight < 0) {
						continue
					}

					winner, loser := a, b
					if b.Importance > a.Importance || (b.Importance == a.Importance && b.CreatedAt.After(a.CreatedAt)) {
						winner, loser = b, a
					}
					rel := memory.Relationship{SourceID: winner.ID, TargetID: loser.ID, Type: memory.RelSupersedes, Confidence: 0.75, CreatedAt: time.Now().UTC()}
					if d.GraphStore != nil {
						if err := d.GraphStore.Link(ctx, rel); err != nil {
							failed++
							continue
						}
					}
					if !loser.Pinned {
						archived := d.Lifecycle.Archive(loser)
						if err := d.VectorStore.Upsert(ctx, archived); err != nil {
							failed++
						}
					}
				}
			}
			return len(page), failed
		})
	}
}

// MetaLearningJob tracks average importance, access rate, and emotional
// coverage, proposing new clamped threshold values and writing a
// historical metric record (spec §4.10 row 9, §4.11).
func MetaLearningJob(d Deps) JobFunc {
	return func(ctx context.Context) (Result, error) {
		var sumImportance, sumAccessRate float64
		var withEmotion, total int

		result, err := scrollAll(ctx, d.VectorStore, memory.Filter{}, func(page []memory.Memory) (int, int) {
			for _, m := range page {
				sumImportance += m.Importance
				sumAccessRate += normalizedAccessRate(m)
				if m.EmotionalWeight != 0 {
					withEmotion++
				}
			}
			total += len(page)
			return len(page), 0
		})
		if err != nil || total == 0 {
			return result, err
		}

		avgImportance := sumImportance / float64(total)
		avgAccessRate := sumAccessRate / float64(total)
		emotionalCoverage := float64(withEmotion) / float64(total)

		// Shift toward higher selectivity when the corpus already runs
		// importance-rich (fewer low-value hits to catch with a looser
		// cache/semantic floor), and loosen when it runs importance-poor.
		delta := (avgImportance - 0.5) * 0.05
		d.MetaLearner.Adjust(delta, delta, delta)

		if setter, ok := d.Cache.(similarityThresholdSetter); ok {
			setter.SetSimilarityThreshold(d.MetaLearner.CacheSimilarity())
		}
		if d.Inference != nil {
			d.Inference.SetFloors(d.MetaLearner.SemanticFloor(), 0)
		}

		d.MetaLearner.RecordMetrics(session.MetricRecord{
			AvgImportance:      avgImportance,
			AvgAccessRate:      avgAccessRate,
			EmotionalCoverage:  emotionalCoverage,
			CacheSimilarity:    d.MetaLearner.CacheSimilarity(),
			SemanticFloor:      d.MetaLearner.SemanticFloor(),
			EmotionalThreshold: d.MetaLearner.EmotionalThreshold(),
		})
		return result, nil
	}
}

// normalizedAccessRate maps AccessCount onto [0, 1] for the utility
// formula. The source does not specify the normalization window; capping
// at 50 accesses is this implementation's choice (DESIGN.md open question).
func normalizedAccessRate(m memory.Memory) float64 {
	const accessCountCap = 50.0
	if m.AccessCount <= 0 {
		return 0
	}
	rate := float64(m.AccessCount) / accessCountCap
	if rate > 1 {
		rate = 1
	}
	return rate
}
