// Package scoring implements Scoring & Decay (C8): importance, recency,
// utility, reinforcement on access, the forgetting curve, and emotional
// weighting.
//
// Grounded on the teacher's internal/store/local_cold.go (MaintenanceConfig's
// access-count/age-gated retention, the shape reused here for the forgetting
// curve) and internal/config/reflection.go (RecencyHalfLifeDays, the same
// exponential-decay idiom generalized to spec §4.8's recency formula).
package scoring

import (
	"math"
	"time"

	"memkernel/internal/memory"
)

// baseImportance is the fixed importance_base(type) table (spec §4.8).
var baseImportance = map[memory.Type]float64{
	memory.TypeError:    0.8,
	memory.TypeDecision: 0.9,
	memory.TypePattern:  0.7,
	memory.TypeDocs:     0.5,
	memory.TypeLearning: 0.6,
	memory.TypeContext:  0.3,
}

// forgettingLambda is the per-type decay constant for the forgetting curve.
// Not specified numerically in the source; decided here (DESIGN.md open
// question) so that longer-lived knowledge (docs, decisions) decays slower
// than transient context.
var forgettingLambda = map[memory.Type]float64{
	memory.TypeError:    0.02,
	memory.TypeDecision: 0.01,
	memory.TypePattern:  0.015,
	memory.TypeDocs:     0.005,
	memory.TypeLearning: 0.015,
	memory.TypeContext:  0.03,
}

const (
	recencyDecayRate         = 0.005
	utilityImportanceWeight  = 0.4
	utilityAccessRateWeight  = 0.35
	utilityRecencyWeight     = 0.25
	utilityHighBucketFloor   = 0.6
	utilityMediumBucketFloor = 0.3
	reinforcementWindow      = 24 * time.Hour
	reinforcementAccessFloor = 5
	reinforcementMaxBoost    = 0.1
	reinforcementPerAccess   = 0.02
	emotionalWeightMaxBoost  = 0.2
)

// Bucket classifies a utility score into spec §4.8's three tiers.
type Bucket string

const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
)

// ClassifyUtility buckets a utility score.
func ClassifyUtility(utility float64) Bucket {
	switch {
	case utility >= utilityHighBucketFloor:
		return BucketHigh
	case utility >= utilityMediumBucketFloor:
		return BucketMedium
	default:
		return BucketLow
	}
}

// Scorer implements memory.Scorer.
type Scorer struct {
	emotion *emotionScanner
}

// New constructs a Scorer with its emotional lexicon loaded.
func New() *Scorer {
	return &Scorer{emotion: newEmotionScanner()}
}

// BaseImportance returns importance_base(type).
func (s *Scorer) BaseImportance(t memory.Type) float64 {
	if v, ok := baseImportance[t]; ok {
		return v
	}
	return 0.5
}

// Recency computes exp(-0.005 * hours_since_access).
func (s *Scorer) Recency(now, lastAccessed time.Time) float64 {
	hours := now.Sub(lastAccessed).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-recencyDecayRate * hours)
}

// Utility computes the composite retrieval-priority score.
func (s *Scorer) Utility(m memory.Memory, normalizedAccessRate float64) float64 {
	recency := s.Recency(time.Now().UTC(), m.LastAccessed)
	u := utilityImportanceWeight*m.Importance +
		utilityAccessRateWeight*normalizedAccessRate +
		utilityRecencyWeight*recency
	return memory.Clamp01(u)
}

// ReinforceOnAccess bumps importance when a memory is accessed again soon
// and frequently, per spec §4.8's reinforcement rule.
func (s *Scorer) ReinforceOnAccess(m memory.Memory, now time.Time) memory.Memory {
	if now.Sub(m.LastAccessed) >= reinforcementWindow {
		return m
	}
	if m.AccessCount <= reinforcementAccessFloor {
		return m
	}
	boost := reinforcementPerAccess * float64(m.AccessCount)
	if boost > reinforcementMaxBoost {
		boost = reinforcementMaxBoost
	}
	m.Importance = memory.Clamp01(m.Importance + boost)
	return m
}

// ApplyForgettingCurve decays strength by exp(-lambda*days_since_access).
// Pinned, resolved, and archived memories are exempt (spec §4.8).
func (s *Scorer) ApplyForgettingCurve(m memory.Memory, now time.Time) memory.Memory {
	if m.Pinned || m.Resolved || m.State == memory.StateArchived {
		return m
	}
	lambda, ok := forgettingLambda[m.Type]
	if !ok {
		lambda = 0.02
	}
	days := now.Sub(m.LastAccessed).Hours() / 24
	if days < 0 {
		days = 0
	}
	m.Strength = m.Strength * math.Exp(-lambda*days)
	return m
}

// EmotionalWeight scans content for emotionally-weighted lexicon hits,
// returning a signed intensity in [-1, 1]. Combining this with a memory's
// type to produce the bounded ±0.2 importance adjustment spec §4.8
// describes is TypeCompatibleBoost's job, kept separate so this method
// stays a pure content → sentiment function per the memory.Scorer contract.
func (s *Scorer) EmotionalWeight(content string) float64 {
	return s.emotion.score(content)
}

// typeCompatiblePairs names the (type, sign) combinations spec §4.8 calls
// out as reinforcing (e.g. an error described in strongly negative terms is
// a more memorable error).
var typeCompatiblePairs = map[memory.Type]float64{
	memory.TypeError:    -1, // negative sentiment on an error is compatible
	memory.TypeDecision:  1, // positive sentiment on a decision is compatible
	memory.TypeLearning: 1,
}

// TypeCompatibleBoost converts a raw EmotionalWeight score into an importance
// boost in [0, 0.2] for m's type (|weight|·0.2), zero when the sentiment sign
// does not match the type's compatible direction.
func TypeCompatibleBoost(t memory.Type, weight float64) float64 {
	compatibleSign, ok := typeCompatiblePairs[t]
	if !ok {
		return 0
	}
	if (weight < 0) != (compatibleSign < 0) {
		return 0
	}
	boost := math.Abs(weight) * emotionalWeightMaxBoost
	if boost > emotionalWeightMaxBoost {
		boost = emotionalWeightMaxBoost
	}
	if boost < -emotionalWeightMaxBoost {
		boost = -emotionalWeightMaxBoost
	}
	return boost
}

var _ memory.Scorer = (*Scorer)(nil)
