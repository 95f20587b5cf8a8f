package session

import "sync"

// MetaLearner holds the kernel's self-tuned runtime knobs and the historical
// metric record they were derived from (spec §4.11). The scheduler's
// meta_learning job (§4.10) is the sole writer; readers elsewhere in the
// kernel (cache, inference) take a snapshot via the getters.
type MetaLearner struct {
	mu                 sync.RWMutex
	cacheSimilarity    float64
	semanticFloor      float64
	emotionalThreshold float64

	historyMu sync.Mutex
	history   []MetricRecord
}

const (
	cacheSimilarityMin = 0.80
	cacheSimilarityMax = 0.95
	semanticFloorMin   = 0.60
	semanticFloorMax   = 0.90
	emotionalThreshMin = 0.10
	emotionalThreshMax = 0.90
)

// NewMetaLearner constructs a MetaLearner at the kernel's documented
// defaults.
func NewMetaLearner() *MetaLearner {
	return &MetaLearner{cacheSimilarity: 0.87, semanticFloor: 0.75, emotionalThreshold: 0.3}
}

// Seed overwrites the learner's starting thresholds with kernelconfig's
// boot-time values (spec §6), called once before the scheduler starts so
// the first meta_learning adjustment shifts from the operator's configured
// baseline rather than NewMetaLearner's hardcoded defaults. A non-positive
// argument leaves that threshold at its current value.
func (m *MetaLearner) Seed(cacheSimilarity, semanticFloor, emotionalThreshold float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cacheSimilarity > 0 {
		m.cacheSimilarity = cacheSimilarity
	}
	if semanticFloor > 0 {
		m.semanticFloor = semanticFloor
	}
	if emotionalThreshold > 0 {
		m.emotionalThreshold = emotionalThreshold
	}
}

func (m *MetaLearner) CacheSimilarity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cacheSimilarity
}

func (m *MetaLearner) SemanticFloor() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.semanticFloor
}

func (m *MetaLearner) EmotionalThreshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emotionalThreshold
}

// Adjust shifts each threshold by its delta, clamped to its documented
// bounds (cache_similarity_threshold per spec §6; the other two bounds are
// this implementation's choice, documented in DESIGN.md).
func (m *MetaLearner) Adjust(cacheDelta, semanticDelta, emotionalDelta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheSimilarity = clamp(m.cacheSimilarity+cacheDelta, cacheSimilarityMin, cacheSimilarityMax)
	m.semanticFloor = clamp(m.semanticFloor+semanticDelta, semanticFloorMin, semanticFloorMax)
	m.emotionalThreshold = clamp(m.emotionalThreshold+emotionalDelta, emotionalThreshMin, emotionalThreshMax)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MetricRecord is one historical snapshot written by the meta_learning job.
type MetricRecord struct {
	AvgImportance      float64
	AvgAccessRate      float64
	EmotionalCoverage  float64
	CacheSimilarity    float64
	SemanticFloor      float64
	EmotionalThreshold float64
}

// RecordMetrics appends a snapshot to the append-only history log.
func (m *MetaLearner) RecordMetrics(r MetricRecord) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.history = append(m.history, r)
}

// History returns a defensive copy of every recorded snapshot, oldest
// first.
func (m *MetaLearner) History() []MetricRecord {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	out := make([]MetricRecord, len(m.history))
	copy(out, m.history)
	return out
}
