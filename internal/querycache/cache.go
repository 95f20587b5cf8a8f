// Package querycache implements the Query Cache (C4): an in-memory,
// embedding-similarity-keyed cache of recent search result sets.
//
// Grounded on the teacher's TTL-and-hash-keyed persistence idiom in
// AleutianAI-AleutianFOSS's router_cache.go (corpus hash as key, TTL-bounded
// entries, nil-safe no-op when disabled), adapted to key on cosine
// similarity against stored dense vectors rather than an exact hash, with
// LRU eviction via container/list — the same map-plus-list-node idiom the
// teacher uses for its own in-memory activation tracking in
// internal/store/local_session.go. Protected by a single sync.RWMutex,
// matching the teacher's LocalStore.mu convention.
package querycache

import (
	"container/list"
	"sync"
	"time"

	"memkernel/internal/embedding"
	"memkernel/internal/memory"
)

// Config controls cache admission and eviction policy.
type Config struct {
	SimilarityThreshold float64       // default 0.87
	TTL                 time.Duration // default 24h
	MaxEntries          int           // default 500
}

// DefaultConfig returns the defaults named in spec §4.4.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.87,
		TTL:                 24 * time.Hour,
		MaxEntries:          500,
	}
}

type entry struct {
	dense     []float32
	filterSig string
	results   []memory.ScoredMemory
	storedAt  time.Time
	elem      *list.Element
}

// Cache is an in-memory, thread-safe implementation of memory.Cache. A miss
// never produces wrong answers, only slower ones: Lookup's false branch
// always falls through to a live query.
type Cache struct {
	cfg Config

	mu      sync.RWMutex
	entries []*entry
	lru     *list.List // front = most recently used
	now     func() time.Time
}

// New constructs a Cache with the given config. cfg.SimilarityThreshold,
// cfg.TTL, and cfg.MaxEntries fall back to DefaultConfig's values when zero.
func New(cfg Config) *Cache {
	d := DefaultConfig()
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = d.SimilarityThreshold
	}
	if cfg.TTL == 0 {
		cfg.TTL = d.TTL
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = d.MaxEntries
	}
	return &Cache{cfg: cfg, lru: list.New(), now: time.Now}
}

// Lookup returns the cached result set for the nearest stored key whose
// cosine similarity to dense is >= the configured threshold and whose
// filter signature matches exactly, provided the entry has not expired.
// Cache hits do not update access bookkeeping on the underlying memories
// (spec §4.4: cached answers are telemetry-neutral) — that is the caller's
// responsibility to skip, not this package's.
func (c *Cache) Lookup(dense []float32, filterSig string) ([]memory.ScoredMemory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var best *entry
	var bestSim float64

	for _, e := range c.entries {
		if e.filterSig != filterSig {
			continue
		}
		if now.Sub(e.storedAt) >= c.cfg.TTL {
			continue
		}
		sim, err := embedding.CosineSimilarity(dense, e.dense)
		if err != nil {
			continue
		}
		if sim >= c.cfg.SimilarityThreshold && sim > bestSim {
			best, bestSim = e, sim
		}
	}

	if best == nil {
		return nil, false
	}
	c.lru.MoveToFront(best.elem)
	return best.results, true
}

// Insert stores a new result set, evicting the least-recently-used entry
// once cfg.MaxEntries is exceeded.
func (c *Cache) Insert(dense []float32, filterSig string, results []memory.ScoredMemory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{
		dense:     dense,
		filterSig: filterSig,
		results:   results,
		storedAt:  c.now(),
	}
	e.elem = c.lru.PushFront(e)
	c.entries = append(c.entries, e)

	for len(c.entries) > c.cfg.MaxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		c.removeEntry(oldest.Value.(*entry))
	}
}

func (c *Cache) removeEntry(target *entry) {
	for i, e := range c.entries {
		if e == target {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// SetSimilarityThreshold updates the cache admission threshold at runtime,
// letting MetaLearner's adjusted cache_similarity_threshold (spec §4.11)
// reach the live cache without rebuilding it.
func (c *Cache) SetSimilarityThreshold(threshold float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.SimilarityThreshold = threshold
}

// Clear empties the cache. Used by migrate and by tests.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.lru.Init()
}

var _ memory.Cache = (*Cache)(nil)
