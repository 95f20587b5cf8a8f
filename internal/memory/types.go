// Package memory implements the Memory Collection (C5): the orchestration
// core that ties together embedding, storage, graph linking, inference,
// scoring, lifecycle, and caching into the write and read paths.
package memory

import (
	"strconv"
	"time"
)

// Type is the category of a Memory. Certain categories carry additional
// required fields, enforced by Validate.
type Type string

const (
	TypeError    Type = "error"
	TypeDecision Type = "decision"
	TypePattern  Type = "pattern"
	TypeDocs     Type = "docs"
	TypeLearning Type = "learning"
	TypeContext  Type = "context"
)

// State is a Memory's position in the lifecycle state machine (C9).
type State string

const (
	StateDraft    State = "draft"
	StateEpisodic State = "episodic"
	StateSemantic State = "semantic"
	StateArchived State = "archived"
)

// RelationType names the kind of edge between two memories.
type RelationType string

const (
	RelFixes        RelationType = "FIXES"
	RelCauses       RelationType = "CAUSES"
	RelSimilarTo    RelationType = "SIMILAR_TO"
	RelRelated      RelationType = "RELATED"
	RelSupersedes   RelationType = "SUPERSEDES"
	RelFollows      RelationType = "FOLLOWS"
	RelSupports     RelationType = "SUPPORTS"
	RelCoActivated  RelationType = "CO_ACTIVATED"
	RelBuildsOn     RelationType = "BUILDS_ON"
)

// Memory is the primary entity of the kernel: an atomic note plus its
// vectors, scores, and lifecycle state.
type Memory struct {
	ID     string `json:"id"`
	Type   Type   `json:"type"`
	Content string `json:"content"`
	Tags    []string `json:"tags"`
	Project string   `json:"project,omitempty"`
	Source  string   `json:"source,omitempty"`

	// Type-conditioned fields.
	ErrorMessage string `json:"error_message,omitempty"`
	Solution     string `json:"solution,omitempty"`
	Prevention   string `json:"prevention,omitempty"`
	Rationale    string `json:"rationale,omitempty"`
	Alternatives string `json:"alternatives,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`

	Importance      float64 `json:"importance"`
	Strength        float64 `json:"strength"`
	QualityScore    float64 `json:"quality_score"`
	EmotionalWeight float64 `json:"emotional_weight"`

	Resolved bool  `json:"resolved"`
	Pinned   bool  `json:"pinned"`
	State    State `json:"state"`

	DenseVector  []float32          `json:"-"`
	SparseVector map[uint32]float32 `json:"-"`

	SessionTag string `json:"session_tag,omitempty"`

	// Annotations holds edges C7 inferred for this memory while the graph
	// store was disabled: "all edges go to C3 if available; otherwise
	// stored as annotations in C2 payload" (spec §4.7).
	Annotations []Relationship `json:"annotations,omitempty"`
}

// Clamp01 clamps a float into [0, 1], the range required of Importance,
// Strength, and QualityScore (spec §3 invariants).
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Relationship is a typed, confidence-scored edge between two memories.
type Relationship struct {
	SourceID   string       `json:"source_id"`
	TargetID   string       `json:"target_id"`
	Type       RelationType `json:"type"`
	Confidence float64      `json:"confidence"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ScoredMemory pairs a Memory with a retrieval score, the unit returned by
// Search and by vector-store queries.
type ScoredMemory struct {
	Memory Memory  `json:"memory"`
	Score  float64 `json:"score"`
}

// Filter is the conjunctive filter shape accepted by Search and scroll
// operations (spec §6).
type Filter struct {
	Type         *Type
	Project      string
	Tags         []string // any-of
	CreatedAfter *time.Time
	CreatedBefore *time.Time
	Pinned       *bool
	Resolved     *bool
	MinImportance *float64
}

// Signature returns a stable string encoding of the filter, used as the
// exact-match component of the query cache key (spec §4.4).
func (f Filter) Signature() string {
	sig := ""
	if f.Type != nil {
		sig += "type=" + string(*f.Type) + ";"
	}
	if f.Project != "" {
		sig += "project=" + f.Project + ";"
	}
	if len(f.Tags) > 0 {
		sig += "tags="
		for _, t := range f.Tags {
			sig += t + ","
		}
		sig += ";"
	}
	if f.CreatedAfter != nil {
		sig += "after=" + f.CreatedAfter.UTC().Format(time.RFC3339) + ";"
	}
	if f.CreatedBefore != nil {
		sig += "before=" + f.CreatedBefore.UTC().Format(time.RFC3339) + ";"
	}
	if f.Pinned != nil {
		sig += "pinned=" + boolStr(*f.Pinned) + ";"
	}
	if f.Resolved != nil {
		sig += "resolved=" + boolStr(*f.Resolved) + ";"
	}
	if f.MinImportance != nil {
		sig += "min_importance=" + floatStr(*f.MinImportance) + ";"
	}
	return sig
}

func boolStr(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

func floatStr(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// SearchMetadata carries advisory degradation flags alongside search
// results, per spec §7.
type SearchMetadata struct {
	CacheHit      bool
	Reranked      bool
	GraphAvailable bool
	Mode          string // "dense", "sparse", or "hybrid"
}
