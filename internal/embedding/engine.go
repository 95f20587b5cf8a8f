// Package embedding implements the memory kernel's Embedding Provider (C1):
// it produces dense vectors for semantic similarity and sparse lexical
// vectors for keyword matching, for every piece of content that enters or is
// queried against the kernel.
package embedding

import (
	"context"
	"fmt"
	"math"

	"memkernel/internal/telemetry"
)

// DenseEngine generates dense vector embeddings for text.
type DenseEngine interface {
	// Embed generates a dense embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates dense embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings produced.
	Dimensions() int

	// Name returns the engine name (for logging/diagnostics).
	Name() string
}

// HealthChecker is an optional interface for engines that can verify
// availability before a batch operation is attempted.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// TaskTypeAwareEngine is an optional interface for engines (like GenAI) whose
// embedding quality improves when told the intended retrieval task.
type TaskTypeAwareEngine interface {
	EmbedWithTask(ctx context.Context, text string, taskType string) ([]float32, error)
}

// Provider is the full C1 contract: embed(text) -> (dense, sparse).
// It wraps a DenseEngine with deterministic sparse-vector generation so
// callers get both representations from a single call, matching spec §4.1.
type Provider struct {
	dense DenseEngine
	lex   *LexicalEngine
}

// NewProvider builds a Provider from a configured dense engine. The lexical
// (sparse) side is always the same deterministic hashing scheme, since spec
// §4.1 requires determinism for identical inputs within a process lifetime
// regardless of which dense backend is configured.
func NewProvider(dense DenseEngine) *Provider {
	return &Provider{dense: dense, lex: NewLexicalEngine()}
}

// Config selects and configures the dense backend.
type Config struct {
	Provider       string // "ollama" or "genai"
	OllamaEndpoint string
	OllamaModel    string
	GenAIAPIKey    string
	GenAIModel     string
	TaskType       string
}

// DefaultConfig returns sensible defaults, matching the teacher's Ollama-first
// default.
func DefaultConfig() Config {
	return Config{
		Provider:       "ollama",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
		TaskType:       "SEMANTIC_SIMILARITY",
	}
}

// NewEngine builds a DenseEngine from a Config, selecting a backend.
func NewEngine(cfg Config) (DenseEngine, error) {
	log := telemetry.Get(telemetry.CategoryEmbedding)
	log.Infow("creating embedding engine", "provider", cfg.Provider)

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		err := fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
		log.Errorw("unsupported provider", "provider", cfg.Provider)
		return nil, err
	}
}

// Embed produces both the dense and sparse representation of text. An empty
// input is a fatal EmbeddingError per spec §4.1/§7.
func (p *Provider) Embed(ctx context.Context, text string) (dense []float32, sparse map[uint32]float32, err error) {
	log := telemetry.Get(telemetry.CategoryEmbedding)
	if text == "" {
		return nil, nil, &EmbeddingError{Reason: "empty input"}
	}
	dense, err = p.dense.Embed(ctx, text)
	if err != nil {
		log.Errorw("dense embed failed", "err", err)
		return nil, nil, &EmbeddingError{Reason: "dense embed failed", Cause: err}
	}
	sparse = p.lex.Sparse(text)
	return dense, sparse, nil
}

// Dimensions exposes the configured dense engine's dimensionality.
func (p *Provider) Dimensions() int { return p.dense.Dimensions() }

// SetDocumentFrequencyProvider wires a corpus-frequency source into the
// sparse side, forwarding to the underlying LexicalEngine.
func (p *Provider) SetDocumentFrequencyProvider(dfp DocumentFrequencyProvider) {
	p.lex.SetDocumentFrequencyProvider(dfp)
}

// Name exposes the configured dense engine's name.
func (p *Provider) Name() string { return p.dense.Name() }

// EmbeddingError signals a fatal embedding failure (spec §4.1/§7): empty
// input or a model/backend failure. Callers may retry.
type EmbeddingError struct {
	Reason string
	Cause  error
}

func (e *EmbeddingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("embedding: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("embedding: %s", e.Reason)
}

func (e *EmbeddingError) Unwrap() error { return e.Cause }

// CosineSimilarity calculates the cosine similarity between two dense
// vectors. Returns an error if dimensions differ.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
