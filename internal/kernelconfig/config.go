// Package kernelconfig holds the runtime configuration recognized by the
// memory kernel (spec §6), loaded from YAML with environment overrides,
// following the teacher's one-struct-per-concern convention.
package kernelconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EmbeddingConfig configures the embedding provider (C1).
type EmbeddingConfig struct {
	Provider       string `yaml:"provider" json:"provider"` // "ollama" or "genai"
	OllamaEndpoint string `yaml:"ollama_endpoint" json:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model" json:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key" json:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model" json:"genai_model"`
	TaskType       string `yaml:"task_type" json:"task_type"`
	DenseDim       int    `yaml:"dense_dim" json:"dense_dim"`
}

// CacheConfig configures the query cache (C4).
type CacheConfig struct {
	SimilarityThreshold float64 `yaml:"cache_similarity_threshold" json:"cache_similarity_threshold"`
	TTLSeconds          int     `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	MaxEntries          int     `yaml:"max_cache_entries" json:"max_cache_entries"`
}

// RerankingConfig configures the reranker (C6).
type RerankingConfig struct {
	Enabled bool `yaml:"reranking_enabled" json:"reranking_enabled"`
}

// InferenceConfig configures the relationship inference engine (C7).
type InferenceConfig struct {
	CoAccessThreshold int     `yaml:"co_access_threshold" json:"co_access_threshold"`
	SemanticFloor     float64 `yaml:"semantic_floor" json:"semantic_floor"`
	FixesFloor        float64 `yaml:"fixes_floor" json:"fixes_floor"`
}

// SchedulerConfig configures background job intervals (C10).
type SchedulerConfig struct {
	Enabled       bool           `yaml:"scheduler_enabled" json:"scheduler_enabled"`
	IntervalsSecs map[string]int `yaml:"job_intervals_seconds" json:"job_intervals_seconds"`
}

// Config is the full kernel configuration.
type Config struct {
	Embedding          EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Cache              CacheConfig     `yaml:"cache" json:"cache"`
	Reranking          RerankingConfig `yaml:"reranking" json:"reranking"`
	Inference          InferenceConfig `yaml:"inference" json:"inference"`
	Scheduler          SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	UseQueryUnderstanding bool         `yaml:"use_query_understanding" json:"use_query_understanding"`
	GraphEnabled       bool            `yaml:"graph_enabled" json:"graph_enabled"`
	DatabasePath       string          `yaml:"database_path" json:"database_path"`
	EmotionalThreshold float64         `yaml:"emotional_threshold" json:"emotional_threshold"`
}

// Default returns the kernel's default configuration, mirroring the
// numeric defaults stated throughout spec.md.
func Default() Config {
	return Config{
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
			DenseDim:       768,
		},
		Cache: CacheConfig{
			SimilarityThreshold: 0.87,
			TTLSeconds:          24 * 3600,
			MaxEntries:          2000,
		},
		Reranking: RerankingConfig{Enabled: true},
		Inference: InferenceConfig{
			CoAccessThreshold: 5,
			SemanticFloor:     0.75,
			FixesFloor:        0.85,
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			IntervalsSecs: map[string]int{
				"relationship_inference": 24 * 3600,
				"adaptive_importance":    24 * 3600,
				"utility_archival":       24 * 3600,
				"consolidation":          24 * 3600,
				"spaced_repetition":      6 * 3600,
				"memory_replay":          12 * 3600,
				"emotional_analysis":     24 * 3600,
				"interference_detection": 168 * 3600,
				"meta_learning":          168 * 3600,
			},
		},
		UseQueryUnderstanding: true,
		GraphEnabled:          true,
		DatabasePath:          ".memkernel/memory.db",
		EmotionalThreshold:    0.3,
	}
}

// Load reads YAML configuration from path, falling back to defaults for any
// zero-valued field, then applies environment overrides (MEMKERNEL_<PATH>).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnvOverrides(cfg), nil
			}
			return cfg, fmt.Errorf("kernelconfig: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("kernelconfig: parse %s: %w", path, err)
		}
	}
	return applyEnvOverrides(cfg), nil
}

// applyEnvOverrides mirrors the teacher's env_override_test.go convention:
// MEMKERNEL_<SECTION>_<FIELD> style environment variables override YAML.
func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("MEMKERNEL_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("MEMKERNEL_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("MEMKERNEL_CACHE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cache.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("MEMKERNEL_GRAPH_ENABLED"); v != "" {
		cfg.GraphEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	return cfg
}

// Validate clamps tunables into the ranges spec §6 requires and returns an
// error if a value cannot be clamped into a sane range.
func (c *Config) Validate() error {
	if c.Cache.SimilarityThreshold < 0.80 || c.Cache.SimilarityThreshold > 0.95 {
		c.Cache.SimilarityThreshold = clamp(c.Cache.SimilarityThreshold, 0.80, 0.95)
	}
	if c.Embedding.DenseDim <= 0 {
		return fmt.Errorf("kernelconfig: dense_dim must be positive, got %d", c.Embedding.DenseDim)
	}
	if c.Inference.SemanticFloor < 0 || c.Inference.SemanticFloor > 1 {
		return fmt.Errorf("kernelconfig: semantic_floor must be in [0,1], got %f", c.Inference.SemanticFloor)
	}
	return nil
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
