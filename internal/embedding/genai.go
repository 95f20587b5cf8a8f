package embedding

import (
	"context"
	"fmt"
	"time"

	"memkernel/internal/telemetry"

	"google.golang.org/genai"
)

// maxBatchSize is GenAI's per-request batch limit.
const maxBatchSize = 100

func int32Ptr(i int32) *int32 { return &i }

// GenAIEngine generates dense embeddings using Google's Gemini API.
// Grounded on the teacher's internal/embedding/genai.go.
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEngine creates a new GenAI embedding engine.
func NewGenAIEngine(apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}

	return &GenAIEngine{client: client, model: model, taskType: taskType}, nil
}

// Embed generates an embedding for a single text using the engine's default task type.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.EmbedWithTask(ctx, text, e.taskType)
}

// EmbedWithTask generates an embedding using an explicit task type, satisfying
// TaskTypeAwareEngine.
func (e *GenAIEngine) EmbedWithTask(ctx context.Context, text string, taskType string) ([]float32, error) {
	log := telemetry.Get(telemetry.CategoryEmbedding)
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	start := time.Now()
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{TaskType: taskType, OutputDimensionality: int32Ptr(3072)})
	if err != nil {
		log.Errorw("genai embed failed", "latency", time.Since(start), "err", err)
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	log.Debugw("genai embed complete", "dims", len(result.Embeddings[0].Values), "latency", time.Since(start))
	return result.Embeddings[0].Values, nil
}

// EmbedBatch generates embeddings for multiple texts, chunking at maxBatchSize.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= maxBatchSize {
		return e.embedBatchChunk(ctx, texts)
	}

	numBatches := (len(texts) + maxBatchSize - 1) / maxBatchSize
	all := make([][]float32, 0, len(texts))
	for i := 0; i < numBatches; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		start := i * maxBatchSize
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.embedBatchChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d failed: %w", i+1, numBatches, err)
		}
		all = append(all, chunk...)
	}
	return all, nil
}

func (e *GenAIEngine) embedBatchChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{OutputDimensionality: int32Ptr(3072)})
	if err != nil {
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions returns gemini-embedding-001's 3072-dimensional output.
func (e *GenAIEngine) Dimensions() int { return 3072 }

// Name returns the engine name.
func (e *GenAIEngine) Name() string { return fmt.Sprintf("genai:%s", e.model) }
