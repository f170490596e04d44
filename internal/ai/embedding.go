// Package ai holds the external collaborators the grading engine depends
// on: the sentence-embedding similarity service and the OCR service. Both
// are consumed through small interfaces so tests can swap in deterministic
// fakes.
package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// EmbeddingClient computes a semantic similarity in [0, 1] between two
// texts. Implementations must be deterministic for identical inputs so
// grading stays reproducible.
type EmbeddingClient interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// OpenAIEmbeddingClient computes similarity as the cosine of sentence
// embeddings from an OpenAI-compatible embeddings endpoint.
type OpenAIEmbeddingClient struct {
	api     *openai.Client
	model   openai.EmbeddingModel
	timeout time.Duration
}

func NewOpenAIEmbeddingClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIEmbeddingClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbeddingClient{
		api:     openai.NewClientWithConfig(cfg),
		model:   openai.EmbeddingModel(model),
		timeout: timeout,
	}
}

func (c *OpenAIEmbeddingClient) Similarity(ctx context.Context, a, b string) (float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{a, b},
		Model: c.model,
	})
	if err != nil {
		return 0, fmt.Errorf("embedding API call: %w", err)
	}
	if len(resp.Data) < 2 {
		return 0, errors.New("embedding API returned fewer than 2 vectors")
	}

	sim, err := CosineSimilarity(resp.Data[0].Embedding, resp.Data[1].Embedding)
	if err != nil {
		return 0, err
	}

	// Negative cosine carries no grading signal; clamp into [0, 1].
	return math.Max(0, sim), nil
}

// CosineSimilarity returns the cosine of the angle between two vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, errors.New("embedding vectors have mismatched or zero length")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, errors.New("embedding vector has zero norm")
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
