package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is the embedding model used for page ranking
const DefaultModel = "text-embedding-3-small"

// Config contains configuration options for embedding generation
type Config struct {
	// Model is the embedding model to use
	Model string

	// Dimensions specifies the dimensionality of the embedding vectors.
	// Only supported by text-embedding-3-* models.
	Dimensions int

	// SimilarityMetric is "cosine" (default), "euclidean" or "dot_product"
	SimilarityMetric string

	// BaseURL points the embedder at an OpenAI-compatible endpoint
	BaseURL string
}

// OpenAIEmbedder embeds document pages and questions with the OpenAI embeddings API
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
}

// NewOpenAIEmbedder creates a new OpenAIEmbedder
func NewOpenAIEmbedder(apiKey string, config Config) *OpenAIEmbedder {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.SimilarityMetric == "" {
		config.SimilarityMetric = "cosine"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

// Embed generates an embedding for text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, in input order
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.config.Model),
	}
	if e.config.Dimensions > 0 {
		req.Dimensions = e.config.Dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}

	return embeddings, nil
}

// CalculateSimilarity compares two embeddings with the given metric
// or the configured one when metric is empty
func (e *OpenAIEmbedder) CalculateSimilarity(vec1, vec2 []float32, metric string) (float32, error) {
	if metric == "" {
		metric = e.config.SimilarityMetric
	}
	return Similarity(vec1, vec2, metric)
}

// Similarity compares two embeddings
func Similarity(vec1, vec2 []float32, metric string) (float32, error) {
	if len(vec1) != len(vec2) {
		return 0, errors.New("embedding vectors must have the same dimensions")
	}

	var dot, mag1, mag2, dist float64
	for i := range vec1 {
		a, b := float64(vec1[i]), float64(vec2[i])
		dot += a * b
		mag1 += a * a
		mag2 += b * b
		dist += (a - b) * (a - b)
	}

	switch metric {
	case "", "cosine":
		if mag1 == 0 || mag2 == 0 {
			return 0, nil
		}
		return float32(dot / (math.Sqrt(mag1) * math.Sqrt(mag2))), nil
	case "euclidean":
		// converted to a similarity in (0, 1]
		return float32(1 / (1 + math.Sqrt(dist))), nil
	case "dot_product":
		return float32(dot), nil
	default:
		return 0, fmt.Errorf("unsupported similarity metric: %s", metric)
	}
}

// Embedder turns text into vectors for page ranking
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	CalculateSimilarity(vec1, vec2 []float32, metric string) (float32, error)
}

// Rank returns the indexes of texts ordered from most to least similar to query
func Rank(ctx context.Context, e Embedder, query string, texts []string) ([]int, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	queryVec, err := e.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	vectors, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	scores := make([]float32, len(texts))
	for i, v := range vectors {
		if scores[i], err = e.CalculateSimilarity(queryVec, v, ""); err != nil {
			return nil, err
		}
	}

	order := make([]int, len(texts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	return order, nil
}
