package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	s, err := Similarity([]float32{1, 0}, []float32{1, 0}, "cosine")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-6)

	s, err = Similarity([]float32{1, 0}, []float32{0, 1}, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s, 1e-6)

	s, err = Similarity([]float32{3, 4}, []float32{6, 8}, "cosine")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-6)

	s, err = Similarity([]float32{0, 0}, []float32{3, 4}, "euclidean")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/6.0, s, 1e-6)

	s, err = Similarity([]float32{1, 2}, []float32{3, 4}, "dot_product")
	require.NoError(t, err)
	assert.InDelta(t, 11.0, s, 1e-6)

	_, err = Similarity([]float32{1}, []float32{1, 2}, "cosine")
	assert.Error(t, err)

	_, err = Similarity([]float32{1}, []float32{1}, "manhattan")
	assert.Error(t, err)
}

// vectors maps each input text to a fixed embedding
var vectors = map[string][]float32{
	"query":   {1, 0},
	"barrier": {0.9, 0.1},
	"asphalt": {0.1, 0.9},
	"signs":   {0.5, 0.5},
}

func newEmbeddingServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)

		resp := openai.EmbeddingResponse{}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, openai.Embedding{Index: i, Embedding: vectors[text]})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestRank(t *testing.T) {
	server := newEmbeddingServer(t)
	defer server.Close()

	embedder := NewOpenAIEmbedder("test-key", Config{BaseURL: server.URL})

	order, err := Rank(context.Background(), embedder, "query", []string{"asphalt", "barrier", "signs"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, order)

	order, err = Rank(context.Background(), embedder, "query", nil)
	require.NoError(t, err)
	assert.Empty(t, order)
}
