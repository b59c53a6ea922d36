package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samsaffron/term-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
	}{
		{"identical vectors", []float64{1, 0, 0}, []float64{1, 0, 0}, 1.0},
		{"opposite vectors", []float64{1, 0, 0}, []float64{-1, 0, 0}, -1.0},
		{"orthogonal vectors", []float64{1, 0, 0}, []float64{0, 1, 0}, 0.0},
		{"similar vectors", []float64{1, 1, 0}, []float64{1, 0, 0}, 1.0 / math.Sqrt(2)},
		{"zero vector", []float64{0, 0, 0}, []float64{1, 0, 0}, 0.0},
		{"empty vectors", []float64{}, []float64{}, 0.0},
		{"mismatched lengths", []float64{1, 2}, []float64{1, 2, 3}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestParseProviderModel(t *testing.T) {
	tests := []struct {
		input    string
		provider string
		model    string
	}{
		{"openai", "openai", ""},
		{"openai:text-embedding-3-large", "openai", "text-embedding-3-large"},
		{"gemini", "gemini", ""},
		{" gemini:text-embedding-004 ", "gemini", "text-embedding-004"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, m := parseProviderModel(tt.input)
			assert.Equal(t, tt.provider, p)
			assert.Equal(t, tt.model, m)
		})
	}
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Provider = "none"
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)

	cfg.Embedding.Provider = "gemini"
	_, err = NewProvider(cfg)
	assert.ErrorContains(t, err, "GEMINI_API_KEY")

	cfg.Gemini.APIKey = "k"
	p, err = NewProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
	assert.Equal(t, geminiDefaultModel, p.Model())

	cfg.Embedding.Provider = "openai:text-embedding-3-large"
	cfg.OpenAI.APIKey = "k"
	p, err = NewProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "text-embedding-3-large", p.Model())

	cfg.Embedding.Provider = "voyage"
	_, err = NewProvider(cfg)
	assert.ErrorContains(t, err, "unknown embedding provider")
}

func TestOpenAIProvider_Embed(t *testing.T) {
	var gotInput []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotInput = body.Input
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]},
				{"object": "embedding", "index": 1, "embedding": [0.4, 0.5, 0.6]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "")
	res, err := p.Embed(context.Background(), EmbedRequest{Texts: []string{"a", "b"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, gotInput)
	assert.Equal(t, 3, res.Dimensions)
	require.Len(t, res.Embeddings, 2)
	assert.Equal(t, "b", res.Embeddings[1].Text)
	assert.Equal(t, []float64{0.4, 0.5, 0.6}, res.Embeddings[1].Vector)

	vec, err := EmbedOne(context.Background(), p, "a", TaskQuery)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}
