package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/samsaffron/term-agent/internal/config"
)

// Task type hints understood by Gemini. Other providers ignore them.
const (
	TaskDocument = "RETRIEVAL_DOCUMENT"
	TaskQuery    = "RETRIEVAL_QUERY"
)

// EmbeddingResult contains the embeddings and metadata from an API call
type EmbeddingResult struct {
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
	Embeddings []Embedding `json:"embeddings"`
}

// Embedding holds a single text's embedding vector
type Embedding struct {
	Text   string    `json:"text"`
	Index  int       `json:"index"`
	Vector []float64 `json:"vector"`
}

// EmbedRequest contains parameters for generating embeddings
type EmbedRequest struct {
	Texts    []string
	TaskType string // Gemini task type hint (empty = none)
}

// Provider turns text into vectors for memory search.
type Provider interface {
	Name() string
	Model() string
	Embed(ctx context.Context, req EmbedRequest) (*EmbeddingResult, error)
}

// NewProvider creates the embedding provider named in config. It returns
// nil and no error when embeddings are disabled with provider "none".
func NewProvider(cfg *config.Config) (Provider, error) {
	name, model := parseProviderModel(cfg.Embedding.Provider)
	if model == "" {
		model = cfg.Embedding.Model
	}

	switch name {
	case "", "none":
		return nil, nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not configured. Set environment variable or set embedding.provider to none")
		}
		return NewGeminiProvider(cfg.Gemini.APIKey, model), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not configured. Set environment variable or set embedding.provider to none")
		}
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid: gemini, openai, none)", name)
	}
}

// EmbedOne embeds a single text and returns its vector.
func EmbedOne(ctx context.Context, p Provider, text, taskType string) ([]float64, error) {
	res, err := p.Embed(ctx, EmbedRequest{Texts: []string{text}, TaskType: taskType})
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Vector) == 0 {
		return nil, fmt.Errorf("%s returned no embedding", p.Name())
	}
	return res.Embeddings[0].Vector, nil
}

// parseProviderModel parses "provider:model" or just "provider" from a string.
func parseProviderModel(s string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	provider := parts[0]
	model := ""
	if len(parts) == 2 {
		model = parts[1]
	}
	return provider, model
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dotProduct / denom
}
