package embedding

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const (
	geminiDefaultModel = "text-embedding-004"
	geminiEmbedTimeout = time.Minute
)

// GeminiProvider implements Provider using Google's Gemini API
type GeminiProvider struct {
	apiKey string
	model  string
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) Embed(ctx context.Context, req EmbedRequest) (*EmbeddingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiEmbedTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini client error: %w", err)
	}

	contents := make([]*genai.Content, len(req.Texts))
	for i, text := range req.Texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var embedConfig *genai.EmbedContentConfig
	if req.TaskType != "" {
		embedConfig = &genai.EmbedContentConfig{TaskType: req.TaskType}
	}

	resp, err := client.Models.EmbedContent(ctx, p.model, contents, embedConfig)
	if err != nil {
		return nil, fmt.Errorf("Gemini embedding API error: %w", err)
	}

	result := &EmbeddingResult{
		Model:      p.model,
		Embeddings: make([]Embedding, len(resp.Embeddings)),
	}
	for i, emb := range resp.Embeddings {
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		result.Embeddings[i] = Embedding{Index: i, Vector: vec}
		if i < len(req.Texts) {
			result.Embeddings[i].Text = req.Texts[i]
		}
	}
	if len(result.Embeddings) > 0 {
		result.Dimensions = len(result.Embeddings[0].Vector)
	}
	return result, nil
}
