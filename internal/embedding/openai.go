package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openaiDefaultModel = "text-embedding-3-small"
	openaiEmbedTimeout = time.Minute
)

// OpenAIProvider implements Provider using OpenAI's embeddings API
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	if model == "" || model == geminiDefaultModel {
		model = openaiDefaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) (*EmbeddingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, openaiEmbedTimeout)
	defer cancel()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: p.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: req.Texts,
		},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embedding API error: %w", err)
	}

	result := &EmbeddingResult{
		Model:      resp.Model,
		Embeddings: make([]Embedding, len(resp.Data)),
	}
	for i, emb := range resp.Data {
		result.Embeddings[i] = Embedding{Index: int(emb.Index), Vector: emb.Embedding}
		if i < len(req.Texts) {
			result.Embeddings[i].Text = req.Texts[i]
		}
	}
	if len(result.Embeddings) > 0 {
		result.Dimensions = len(result.Embeddings[0].Vector)
	}
	return result, nil
}
