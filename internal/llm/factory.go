package llm

import (
	"fmt"
	"strings"

	"github.com/samsaffron/term-agent/internal/config"
	"go.uber.org/zap"
)

// ProviderNames lists the built-in provider types.
var ProviderNames = []string{"gemini", "anthropic", "openai"}

// ParseProviderModel parses "provider:model" or just "provider" from a flag value.
// Model will be empty if not specified.
func ParseProviderModel(s string) (string, string, error) {
	parts := strings.SplitN(s, ":", 2)
	provider := strings.TrimSpace(parts[0])
	if provider == "" {
		return "", "", fmt.Errorf("invalid provider format: %q", s)
	}
	model := ""
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}
	for _, name := range ProviderNames {
		if provider == name {
			return provider, model, nil
		}
	}
	return "", "", fmt.Errorf("unknown provider: %s", provider)
}

// NewProvider creates the configured provider.
// Providers are wrapped with automatic retry for rate limits (429) and transient errors.
func NewProvider(cfg *config.Config, logger *zap.Logger) (Provider, error) {
	var provider Provider
	switch cfg.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY or GOOGLE_API_KEY environment variable is not set")
		}
		provider = NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		provider = NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	case "openai":
		if cfg.OpenAI.APIKey == "" && cfg.OpenAI.BaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		provider = NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	return WrapWithRetry(provider, DefaultRetryConfig(), logger), nil
}
