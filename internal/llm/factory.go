package llm

import (
	"time"

	"github.com/slovoapp/slovo/internal/domain"
)

// Providers
const (
	ProviderAuto      = "auto"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ClientConfig carries everything needed to construct a chat client
type ClientConfig struct {
	Provider        string
	Model           string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
}

// NewClient builds a chat client for the configured provider. Provider
// "auto" resolves to anthropic when an Anthropic key is present and
// openai otherwise.
func NewClient(cfg ClientConfig) (Client, error) {
	provider := cfg.Provider
	if provider == "" || provider == ProviderAuto {
		if cfg.AnthropicAPIKey != "" {
			provider = ProviderAnthropic
		} else {
			provider = ProviderOpenAI
		}
	}

	switch provider {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, domain.NewDomainError(domain.ErrLLMUnavailable, "anthropic provider selected but ANTHROPIC_API_KEY is not set")
		}
		return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature, cfg.Timeout), nil
	case ProviderOpenAI:
		// A local OpenAI-compatible endpoint may not need a key.
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, domain.NewDomainError(domain.ErrLLMUnavailable, "openai provider selected but OPENAI_API_KEY is not set")
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature, cfg.Timeout), nil
	default:
		return nil, domain.NewDomainError(domain.ErrLLMUnavailable, "unknown LLM provider: "+provider)
	}
}
