package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/slovoapp/slovo/internal/domain"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object",
			input: `{"type":"question"}`,
			want:  `{"type":"question"}`,
		},
		{
			name:  "fenced json",
			input: "```json\n{\"type\":\"command\"}\n```",
			want:  `{"type":"command"}`,
		},
		{
			name:  "fenced without language tag",
			input: "```\n{\"a\":1}\n```",
			want:  `{"a":1}`,
		},
		{
			name:  "prose around object",
			input: `Sure, here is the result: {"ok":true} hope that helps`,
			want:  `{"ok":true}`,
		},
		{
			name:  "no object",
			input: "I cannot answer that",
			want:  "",
		},
		{
			name:  "nested braces",
			input: `{"outer":{"inner":1}}`,
			want:  `{"outer":{"inner":1}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONObject(tt.input)
			if got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "hello"}}

	out := SystemPrompt(msgs, "be helpful")
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Role != RoleSystem || out[0].Content != "be helpful" {
		t.Errorf("unexpected system message: %+v", out[0])
	}

	withSystem := []Message{
		{Role: RoleSystem, Content: "custom"},
		{Role: RoleUser, Content: "hello"},
	}
	out = SystemPrompt(withSystem, "fallback")
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Content != "custom" {
		t.Errorf("existing system message was replaced: %+v", out[0])
	}
}

func TestNewClientProviderSelection(t *testing.T) {
	base := ClientConfig{
		Model:       "test-model",
		MaxTokens:   512,
		Temperature: 0.7,
		Timeout:     10 * time.Second,
	}

	t.Run("auto prefers anthropic when key present", func(t *testing.T) {
		cfg := base
		cfg.Provider = ProviderAuto
		cfg.AnthropicAPIKey = "sk-ant-test"
		cfg.OpenAIAPIKey = "sk-test"
		client, err := NewClient(cfg)
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		if client.Provider() != ProviderAnthropic {
			t.Errorf("provider = %s, want anthropic", client.Provider())
		}
	})

	t.Run("auto falls back to openai", func(t *testing.T) {
		cfg := base
		cfg.Provider = ProviderAuto
		cfg.OpenAIAPIKey = "sk-test"
		client, err := NewClient(cfg)
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		if client.Provider() != ProviderOpenAI {
			t.Errorf("provider = %s, want openai", client.Provider())
		}
	})

	t.Run("openai with base url and no key", func(t *testing.T) {
		cfg := base
		cfg.Provider = ProviderOpenAI
		cfg.OpenAIBaseURL = "http://localhost:8080"
		if _, err := NewClient(cfg); err != nil {
			t.Fatalf("NewClient: %v", err)
		}
	})

	t.Run("anthropic without key fails", func(t *testing.T) {
		cfg := base
		cfg.Provider = ProviderAnthropic
		_, err := NewClient(cfg)
		if !errors.Is(err, domain.ErrLLMUnavailable) {
			t.Errorf("expected ErrLLMUnavailable, got %v", err)
		}
	})

	t.Run("unknown provider fails", func(t *testing.T) {
		cfg := base
		cfg.Provider = "cohere"
		if _, err := NewClient(cfg); err == nil {
			t.Error("expected error for unknown provider")
		}
	})
}
