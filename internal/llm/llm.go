// Package llm provides chat clients for the supported language-model
// providers behind a single interface, plus helpers for recovering
// structured JSON output from model responses.
package llm

import (
	"context"
	"strings"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a chat exchange
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single chat request
type Options struct {
	Temperature *float64
	MaxTokens   int
	// JSONSchema, when set, asks the provider for structured output
	// conforming to the schema. SchemaName labels the schema.
	JSONSchema map[string]any
	SchemaName string
}

// Response is a completed chat exchange
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client is a chat-capable language model
type Client interface {
	Chat(ctx context.Context, messages []Message, opts Options) (*Response, error)
	Provider() string
}

// SystemPrompt returns messages with a default system message prepended
// when the caller did not supply one.
func SystemPrompt(messages []Message, fallback string) []Message {
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages
	}
	return append([]Message{{Role: RoleSystem, Content: fallback}}, messages...)
}

// ExtractJSONObject recovers a JSON object from model output that may be
// wrapped in markdown fences or surrounded by prose. Returns the raw
// object text, or empty string when no object is found.
func ExtractJSONObject(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return ""
}
