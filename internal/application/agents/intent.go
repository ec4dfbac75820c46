package agents

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/llm"
	"github.com/slovoapp/slovo/internal/ports"
)

// Lexicons for the heuristic fallback classifier
var (
	interrogatives = []string{"what", "how", "why", "when", "where", "who", "can you", "could you"}
	commandMarkers = []string{"please", "can you", "could you", "i need", "i want", "help me"}
	toolKeywords   = []string{"search", "find", "look up", "calculate", "convert", "translate"}

	conversationalPhrases = []string{
		"hello", "hi", "hey",
		"good morning", "good afternoon", "good evening",
		"goodbye", "bye", "see you",
		"thanks", "thank you", "appreciate it",
	}
)

const heuristicConfidence = 0.8

// IntentClassifier is the first pipeline agent
type IntentClassifier struct {
	client llm.Client
	ids    ports.IDGenerator
}

// NewIntentClassifier builds the agent; client may be nil, in which
// case classification is purely lexical.
func NewIntentClassifier(client llm.Client, ids ports.IDGenerator) *IntentClassifier {
	return &IntentClassifier{client: client, ids: ids}
}

func (c *IntentClassifier) Classify(ctx context.Context, text, conversationContext string) (*models.Intent, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		intent := models.NewIntent(c.ids.GenerateIntentID(), text, models.IntentUnknown)
		intent.Confidence = 0
		return intent, nil
	}

	if c.client != nil {
		if intent, err := c.classifyLLM(ctx, trimmed, conversationContext); err == nil {
			return intent, nil
		} else {
			slog.WarnContext(ctx, "intent model call failed, falling back to lexicon", "error", err)
		}
	}
	return c.classifyLexical(trimmed), nil
}

type intentPayload struct {
	Type         string            `json:"type"`
	Language     string            `json:"language"`
	Confidence   float64           `json:"confidence"`
	RequiresTool bool              `json:"requires_tool"`
	ToolHint     string            `json:"tool_hint"`
	Entities     map[string]string `json:"entities"`
}

func (c *IntentClassifier) classifyLLM(ctx context.Context, text, conversationContext string) (*models.Intent, error) {
	prompt := renderPrompt(intentClassifyPrompt, map[string]string{
		"context": conversationContext,
		"text":    text,
	})

	resp, err := c.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.Options{
		JSONSchema: intentSchema,
		SchemaName: "intent_classification",
		MaxTokens:  512,
	})
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSONObject(resp.Content)
	var payload intentPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}

	intentType := models.IntentType(payload.Type)
	switch intentType {
	case models.IntentQuestion, models.IntentCommand, models.IntentConversation,
		models.IntentToolRequest, models.IntentClarification:
	default:
		intentType = models.IntentUnknown
	}

	intent := models.NewIntent(c.ids.GenerateIntentID(), text, intentType)
	intent.Confidence = payload.Confidence
	intent.RequiresTool = payload.RequiresTool
	intent.ToolHint = payload.ToolHint
	if payload.Language != "" {
		intent.Language = payload.Language
	}
	if len(payload.Entities) > 0 {
		intent.Entities = payload.Entities
	}
	return intent, nil
}

func (c *IntentClassifier) classifyLexical(text string) *models.Intent {
	lower := strings.ToLower(text)

	intent := models.NewIntent(c.ids.GenerateIntentID(), text, models.IntentConversation)
	intent.Confidence = heuristicConfidence

	for _, keyword := range toolKeywords {
		if strings.Contains(lower, keyword) {
			intent.RequiresTool = true
			intent.ToolHint = keyword
			break
		}
	}

	switch {
	case matchesPhrase(lower, conversationalPhrases):
		intent.Type = models.IntentConversation
	case intent.RequiresTool:
		intent.Type = models.IntentToolRequest
	case startsWithAny(lower, interrogatives) || strings.HasSuffix(lower, "?"):
		intent.Type = models.IntentQuestion
	case containsAny(lower, commandMarkers):
		intent.Type = models.IntentCommand
	}
	return intent
}

func startsWithAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p+" ") || s == p {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// matchesPhrase reports whether s is, or opens with, one of the phrases
func matchesPhrase(s string, phrases []string) bool {
	s = strings.TrimRight(s, ".!? ")
	for _, p := range phrases {
		if s == p || strings.HasPrefix(s, p+" ") || strings.HasPrefix(s, p+",") {
			return true
		}
	}
	return false
}
