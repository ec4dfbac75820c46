// Package agents implements the five pipeline agents. Each agent works
// with an optional LLM client and falls back to deterministic
// heuristics when no model is configured or the model call fails.
package agents

import "strings"

// renderPrompt substitutes {{name}} placeholders in a prompt template
func renderPrompt(template string, vars map[string]string) string {
	out := template
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	return out
}

const intentClassifyPrompt = `Classify the user's utterance for a voice assistant.

Conversation context:
{{context}}

Utterance: {{text}}

Decide the intent type (question, command, conversation, tool_request,
clarification), the language, whether a tool is needed, and your
confidence.`

// intentSchema is the structured-output contract for intent classification
var intentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"type": map[string]any{
			"type": "string",
			"enum": []string{"question", "command", "conversation", "tool_request", "clarification"},
		},
		"language":      map[string]any{"type": "string"},
		"confidence":    map[string]any{"type": "number"},
		"requires_tool": map[string]any{"type": "boolean"},
		"tool_hint":     map[string]any{"type": "string"},
		"entities": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"type", "confidence"},
	"additionalProperties": false,
}

const responsePrompt = `You are Slovo, a helpful voice assistant. Answer
concisely in a natural, spoken register.

{{memory}}`
