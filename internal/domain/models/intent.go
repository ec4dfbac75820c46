package models

import "time"

// IntentType classifies what a user utterance is asking for
type IntentType string

const (
	IntentQuestion      IntentType = "question"
	IntentCommand       IntentType = "command"
	IntentConversation  IntentType = "conversation"
	IntentToolRequest   IntentType = "tool_request"
	IntentClarification IntentType = "clarification"
	IntentUnknown       IntentType = "unknown"
)

// Intent is the typed classification of a single utterance
type Intent struct {
	ID           string            `json:"id"`
	Type         IntentType        `json:"type"`
	Text         string            `json:"text"`
	Language     string            `json:"language"`
	Entities     map[string]string `json:"entities,omitempty"`
	Confidence   float64           `json:"confidence"`
	RequiresTool bool              `json:"requires_tool"`
	ToolHint     string            `json:"tool_hint,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func NewIntent(id, text string, intentType IntentType) *Intent {
	return &Intent{
		ID:         id,
		Type:       intentType,
		Text:       text,
		Language:   "en",
		Entities:   map[string]string{},
		Confidence: 0.5,
		CreatedAt:  time.Now(),
	}
}

// IsConversational reports whether the intent qualifies for the fast path
// on its own (small talk, no planning needed).
func (i *Intent) IsConversational() bool {
	return i.Type == IntentConversation
}
