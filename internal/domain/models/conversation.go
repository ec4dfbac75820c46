package models

import "time"

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single message within a conversation
type ConversationTurn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionContext is the ephemeral per-session state held in the session
// store under a TTL. It is never authoritative.
type SessionContext struct {
	SessionID      string             `json:"session_id"`
	ConversationID string             `json:"conversation_id"`
	Turns          []ConversationTurn `json:"turns,omitempty"`
	ActivePlanID   string             `json:"active_plan_id,omitempty"`
	AgentState     map[string]any     `json:"agent_state,omitempty"`
	ToolOutputs    map[string]any     `json:"tool_outputs,omitempty"`
	TTLSeconds     int                `json:"ttl_seconds"`
}

// RetrievalRequest asks the retrieval pipeline for a token-budgeted
// summary bundle for prompt injection.
type RetrievalRequest struct {
	UserMessage        string
	ConversationID     string
	MaxSemanticResults int
	MaxEpisodicResults int
	TokenLimit         int
}

// MemoryContext is the retrieval pipeline's output: one short string per
// section, each fit for direct prompt injection.
type MemoryContext struct {
	ProfileSummary      string `json:"profile_summary,omitempty"`
	ConversationSummary string `json:"conversation_summary,omitempty"`
	SemanticSummary     string `json:"semantic_summary,omitempty"`
	EpisodicSummary     string `json:"episodic_summary,omitempty"`
	TotalTokenEstimate  int    `json:"total_token_estimate"`
}

// IsEmpty reports whether no section produced any content
func (c *MemoryContext) IsEmpty() bool {
	return c.ProfileSummary == "" && c.ConversationSummary == "" &&
		c.SemanticSummary == "" && c.EpisodicSummary == ""
}

// Sections returns the non-empty sections in their fixed composition order
func (c *MemoryContext) Sections() []string {
	var sections []string
	for _, s := range []string{c.ProfileSummary, c.ConversationSummary, c.SemanticSummary, c.EpisodicSummary} {
		if s != "" {
			sections = append(sections, s)
		}
	}
	return sections
}

// WriteRequest proposes a memory write, routed by Kind
type WriteRequest struct {
	Kind           MemoryKind
	Content        string
	Source         MemorySource
	Confidence     float64
	ConversationID string
	Metadata       map[string]string
}

// VerifierApproval is the verifier's signed decision that a proposed
// write is safe to persist.
type VerifierApproval struct {
	Approved        bool
	Confidence      float64
	Reason          string
	AdjustedContent string
}

// WriteResult reports the outcome of a write request
type WriteResult struct {
	Success          bool   `json:"success"`
	MemoryID         string `json:"memory_id,omitempty"`
	Error            string `json:"error,omitempty"`
	VerifierApproved bool   `json:"verifier_approved"`
}
