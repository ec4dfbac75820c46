package models

import (
	"time"
)

// MemoryKind discriminates the three memory entry variants
type MemoryKind string

const (
	MemorySemantic   MemoryKind = "semantic"
	MemoryEpisodic   MemoryKind = "episodic"
	MemoryPreference MemoryKind = "preference"
)

// StoreLocation tags which physical store holds an entry's content
type StoreLocation string

const (
	StoreVector    StoreLocation = "vector"
	StoreDurable   StoreLocation = "durable"
	StoreEphemeral StoreLocation = "ephemeral"
)

// MemorySource tags where a memory came from
type MemorySource string

const (
	SourceConversation MemorySource = "conversation"
	SourceTool         MemorySource = "tool"
	SourceUserEdit     MemorySource = "user_edit"
	SourceVerifier     MemorySource = "verifier"
)

// Maximum lengths for free-text fields
const (
	MaxSemanticSummaryLen = 500
	MaxEpisodicSummaryLen = 2000
	MaxPreferenceKeyLen   = 255
	MaxMetadataSummaryLen = 200
)

// SemanticMemory is a vector-indexed fact with a short free-text summary
type SemanticMemory struct {
	ID             string       `json:"id"`
	Vector         []float32    `json:"vector,omitempty"`
	Summary        string       `json:"summary"`
	Source         MemorySource `json:"source"`
	ConversationID string       `json:"conversation_id,omitempty"`
	ToolName       string       `json:"tool_name,omitempty"`
	Confidence     float64      `json:"confidence"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Score pairs a semantic memory with its search similarity
type ScoredSemanticMemory struct {
	Memory *SemanticMemory
	Score  float32
}

// ActionType classifies episodic log entries
type ActionType string

const (
	ActionMemoryWritten     ActionType = "memory_written"
	ActionPlanExecuted      ActionType = "plan_executed"
	ActionToolInvoked       ActionType = "tool_invoked"
	ActionCorrectionApplied ActionType = "correction_applied"
	ActionErrorRecovered    ActionType = "error_recovered"
)

// EpisodicEntry is an append-only, immutable record of something an agent did
type EpisodicEntry struct {
	ID               string     `json:"id"`
	Agent            string     `json:"agent"`
	ActionType       ActionType `json:"action_type"`
	Summary          string     `json:"summary"`
	Confidence       float64    `json:"confidence"`
	ConversationID   string     `json:"conversation_id,omitempty"`
	StepIndex        *int       `json:"step_index,omitempty"`
	ToolName         string     `json:"tool_name,omitempty"`
	ErrorCategory    string     `json:"error_category,omitempty"`
	CorrectionReason string     `json:"correction_reason,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PreferenceSource tags where a preference value came from
type PreferenceSource string

const (
	PreferenceUserEdit         PreferenceSource = "user_edit"
	PreferenceVerifierApproved PreferenceSource = "verifier_approved"
	PreferenceSystemDefault    PreferenceSource = "system_default"
)

// Preference is a keyed user preference, upserted on Key
type Preference struct {
	Key        string           `json:"key"`
	Value      string           `json:"value"`
	Source     PreferenceSource `json:"source"`
	Confidence float64          `json:"confidence"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// MemoryMetadata is the cross-store index row. Every persisted semantic,
// episodic, and preference entry has exactly one metadata row.
type MemoryMetadata struct {
	ID            string        `json:"id"`
	Kind          MemoryKind    `json:"kind"`
	StoreLocation StoreLocation `json:"store_location"`
	Summary       string        `json:"summary"`
	Source        MemorySource  `json:"source"`
	Confidence    float64       `json:"confidence"`
	Deleted       bool          `json:"deleted"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// UserProfile is the singleton profile row. MemoryCaptureEnabled gates
// the writer: when false, no new memories are persisted.
type UserProfile struct {
	ID                   int       `json:"id"`
	PreferredLanguages   []string  `json:"preferred_languages"`
	CommunicationStyle   string    `json:"communication_style"`
	PrivacyLevel         string    `json:"privacy_level"`
	MemoryCaptureEnabled bool      `json:"memory_capture_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultUserProfile returns the profile created on first use and after
// a profile-preserving reset.
func DefaultUserProfile() *UserProfile {
	now := time.Now()
	return &UserProfile{
		ID:                   1,
		PreferredLanguages:   []string{"en"},
		CommunicationStyle:   "friendly",
		PrivacyLevel:         "standard",
		MemoryCaptureEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Truncate shortens s to at most max runes, appending an ellipsis when cut
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
