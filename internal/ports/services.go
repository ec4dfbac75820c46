package ports

import (
	"context"

	"github.com/slovoapp/slovo/internal/domain/models"
)

// EmbeddingService turns text into a fixed-dimension vector
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EncryptionService provides authenticated symmetric encryption for
// payloads persisted to the vector and durable stores, plus a stable
// hash for equality search on encrypted columns.
type EncryptionService interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
	HashForIndex(value string) string
}

// IDGenerator creates identifiers for runtime and persisted entities
type IDGenerator interface {
	GenerateMemoryID() string
	GenerateIntentID() string
	GeneratePlanID() string
	GenerateResultID() string
	GenerateTurnID() string
	GenerateConversationID() string
	GenerateSessionID() string
	GenerateManifestID() string
	GenerateExecutionID() string
	GenerateVolumeID() string
	GenerateDiscoveryID() string
	GenerateContainerName() string
}

// SandboxResult is what the sandbox reports after one container run
type SandboxResult struct {
	Stdout       string
	Stderr       string
	ExitCode     int
	TimedOut     bool
	DurationMs   int64
	CPUTimeMs    int64
	MemoryPeakMB float64
	ContainerID  string
}

// SandboxExecutor runs an approved manifest in an isolated container
type SandboxExecutor interface {
	Execute(ctx context.Context, manifest *models.ToolManifest, perms models.PermissionSet, params map[string]any) (*SandboxResult, error)
	RemoveVolume(ctx context.Context, manifestID string) error
	RemoveAllVolumes(ctx context.Context) error
}

// MemoryRetriever produces a token-budgeted context bundle
type MemoryRetriever interface {
	Retrieve(ctx context.Context, req models.RetrievalRequest) (*models.MemoryContext, error)
}

// MemoryManager is the facade over the three memory stores
type MemoryManager interface {
	MemoryRetriever

	StoreTurn(ctx context.Context, conversationID string, turn models.ConversationTurn) error
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error)

	Write(ctx context.Context, req models.WriteRequest, approval models.VerifierApproval) (*models.WriteResult, error)
	WriteDirect(ctx context.Context, req models.WriteRequest) (*models.WriteResult, error)

	Profile(ctx context.Context) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, profile *models.UserProfile) error

	List(ctx context.Context, opts MemoryListOptions) ([]*models.MemoryMetadata, int, error)
	Get(ctx context.Context, id string) (*MemoryDetail, error)
	Update(ctx context.Context, id string, content *string, confidence *float64) error
	Delete(ctx context.Context, id string, confirm bool) error

	Reset(ctx context.Context, confirm, preserveProfile bool) (*ResetResult, error)
	Health(ctx context.Context) *MemoryHealth
}

// MemoryDetail joins a metadata row with content from its physical store
type MemoryDetail struct {
	Metadata *models.MemoryMetadata `json:"metadata"`
	Content  string                 `json:"content"`
	Extra    map[string]string      `json:"extra,omitempty"`
}

// ResetResult reports per-store outcomes of a full reset
type ResetResult struct {
	Success          bool   `json:"success"`
	EphemeralCleared bool   `json:"ephemeral_cleared"`
	VectorCleared    bool   `json:"vector_cleared"`
	DurableCleared   bool   `json:"durable_cleared"`
	Error            string `json:"error,omitempty"`
}

// MemoryHealth reports per-store reachability
type MemoryHealth struct {
	Ephemeral bool `json:"ephemeral"`
	Vector    bool `json:"vector"`
	Durable   bool `json:"durable"`
}

// IntentAgent classifies an utterance
type IntentAgent interface {
	Classify(ctx context.Context, text, conversationContext string) (*models.Intent, error)
}

// PlannerAgent turns an intent into an execution plan
type PlannerAgent interface {
	Plan(ctx context.Context, intent *models.Intent, memoryContext *models.MemoryContext) (*models.ExecutionPlan, error)
}

// ExecutorAgent walks a plan's steps in order
type ExecutorAgent interface {
	Execute(ctx context.Context, plan *models.ExecutionPlan, memoryContext *models.MemoryContext, systemContext string) (*models.ExecutionResult, error)
}

// VerifierAgent judges an execution result
type VerifierAgent interface {
	Verify(ctx context.Context, result *models.ExecutionResult) (*models.Verification, error)
}

// ExplainerAgent renders a result for the user
type ExplainerAgent interface {
	Explain(ctx context.Context, result *models.ExecutionResult, verification *models.Verification) (*models.Explanation, error)
}

// ToolService coordinates manifest lifecycle and sandboxed execution
type ToolService interface {
	Import(ctx context.Context, path string) (*models.ToolManifest, error)
	ImportOpenAPI(ctx context.Context, url string) (*models.ToolManifest, error)
	Get(ctx context.Context, id string) (*models.ToolManifest, error)
	GetByName(ctx context.Context, name string) (*models.ToolManifest, error)
	List(ctx context.Context, status models.ManifestStatus, limit, offset int) ([]*models.ToolManifest, error)
	Approve(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) error
	Disable(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	Execute(ctx context.Context, name string, params map[string]any, conversationID string) (*models.ToolExecution, error)
	ExecutionLogs(ctx context.Context, manifestID string, limit int) ([]*models.ToolExecution, error)
	RequestDiscovery(ctx context.Context, description, requestedBy string) (*models.ToolDiscoveryRequest, error)

	ToolResetter
}

// ToolResetter wipes every tool record and its sandbox volume, the
// tool half of a full reset.
type ToolResetter interface {
	ResetTools(ctx context.Context) error
}

// Orchestrator is the agent pipeline entry point
type Orchestrator interface {
	ProcessMessage(ctx context.Context, text, conversationID string) (*PipelineResult, error)
}

// PipelineResult is the orchestrator's response record
type PipelineResult struct {
	Response   string  `json:"response"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float64 `json:"confidence"`
}
