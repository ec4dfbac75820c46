package ports

import (
	"context"

	"github.com/slovoapp/slovo/internal/domain/models"
)

// ProfileRepository persists the singleton user profile
type ProfileRepository interface {
	Get(ctx context.Context) (*models.UserProfile, error)
	Update(ctx context.Context, profile *models.UserProfile) error
	// EnsureDefault creates the default profile row if none exists
	EnsureDefault(ctx context.Context) error
}

// PreferenceRepository persists keyed user preferences
type PreferenceRepository interface {
	Upsert(ctx context.Context, pref *models.Preference) error
	Get(ctx context.Context, key string) (*models.Preference, error)
	List(ctx context.Context, limit int) ([]*models.Preference, error)
	Delete(ctx context.Context, key string) error
}

// EpisodicRepository persists the append-only episodic log
type EpisodicRepository interface {
	Append(ctx context.Context, entry *models.EpisodicEntry) error
	GetByID(ctx context.Context, id string) (*models.EpisodicEntry, error)
	Recent(ctx context.Context, limit int) ([]*models.EpisodicEntry, error)
}

// MemoryListOptions filters and paginates metadata listings
type MemoryListOptions struct {
	Kind           models.MemoryKind
	Source         models.MemorySource
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// MetadataRepository maintains the cross-store memory index
type MetadataRepository interface {
	Track(ctx context.Context, meta *models.MemoryMetadata) error
	Get(ctx context.Context, id string) (*models.MemoryMetadata, error)
	List(ctx context.Context, opts MemoryListOptions) ([]*models.MemoryMetadata, int, error)
	Update(ctx context.Context, meta *models.MemoryMetadata) error
	MarkDeleted(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// SemanticSearchOptions controls a nearest-neighbour search
type SemanticSearchOptions struct {
	Vector        []float32
	Limit         int
	SourceFilter  string
	MinConfidence float64
}

// SemanticUpdate carries the mutable fields of a semantic entry
type SemanticUpdate struct {
	Summary    *string
	Confidence *float64
}

// SemanticStore is the encrypted vector store of semantic memories
type SemanticStore interface {
	Upsert(ctx context.Context, entry *models.SemanticMemory) error
	Search(ctx context.Context, opts SemanticSearchOptions) ([]*models.ScoredSemanticMemory, error)
	Get(ctx context.Context, id string) (*models.SemanticMemory, error)
	Update(ctx context.Context, id string, update SemanticUpdate) error
	Delete(ctx context.Context, id string) error
	Scroll(ctx context.Context, offset, limit int) ([]*models.SemanticMemory, int, error)
	ClearAll(ctx context.Context) error
	Health(ctx context.Context) error
}

// SessionStore is the ephemeral TTL-scoped store of turns, session
// contexts, and tool outputs. It is never authoritative.
type SessionStore interface {
	AppendTurn(ctx context.Context, conversationID string, turn models.ConversationTurn) error
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error)
	ClearTurns(ctx context.Context, conversationID string) (int, error)
	SaveContext(ctx context.Context, sc *models.SessionContext) error
	GetContext(ctx context.Context, sessionID string) (*models.SessionContext, error)
	SetToolOutput(ctx context.Context, sessionID, toolName string, output any) error
	GetToolOutput(ctx context.Context, sessionID, toolName string) (any, error)
	ClearAll(ctx context.Context) error
	Health(ctx context.Context) error
}

// ExecutionCompletion carries the terminal fields of a tool execution log
type ExecutionCompletion struct {
	Status       models.ExecutionStatus
	Output       string
	Error        string
	ExitCode     *int
	CPUTimeMs    int64
	MemoryPeakMB float64
	ContainerID  string
}

// ToolRepository persists manifests, permissions, executions, state,
// volumes, and the discovery queue.
type ToolRepository interface {
	CreateManifest(ctx context.Context, manifest *models.ToolManifest) error
	GetManifest(ctx context.Context, id string) (*models.ToolManifest, error)
	GetManifestByName(ctx context.Context, name string) (*models.ToolManifest, error)
	ListManifests(ctx context.Context, status models.ManifestStatus, limit, offset int) ([]*models.ToolManifest, error)
	UpdateManifestStatus(ctx context.Context, id string, status models.ManifestStatus) error

	UpsertPermission(ctx context.Context, perm *models.ToolPermission) error
	GetPermissions(ctx context.Context, manifestID string) ([]*models.ToolPermission, error)

	CreateExecution(ctx context.Context, exec *models.ToolExecution) error
	CompleteExecution(ctx context.Context, id string, completion ExecutionCompletion) error
	GetExecution(ctx context.Context, id string) (*models.ToolExecution, error)
	ListExecutions(ctx context.Context, manifestID string, limit int) ([]*models.ToolExecution, error)

	UpsertState(ctx context.Context, state *models.ToolState) error
	GetState(ctx context.Context, manifestID, key string) (*models.ToolState, error)

	CreateVolume(ctx context.Context, vol *models.ToolVolume) error
	GetVolume(ctx context.Context, manifestID string) (*models.ToolVolume, error)
	DeleteVolume(ctx context.Context, manifestID string) error

	CreateDiscoveryRequest(ctx context.Context, req *models.ToolDiscoveryRequest) error
	UpdateDiscoveryRequest(ctx context.Context, id string, status models.DiscoveryStatus, manifestID string) error
	ListDiscoveryRequests(ctx context.Context, status models.DiscoveryStatus, limit int) ([]*models.ToolDiscoveryRequest, error)

	ClearAll(ctx context.Context) error
}

// DurableAdmin exposes maintenance operations over the durable store
type DurableAdmin interface {
	ClearAll(ctx context.Context, preserveProfile bool) error
	Health(ctx context.Context) error
}

// TransactionManager runs a function within a database transaction
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
