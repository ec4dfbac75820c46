package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// Manager is the facade over the three memory stores. Everything above
// the adapters talks to memory through it. Any store may be nil when
// its backend is unreachable; operations on a missing store fail with
// ErrStoreUnavailable while the remaining layers keep working.
type Manager struct {
	sessions  ports.SessionStore
	semantic  ports.SemanticStore
	profiles  ports.ProfileRepository
	prefs     ports.PreferenceRepository
	episodic  ports.EpisodicRepository
	metadata  ports.MetadataRepository
	admin     ports.DurableAdmin
	tools     ports.ToolResetter
	ids       ports.IDGenerator
	retriever *Retriever
	writer    *Writer
}

var _ ports.MemoryManager = (*Manager)(nil)

// ManagerDeps bundles the manager's collaborators
type ManagerDeps struct {
	Sessions  ports.SessionStore
	Semantic  ports.SemanticStore
	Profiles  ports.ProfileRepository
	Prefs     ports.PreferenceRepository
	Episodic  ports.EpisodicRepository
	Metadata  ports.MetadataRepository
	Admin     ports.DurableAdmin
	Tools     ports.ToolResetter
	Embedder  ports.EmbeddingService
	IDs       ports.IDGenerator
	Txm       ports.TransactionManager
}

func NewManager(deps ManagerDeps) *Manager {
	return &Manager{
		sessions:  deps.Sessions,
		semantic:  deps.Semantic,
		profiles:  deps.Profiles,
		prefs:     deps.Prefs,
		episodic:  deps.Episodic,
		metadata:  deps.Metadata,
		admin:     deps.Admin,
		tools:     deps.Tools,
		ids:       deps.IDs,
		retriever: NewRetriever(deps.Profiles, deps.Sessions, deps.Semantic, deps.Episodic, deps.Embedder),
		writer:    NewWriter(deps.Profiles, deps.Prefs, deps.Episodic, deps.Semantic, deps.Metadata, deps.Embedder, deps.IDs, deps.Txm),
	}
}

func (m *Manager) Retrieve(ctx context.Context, req models.RetrievalRequest) (*models.MemoryContext, error) {
	return m.retriever.Retrieve(ctx, req)
}

func (m *Manager) Write(ctx context.Context, req models.WriteRequest, approval models.VerifierApproval) (*models.WriteResult, error) {
	return m.writer.Write(ctx, req, approval)
}

func (m *Manager) WriteDirect(ctx context.Context, req models.WriteRequest) (*models.WriteResult, error) {
	return m.writer.WriteDirect(ctx, req)
}

func (m *Manager) StoreTurn(ctx context.Context, conversationID string, turn models.ConversationTurn) error {
	if m.sessions == nil {
		return domain.ErrStoreUnavailable
	}
	if turn.ID == "" {
		turn.ID = m.ids.GenerateTurnID()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	return m.sessions.AppendTurn(ctx, conversationID, turn)
}

func (m *Manager) RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error) {
	if m.sessions == nil {
		return nil, domain.ErrStoreUnavailable
	}
	return m.sessions.RecentTurns(ctx, conversationID, limit)
}

func (m *Manager) Profile(ctx context.Context) (*models.UserProfile, error) {
	if m.profiles == nil {
		return nil, domain.ErrStoreUnavailable
	}
	return m.profiles.Get(ctx)
}

func (m *Manager) UpdateProfile(ctx context.Context, profile *models.UserProfile) error {
	if m.profiles == nil {
		return domain.ErrStoreUnavailable
	}
	return m.profiles.Update(ctx, profile)
}

func (m *Manager) List(ctx context.Context, opts ports.MemoryListOptions) ([]*models.MemoryMetadata, int, error) {
	if m.metadata == nil {
		return nil, 0, domain.ErrStoreUnavailable
	}
	return m.metadata.List(ctx, opts)
}

// Get joins the metadata row with the content held by its physical
// store. When the physical store is unreachable the metadata summary
// stands in.
func (m *Manager) Get(ctx context.Context, id string) (*ports.MemoryDetail, error) {
	if m.metadata == nil {
		return nil, domain.ErrStoreUnavailable
	}
	meta, err := m.metadata.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if meta.Deleted {
		return nil, domain.ErrMemoryNotFound
	}

	detail := &ports.MemoryDetail{Metadata: meta, Content: meta.Summary}

	switch meta.Kind {
	case models.MemorySemantic:
		if m.semantic == nil {
			return detail, nil
		}
		entry, err := m.semantic.Get(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "semantic content unavailable, using index summary", "memory_id", id, "error", err)
			return detail, nil
		}
		detail.Content = entry.Summary
		detail.Extra = map[string]string{}
		if entry.ConversationID != "" {
			detail.Extra["conversation_id"] = entry.ConversationID
		}
		if entry.ToolName != "" {
			detail.Extra["tool_name"] = entry.ToolName
		}

	case models.MemoryPreference:
		key, err := preferenceKey(meta.Summary)
		if err != nil || m.prefs == nil {
			return detail, nil
		}
		pref, err := m.prefs.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "preference content unavailable, using index summary", "memory_id", id, "error", err)
			return detail, nil
		}
		detail.Content = fmt.Sprintf("%s: %s", pref.Key, pref.Value)
		detail.Extra = map[string]string{"preference_source": string(pref.Source)}

	case models.MemoryEpisodic:
		if m.episodic == nil {
			return detail, nil
		}
		entry, err := m.episodic.GetByID(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "episodic content unavailable, using index summary", "memory_id", id, "error", err)
			return detail, nil
		}
		detail.Content = entry.Summary
		detail.Extra = map[string]string{
			"agent":       entry.Agent,
			"action_type": string(entry.ActionType),
		}
	}
	return detail, nil
}

// Update edits a semantic or preference memory in place. Episodic
// entries are append-only and never change.
func (m *Manager) Update(ctx context.Context, id string, content *string, confidence *float64) error {
	if m.metadata == nil {
		return domain.ErrStoreUnavailable
	}
	meta, err := m.metadata.Get(ctx, id)
	if err != nil {
		return err
	}
	if meta.Deleted {
		return domain.ErrMemoryNotFound
	}
	if content == nil && confidence == nil {
		return domain.NewDomainError(domain.ErrInvalidInput, "nothing to update")
	}

	switch meta.Kind {
	case models.MemoryEpisodic:
		return domain.ErrEpisodicImmutable

	case models.MemorySemantic:
		if m.semantic == nil {
			return domain.ErrStoreUnavailable
		}
		if err := m.semantic.Update(ctx, id, ports.SemanticUpdate{
			Summary:    content,
			Confidence: confidence,
		}); err != nil {
			return err
		}

	case models.MemoryPreference:
		if m.prefs == nil {
			return domain.ErrStoreUnavailable
		}
		key, err := preferenceKey(meta.Summary)
		if err != nil {
			return err
		}
		if content != nil {
			conf := meta.Confidence
			if confidence != nil {
				conf = *confidence
			}
			if err := m.prefs.Upsert(ctx, &models.Preference{
				Key:        key,
				Value:      strings.TrimSpace(*content),
				Source:     models.PreferenceUserEdit,
				Confidence: conf,
			}); err != nil {
				return err
			}
		}
	}

	if content != nil {
		if meta.Kind == models.MemoryPreference {
			key, _ := preferenceKey(meta.Summary)
			meta.Summary = fmt.Sprintf("%s: %s", key, models.Truncate(strings.TrimSpace(*content), 100))
		} else {
			meta.Summary = *content
		}
	}
	if confidence != nil {
		meta.Confidence = *confidence
	}
	return m.metadata.Update(ctx, meta)
}

// Delete removes the physical content and soft-deletes the index row.
// Episodic entries keep their durable row and are only hidden.
func (m *Manager) Delete(ctx context.Context, id string, confirm bool) error {
	if !confirm {
		return domain.ErrDeleteNotConfirmed
	}

	if m.metadata == nil {
		return domain.ErrStoreUnavailable
	}
	meta, err := m.metadata.Get(ctx, id)
	if err != nil {
		return err
	}
	if meta.Deleted {
		return domain.ErrMemoryNotFound
	}

	switch meta.Kind {
	case models.MemorySemantic:
		if m.semantic == nil {
			return domain.ErrStoreUnavailable
		}
		if err := m.semantic.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrMemoryNotFound) {
			return err
		}
	case models.MemoryPreference:
		if m.prefs == nil {
			return domain.ErrStoreUnavailable
		}
		key, kerr := preferenceKey(meta.Summary)
		if kerr == nil {
			if err := m.prefs.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
	case models.MemoryEpisodic:
		// append-only log, row stays
	}

	return m.metadata.MarkDeleted(ctx, id)
}

// Reset clears the three layers independently so one unreachable store
// does not leave the others populated, then wipes the tool records and
// their sandbox volumes. An unconfigured store counts as not cleared.
func (m *Manager) Reset(ctx context.Context, confirm, preserveProfile bool) (*ports.ResetResult, error) {
	if !confirm {
		return &ports.ResetResult{Success: false, Error: domain.ErrResetNotConfirmed.Error()},
			domain.ErrResetNotConfirmed
	}

	result := &ports.ResetResult{}
	var errs []string

	if m.sessions == nil {
		errs = append(errs, "ephemeral: not configured")
	} else if err := m.sessions.ClearAll(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("ephemeral: %v", err))
	} else {
		result.EphemeralCleared = true
	}

	if m.semantic == nil {
		errs = append(errs, "vector: not configured")
	} else if err := m.semantic.ClearAll(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("vector: %v", err))
	} else {
		result.VectorCleared = true
	}

	if m.admin == nil {
		errs = append(errs, "durable: not configured")
	} else if err := m.admin.ClearAll(ctx, preserveProfile); err != nil {
		errs = append(errs, fmt.Sprintf("durable: %v", err))
	} else {
		result.DurableCleared = true
	}

	if m.tools != nil {
		if err := m.tools.ResetTools(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("tools: %v", err))
		}
	}

	result.Success = len(errs) == 0
	result.Error = strings.Join(errs, "; ")
	return result, nil
}

func (m *Manager) Health(ctx context.Context) *ports.MemoryHealth {
	health := &ports.MemoryHealth{}
	health.Ephemeral = m.sessions != nil && m.sessions.Health(ctx) == nil
	health.Vector = m.semantic != nil && m.semantic.Health(ctx) == nil
	health.Durable = m.admin != nil && m.admin.Health(ctx) == nil
	return health
}

// preferenceKey recovers the preference key from an index summary of
// the form "key: value".
func preferenceKey(summary string) (string, error) {
	idx := strings.Index(summary, ":")
	if idx <= 0 {
		return "", domain.NewDomainError(domain.ErrInvalidInput, "metadata summary does not carry a preference key")
	}
	return strings.TrimSpace(summary[:idx]), nil
}
