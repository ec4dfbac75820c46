package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slovoapp/slovo/internal/adapters/metrics"
	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// WriteThreshold is the minimum effective confidence for persistence.
// The effective confidence is the lower of the requester's and the
// verifier's; exactly the threshold still passes.
const WriteThreshold = 0.7

// Writer persists approved memories to their physical stores and keeps
// the metadata index in step.
type Writer struct {
	profiles ports.ProfileRepository
	prefs    ports.PreferenceRepository
	episodic ports.EpisodicRepository
	semantic ports.SemanticStore
	metadata ports.MetadataRepository
	embedder ports.EmbeddingService
	ids      ports.IDGenerator
	txm      ports.TransactionManager
}

func NewWriter(
	profiles ports.ProfileRepository,
	prefs ports.PreferenceRepository,
	episodic ports.EpisodicRepository,
	semantic ports.SemanticStore,
	metadata ports.MetadataRepository,
	embedder ports.EmbeddingService,
	ids ports.IDGenerator,
	txm ports.TransactionManager,
) *Writer {
	return &Writer{
		profiles: profiles,
		prefs:    prefs,
		episodic: episodic,
		semantic: semantic,
		metadata: metadata,
		embedder: embedder,
		ids:      ids,
		txm:      txm,
	}
}

// Write runs the three write gates and routes the request to its store.
// Gate failures come back as both a failed result and a sentinel error.
func (w *Writer) Write(ctx context.Context, req models.WriteRequest, approval models.VerifierApproval) (*models.WriteResult, error) {
	kind := string(req.Kind)

	if !approval.Approved {
		metrics.MemoryWritesTotal.WithLabelValues(kind, "rejected").Inc()
		err := domain.NewDomainError(domain.ErrVerifierRejected, approval.Reason)
		return &models.WriteResult{Success: false, Error: err.Error()}, err
	}

	content := req.Content
	if approval.AdjustedContent != "" {
		content = approval.AdjustedContent
	}
	if strings.TrimSpace(content) == "" {
		metrics.MemoryWritesTotal.WithLabelValues(kind, "error").Inc()
		return &models.WriteResult{Success: false, Error: domain.ErrEmptyContent.Error(), VerifierApproved: true},
			domain.ErrEmptyContent
	}

	confidence := req.Confidence
	if approval.Confidence < confidence {
		confidence = approval.Confidence
	}
	if confidence < WriteThreshold {
		metrics.MemoryWritesTotal.WithLabelValues(kind, "low_confidence").Inc()
		err := domain.NewDomainError(domain.ErrConfidenceTooLow,
			fmt.Sprintf("effective confidence %.2f", confidence))
		return &models.WriteResult{Success: false, Error: err.Error(), VerifierApproved: true}, err
	}

	// Capture gate fails open: an unreadable or unconfigured profile
	// store must not block the pipeline.
	if w.profiles != nil {
		if profile, err := w.profiles.Get(ctx); err != nil {
			slog.WarnContext(ctx, "profile unavailable, allowing write", "error", err)
		} else if !profile.MemoryCaptureEnabled {
			metrics.MemoryWritesTotal.WithLabelValues(kind, "capture_disabled").Inc()
			return &models.WriteResult{Success: false, Error: domain.ErrMemoryCaptureDisabled.Error(), VerifierApproved: true},
				domain.ErrMemoryCaptureDisabled
		}
	}

	var (
		memoryID string
		err      error
	)
	switch req.Kind {
	case models.MemorySemantic:
		memoryID, err = w.writeSemantic(ctx, req, content, confidence)
	case models.MemoryPreference:
		memoryID, err = w.writePreference(ctx, req, content, confidence)
	case models.MemoryEpisodic:
		memoryID, err = w.writeEpisodic(ctx, req, content, confidence)
	default:
		err = domain.NewDomainError(domain.ErrInvalidInput, fmt.Sprintf("unknown memory kind %q", req.Kind))
	}
	if err != nil {
		metrics.MemoryWritesTotal.WithLabelValues(kind, "error").Inc()
		return &models.WriteResult{Success: false, Error: err.Error(), VerifierApproved: true}, err
	}

	metrics.MemoryWritesTotal.WithLabelValues(kind, "written").Inc()
	return &models.WriteResult{Success: true, MemoryID: memoryID, VerifierApproved: true}, nil
}

// WriteDirect persists a system-originated write that never went
// through the verifier, synthesising the approval.
func (w *Writer) WriteDirect(ctx context.Context, req models.WriteRequest) (*models.WriteResult, error) {
	return w.Write(ctx, req, models.VerifierApproval{
		Approved:   true,
		Confidence: req.Confidence,
		Reason:     "system write, verifier not required",
	})
}

func (w *Writer) writeSemantic(ctx context.Context, req models.WriteRequest, content string, confidence float64) (string, error) {
	if w.semantic == nil || w.metadata == nil {
		return "", domain.ErrStoreUnavailable
	}
	if w.embedder == nil {
		return "", domain.ErrNoEmbeddingService
	}

	vector, err := w.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embedding memory content: %w", err)
	}

	id := w.ids.GenerateMemoryID()
	now := time.Now()

	entry := &models.SemanticMemory{
		ID:             id,
		Vector:         vector,
		Summary:        models.Truncate(content, models.MaxSemanticSummaryLen),
		Source:         req.Source,
		ConversationID: req.ConversationID,
		ToolName:       req.Metadata["tool_name"],
		Confidence:     confidence,
		CreatedAt:      now,
	}
	if err := w.semantic.Upsert(ctx, entry); err != nil {
		return "", fmt.Errorf("upserting semantic memory: %w", err)
	}

	meta := &models.MemoryMetadata{
		ID:            id,
		Kind:          models.MemorySemantic,
		StoreLocation: models.StoreVector,
		Summary:       content,
		Source:        req.Source,
		Confidence:    confidence,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := w.metadata.Track(ctx, meta); err != nil {
		// compensate: the vector point must not outlive its index row
		if delErr := w.semantic.Delete(ctx, id); delErr != nil {
			slog.WarnContext(ctx, "orphaned semantic point after failed metadata track",
				"memory_id", id, "error", delErr)
		}
		return "", fmt.Errorf("tracking semantic memory: %w", err)
	}
	return id, nil
}

func (w *Writer) writePreference(ctx context.Context, req models.WriteRequest, content string, confidence float64) (string, error) {
	if w.prefs == nil || w.metadata == nil || w.txm == nil {
		return "", domain.ErrStoreUnavailable
	}
	key := strings.TrimSpace(req.Metadata["preference_key"])
	value := strings.TrimSpace(content)
	if key == "" {
		parts := strings.SplitN(content, ":", 2)
		if len(parts) != 2 {
			return "", domain.NewDomainError(domain.ErrInvalidInput,
				"preference content must be \"key: value\" or carry preference_key metadata")
		}
		key = strings.TrimSpace(parts[0])
		value = strings.TrimSpace(parts[1])
	}
	if key == "" || len(key) > models.MaxPreferenceKeyLen {
		return "", domain.NewDomainError(domain.ErrInvalidInput, "invalid preference key")
	}

	source := models.PreferenceVerifierApproved
	if req.Source == models.SourceUserEdit {
		source = models.PreferenceUserEdit
	}

	id := w.ids.GenerateMemoryID()
	now := time.Now()

	err := w.txm.WithTransaction(ctx, func(ctx context.Context) error {
		if err := w.prefs.Upsert(ctx, &models.Preference{
			Key:        key,
			Value:      value,
			Source:     source,
			Confidence: confidence,
		}); err != nil {
			return err
		}
		return w.metadata.Track(ctx, &models.MemoryMetadata{
			ID:            id,
			Kind:          models.MemoryPreference,
			StoreLocation: models.StoreDurable,
			Summary:       fmt.Sprintf("%s: %s", key, models.Truncate(value, 100)),
			Source:        req.Source,
			Confidence:    confidence,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	})
	if err != nil {
		return "", fmt.Errorf("writing preference: %w", err)
	}
	return id, nil
}

func (w *Writer) writeEpisodic(ctx context.Context, req models.WriteRequest, content string, confidence float64) (string, error) {
	if w.episodic == nil || w.metadata == nil || w.txm == nil {
		return "", domain.ErrStoreUnavailable
	}
	actionType := models.ActionType(req.Metadata["action_type"])
	if actionType == "" {
		actionType = models.ActionMemoryWritten
	}
	agent := req.Metadata["agent"]
	if agent == "" {
		agent = "unknown"
	}

	id := w.ids.GenerateMemoryID()
	now := time.Now()

	entry := &models.EpisodicEntry{
		ID:             id,
		Agent:          agent,
		ActionType:     actionType,
		Summary:        models.Truncate(content, models.MaxEpisodicSummaryLen),
		Confidence:     confidence,
		ConversationID: req.ConversationID,
		ToolName:       req.Metadata["tool_name"],
		OccurredAt:     now,
		CreatedAt:      now,
	}

	err := w.txm.WithTransaction(ctx, func(ctx context.Context) error {
		if err := w.episodic.Append(ctx, entry); err != nil {
			return err
		}
		return w.metadata.Track(ctx, &models.MemoryMetadata{
			ID:            id,
			Kind:          models.MemoryEpisodic,
			StoreLocation: models.StoreDurable,
			Summary:       content,
			Source:        req.Source,
			Confidence:    confidence,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	})
	if err != nil {
		return "", fmt.Errorf("writing episodic entry: %w", err)
	}
	return id, nil
}
