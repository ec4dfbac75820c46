// Package memory implements the three-layer memory subsystem: the
// token-budgeted retriever, the gated writer, and the manager facade
// the rest of the runtime talks to.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/slovoapp/slovo/internal/adapters/metrics"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// Retrieval constants. Budgets are fractions of the request token
// limit; the remainder is headroom for the caller's own prompt text.
const (
	DefaultTokenLimit = 2000
	MinTokenLimit     = 100
	MaxTokenLimit     = 8000

	// CharsPerToken is the crude chars-per-token estimate used for
	// all budgeting
	CharsPerToken = 4

	// SemanticMinConfidence is the floor below which search hits are
	// never surfaced
	SemanticMinConfidence = 0.25

	profileShare      = 0.10
	conversationShare = 0.25
	semanticShare     = 0.40
	episodicShare     = 0.15

	turnContentMaxChars = 200
	episodicMinConf     = 0.7
	episodicKeepMax     = 3
)

// Retriever assembles the memory context for one pipeline run
type Retriever struct {
	profiles ports.ProfileRepository
	sessions ports.SessionStore
	semantic ports.SemanticStore
	episodic ports.EpisodicRepository
	embedder ports.EmbeddingService
}

// NewRetriever builds a retriever. Any store may be nil; a section
// whose store is missing is simply empty.
func NewRetriever(
	profiles ports.ProfileRepository,
	sessions ports.SessionStore,
	semantic ports.SemanticStore,
	episodic ports.EpisodicRepository,
	embedder ports.EmbeddingService,
) *Retriever {
	return &Retriever{
		profiles: profiles,
		sessions: sessions,
		semantic: semantic,
		episodic: episodic,
		embedder: embedder,
	}
}

// Retrieve fetches all four sections concurrently. A failing section
// yields an empty string, never a failed retrieval.
func (r *Retriever) Retrieve(ctx context.Context, req models.RetrievalRequest) (*models.MemoryContext, error) {
	tokenLimit := req.TokenLimit
	if tokenLimit <= 0 {
		tokenLimit = DefaultTokenLimit
	}
	if tokenLimit < MinTokenLimit {
		tokenLimit = MinTokenLimit
	}
	if tokenLimit > MaxTokenLimit {
		tokenLimit = MaxTokenLimit
	}

	budget := func(share float64) int {
		return int(float64(tokenLimit) * share * CharsPerToken)
	}

	mc := &models.MemoryContext{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mc.ProfileSummary = r.section(gctx, "profile", budget(profileShare), r.profileSection)
		return nil
	})
	g.Go(func() error {
		mc.ConversationSummary = r.section(gctx, "conversation", budget(conversationShare), func(ctx context.Context) (string, error) {
			return r.conversationSection(ctx, req.ConversationID)
		})
		return nil
	})
	g.Go(func() error {
		mc.SemanticSummary = r.section(gctx, "semantic", budget(semanticShare), func(ctx context.Context) (string, error) {
			return r.semanticSection(ctx, req.UserMessage, req.MaxSemanticResults)
		})
		return nil
	})
	g.Go(func() error {
		mc.EpisodicSummary = r.section(gctx, "episodic", budget(episodicShare), func(ctx context.Context) (string, error) {
			return r.episodicSection(ctx, req.MaxEpisodicResults)
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	mc.TotalTokenEstimate = estimateTokens(mc.ProfileSummary) +
		estimateTokens(mc.ConversationSummary) +
		estimateTokens(mc.SemanticSummary) +
		estimateTokens(mc.EpisodicSummary)
	return mc, nil
}

// section runs one section fetch, truncates to budget, and degrades
// failures to empty output.
func (r *Retriever) section(ctx context.Context, name string, budgetChars int, fn func(context.Context) (string, error)) string {
	start := time.Now()
	defer func() {
		metrics.MemoryRetrievalDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	text, err := fn(ctx)
	if err != nil {
		slog.WarnContext(ctx, "memory section failed", "section", name, "error", err)
		return ""
	}
	return models.Truncate(text, budgetChars)
}

func (r *Retriever) profileSection(ctx context.Context) (string, error) {
	if r.profiles == nil {
		return "", nil
	}
	profile, err := r.profiles.Get(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("User preferences: Languages: ")
	b.WriteString(strings.Join(profile.PreferredLanguages, ", "))
	b.WriteString("; Style: ")
	b.WriteString(profile.CommunicationStyle)
	if !profile.MemoryCaptureEnabled {
		b.WriteString("; Memory capture: disabled")
	}
	b.WriteString(".")
	return b.String(), nil
}

func (r *Retriever) conversationSection(ctx context.Context, conversationID string) (string, error) {
	if conversationID == "" || r.sessions == nil {
		return "", nil
	}

	turns, err := r.sessions.RecentTurns(ctx, conversationID, 10)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}
	if len(turns) > 5 {
		turns = turns[len(turns)-5:]
	}

	var b strings.Builder
	b.WriteString("Recent conversation:")
	for _, turn := range turns {
		label := "User"
		if turn.Role == models.RoleAssistant {
			label = "Assistant"
		}
		b.WriteString(fmt.Sprintf("\n- %s: %s", label, models.Truncate(turn.Content, turnContentMaxChars)))
	}
	return b.String(), nil
}

func (r *Retriever) semanticSection(ctx context.Context, userMessage string, limit int) (string, error) {
	if r.embedder == nil || r.semantic == nil || userMessage == "" {
		return "", nil
	}
	if limit <= 0 {
		limit = 5
	}

	vector, err := r.embedder.Embed(ctx, userMessage)
	if err != nil {
		return "", err
	}

	hits, err := r.semantic.Search(ctx, ports.SemanticSearchOptions{
		Vector:        vector,
		Limit:         limit,
		MinConfidence: SemanticMinConfidence,
	})
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Relevant context:")
	for _, hit := range hits {
		b.WriteString("\n- ")
		b.WriteString(hit.Memory.Summary)
	}
	return b.String(), nil
}

func (r *Retriever) episodicSection(ctx context.Context, limit int) (string, error) {
	if r.episodic == nil {
		return "", nil
	}
	if limit <= 0 {
		limit = 10
	}

	entries, err := r.episodic.Recent(ctx, limit)
	if err != nil {
		return "", err
	}

	var kept []*models.EpisodicEntry
	for _, entry := range entries {
		if entry.Confidence >= episodicMinConf {
			kept = append(kept, entry)
		}
		if len(kept) >= episodicKeepMax {
			break
		}
	}
	if len(kept) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Recent actions:")
	for _, entry := range kept {
		b.WriteString(fmt.Sprintf("\n- [%s] %s", entry.Agent, entry.Summary))
	}
	return b.String(), nil
}

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	// budgets and truncation count runes, so the estimate must too
	return (utf8.RuneCountInString(s) + CharsPerToken - 1) / CharsPerToken
}
