package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/slovoapp/slovo/internal/domain/models"
)

func seededSessions() *fakeSessions {
	s := &fakeSessions{}
	for i, turn := range []models.ConversationTurn{
		{Role: models.RoleUser, Content: "what is the weather"},
		{Role: models.RoleAssistant, Content: "It is sunny in Berlin."},
		{Role: models.RoleUser, Content: "and tomorrow?"},
	} {
		turn.ID = string(rune('a' + i))
		turn.Timestamp = time.Now()
		_ = s.AppendTurn(context.Background(), "conv-1", turn)
	}
	return s
}

func TestRetrieveComposesSections(t *testing.T) {
	semantic := &fakeSemantic{hits: []*models.ScoredSemanticMemory{
		{Memory: &models.SemanticMemory{Summary: "user lives in Berlin", Confidence: 0.9}, Score: 0.8},
	}}
	episodic := &fakeEpisodic{entries: []*models.EpisodicEntry{
		{Agent: "executor", Summary: "ran weather tool", Confidence: 0.9},
		{Agent: "verifier", Summary: "low confidence step", Confidence: 0.4},
	}}

	r := NewRetriever(&fakeProfiles{}, seededSessions(), semantic, episodic, &fakeEmbedder{})

	mc, err := r.Retrieve(context.Background(), models.RetrievalRequest{
		UserMessage:    "weather tomorrow",
		ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if mc.ProfileSummary != "User preferences: Languages: en; Style: friendly." {
		t.Errorf("profile section = %q", mc.ProfileSummary)
	}
	if !strings.HasPrefix(mc.ConversationSummary, "Recent conversation:") {
		t.Errorf("conversation section = %q", mc.ConversationSummary)
	}
	if !strings.Contains(mc.ConversationSummary, "- User: what is the weather") ||
		!strings.Contains(mc.ConversationSummary, "- Assistant: It is sunny in Berlin.") {
		t.Errorf("conversation lines missing: %q", mc.ConversationSummary)
	}
	if mc.SemanticSummary != "Relevant context:\n- user lives in Berlin" {
		t.Errorf("semantic section = %q", mc.SemanticSummary)
	}
	if mc.EpisodicSummary != "Recent actions:\n- [executor] ran weather tool" {
		t.Errorf("episodic section = %q", mc.EpisodicSummary)
	}
	if mc.TotalTokenEstimate <= 0 {
		t.Error("token estimate not computed")
	}
	if mc.IsEmpty() {
		t.Error("context reported empty")
	}
}

func TestRetrieveSectionFailureDegradesToEmpty(t *testing.T) {
	r := NewRetriever(
		&fakeProfiles{getErr: errors.New("pg down")},
		seededSessions(),
		&fakeSemantic{searchErr: errors.New("qdrant down")},
		&fakeEpisodic{recentErr: errors.New("pg down")},
		&fakeEmbedder{},
	)

	mc, err := r.Retrieve(context.Background(), models.RetrievalRequest{
		UserMessage:    "hello",
		ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if mc.ProfileSummary != "" || mc.SemanticSummary != "" || mc.EpisodicSummary != "" {
		t.Errorf("failed sections not empty: %+v", mc)
	}
	if mc.ConversationSummary == "" {
		t.Error("healthy section dropped with the failed ones")
	}
}

func TestRetrieveCaptureDisabledNote(t *testing.T) {
	profile := models.DefaultUserProfile()
	profile.MemoryCaptureEnabled = false

	r := NewRetriever(&fakeProfiles{profile: profile}, &fakeSessions{}, &fakeSemantic{}, &fakeEpisodic{}, nil)

	mc, err := r.Retrieve(context.Background(), models.RetrievalRequest{UserMessage: "hi"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(mc.ProfileSummary, "Memory capture: disabled") {
		t.Errorf("profile section = %q", mc.ProfileSummary)
	}
}

func TestRetrieveBudgetTruncatesSections(t *testing.T) {
	long := strings.Repeat("verylongword ", 200)
	s := &fakeSessions{}
	_ = s.AppendTurn(context.Background(), "conv-1", models.ConversationTurn{
		ID: "t1", Role: models.RoleUser, Content: long, Timestamp: time.Now(),
	})

	r := NewRetriever(&fakeProfiles{}, s, &fakeSemantic{}, &fakeEpisodic{}, nil)

	mc, err := r.Retrieve(context.Background(), models.RetrievalRequest{
		UserMessage:    "hi",
		ConversationID: "conv-1",
		TokenLimit:     MinTokenLimit,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	// conversation budget at the floor: 100 tokens * 25% * 4 chars
	if got := len(mc.ConversationSummary); got > 100 {
		t.Errorf("conversation section length = %d, want <= 100", got)
	}
}

func TestRetrieveMultibyteStaysWithinTokenLimit(t *testing.T) {
	cyrillic := strings.Repeat("пользователь предпочитает метрические единицы ", 40)

	profile := models.DefaultUserProfile()
	profile.CommunicationStyle = cyrillic
	s := &fakeSessions{}
	_ = s.AppendTurn(context.Background(), "conv-1", models.ConversationTurn{
		ID: "t1", Role: models.RoleUser, Content: cyrillic, Timestamp: time.Now(),
	})
	semantic := &fakeSemantic{hits: []*models.ScoredSemanticMemory{
		{Memory: &models.SemanticMemory{Summary: cyrillic, Confidence: 0.9}, Score: 0.8},
	}}
	episodic := &fakeEpisodic{entries: []*models.EpisodicEntry{
		{Agent: "executor", Summary: cyrillic, Confidence: 0.9},
	}}

	r := NewRetriever(&fakeProfiles{profile: profile}, s, semantic, episodic, &fakeEmbedder{})

	mc, err := r.Retrieve(context.Background(), models.RetrievalRequest{
		UserMessage:    "что ты помнишь",
		ConversationID: "conv-1",
		TokenLimit:     MinTokenLimit,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if mc.TotalTokenEstimate > MinTokenLimit {
		t.Errorf("token estimate = %d, want <= %d", mc.TotalTokenEstimate, MinTokenLimit)
	}
}

func TestRetrieveWithoutEmbedderSkipsSemantic(t *testing.T) {
	semantic := &fakeSemantic{hits: []*models.ScoredSemanticMemory{
		{Memory: &models.SemanticMemory{Summary: "should not appear"}},
	}}
	r := NewRetriever(&fakeProfiles{}, &fakeSessions{}, semantic, &fakeEpisodic{}, nil)

	mc, err := r.Retrieve(context.Background(), models.RetrievalRequest{UserMessage: "hi"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if mc.SemanticSummary != "" {
		t.Errorf("semantic section = %q, want empty", mc.SemanticSummary)
	}
}

func TestRetrieveWithoutStoresIsEmpty(t *testing.T) {
	r := NewRetriever(nil, nil, nil, nil, nil)

	mc, err := r.Retrieve(context.Background(), models.RetrievalRequest{
		UserMessage:    "hi",
		ConversationID: "conv-1",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if mc.ProfileSummary != "" || mc.ConversationSummary != "" ||
		mc.SemanticSummary != "" || mc.EpisodicSummary != "" {
		t.Errorf("context = %+v, want all sections empty", mc)
	}
	if mc.TotalTokenEstimate != 0 {
		t.Errorf("token estimate = %d, want 0", mc.TotalTokenEstimate)
	}
}

func TestEpisodicSectionFiltersAndCaps(t *testing.T) {
	episodic := &fakeEpisodic{entries: []*models.EpisodicEntry{
		{Agent: "a", Summary: "one", Confidence: 0.9},
		{Agent: "b", Summary: "two", Confidence: 0.3},
		{Agent: "c", Summary: "three", Confidence: 0.8},
		{Agent: "d", Summary: "four", Confidence: 0.7},
		{Agent: "e", Summary: "five", Confidence: 0.95},
	}}
	r := NewRetriever(&fakeProfiles{}, &fakeSessions{}, &fakeSemantic{}, episodic, nil)

	text, err := r.episodicSection(context.Background(), 5)
	if err != nil {
		t.Fatalf("episodicSection: %v", err)
	}
	if strings.Contains(text, "two") {
		t.Error("low-confidence entry surfaced")
	}
	if got := strings.Count(text, "\n- "); got != 3 {
		t.Errorf("entries = %d, want 3", got)
	}
}
