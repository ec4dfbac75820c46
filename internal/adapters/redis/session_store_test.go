package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/slovoapp/slovo/internal/domain/models"
)

func TestKeyLayout(t *testing.T) {
	if got := turnListKey("conv-1"); got != "turn:list:conv-1" {
		t.Errorf("turnListKey = %q", got)
	}
	if got := sessionKey("ss_abc"); got != "session:ss_abc" {
		t.Errorf("sessionKey = %q", got)
	}
	if got := toolOutputKey("ss_abc", "weather"); got != "tool_output:ss_abc:weather" {
		t.Errorf("toolOutputKey = %q", got)
	}
}

func TestTurnCodecRoundTrip(t *testing.T) {
	turn := models.ConversationTurn{
		ID:        "turn-1",
		Role:      models.RoleUser,
		Content:   "what's the weather",
		Timestamp: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}

	encoded, err := msgpack.Marshal(turn)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded models.ConversationTurn
	if err := msgpack.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != turn.ID || decoded.Role != turn.Role || decoded.Content != turn.Content {
		t.Errorf("decoded = %+v, want %+v", decoded, turn)
	}
	if !decoded.Timestamp.Equal(turn.Timestamp) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, turn.Timestamp)
	}
}

// Integration coverage below needs a running redis; set TEST_REDIS_URL
// to enable it.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	store, err := NewStore(url, time.Minute)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		store.ClearAll(context.Background())
		store.Close()
	})
	return store
}

func TestAppendAndRecentTurns(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	for i, content := range []string{"first", "second", "third"} {
		turn := models.ConversationTurn{
			ID:        string(rune('a' + i)),
			Role:      models.RoleUser,
			Content:   content,
			Timestamp: time.Now(),
		}
		if err := store.AppendTurn(ctx, "conv-it", turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	turns, err := store.RecentTurns(ctx, "conv-it", 2)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Content != "second" || turns[1].Content != "third" {
		t.Errorf("unexpected order: %q, %q", turns[0].Content, turns[1].Content)
	}

	count, err := store.ClearTurns(ctx, "conv-it")
	if err != nil {
		t.Fatalf("ClearTurns: %v", err)
	}
	if count != 3 {
		t.Errorf("cleared count = %d, want 3", count)
	}
}

func TestSessionContextRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	sc := &models.SessionContext{
		SessionID:      "ss_test",
		ConversationID: "conv-it",
		AgentState:     map[string]any{"stage": "planning"},
		TTLSeconds:     60,
	}
	if err := store.SaveContext(ctx, sc); err != nil {
		t.Fatalf("SaveContext: %v", err)
	}

	got, err := store.GetContext(ctx, "ss_test")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if got.ConversationID != "conv-it" || got.AgentState["stage"] != "planning" {
		t.Errorf("unexpected context: %+v", got)
	}
}

func TestToolOutputRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	if err := store.SetToolOutput(ctx, "ss_test", "weather", map[string]any{"temp": 21}); err != nil {
		t.Fatalf("SetToolOutput: %v", err)
	}
	out, err := store.GetToolOutput(ctx, "ss_test", "weather")
	if err != nil {
		t.Fatalf("GetToolOutput: %v", err)
	}
	if out == nil {
		t.Error("expected decoded output")
	}
}
