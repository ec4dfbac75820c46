package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/slovoapp/slovo/internal/adapters/http/dto"
	"github.com/slovoapp/slovo/internal/adapters/id"
	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

type fakeOrchestrator struct {
	result *ports.PipelineResult
	err    error
	lastID string
}

func (f *fakeOrchestrator) ProcessMessage(ctx context.Context, text, conversationID string) (*ports.PipelineResult, error) {
	f.lastID = conversationID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeMemory struct {
	turns    map[string][]models.ConversationTurn
	items    []*models.MemoryMetadata
	detail   *ports.MemoryDetail
	profile  *models.UserProfile
	updated  *models.UserProfile
	getErr   error
	updErr   error
	delErr   error
	resetErr error
	deleted  []string
	lastOpts ports.MemoryListOptions
}

var _ ports.MemoryManager = (*fakeMemory)(nil)

func newHandlerMemory() *fakeMemory {
	return &fakeMemory{
		turns:   map[string][]models.ConversationTurn{},
		profile: models.DefaultUserProfile(),
	}
}

func (f *fakeMemory) Retrieve(ctx context.Context, req models.RetrievalRequest) (*models.MemoryContext, error) {
	return &models.MemoryContext{}, nil
}

func (f *fakeMemory) StoreTurn(ctx context.Context, conversationID string, turn models.ConversationTurn) error {
	f.turns[conversationID] = append(f.turns[conversationID], turn)
	return nil
}

func (f *fakeMemory) RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error) {
	return f.turns[conversationID], nil
}

func (f *fakeMemory) Write(ctx context.Context, req models.WriteRequest, approval models.VerifierApproval) (*models.WriteResult, error) {
	return &models.WriteResult{Success: true}, nil
}

func (f *fakeMemory) WriteDirect(ctx context.Context, req models.WriteRequest) (*models.WriteResult, error) {
	return &models.WriteResult{Success: true}, nil
}

func (f *fakeMemory) Profile(ctx context.Context) (*models.UserProfile, error) {
	return f.profile, nil
}

func (f *fakeMemory) UpdateProfile(ctx context.Context, profile *models.UserProfile) error {
	f.updated = profile
	return nil
}

func (f *fakeMemory) List(ctx context.Context, opts ports.MemoryListOptions) ([]*models.MemoryMetadata, int, error) {
	f.lastOpts = opts
	return f.items, len(f.items), nil
}

func (f *fakeMemory) Get(ctx context.Context, id string) (*ports.MemoryDetail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.detail, nil
}

func (f *fakeMemory) Update(ctx context.Context, id string, content *string, confidence *float64) error {
	return f.updErr
}

func (f *fakeMemory) Delete(ctx context.Context, id string, confirm bool) error {
	if !confirm {
		return domain.ErrDeleteNotConfirmed
	}
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMemory) Reset(ctx context.Context, confirm, preserveProfile bool) (*ports.ResetResult, error) {
	if !confirm {
		return nil, domain.ErrResetNotConfirmed
	}
	if f.resetErr != nil {
		return nil, f.resetErr
	}
	return &ports.ResetResult{Success: true, EphemeralCleared: true, VectorCleared: true, DurableCleared: true}, nil
}

func (f *fakeMemory) Health(ctx context.Context) *ports.MemoryHealth {
	return &ports.MemoryHealth{Ephemeral: true, Vector: true, Durable: true}
}

func testRouter(memory ports.MemoryManager, orchestrator ports.Orchestrator) *chi.Mux {
	chatH := NewChatHandler(orchestrator, memory, id.New())
	memH := NewMemoryHandler(memory)

	r := chi.NewRouter()
	r.Post("/api/v1/chat", chatH.Chat)
	r.Post("/api/v1/chat/stream", chatH.ChatStream)
	r.Get("/api/v1/conversation/{id}", chatH.GetConversation)
	r.Get("/api/v1/memory", memH.List)
	r.Post("/api/v1/memory/reset", memH.Reset)
	r.Get("/api/v1/memory/profile", memH.GetProfile)
	r.Put("/api/v1/memory/profile", memH.UpdateProfile)
	r.Get("/api/v1/memory/health", memH.Health)
	r.Get("/api/v1/memory/{id}", memH.Get)
	r.Put("/api/v1/memory/{id}", memH.Update)
	r.Delete("/api/v1/memory/{id}", memH.Delete)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthHandler(t *testing.T) {
	handler := NewHealthHandler("0.1.0")

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	var response HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "healthy" || response.Version != "0.1.0" {
		t.Errorf("response = %+v", response)
	}
	if response.UptimeSeconds < 0 {
		t.Errorf("uptime = %v", response.UptimeSeconds)
	}
}

func TestChatGeneratesConversationID(t *testing.T) {
	orch := &fakeOrchestrator{result: &ports.PipelineResult{Response: "Hello!", Confidence: 1.0}}
	router := testRouter(newHandlerMemory(), orch)

	rr := doJSON(t, router, "POST", "/api/v1/chat", dto.ChatRequest{Message: "hi"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp dto.ChatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "Hello!" || resp.ConversationID == "" || resp.ID == "" {
		t.Errorf("response = %+v", resp)
	}
	if orch.lastID != resp.ConversationID {
		t.Errorf("orchestrator saw %q, response says %q", orch.lastID, resp.ConversationID)
	}
}

func TestChatKeepsProvidedConversationID(t *testing.T) {
	orch := &fakeOrchestrator{result: &ports.PipelineResult{Response: "ok"}}
	router := testRouter(newHandlerMemory(), orch)

	rr := doJSON(t, router, "POST", "/api/v1/chat", dto.ChatRequest{Message: "hi", ConversationID: "conv-7"})

	var resp dto.ChatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != "conv-7" || orch.lastID != "conv-7" {
		t.Errorf("conversation id not preserved: %+v", resp)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	router := testRouter(newHandlerMemory(), &fakeOrchestrator{result: &ports.PipelineResult{}})

	rr := doJSON(t, router, "POST", "/api/v1/chat", dto.ChatRequest{Message: "   "})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
	var errResp dto.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Error != "invalid_request" {
		t.Errorf("error = %q", errResp.Error)
	}
}

func TestChatStreamEmitsChunksAndDone(t *testing.T) {
	orch := &fakeOrchestrator{result: &ports.PipelineResult{Response: "three word answer"}}
	router := testRouter(newHandlerMemory(), orch)

	rr := doJSON(t, router, "POST", "/api/v1/chat/stream", dto.ChatRequest{Message: "talk to me"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{"data: three\n\n", "data: word\n\n", "data: answer\n\n", "data: [DONE]\n\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in stream:\n%s", want, body)
		}
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Error("[DONE] is not the final event")
	}
}

func TestGetConversationReturnsTurns(t *testing.T) {
	memory := newHandlerMemory()
	memory.turns["conv-1"] = []models.ConversationTurn{
		{ID: "t1", Role: models.RoleUser, Content: "hello", Timestamp: time.Now()},
		{ID: "t2", Role: models.RoleAssistant, Content: "hi", Timestamp: time.Now()},
	}
	router := testRouter(memory, &fakeOrchestrator{})

	rr := doJSON(t, router, "GET", "/api/v1/conversation/conv-1", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp dto.ConversationResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != "conv-1" || len(resp.Messages) != 2 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Messages[0].Role != "user" || resp.Messages[1].Role != "assistant" {
		t.Errorf("roles = %v %v", resp.Messages[0].Role, resp.Messages[1].Role)
	}
}

func TestMemoryListPassesFilters(t *testing.T) {
	memory := newHandlerMemory()
	memory.items = []*models.MemoryMetadata{{ID: "mem-1", Kind: models.MemorySemantic, Summary: "likes jazz"}}
	router := testRouter(memory, &fakeOrchestrator{})

	rr := doJSON(t, router, "GET", "/api/v1/memory?type=semantic&limit=10&offset=5&include_deleted=true", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if memory.lastOpts.Kind != models.MemorySemantic || memory.lastOpts.Limit != 10 ||
		memory.lastOpts.Offset != 5 || !memory.lastOpts.IncludeDeleted {
		t.Errorf("opts = %+v", memory.lastOpts)
	}
	var resp dto.MemoryListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalCount != 1 || len(resp.Items) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestMemoryGetNotFound(t *testing.T) {
	memory := newHandlerMemory()
	memory.getErr = domain.ErrMemoryNotFound
	router := testRouter(memory, &fakeOrchestrator{})

	rr := doJSON(t, router, "GET", "/api/v1/memory/mem-x", nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	var errResp dto.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Error != "not_found" || errResp.Message != "Memory mem-x not found" {
		t.Errorf("error = %+v", errResp)
	}
}

func TestMemoryDeleteRequiresConfirm(t *testing.T) {
	memory := newHandlerMemory()
	router := testRouter(memory, &fakeOrchestrator{})

	rr := doJSON(t, router, "DELETE", "/api/v1/memory/mem-1", dto.MemoryDeleteRequest{Confirm: false})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var errResp dto.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Message != "Deletion requires confirm=true" {
		t.Errorf("message = %q", errResp.Message)
	}

	rr = doJSON(t, router, "DELETE", "/api/v1/memory/mem-1", dto.MemoryDeleteRequest{Confirm: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("confirmed delete status = %d", rr.Code)
	}
	if len(memory.deleted) != 1 || memory.deleted[0] != "mem-1" {
		t.Errorf("deleted = %v", memory.deleted)
	}
}

func TestMemoryUpdateEpisodicRejected(t *testing.T) {
	memory := newHandlerMemory()
	memory.updErr = domain.ErrEpisodicImmutable
	router := testRouter(memory, &fakeOrchestrator{})

	content := "new content"
	rr := doJSON(t, router, "PUT", "/api/v1/memory/mem-1", dto.MemoryUpdateRequest{Content: &content})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestMemoryResetRequiresConfirm(t *testing.T) {
	router := testRouter(newHandlerMemory(), &fakeOrchestrator{})

	rr := doJSON(t, router, "POST", "/api/v1/memory/reset", dto.MemoryResetRequest{ConfirmFullReset: false})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var errResp dto.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Message != "Full reset requires confirm_full_reset=true" {
		t.Errorf("message = %q", errResp.Message)
	}

	rr = doJSON(t, router, "POST", "/api/v1/memory/reset", dto.MemoryResetRequest{ConfirmFullReset: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("confirmed reset status = %d", rr.Code)
	}
	var result ports.ResetResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || !result.VectorCleared {
		t.Errorf("result = %+v", result)
	}
}

func TestMemoryRoutesUnavailableWithoutManager(t *testing.T) {
	router := testRouter(nil, &fakeOrchestrator{result: &ports.PipelineResult{Response: "still works"}})

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/v1/memory"},
		{"GET", "/api/v1/memory/mem-1"},
		{"GET", "/api/v1/memory/profile"},
		{"GET", "/api/v1/memory/health"},
		{"GET", "/api/v1/conversation/conv-1"},
	} {
		rr := doJSON(t, router, tc.method, tc.path, nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d", tc.method, tc.path, rr.Code)
		}
		var errResp dto.ErrorResponse
		if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if errResp.Error != "memory_unavailable" {
			t.Errorf("%s: error = %q", tc.path, errResp.Error)
		}
	}

	// chat itself still answers without memory
	rr := doJSON(t, router, "POST", "/api/v1/chat", dto.ChatRequest{Message: "hello"})
	if rr.Code != http.StatusOK {
		t.Errorf("chat without memory: status = %d", rr.Code)
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	memory := newHandlerMemory()
	router := testRouter(memory, &fakeOrchestrator{})

	style := "concise"
	capture := false
	rr := doJSON(t, router, "PUT", "/api/v1/memory/profile", dto.ProfileUpdateRequest{
		CommunicationStyle:   &style,
		MemoryCaptureEnabled: &capture,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if memory.updated == nil {
		t.Fatal("profile not updated")
	}
	if memory.updated.CommunicationStyle != "concise" || memory.updated.MemoryCaptureEnabled {
		t.Errorf("profile = %+v", memory.updated)
	}
	if len(memory.updated.PreferredLanguages) != 1 || memory.updated.PreferredLanguages[0] != "en" {
		t.Errorf("untouched field changed: %v", memory.updated.PreferredLanguages)
	}
}
