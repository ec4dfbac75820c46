package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/slovoapp/slovo/internal/adapters/http/dto"
	"github.com/slovoapp/slovo/internal/ports"
)

const conversationHistoryLimit = 100

// ChatHandler fronts the agent pipeline. The memory manager may be nil
// when the runtime started degraded; conversation history then returns
// 503 while chat itself keeps working.
type ChatHandler struct {
	orchestrator ports.Orchestrator
	memory       ports.MemoryManager
	ids          ports.IDGenerator
}

func NewChatHandler(orchestrator ports.Orchestrator, memory ports.MemoryManager, ids ports.IDGenerator) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		memory:       memory,
		ids:          ids,
	}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[dto.ChatRequest](r, w)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, "invalid_request", "message is required", http.StatusBadRequest)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = h.ids.GenerateConversationID()
	}

	result, err := h.orchestrator.ProcessMessage(r.Context(), req.Message, conversationID)
	if err != nil {
		respondError(w, "pipeline_error", err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, dto.ChatResponse{
		ID:             h.ids.GenerateResultID(),
		Response:       result.Response,
		ConversationID: conversationID,
		Reasoning:      result.Reasoning,
		Confidence:     result.Confidence,
	}, http.StatusOK)
}

// ChatStream runs the full pipeline, then replays the response as SSE
// chunks split on whitespace, terminated with a [DONE] event.
func (h *ChatHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[dto.ChatRequest](r, w)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, "invalid_request", "message is required", http.StatusBadRequest)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = h.ids.GenerateConversationID()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, "streaming_unsupported", "Streaming is not supported", http.StatusInternalServerError)
		return
	}

	result, err := h.orchestrator.ProcessMessage(r.Context(), req.Message, conversationID)
	if err != nil {
		respondError(w, "pipeline_error", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, chunk := range strings.Fields(result.Response) {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		respondError(w, "memory_unavailable", "Memory system is not available", http.StatusServiceUnavailable)
		return
	}
	conversationID, ok := validateURLParam(r, w, "id", "conversation id")
	if !ok {
		return
	}

	turns, err := h.memory.RecentTurns(r.Context(), conversationID, conversationHistoryLimit)
	if err != nil {
		respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, dto.NewConversationResponse(conversationID, turns), http.StatusOK)
}
