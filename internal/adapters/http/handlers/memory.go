package handlers

import (
	"errors"
	"net/http"

	"github.com/slovoapp/slovo/internal/adapters/http/dto"
	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

const defaultMemoryListLimit = 50

type MemoryHandler struct {
	memory ports.MemoryManager
}

func NewMemoryHandler(memory ports.MemoryManager) *MemoryHandler {
	return &MemoryHandler{memory: memory}
}

// available guards every route against a degraded start without the
// memory stores.
func (h *MemoryHandler) available(w http.ResponseWriter) bool {
	if h.memory == nil {
		respondError(w, "memory_unavailable", "Memory system is not available", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	opts := ports.MemoryListOptions{
		Kind:           models.MemoryKind(r.URL.Query().Get("type")),
		Source:         models.MemorySource(r.URL.Query().Get("source")),
		Limit:          parseIntQuery(r, "limit", defaultMemoryListLimit),
		Offset:         parseIntQuery(r, "offset", 0),
		IncludeDeleted: parseBoolQuery(r, "include_deleted", false),
	}

	items, total, err := h.memory.List(r.Context(), opts)
	if err != nil {
		respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []*models.MemoryMetadata{}
	}

	respondJSON(w, dto.MemoryListResponse{
		Items:      items,
		TotalCount: total,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	}, http.StatusOK)
}

func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id, ok := validateURLParam(r, w, "id", "memory id")
	if !ok {
		return
	}

	detail, err := h.memory.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrMemoryNotFound) {
			respondError(w, "not_found", "Memory "+id+" not found", http.StatusNotFound)
			return
		}
		respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, detail, http.StatusOK)
}

func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id, ok := validateURLParam(r, w, "id", "memory id")
	if !ok {
		return
	}
	req, ok := decodeJSON[dto.MemoryUpdateRequest](r, w)
	if !ok {
		return
	}

	if err := h.memory.Update(r.Context(), id, req.Content, req.Confidence); err != nil {
		switch {
		case errors.Is(err, domain.ErrMemoryNotFound):
			respondError(w, "not_found", "Memory "+id+" not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrEpisodicImmutable):
			respondError(w, "invalid_request", "Episodic memories cannot be edited", http.StatusBadRequest)
		default:
			respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, dto.SuccessResponse{Success: true}, http.StatusOK)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id, ok := validateURLParam(r, w, "id", "memory id")
	if !ok {
		return
	}
	req, ok := decodeJSON[dto.MemoryDeleteRequest](r, w)
	if !ok {
		return
	}

	if err := h.memory.Delete(r.Context(), id, req.Confirm); err != nil {
		switch {
		case errors.Is(err, domain.ErrDeleteNotConfirmed):
			respondError(w, "invalid_request", "Deletion requires confirm=true", http.StatusBadRequest)
		case errors.Is(err, domain.ErrMemoryNotFound):
			respondError(w, "not_found", "Memory "+id+" not found", http.StatusNotFound)
		default:
			respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, dto.SuccessResponse{Success: true}, http.StatusOK)
}

func (h *MemoryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	req, ok := decodeJSON[dto.MemoryResetRequest](r, w)
	if !ok {
		return
	}

	result, err := h.memory.Reset(r.Context(), req.ConfirmFullReset, req.PreserveUserProfile)
	if err != nil {
		if errors.Is(err, domain.ErrResetNotConfirmed) {
			respondError(w, "invalid_request", "Full reset requires confirm_full_reset=true", http.StatusBadRequest)
			return
		}
		respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, result, http.StatusOK)
}

func (h *MemoryHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	profile, err := h.memory.Profile(r.Context())
	if err != nil {
		respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, profile, http.StatusOK)
}

func (h *MemoryHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	req, ok := decodeJSON[dto.ProfileUpdateRequest](r, w)
	if !ok {
		return
	}

	profile, err := h.memory.Profile(r.Context())
	if err != nil {
		respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		return
	}
	req.Apply(profile)

	if err := h.memory.UpdateProfile(r.Context(), profile); err != nil {
		respondError(w, "memory_error", err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, profile, http.StatusOK)
}

func (h *MemoryHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	respondJSON(w, h.memory.Health(r.Context()), http.StatusOK)
}
