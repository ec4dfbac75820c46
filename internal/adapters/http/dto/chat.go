package dto

import (
	"time"

	"github.com/slovoapp/slovo/internal/domain/models"
)

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ChatResponse struct {
	ID             string  `json:"id"`
	Response       string  `json:"response"`
	ConversationID string  `json:"conversation_id"`
	Reasoning      string  `json:"reasoning,omitempty"`
	Confidence     float64 `json:"confidence"`
}

type TurnResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationResponse struct {
	ConversationID string         `json:"conversation_id"`
	Messages       []TurnResponse `json:"messages"`
}

func NewConversationResponse(conversationID string, turns []models.ConversationTurn) *ConversationResponse {
	resp := &ConversationResponse{
		ConversationID: conversationID,
		Messages:       make([]TurnResponse, 0, len(turns)),
	}
	for _, turn := range turns {
		resp.Messages = append(resp.Messages, TurnResponse{
			ID:        turn.ID,
			Role:      string(turn.Role),
			Content:   turn.Content,
			Timestamp: turn.Timestamp,
		})
	}
	return resp
}
