package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"personachat/backend/internal/enrichment"
	"personachat/backend/internal/relay"
	"personachat/backend/internal/store"
)

const (
	defaultChatListLimit = 50
	maxChatListLimit     = 100
)

type createChatRequest struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

type updateChatRequest struct {
	Title      *string   `json:"title"`
	Tags       *[]string `json:"tags"`
	IsFavorite *bool     `json:"is_favorite"`
}

type messageRequest struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

type analyzeProfileRequest struct {
	Text string `json:"text"`
}

type chatResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Tags       []string  `json:"tags"`
	IsFavorite bool      `json:"is_favorite"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chat_id"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Model        string    `json:"model_used,omitempty"`
	TokensInput  int       `json:"tokens_input"`
	TokensOutput int       `json:"tokens_output"`
	Cost         float64   `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
}

type transactionResponse struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	MessageID   string    `json:"message_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toChatResponse(chat store.Chat) chatResponse {
	tags := chat.Tags
	if tags == nil {
		tags = []string{}
	}
	return chatResponse{
		ID:         chat.ID,
		Title:      chat.Title,
		Tags:       tags,
		IsFavorite: chat.IsFavorite,
		CreatedAt:  chat.CreatedAt,
		UpdatedAt:  chat.UpdatedAt,
	}
}

func toMessageResponse(msg store.Message) messageResponse {
	return messageResponse{
		ID:           msg.ID,
		ChatID:       msg.ChatID,
		Role:         msg.Role,
		Content:      msg.Content,
		Model:        msg.Model,
		TokensInput:  msg.TokensInput,
		TokensOutput: msg.TokensOutput,
		Cost:         msg.Cost,
		CreatedAt:    msg.CreatedAt,
	}
}

func toMessageResponses(msgs []store.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toMessageResponse(msg))
	}
	return out
}

// parseLimit reads a positive integer query parameter, clamped to max.
func parseLimit(c *gin.Context, key string, fallback, max int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	if parsed > max {
		return max
	}
	return parsed
}

func parseBoolQuery(c *gin.Context, key string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && parsed
}

// writeDomainError maps store, relay and extraction errors onto HTTP statuses.
// Unexpected errors are logged and reported without detail.
func (a *App) writeDomainError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, notFound)
	case errors.Is(err, relay.ErrEmptyMessage):
		writeError(c, http.StatusBadRequest, "Message content is required")
	case errors.Is(err, relay.ErrInsufficientFunds):
		writeError(c, http.StatusPaymentRequired, "Insufficient balance")
	case errors.Is(err, relay.ErrGatewayFailure):
		a.log.Warn("AI provider request failed", "path", c.FullPath(), "error", err)
		writeError(c, http.StatusBadGateway, "AI provider request failed")
	case errors.Is(err, enrichment.ErrExtractionFailure):
		a.log.Warn("Profile extraction failed", "path", c.FullPath(), "error", err)
		writeError(c, http.StatusBadGateway, "Profile extraction failed")
	default:
		a.log.Error("Request failed", "path", c.FullPath(), "error", err)
		writeError(c, http.StatusInternalServerError, "Internal server error")
	}
}
