// Package store persists users, chats, messages, balances and profiles.
//
// Two implementations share the Store contract: Postgres for deployments and
// an in-memory store for local runs and tests.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"personachat/backend/internal/profile"
)

const (
	DefaultChatTitle = "New chat"

	RoleUser      = "user"
	RoleAssistant = "assistant"

	TransactionUsage  = "usage"
	TransactionSignup = "signup"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance is returned by CommitTurn when the conditional
	// decrement finds the balance below the floor. Nothing is written.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type User struct {
	ID        string
	Email     string
	Name      string
	Balance   float64
	CreatedAt time.Time
}

type Chat struct {
	ID         string
	UserID     string
	Title      string
	Tags       []string
	IsFavorite bool
	IsDeleted  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Message struct {
	ID           string
	ChatID       string
	Role         string
	Content      string
	Model        string
	TokensInput  int
	TokensOutput int
	Cost         float64
	CreatedAt    time.Time
}

type Transaction struct {
	ID          string
	UserID      string
	Amount      float64
	Type        string
	Description string
	MessageID   string
	CreatedAt   time.Time
}

// ChatUpdate carries the fields a PATCH may change. Nil means unchanged.
type ChatUpdate struct {
	Title      *string
	Tags       *[]string
	IsFavorite *bool
}

type ChatFilter struct {
	FavoritesOnly bool
	Tag           string
	Limit         int
	Offset        int
}

// TurnCommit is everything written when an assistant reply completes.
type TurnCommit struct {
	UserID    string
	ChatID    string
	Assistant Message
	// MinBalance is the floor the balance must be at or above for the
	// decrement to apply.
	MinBalance float64
	// Title replaces the chat title when non-empty and the chat still has the
	// default title.
	Title string
}

type TurnResult struct {
	Message      Message
	BalanceAfter float64
}

// ProfileMutation receives the current profile and returns the one to store.
type ProfileMutation func(current profile.Profile) (profile.Profile, error)

type Store interface {
	GetUser(ctx context.Context, userID string) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)

	// ListChats orders favorites first, then by last activity.
	ListChats(ctx context.Context, userID string, filter ChatFilter) ([]Chat, error)
	CreateChat(ctx context.Context, userID, title string, tags []string) (Chat, error)
	// GetChat hides soft-deleted chats.
	GetChat(ctx context.Context, userID, chatID string) (Chat, error)
	UpdateChat(ctx context.Context, userID, chatID string, update ChatUpdate) (Chat, error)
	DeleteChat(ctx context.Context, userID, chatID string, permanent bool) error

	InsertMessage(ctx context.Context, msg Message) (Message, error)
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	// RecentMessages returns at most limit messages, oldest first.
	RecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	CommitTurn(ctx context.Context, commit TurnCommit) (TurnResult, error)

	// GetProfile creates an empty profile on first access.
	GetProfile(ctx context.Context, userID string) (profile.Profile, error)
	// UpdateProfile applies fn while holding the profile exclusively, so
	// concurrent updates for the same user serialize.
	UpdateProfile(ctx context.Context, userID string, fn ProfileMutation) (profile.Profile, error)
}

// FirstExchangeTitle derives a chat title from the opening user message.
func FirstExchangeTitle(text string, maxLen int) string {
	trimmed := strings.Join(strings.Fields(text), " ")
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	if maxLen <= 0 || len(runes) <= maxLen {
		return trimmed
	}
	return string(runes[:maxLen]) + "..."
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		t := strings.TrimSpace(tag)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeTitle(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return DefaultChatTitle
}
