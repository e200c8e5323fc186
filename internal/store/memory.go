package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"personachat/backend/internal/profile"
)

// Memory keeps everything in process. One mutex guards all state, which also
// makes CommitTurn and UpdateProfile atomic.
type Memory struct {
	mu           sync.Mutex
	now          func() time.Time
	last         time.Time
	users        map[string]User
	chats        map[string]Chat
	messages     map[string][]Message
	profiles     map[string]profile.Profile
	transactions []Transaction
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		users:    make(map[string]User),
		chats:    make(map[string]Chat),
		messages: make(map[string][]Message),
		profiles: make(map[string]profile.Profile),
	}
}

// tick returns a strictly increasing timestamp so ordering by time is stable.
func (m *Memory) tick() time.Time {
	t := m.now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func (m *Memory) GetUser(_ context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) CreateUser(_ context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	if existing, ok := m.users[user.ID]; ok {
		return existing, nil
	}
	user.CreatedAt = m.tick()
	m.users[user.ID] = user
	if user.Balance != 0 {
		m.transactions = append(m.transactions, Transaction{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			Amount:      user.Balance,
			Type:        TransactionSignup,
			Description: "Signup balance",
			CreatedAt:   user.CreatedAt,
		})
	}
	return user, nil
}

// SetBalance is a test and seeding hook.
func (m *Memory) SetBalance(userID string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[userID]; ok {
		user.Balance = balance
		m.users[userID] = user
	}
}

func (m *Memory) ListTransactions(_ context.Context, userID string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transaction, 0)
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].UserID != userID {
			continue
		}
		out = append(out, m.transactions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ListChats(_ context.Context, userID string, filter ChatFilter) ([]Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Chat, 0)
	for _, chat := range m.chats {
		if chat.UserID != userID || chat.IsDeleted {
			continue
		}
		if filter.FavoritesOnly && !chat.IsFavorite {
			continue
		}
		if filter.Tag != "" && !hasTag(chat.Tags, filter.Tag) {
			continue
		}
		out = append(out, cloneChat(chat))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFavorite != out[j].IsFavorite {
			return out[i].IsFavorite
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Chat{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) CreateChat(_ context.Context, userID, title string, tags []string) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return Chat{}, fmt.Errorf("create chat: user %w", ErrNotFound)
	}
	now := m.tick()
	chat := Chat{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     normalizeTitle(title),
		Tags:      normalizeTags(tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.chats[chat.ID] = chat
	return cloneChat(chat), nil
}

func (m *Memory) GetChat(_ context.Context, userID, chatID string) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.ownedChat(userID, chatID)
	if !ok {
		return Chat{}, ErrNotFound
	}
	return cloneChat(chat), nil
}

func (m *Memory) ownedChat(userID, chatID string) (Chat, bool) {
	chat, ok := m.chats[chatID]
	if !ok || chat.UserID != userID || chat.IsDeleted {
		return Chat{}, false
	}
	return chat, true
}

func (m *Memory) UpdateChat(_ context.Context, userID, chatID string, update ChatUpdate) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.ownedChat(userID, chatID)
	if !ok {
		return Chat{}, ErrNotFound
	}
	if update.Title != nil {
		chat.Title = normalizeTitle(*update.Title)
	}
	if update.Tags != nil {
		chat.Tags = normalizeTags(*update.Tags)
	}
	if update.IsFavorite != nil {
		chat.IsFavorite = *update.IsFavorite
	}
	chat.UpdatedAt = m.tick()
	m.chats[chatID] = chat
	return cloneChat(chat), nil
}

func (m *Memory) DeleteChat(_ context.Context, userID, chatID string, permanent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok || chat.UserID != userID {
		return ErrNotFound
	}
	if permanent {
		delete(m.chats, chatID)
		delete(m.messages, chatID)
		return nil
	}
	if chat.IsDeleted {
		return ErrNotFound
	}
	chat.IsDeleted = true
	chat.UpdatedAt = m.tick()
	m.chats[chatID] = chat
	return nil
}

func (m *Memory) InsertMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[msg.ChatID]
	if !ok {
		return Message{}, fmt.Errorf("insert message: chat %w", ErrNotFound)
	}
	msg = m.appendMessage(msg)
	chat.UpdatedAt = msg.CreatedAt
	m.chats[chat.ID] = chat
	return msg, nil
}

func (m *Memory) appendMessage(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = m.tick()
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], msg)
	return msg
}

func (m *Memory) ListMessages(_ context.Context, chatID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message{}, m.messages[chatID]...), nil
}

func (m *Memory) RecentMessages(_ context.Context, chatID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[chatID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message{}, all...), nil
}

func (m *Memory) CommitTurn(_ context.Context, commit TurnCommit) (TurnResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[commit.UserID]
	if !ok {
		return TurnResult{}, fmt.Errorf("commit turn: user %w", ErrNotFound)
	}
	chat, ok := m.chats[commit.ChatID]
	if !ok {
		return TurnResult{}, fmt.Errorf("commit turn: chat %w", ErrNotFound)
	}
	if user.Balance < commit.MinBalance {
		return TurnResult{}, ErrInsufficientBalance
	}

	msg := commit.Assistant
	msg.ChatID = commit.ChatID
	msg.Role = RoleAssistant
	msg = m.appendMessage(msg)

	user.Balance -= msg.Cost
	m.users[user.ID] = user

	if commit.Title != "" && chat.Title == DefaultChatTitle {
		chat.Title = commit.Title
	}
	chat.UpdatedAt = msg.CreatedAt
	m.chats[chat.ID] = chat

	m.transactions = append(m.transactions, usageTransaction(commit.UserID, msg, msg.CreatedAt))
	return TurnResult{Message: msg, BalanceAfter: user.Balance}, nil
}

func (m *Memory) GetProfile(_ context.Context, userID string) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, ErrNotFound
	}
	return m.profileLocked(userID).Clone(), nil
}

func (m *Memory) profileLocked(userID string) profile.Profile {
	p, ok := m.profiles[userID]
	if !ok {
		p = profile.Profile{}
		m.profiles[userID] = p
	}
	return p
}

func (m *Memory) UpdateProfile(_ context.Context, userID string, fn ProfileMutation) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, ErrNotFound
	}
	next, err := fn(m.profileLocked(userID).Clone())
	if err != nil {
		return nil, err
	}
	m.profiles[userID] = next.Clone()
	return next.Clone(), nil
}

func usageTransaction(userID string, msg Message, at time.Time) Transaction {
	return Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      -msg.Cost,
		Type:        TransactionUsage,
		Description: "Chat message: " + msg.Model,
		MessageID:   msg.ID,
		CreatedAt:   at,
	}
}

func cloneChat(chat Chat) Chat {
	chat.Tags = append([]string{}, chat.Tags...)
	return chat
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}
