package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"personachat/backend/internal/gateway"
	"personachat/backend/internal/logger"
	"personachat/backend/internal/pricing"
	"personachat/backend/internal/profile"
	"personachat/backend/internal/store"
)

type recordingScheduler struct {
	mu    sync.Mutex
	calls [][2]string
}

func (r *recordingScheduler) Schedule(userID, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]string{userID, chatID})
}

func (r *recordingScheduler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// capturingClient records the prompt it was given.
type capturingClient struct {
	gateway.MockClient
	mu   sync.Mutex
	last gateway.Request
}

func (c *capturingClient) Stream(ctx context.Context, req gateway.Request) (<-chan gateway.StreamEvent, error) {
	c.mu.Lock()
	c.last = req
	c.mu.Unlock()
	return c.MockClient.Stream(ctx, req)
}

type fixture struct {
	store     *store.Memory
	scheduler *recordingScheduler
	catalog   *pricing.Catalog
	user      store.User
	chat      store.Chat
}

func newFixture(t *testing.T, balance float64) *fixture {
	t.Helper()
	st := store.NewMemory()
	user, err := st.CreateUser(context.Background(), store.User{ID: "user-1", Balance: balance})
	require.NoError(t, err)
	chat, err := st.CreateChat(context.Background(), user.ID, "", nil)
	require.NoError(t, err)
	return &fixture{
		store:     st,
		scheduler: &recordingScheduler{},
		catalog:   pricing.Default(pricing.DefaultExchangeRate),
		user:      user,
		chat:      chat,
	}
}

func (f *fixture) orchestrator(client gateway.Client) *Orchestrator {
	return New(f.store, client, f.catalog, f.scheduler, logger.Nop(), Options{
		DefaultModel: "openai/gpt-4o-mini",
		MinBalance:   0.01,
		HistoryLimit: 20,
	})
}

func (f *fixture) request(content string) TurnRequest {
	user, _ := f.store.GetUser(context.Background(), f.user.ID)
	return TurnRequest{
		UserID:  f.user.ID,
		ChatID:  f.chat.ID,
		Content: content,
		Model:   "openai/gpt-4o",
		Balance: user.Balance,
	}
}

func collectEvents(t *testing.T, o *Orchestrator, req TurnRequest) ([]Event, error) {
	t.Helper()
	var events []Event
	err := o.Stream(context.Background(), req, func(ev Event) { events = append(events, ev) })
	return events, err
}

func TestStreamEmitsOrderedEventsAndCommits(t *testing.T) {
	f := newFixture(t, 1)
	o := f.orchestrator(gateway.MockClient{
		Chunks: []string{"Hel", "", "lo"},
		Usage:  gateway.Usage{InputTokens: 12, OutputTokens: 2},
	})

	events, err := collectEvents(t, o, f.request("Say hello"))
	require.NoError(t, err)

	wantCost := f.catalog.Cost("openai/gpt-4o", 12, 2)
	require.Len(t, events, 4)
	require.Equal(t, Event{Type: EventStart, Model: "openai/gpt-4o"}, events[0])
	require.Equal(t, Event{Type: EventContent, Content: "Hel"}, events[1])
	require.Equal(t, Event{Type: EventContent, Content: "lo"}, events[2])

	end := events[3]
	require.Equal(t, EventEnd, end.Type)
	require.NotEmpty(t, end.MessageID)
	require.Equal(t, &Tokens{Input: 12, Output: 2}, end.Tokens)
	require.NotNil(t, end.Cost)
	require.Equal(t, wantCost, *end.Cost)

	msgs, err := f.store.ListMessages(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, store.RoleUser, msgs[0].Role)
	require.Equal(t, "Hello", msgs[1].Content)
	require.Equal(t, end.MessageID, msgs[1].ID)
	require.Equal(t, wantCost, msgs[1].Cost)

	user, err := f.store.GetUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.InDelta(t, 1-wantCost, user.Balance, 1e-12)

	chat, err := f.store.GetChat(context.Background(), f.user.ID, f.chat.ID)
	require.NoError(t, err)
	require.Equal(t, "Say hello", chat.Title)

	require.Equal(t, 1, f.scheduler.count())
}

func TestStreamRejectsInsufficientBalanceBeforeAnyWrite(t *testing.T) {
	f := newFixture(t, 0)
	o := f.orchestrator(gateway.MockClient{})

	events, err := collectEvents(t, o, f.request("Hello there"))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Empty(t, events)

	msgs, err := f.store.ListMessages(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)

	user, err := f.store.GetUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Zero(t, user.Balance)
	require.Zero(t, f.scheduler.count())
}

func TestStreamGatewayFailureKeepsUserMessageOnly(t *testing.T) {
	f := newFixture(t, 1)
	o := f.orchestrator(gateway.MockClient{Chunks: []string{"par"}, Err: errors.New("upstream reset")})

	events, err := collectEvents(t, o, f.request("Tell me something"))
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, EventStart, events[0].Type)
	require.Equal(t, EventContent, events[1].Type)
	require.Equal(t, EventError, events[2].Type)
	require.Contains(t, events[2].Error, "upstream reset")

	msgs, err := f.store.ListMessages(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, store.RoleUser, msgs[0].Role)

	user, err := f.store.GetUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Equal(t, 1.0, user.Balance)
	require.Zero(t, f.scheduler.count())
}

func TestStreamTitlesChatAfterFailedFirstTurn(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	failing := f.orchestrator(gateway.MockClient{Err: errors.New("upstream reset")})
	events, err := collectEvents(t, failing, f.request("First attempt that fails"))
	require.NoError(t, err)
	require.Equal(t, EventError, events[len(events)-1].Type)

	working := f.orchestrator(gateway.MockClient{Usage: gateway.Usage{InputTokens: 1, OutputTokens: 1}})
	events, err = collectEvents(t, working, f.request("Second attempt"))
	require.NoError(t, err)
	require.Equal(t, EventEnd, events[len(events)-1].Type)

	chat, err := f.store.GetChat(ctx, f.user.ID, f.chat.ID)
	require.NoError(t, err)
	require.Equal(t, "Second attempt", chat.Title)

	events, err = collectEvents(t, working, f.request("Third question"))
	require.NoError(t, err)
	require.Equal(t, EventEnd, events[len(events)-1].Type)
	chat, err = f.store.GetChat(ctx, f.user.ID, f.chat.ID)
	require.NoError(t, err)
	require.Equal(t, "Second attempt", chat.Title)
}

func TestStreamCommitRaceReportsInsufficientFunds(t *testing.T) {
	f := newFixture(t, 1)
	o := f.orchestrator(gateway.MockClient{Usage: gateway.Usage{InputTokens: 1, OutputTokens: 1}})

	req := f.request("Drained while streaming")
	f.store.SetBalance(f.user.ID, 0)

	events, err := collectEvents(t, o, req)
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Type)
	require.Equal(t, "Insufficient balance", last.Error)

	msgs, err := f.store.ListMessages(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestStreamUnknownChat(t *testing.T) {
	f := newFixture(t, 1)
	o := f.orchestrator(gateway.MockClient{})

	req := f.request("Hello there")
	req.ChatID = "missing"
	events, err := collectEvents(t, o, req)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, events)
}

func TestStreamComposesProfileAndBoundedHistory(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		_, err := f.store.InsertMessage(ctx, store.Message{ChatID: f.chat.ID, Role: role, Content: "old"})
		require.NoError(t, err)
	}
	client := &capturingClient{MockClient: gateway.MockClient{Usage: gateway.Usage{InputTokens: 5, OutputTokens: 5}}}
	o := f.orchestrator(client)

	req := f.request("newest question")
	req.Model = ""
	req.Profile = profile.Profile{profile.Interests: {"chess"}}
	events, err := collectEvents(t, o, req)
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-4o-mini", events[0].Model)

	client.mu.Lock()
	sent := client.last
	client.mu.Unlock()
	require.Len(t, sent.Messages, 21)
	require.Equal(t, gateway.RoleSystem, sent.Messages[0].Role)
	require.Contains(t, sent.Messages[0].Content, "Interests: chess")
	require.Equal(t, "newest question", sent.Messages[20].Content)

	chat, err := f.store.GetChat(ctx, f.user.ID, f.chat.ID)
	require.NoError(t, err)
	require.Equal(t, store.DefaultChatTitle, chat.Title, "title is derived on the first exchange only")
}

func TestSendCommitsAndSchedules(t *testing.T) {
	f := newFixture(t, 1)
	o := f.orchestrator(gateway.MockClient{Usage: gateway.Usage{InputTokens: 1000, OutputTokens: 1000}})

	req := f.request("A question long enough to title the chat, and then some more words")
	req.Model = "openai/gpt-4-turbo"
	reply, err := o.Send(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 3.6, reply.Assistant.Cost)
	require.InDelta(t, -2.6, reply.BalanceAfter, 1e-9)
	require.Equal(t, "Mock response: "+req.Content, reply.Assistant.Content)
	require.Equal(t, 1, f.scheduler.count())

	chat, err := f.store.GetChat(context.Background(), f.user.ID, f.chat.ID)
	require.NoError(t, err)
	require.Equal(t, "A question long enough to title the chat, and then...", chat.Title)
}

func TestSendGatewayFailure(t *testing.T) {
	f := newFixture(t, 1)
	o := f.orchestrator(gateway.MockClient{Err: errors.New("timeout")})

	reply, err := o.Send(context.Background(), f.request("Anything at all"))
	require.ErrorIs(t, err, ErrGatewayFailure)
	require.NotEmpty(t, reply.UserMessage.ID)
	require.Empty(t, reply.Assistant.ID)
	require.Zero(t, f.scheduler.count())
}

func TestEmitterDropsEventsAfterTerminal(t *testing.T) {
	var got []Event
	out := &emitter{emit: func(ev Event) { got = append(got, ev) }}
	out.send(Event{Type: EventStart})
	out.send(Event{Type: EventError, Error: "x"})
	out.send(Event{Type: EventContent, Content: "late"})
	out.send(Event{Type: EventEnd})
	require.Len(t, got, 2)
}
