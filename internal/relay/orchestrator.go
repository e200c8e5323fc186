// Package relay drives one chat turn from the user's message to the committed
// assistant reply.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"personachat/backend/internal/gateway"
	"personachat/backend/internal/logger"
	"personachat/backend/internal/pricing"
	"personachat/backend/internal/profile"
	"personachat/backend/internal/prompt"
	"personachat/backend/internal/store"
)

const (
	DefaultMinBalance     = 0.01
	DefaultTitleMaxLength = 50
)

// Store is the part of store.Store a turn touches.
type Store interface {
	GetChat(ctx context.Context, userID, chatID string) (store.Chat, error)
	InsertMessage(ctx context.Context, msg store.Message) (store.Message, error)
	RecentMessages(ctx context.Context, chatID string, limit int) ([]store.Message, error)
	CommitTurn(ctx context.Context, commit store.TurnCommit) (store.TurnResult, error)
}

// Scheduler receives committed turns for background profile enrichment.
type Scheduler interface {
	Schedule(userID, chatID string)
}

type Options struct {
	DefaultModel   string
	MinBalance     float64
	HistoryLimit   int
	TitleMaxLength int
	MaxTokens      int
}

type TurnRequest struct {
	UserID  string
	ChatID  string
	Content string
	Model   string
	// Profile may be nil.
	Profile profile.Profile
	Balance float64
}

type Reply struct {
	UserMessage  store.Message
	Assistant    store.Message
	BalanceAfter float64
}

type Orchestrator struct {
	store    Store
	gateway  gateway.Client
	catalog  *pricing.Catalog
	composer prompt.Composer
	enrich   Scheduler
	log      *logger.Logger
	tracer   trace.Tracer
	opts     Options
}

func New(st Store, gw gateway.Client, catalog *pricing.Catalog, enrich Scheduler, baseLog *logger.Logger, opts Options) *Orchestrator {
	if opts.MinBalance <= 0 {
		opts.MinBalance = DefaultMinBalance
	}
	if opts.TitleMaxLength <= 0 {
		opts.TitleMaxLength = DefaultTitleMaxLength
	}
	if catalog == nil {
		catalog = pricing.Default(pricing.DefaultExchangeRate)
	}
	return &Orchestrator{
		store:    st,
		gateway:  gw,
		catalog:  catalog,
		composer: prompt.New(opts.HistoryLimit),
		enrich:   enrich,
		log:      baseLog.With("component", "Relay"),
		tracer:   otel.Tracer("personachat/relay"),
		opts:     opts,
	}
}

// turn is the state carried from Init to Commit.
type turn struct {
	req         TurnRequest
	model       string
	prompt      []gateway.Message
	title       string
	userMessage store.Message
}

// Stream runs one turn and reports it through emit as start, content*, then
// end or error. The returned error is non-nil only when the turn failed before
// start was emitted; later failures are delivered as the error event.
func (o *Orchestrator) Stream(ctx context.Context, req TurnRequest, emit func(Event)) error {
	ctx, span := o.tracer.Start(ctx, "relay.stream", trace.WithAttributes(
		attribute.String("chat.id", req.ChatID),
		attribute.String("llm.model", o.modelFor(req)),
	))
	defer span.End()

	t, err := o.begin(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return err
	}

	out := &emitter{emit: emit}
	out.send(Event{Type: EventStart, Model: t.model})

	reply, usage, err := o.collect(ctx, t, out)
	if err == nil {
		var result store.TurnResult
		result, err = o.finish(ctx, t, reply, usage)
		if err == nil {
			cost := result.Message.Cost
			span.SetAttributes(
				attribute.Int("llm.tokens_input", result.Message.TokensInput),
				attribute.Int("llm.tokens_output", result.Message.TokensOutput),
			)
			out.send(Event{
				Type:      EventEnd,
				MessageID: result.Message.ID,
				Tokens:    &Tokens{Input: result.Message.TokensInput, Output: result.Message.TokensOutput},
				Cost:      &cost,
			})
			return nil
		}
	}

	recordSpanError(span, err)
	o.log.Warn("Turn failed", "chat_id", req.ChatID, "user_id", req.UserID, "model", t.model, "error", err)
	out.send(Event{Type: EventError, Error: userFacing(err)})
	return nil
}

// Send is the blocking form of Stream with the same persistence rules.
func (o *Orchestrator) Send(ctx context.Context, req TurnRequest) (Reply, error) {
	ctx, span := o.tracer.Start(ctx, "relay.send", trace.WithAttributes(
		attribute.String("chat.id", req.ChatID),
		attribute.String("llm.model", o.modelFor(req)),
	))
	defer span.End()

	t, err := o.begin(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return Reply{}, err
	}
	reply := Reply{UserMessage: t.userMessage}

	completion, err := o.gateway.Call(ctx, o.gatewayRequest(t))
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrGatewayFailure, err)
		recordSpanError(span, err)
		return reply, err
	}
	result, err := o.finish(ctx, t, completion.Text, &completion.Usage)
	if err != nil {
		recordSpanError(span, err)
		return reply, err
	}
	reply.Assistant = result.Message
	reply.BalanceAfter = result.BalanceAfter
	return reply, nil
}

func (o *Orchestrator) modelFor(req TurnRequest) string {
	if model := strings.TrimSpace(req.Model); model != "" {
		return model
	}
	return o.opts.DefaultModel
}

// begin checks the balance, persists the user message and composes the prompt.
func (o *Orchestrator) begin(ctx context.Context, req TurnRequest) (*turn, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if req.Balance < o.opts.MinBalance {
		return nil, ErrInsufficientFunds
	}
	chat, err := o.store.GetChat(ctx, req.UserID, req.ChatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load chat: %w", ErrStorageFailure, err)
	}

	userMessage, err := o.store.InsertMessage(ctx, store.Message{
		ChatID:  req.ChatID,
		Role:    store.RoleUser,
		Content: req.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: save user message: %w", ErrStorageFailure, err)
	}

	history, err := o.store.RecentMessages(ctx, req.ChatID, o.composer.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %w", ErrStorageFailure, err)
	}
	turns := make([]gateway.Message, 0, len(history))
	for _, m := range history {
		turns = append(turns, gateway.Message{Role: m.Role, Content: m.Content})
	}

	t := &turn{
		req:         req,
		model:       o.modelFor(req),
		prompt:      o.composer.Compose(turns, req.Profile),
		userMessage: userMessage,
	}
	// A chat is titled by its first answered message. Earlier turns that
	// failed at the gateway left no assistant reply and do not count.
	if chat.Title == store.DefaultChatTitle && !hasAssistantReply(history) {
		t.title = store.FirstExchangeTitle(content, o.opts.TitleMaxLength)
	}
	return t, nil
}

func hasAssistantReply(history []store.Message) bool {
	for _, m := range history {
		if m.Role == store.RoleAssistant {
			return true
		}
	}
	return false
}

func (o *Orchestrator) gatewayRequest(t *turn) gateway.Request {
	return gateway.Request{
		Model:     t.model,
		Messages:  t.prompt,
		MaxTokens: o.opts.MaxTokens,
	}
}

// collect forwards fragments to out and returns the accumulated reply with the
// provider-reported usage, if any.
func (o *Orchestrator) collect(ctx context.Context, t *turn, out *emitter) (string, *gateway.Usage, error) {
	events, err := o.gateway.Stream(ctx, o.gatewayRequest(t))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrGatewayFailure, err)
	}

	var reply strings.Builder
	for ev := range events {
		switch ev.Type {
		case gateway.EventText:
			if ev.Text == "" {
				continue
			}
			reply.WriteString(ev.Text)
			out.send(Event{Type: EventContent, Content: ev.Text})
		case gateway.EventDone:
			return reply.String(), ev.Usage, nil
		case gateway.EventError:
			return "", nil, fmt.Errorf("%w: %w", ErrGatewayFailure, ev.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrGatewayFailure, err)
	}
	return "", nil, fmt.Errorf("%w: stream ended without completion", ErrGatewayFailure)
}

// finish prices the reply and commits it. Enrichment is scheduled only after
// the commit succeeds.
func (o *Orchestrator) finish(ctx context.Context, t *turn, reply string, usage *gateway.Usage) (store.TurnResult, error) {
	var u gateway.Usage
	if usage != nil && (usage.InputTokens > 0 || usage.OutputTokens > 0) {
		u = *usage
	} else {
		u = gateway.EstimateUsage(t.prompt, reply)
	}
	cost := o.catalog.Cost(t.model, u.InputTokens, u.OutputTokens)

	result, err := o.store.CommitTurn(ctx, store.TurnCommit{
		UserID:     t.req.UserID,
		ChatID:     t.req.ChatID,
		MinBalance: o.opts.MinBalance,
		Title:      t.title,
		Assistant: store.Message{
			Content:      reply,
			Model:        t.model,
			TokensInput:  u.InputTokens,
			TokensOutput: u.OutputTokens,
			Cost:         cost,
		},
	})
	if errors.Is(err, store.ErrInsufficientBalance) {
		return store.TurnResult{}, ErrInsufficientFunds
	}
	if err != nil {
		return store.TurnResult{}, fmt.Errorf("%w: commit turn: %w", ErrStorageFailure, err)
	}

	o.log.Info("Turn committed",
		"chat_id", t.req.ChatID,
		"user_id", t.req.UserID,
		"model", t.model,
		"tokens_input", u.InputTokens,
		"tokens_output", u.OutputTokens,
		"cost", cost,
	)
	if o.enrich != nil {
		o.enrich.Schedule(t.req.UserID, t.req.ChatID)
	}
	return result, nil
}

// emitter drops anything sent after a terminal event.
type emitter struct {
	emit func(Event)
	done bool
}

func (e *emitter) send(ev Event) {
	if e.done {
		return
	}
	e.done = ev.Terminal()
	e.emit(ev)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
