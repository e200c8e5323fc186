package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"personachat/backend/internal/logger"
	"personachat/backend/internal/profile"
	"personachat/backend/internal/store"
	"personachat/backend/internal/worker"
)

const (
	DefaultDelay            = 2 * time.Second
	DefaultMinMessageLength = 20
	taskName                = "profile-enrichment"
)

type Store interface {
	RecentMessages(ctx context.Context, chatID string, limit int) ([]store.Message, error)
	UpdateProfile(ctx context.Context, userID string, fn store.ProfileMutation) (profile.Profile, error)
}

// Submitter is satisfied by *worker.Pool.
type Submitter interface {
	Submit(task worker.Task) error
}

type Options struct {
	Enabled          bool
	Delay            time.Duration
	MinMessageLength int
	Caps             profile.Caps
}

// Scheduler hands finished turns to the worker pool. Nothing it does is
// visible to the request that scheduled it.
type Scheduler struct {
	store     Store
	extractor Extractor
	pool      Submitter
	log       *logger.Logger
	tracer    trace.Tracer
	opts      Options
}

func NewScheduler(st Store, extractor Extractor, pool Submitter, baseLog *logger.Logger, opts Options) *Scheduler {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.MinMessageLength <= 0 {
		opts.MinMessageLength = DefaultMinMessageLength
	}
	if opts.Caps == nil {
		opts.Caps = profile.DefaultCaps()
	}
	return &Scheduler{
		store:     st,
		extractor: extractor,
		pool:      pool,
		log:       baseLog.With("component", "EnrichmentScheduler"),
		tracer:    otel.Tracer("personachat/enrichment"),
		opts:      opts,
	}
}

// Schedule never blocks and never fails the caller. A full or closed pool drops
// the job with a warning.
func (s *Scheduler) Schedule(userID, chatID string) {
	if !s.opts.Enabled || s.pool == nil || s.extractor == nil {
		return
	}
	err := s.pool.Submit(worker.Task{
		Name:  taskName,
		Delay: s.opts.Delay,
		Run: func(ctx context.Context) error {
			return s.Run(ctx, userID, chatID)
		},
	})
	if err != nil {
		s.log.Warn("Enrichment not scheduled", "user_id", userID, "chat_id", chatID, "error", err)
	}
}

// Run enriches the profile from the latest exchange of the chat, read fresh.
// Exchanges that do not qualify end with a nil error and no writes.
func (s *Scheduler) Run(ctx context.Context, userID, chatID string) error {
	ctx, span := s.tracer.Start(ctx, "enrichment.run", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	err := s.run(ctx, span, userID, chatID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Scheduler) run(ctx context.Context, span trace.Span, userID, chatID string) error {
	recent, err := s.store.RecentMessages(ctx, chatID, 2)
	if err != nil {
		return fmt.Errorf("load latest exchange: %w", err)
	}
	userMsg, assistantMsg, ok := latestPair(recent)
	if !ok {
		span.SetAttributes(attribute.String("enrichment.skip", "no_exchange"))
		return nil
	}
	userText := strings.TrimSpace(userMsg.Content)
	if utf8.RuneCountInString(userText) < s.opts.MinMessageLength {
		span.SetAttributes(attribute.String("enrichment.skip", "short_message"))
		return nil
	}

	extracted, err := s.extractor.Extract(ctx, userText, assistantMsg.Content)
	if err != nil {
		return err
	}
	if extracted.IsEmpty() {
		span.SetAttributes(attribute.String("enrichment.skip", "nothing_extracted"))
		return nil
	}

	added := 0
	_, err = s.store.UpdateProfile(ctx, userID, func(current profile.Profile) (profile.Profile, error) {
		merged := profile.Merge(current, extracted, s.opts.Caps)
		added = merged.Count() - current.Count()
		return merged, nil
	})
	if err != nil {
		return fmt.Errorf("commit profile: %w", err)
	}
	span.SetAttributes(attribute.Int("enrichment.facts_added", added))
	s.log.Info("Profile enriched", "user_id", userID, "chat_id", chatID, "facts_added", added)
	return nil
}

// latestPair picks one user and one assistant message out of the latest two,
// in either order. A user message that arrived during the delay still pairs
// with the reply before it.
func latestPair(recent []store.Message) (user, assistant store.Message, ok bool) {
	if len(recent) < 2 {
		return store.Message{}, store.Message{}, false
	}
	var haveUser, haveAssistant bool
	for _, m := range recent {
		switch m.Role {
		case store.RoleUser:
			user, haveUser = m, true
		case store.RoleAssistant:
			assistant, haveAssistant = m, true
		}
	}
	return user, assistant, haveUser && haveAssistant
}
