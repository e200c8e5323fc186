package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
)

const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type OpenRouterConfig struct {
	APIKey     string
	BaseURL    string
	Referer    string
	Title      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// OpenRouterClient speaks the OpenAI chat completions protocol, which OpenRouter
// exposes for every model it routes.
type OpenRouterClient struct {
	client    openai.Client
	maxTokens int
}

func NewOpenRouterClient(cfg OpenRouterConfig) (*OpenRouterClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set OPENROUTER_API_KEY", ErrNotConfigured)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if referer := strings.TrimSpace(cfg.Referer); referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", referer))
	}
	if title := strings.TrimSpace(cfg.Title); title != "" {
		opts = append(opts, option.WithHeader("X-Title", title))
	}

	return &OpenRouterClient{
		client:    openai.NewClient(opts...),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (c *OpenRouterClient) params(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func (c *OpenRouterClient) Call(ctx context.Context, req Request) (Completion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return Completion{}, fmt.Errorf("openrouter completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("openrouter completion returned no choices")
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (c *OpenRouterClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	params := c.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	events := make(chan StreamEvent, 32)
	go c.handleStream(ctx, stream, events)
	return events, nil
}

func (c *OpenRouterClient) handleStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], events chan<- StreamEvent) {
	defer close(events)
	defer stream.Close()

	var usage *Usage
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if !send(ctx, events, StreamEvent{Type: EventText, Text: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
		// include_usage puts totals on the last chunk, which has no choices.
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = &Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
			}
		}
	}
	if err := stream.Err(); err != nil {
		send(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("openrouter stream: %w", err)})
		return
	}
	send(ctx, events, StreamEvent{Type: EventDone, Usage: usage})
}
