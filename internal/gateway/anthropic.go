package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicClient serves bare claude-* model ids directly.
type AnthropicClient struct {
	client    anthropic.Client
	maxTokens int
}

func NewAnthropicClient(apiKey string, maxTokens int) (*AnthropicClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrNotConfigured)
	}
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: maxTokens,
	}, nil
}

func (c *AnthropicClient) params(req Request) anthropic.MessageNewParams {
	system, conversation := splitSystem(req.Messages)
	messages := make([]anthropic.MessageParam, 0, len(conversation))
	for _, m := range conversation {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

func (c *AnthropicClient) Call(ctx context.Context, req Request) (Completion, error) {
	msg, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic message: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Completion{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (c *AnthropicClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	events := make(chan StreamEvent, 32)
	go c.handleStream(ctx, stream, events)
	return events, nil
}

func (c *AnthropicClient) handleStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- StreamEvent) {
	defer close(events)
	defer stream.Close()

	usage := Usage{}
	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			usage.InputTokens = int(event.AsMessageStart().Message.Usage.InputTokens)

		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			if d, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
				if !send(ctx, events, StreamEvent{Type: EventText, Text: d.Text}) {
					return
				}
			}

		case "message_delta":
			usage.OutputTokens = int(event.AsMessageDelta().Usage.OutputTokens)

		case "message_stop":
			send(ctx, events, StreamEvent{Type: EventDone, Usage: &usage})
			return
		}
	}

	if err := stream.Err(); err != nil {
		send(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("anthropic stream: %w", err)})
		return
	}
	send(ctx, events, StreamEvent{Type: EventDone, Usage: &usage})
}
