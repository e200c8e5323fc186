package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient serves bare gemini-* model ids through the Google AI SDK.
type GeminiClient struct {
	client    *genai.Client
	maxTokens int
}

func NewGeminiClient(ctx context.Context, apiKey string, maxTokens int) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set GOOGLE_API_KEY", ErrNotConfigured)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: client, maxTokens: maxTokens}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// session prepares a chat session whose history is everything but the final
// user message, which is returned separately to be sent.
func (c *GeminiClient) session(req Request) (*genai.ChatSession, genai.Text, error) {
	system, conversation := splitSystem(req.Messages)
	if len(conversation) == 0 || conversation[len(conversation)-1].Role != RoleUser {
		return nil, "", errors.New("gemini request must end with a user message")
	}

	model := c.client.GenerativeModel(req.Model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}

	cs := model.StartChat()
	history := conversation[:len(conversation)-1]
	cs.History = make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return cs, genai.Text(conversation[len(conversation)-1].Content), nil
}

func (c *GeminiClient) Call(ctx context.Context, req Request) (Completion, error) {
	cs, last, err := c.session(req)
	if err != nil {
		return Completion{}, err
	}
	resp, err := cs.SendMessage(ctx, last)
	if err != nil {
		return Completion{}, fmt.Errorf("gemini message: %w", err)
	}
	out := Completion{Text: responseText(resp), Model: req.Model}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{InputTokens: int(u.PromptTokenCount), OutputTokens: int(u.CandidatesTokenCount)}
	}
	return out, nil
}

func (c *GeminiClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	cs, last, err := c.session(req)
	if err != nil {
		return nil, err
	}
	iter := cs.SendMessageStream(ctx, last)
	events := make(chan StreamEvent, 32)
	go func() {
		defer close(events)
		var usage *Usage
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				send(ctx, events, StreamEvent{Type: EventError, Err: fmt.Errorf("gemini stream: %w", err)})
				return
			}
			if text := responseText(resp); text != "" {
				if !send(ctx, events, StreamEvent{Type: EventText, Text: text}) {
					return
				}
			}
			// Usage metadata is cumulative; the last response holds the totals.
			if u := resp.UsageMetadata; u != nil && u.PromptTokenCount > 0 {
				usage = &Usage{InputTokens: int(u.PromptTokenCount), OutputTokens: int(u.CandidatesTokenCount)}
			}
		}
		send(ctx, events, StreamEvent{Type: EventDone, Usage: usage})
	}()
	return events, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		// Only the first candidate is used.
		break
	}
	return b.String()
}
