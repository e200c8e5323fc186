package gateway

import (
	"context"
	"strings"
)

// MockClient answers without any network call. Used for local runs without
// provider keys and in tests.
type MockClient struct {
	Model string
	// Chunks, when set, is streamed verbatim instead of the echo reply.
	Chunks []string
	Usage  Usage
	Err    error
}

func (m MockClient) reply(req Request) string {
	if len(m.Chunks) > 0 {
		return strings.Join(m.Chunks, "")
	}
	question := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			question = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if question == "" {
		question = "No question provided."
	}
	return "Mock response: " + question
}

func (m MockClient) usage() Usage {
	if m.Usage.InputTokens == 0 && m.Usage.OutputTokens == 0 {
		return Usage{InputTokens: 120, OutputTokens: 80}
	}
	return m.Usage
}

func (m MockClient) model(req Request) string {
	if model := strings.TrimSpace(req.Model); model != "" {
		return model
	}
	if model := strings.TrimSpace(m.Model); model != "" {
		return model
	}
	return "mock/echo"
}

func (m MockClient) Call(_ context.Context, req Request) (Completion, error) {
	if m.Err != nil {
		return Completion{}, m.Err
	}
	return Completion{Text: m.reply(req), Model: m.model(req), Usage: m.usage()}, nil
}

func (m MockClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	chunks := m.Chunks
	if len(chunks) == 0 {
		chunks = strings.SplitAfter(m.reply(req), " ")
	}
	events := make(chan StreamEvent, len(chunks)+1)
	go func() {
		defer close(events)
		for _, chunk := range chunks {
			if !send(ctx, events, StreamEvent{Type: EventText, Text: chunk}) {
				return
			}
		}
		if m.Err != nil {
			send(ctx, events, StreamEvent{Type: EventError, Err: m.Err})
			return
		}
		usage := m.usage()
		send(ctx, events, StreamEvent{Type: EventDone, Usage: &usage})
	}()
	return events, nil
}
