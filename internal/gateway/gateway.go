// Package gateway adapts external LLM providers to one blocking and one streaming call.
package gateway

import (
	"context"
	"errors"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int `json:"input"`
	OutputTokens int `json:"output"`
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

type Completion struct {
	Text  string
	Model string
	Usage Usage
}

type EventType string

const (
	EventText  EventType = "text"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// StreamEvent is one element of a streamed reply. The last event is either
// EventDone, carrying provider-reported usage when available, or EventError.
type StreamEvent struct {
	Type  EventType
	Text  string
	Usage *Usage
	Err   error
}

// Client is implemented by every provider backend and by Router.
type Client interface {
	Call(ctx context.Context, req Request) (Completion, error)
	// Stream returns a channel that is closed after the terminal event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

var ErrNotConfigured = errors.New("ai provider is not configured")

// splitSystem separates system messages from the conversation, joining them in order.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if text := strings.TrimSpace(m.Content); text != "" {
				system = append(system, text)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// send delivers ev unless ctx is done. Producers stop when it returns false.
func send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
