package gateway

import (
	"context"
	"errors"
	"testing"
)

func TestRouterDispatchesByPrefix(t *testing.T) {
	t.Parallel()

	router := NewRouter(MockClient{Chunks: []string{"fallback"}}).
		Handle("claude", MockClient{Chunks: []string{"anthropic"}}).
		Handle("gemini", MockClient{Chunks: []string{"google"}}).
		Handle("gemini-1.5", MockClient{Chunks: []string{"google-legacy"}})

	cases := map[string]string{
		"claude-3-opus":            "anthropic",
		"Gemini-Pro":               "google",
		"gemini-1.5-flash":         "google-legacy",
		"anthropic/claude-3-haiku": "fallback",
		"openai/gpt-4o":            "fallback",
	}
	for model, want := range cases {
		resp, err := router.Call(context.Background(), Request{Model: model, Messages: []Message{{Role: RoleUser, Content: "x"}}})
		if err != nil {
			t.Fatalf("call %s: %v", model, err)
		}
		if resp.Text != want {
			t.Fatalf("model %s routed to %q, want %q", model, resp.Text, want)
		}
	}
}

func TestRouterWithoutFallback(t *testing.T) {
	t.Parallel()

	router := NewRouter(nil)
	_, err := router.Stream(context.Background(), Request{Model: "openai/gpt-4o"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestMockClientStreamsEchoAndUsage(t *testing.T) {
	t.Parallel()

	events, err := MockClient{}.Stream(context.Background(), Request{
		Model:    "mock/echo",
		Messages: []Message{{Role: RoleUser, Content: "hello there"}},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	got := collect(t, events)

	text := ""
	for _, ev := range got[:len(got)-1] {
		if ev.Type != EventText {
			t.Fatalf("unexpected event %#v", ev)
		}
		text += ev.Text
	}
	if text != "Mock response: hello there" {
		t.Fatalf("unexpected text %q", text)
	}
	last := got[len(got)-1]
	if last.Type != EventDone || last.Usage == nil || last.Usage.InputTokens != 120 {
		t.Fatalf("unexpected terminal event %#v", last)
	}
}

func TestMockClientStreamError(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream reset")
	events, _ := MockClient{Chunks: []string{"par"}, Err: boom}.Stream(context.Background(), Request{})
	got := collect(t, events)
	if len(got) != 2 || got[1].Type != EventError || !errors.Is(got[1].Err, boom) {
		t.Fatalf("unexpected events %#v", got)
	}
}
