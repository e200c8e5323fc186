package gateway

import (
	"strings"
	"testing"
)

func TestEstimateTokensEmptyIsZero(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
}

func TestEstimateTokensCountsText(t *testing.T) {
	short := EstimateTokens("hello")
	long := EstimateTokens("hello there, this sentence is quite a bit longer than the first one")
	if short < 1 {
		t.Fatalf("expected at least one token, got %d", short)
	}
	if long <= short {
		t.Fatalf("expected longer text to estimate more tokens, got short=%d long=%d", short, long)
	}
}

func TestHeuristicTokens(t *testing.T) {
	if got := heuristicTokens("a"); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
	// 4 words, 18 runes: (4 + 18/4) / 2
	if got := heuristicTokens("one two three four"); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	if got := heuristicTokens(strings.Repeat("word ", 40)); got != (40+200/4)/2 {
		t.Fatalf("unexpected estimate %d", got)
	}
}

func TestEstimateUsageAddsRoleFraming(t *testing.T) {
	prompt := []Message{
		{Role: RoleSystem, Content: "You are helpful."},
		{Role: RoleUser, Content: "Tell me a joke."},
	}
	usage := EstimateUsage(prompt, "Why did the gopher cross the road?")

	wantIn := EstimateTokens(prompt[0].Content) + EstimateTokens(prompt[1].Content) + 8
	if usage.InputTokens != wantIn {
		t.Fatalf("expected %d input tokens, got %d", wantIn, usage.InputTokens)
	}
	if usage.OutputTokens != EstimateTokens("Why did the gopher cross the road?") {
		t.Fatalf("unexpected output tokens %d", usage.OutputTokens)
	}
}

func TestEstimateTokensUsesEmbeddedEncoder(t *testing.T) {
	// cl100k: "Tell", " me", " a", " joke", "."
	if got := EstimateTokens("Tell me a joke."); got != 5 {
		t.Fatalf("expected 5 cl100k tokens, got %d", got)
	}
	if encoder == nil {
		t.Fatal("expected the cl100k encoder to load without network access")
	}
}
