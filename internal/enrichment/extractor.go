// Package enrichment grows user profiles from finished chat turns in the
// background.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"personachat/backend/internal/gateway"
	"personachat/backend/internal/logger"
	"personachat/backend/internal/profile"
)

const extractionMaxTokens = 1000

var ErrExtractionFailure = errors.New("profile extraction failed")

// Extractor turns one user/assistant exchange into candidate profile facts. An
// exchange without facts yields an empty profile, not an error.
type Extractor interface {
	Extract(ctx context.Context, userText, assistantText string) (profile.Profile, error)
}

const extractionPrompt = `You analyze conversations and extract facts about the user.

Use ONLY what the user explicitly said about themselves. Do not guess.

Extract:
Core attributes:
1. values - what matters to the person (list of strings)
2. beliefs - beliefs, principles, worldview (list of strings)
3. interests - interests, hobbies, topics they follow (list of strings)
4. skills - skills and abilities (list of strings)
5. desires - goals, wishes, plans for the future (list of strings)
6. intentions - current intentions, projects, what they are doing now (list of strings)

Preferences:
7. likes - things, activities or habits they like (list of strings)
8. dislikes - what they dislike or find annoying (list of strings)
9. loves - what they love, what is very important to them (list of strings)
10. hates - what they hate or categorically reject (list of strings)

Return ONLY valid JSON with no extra text:
{
  "values": ["family", "growth"],
  "beliefs": ["learning never stops"],
  "interests": ["Go", "AI"],
  "skills": ["PostgreSQL", "machine learning"],
  "desires": ["build an AI product"],
  "intentions": ["working on a chat bot"],
  "likes": ["coffee", "morning walks"],
  "dislikes": ["waiting", "noise"],
  "loves": ["building products"],
  "hates": ["injustice"]
}

If there is nothing to extract, return empty arrays for every field.`

type ExtractorOptions struct {
	Model       string
	Temperature float64
	// MaxItems bounds each category of a single extraction.
	MaxItems int
}

// LLMExtractor asks a chat model for the facts as JSON.
type LLMExtractor struct {
	client gateway.Client
	opts   ExtractorOptions
	log    *logger.Logger
}

func NewLLMExtractor(client gateway.Client, opts ExtractorOptions, baseLog *logger.Logger) *LLMExtractor {
	if opts.MaxItems <= 0 {
		opts.MaxItems = profile.DefaultExtractionCap
	}
	return &LLMExtractor{
		client: client,
		opts:   opts,
		log:    baseLog.With("component", "ProfileExtractor"),
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, userText, assistantText string) (profile.Profile, error) {
	temperature := e.opts.Temperature
	completion, err := e.client.Call(ctx, gateway.Request{
		Model: e.opts.Model,
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: extractionPrompt},
			{Role: gateway.RoleUser, Content: "User message: " + userText},
			{Role: gateway.RoleAssistant, Content: "Assistant reply: " + assistantText},
			{Role: gateway.RoleUser, Content: "Extract the facts about the user as JSON."},
		},
		Temperature: &temperature,
		MaxTokens:   extractionMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}

	extracted, err := ParseExtraction(completion.Text, e.opts.MaxItems)
	if err != nil {
		e.log.Debug("Unparseable extraction", "model", completion.Model, "response_chars", len(completion.Text))
		return nil, err
	}
	e.log.Debug("Extraction parsed", "model", completion.Model, "items", extracted.Count())
	return extracted, nil
}

// ParseExtraction decodes a model reply, tolerating a surrounding markdown
// code fence, and validates it into a profile.
func ParseExtraction(text string, maxItems int) (profile.Profile, error) {
	body := stripCodeFence(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrExtractionFailure)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}
	return profile.Validate(raw, maxItems), nil
}

func stripCodeFence(text string) string {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
