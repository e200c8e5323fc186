package prompt

import (
	"strings"

	"personachat/backend/internal/gateway"
	"personachat/backend/internal/profile"
)

const (
	DefaultHistoryLimit = 20
	baseInstruction     = "You are a helpful AI assistant."
	profileIntro        = "Here is what you know about the user:"
	profileOutro        = "Use this context to personalize your answers: pick examples that match the user's interests and skills and respect their values and dislikes. Do not recite the profile back unless asked."
)

var categoryLabels = map[profile.Category]string{
	profile.Values:     "Values",
	profile.Beliefs:    "Beliefs",
	profile.Interests:  "Interests",
	profile.Skills:     "Skills",
	profile.Desires:    "Desires",
	profile.Intentions: "Intentions",
	profile.Likes:      "Likes",
	profile.Dislikes:   "Dislikes",
	profile.Loves:      "Loves",
	profile.Hates:      "Hates",
}

// Composer builds the message list sent to the gateway for one turn.
type Composer struct {
	HistoryLimit int
}

func New(historyLimit int) Composer {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return Composer{HistoryLimit: historyLimit}
}

// Compose returns a system preamble followed by the last HistoryLimit messages of
// history. A nil profile yields the bare instruction.
func (c Composer) Compose(history []gateway.Message, p profile.Profile) []gateway.Message {
	limit := c.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	window := history
	if len(window) > limit {
		window = window[len(window)-limit:]
	}

	out := make([]gateway.Message, 0, len(window)+1)
	out = append(out, gateway.Message{Role: gateway.RoleSystem, Content: SystemPrompt(p)})
	return append(out, window...)
}

func SystemPrompt(p profile.Profile) string {
	if p == nil || p.IsEmpty() {
		return baseInstruction
	}
	var b strings.Builder
	b.WriteString(baseInstruction)
	b.WriteString(" ")
	b.WriteString(profileIntro)
	b.WriteString("\n")
	for _, c := range profile.Categories {
		items := p.Get(c)
		if len(items) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(categoryLabels[c])
		b.WriteString(": ")
		b.WriteString(strings.Join(items, ", "))
	}
	b.WriteString("\n\n")
	b.WriteString(profileOutro)
	return b.String()
}
