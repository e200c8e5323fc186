package gateway

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const estimatorEncoding = "cl100k_base"

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens with the cl100k encoder, falling back to a
// word/character blend when the encoder data cannot be loaded. The BPE ranks
// are embedded, so estimation never reaches the network.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	encoderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, err := tiktoken.GetEncoding(estimatorEncoding)
		if err == nil {
			encoder = enc
		}
	})
	if encoder != nil {
		return len(encoder.Encode(text, nil, nil))
	}
	return heuristicTokens(text)
}

func heuristicTokens(text string) int {
	words := len(strings.Fields(text))
	chars := len([]rune(text))
	return max((words+chars/4)/2, 1)
}

// EstimateUsage is used when a provider finishes a stream without usage.
// Every prompt message carries a few tokens of role framing.
func EstimateUsage(prompt []Message, reply string) Usage {
	in := 0
	for _, m := range prompt {
		in += EstimateTokens(m.Content) + 4
	}
	return Usage{InputTokens: in, OutputTokens: EstimateTokens(reply)}
}
