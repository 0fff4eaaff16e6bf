package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"jesusia-companion/internal/domain/ports/adapter"
)

// Per-message framing overhead of the chat format.
const (
	tokensPerMessage = 4
	tokensPerReply   = 3
	fallbackEncoding = "cl100k_base"
)

// TokenCounter counts prompt tokens with tiktoken. When no encoding can be
// loaded it estimates four characters per token.
type TokenCounter struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{cache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *TokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		enc = nil
	}
	c.cache[model] = enc
	return enc
}

func (c *TokenCounter) Count(model string, messages []adapter.Message) int {
	enc := c.encoding(model)
	if enc == nil {
		return EstimateTokens(messages)
	}
	total := tokensPerReply
	for _, m := range messages {
		total += tokensPerMessage + len(enc.Encode(m.Content, nil, nil))
	}
	return total
}

// EstimateTokens approximates the prompt size without an encoding.
func EstimateTokens(messages []adapter.Message) int {
	total := tokensPerReply
	for _, m := range messages {
		total += tokensPerMessage + (len([]rune(m.Content))+3)/4
	}
	return total
}
