package adapter

import (
	"context"
	"io"
)

// Message represents a chat message sent to a provider.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIServiceAdapter is the port for chat completion.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)

	// CountTokens must return prompt tokens for the provided messages
	// (best-effort when the provider has no exact counter).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	// ChatWithUsage returns assistant text + usage as reported by the provider.
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)
}

// Audio is an uploaded recording.
type Audio struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// TranscriptionAdapter is the port for speech-to-text.
type TranscriptionAdapter interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}
