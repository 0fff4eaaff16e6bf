package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/ports/adapter"
)

var (
	_ adapter.AIServiceAdapter     = (*NoopAIAdapter)(nil)
	_ adapter.TranscriptionAdapter = (*NoopAIAdapter)(nil)

	errNoProvider = fmt.Errorf("%w: no ai provider configured", domain.ErrExternalService)
)

// NoopAIAdapter stands in when no provider key is configured. Every call
// reports the provider unavailable, so callers serve their canned content.
type NoopAIAdapter struct {
	log *zerolog.Logger
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{log: logger}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop"}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return EstimateTokens(messages), nil
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	a.log.Debug().Int("messages", len(messages)).Msg("[noop-ai] chat")
	return "", adapter.Usage{}, errNoProvider
}

func (a *NoopAIAdapter) Transcribe(ctx context.Context, audio adapter.Audio) (string, error) {
	a.log.Debug().Str("file", audio.Filename).Msg("[noop-ai] transcribe")
	return "", errors.Join(errNoProvider, errors.New("transcription unavailable"))
}
