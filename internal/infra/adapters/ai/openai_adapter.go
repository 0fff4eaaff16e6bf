package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the ports
var (
	_ adapter.AIServiceAdapter     = (*OpenAIAdapter)(nil)
	_ adapter.TranscriptionAdapter = (*OpenAIAdapter)(nil)
)

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string // empty uses api.openai.com; any OpenAI-compatible gateway works
	Model              string
	TranscriptionModel string
	Language           string
	MaxOutputTokens    int
	Temperature        float64
}

// OpenAIAdapter implements chat completion and Whisper transcription.
type OpenAIAdapter struct {
	client openai.Client
	cfg    OpenAIConfig
	tokens *TokenCounter
}

func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT3_5Turbo)
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = string(openai.AudioModelWhisper1)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		tokens: NewTokenCounter(),
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{o.cfg.Model}, nil
}

func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return o.tokens.Count(modelOrDefault(model, o.cfg.Model), messages), nil
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(modelOrDefault(model, o.cfg.Model)),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(o.cfg.Temperature),
	}
	if o.cfg.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.cfg.MaxOutputTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("%w: openai chat: %v", domain.ErrExternalService, err)
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, fmt.Errorf("%w: openai: no choice content", domain.ErrExternalService)
}

// Transcribe sends the recording to the Whisper endpoint.
func (o *OpenAIAdapter) Transcribe(ctx context.Context, audio adapter.Audio) (string, error) {
	if audio.Body == nil {
		return "", domain.ErrInvalidArgument
	}
	name := audio.Filename
	if name == "" {
		name = "audio.m4a"
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(audio.Body, name, audio.ContentType),
		Model: openai.AudioModel(o.cfg.TranscriptionModel),
	}
	if o.cfg.Language != "" {
		params.Language = openai.String(o.cfg.Language)
	}
	res, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: whisper: %v", domain.ErrExternalService, err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("%w: whisper: empty transcript", domain.ErrExternalService)
	}
	return text, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant", "ai", "model":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
