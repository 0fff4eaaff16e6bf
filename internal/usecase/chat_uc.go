// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/model"
	"jesusia-companion/internal/domain/ports/adapter"
	"jesusia-companion/internal/infra/i18n"
	"jesusia-companion/internal/infra/logging"
	"jesusia-companion/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	SendMessage(ctx context.Context, userID, text string) (*ChatReply, error)
	Transcribe(ctx context.Context, userID string, audio adapter.Audio) (*Transcription, error)
}

// Responder supplies the system prompt and the canned content served when
// a provider fails.
type Responder interface {
	T(key string, args ...interface{}) string
	Policy() string
	CannedReply(text string) (string, bool)
	Transcripts() []string
}

type ChatReply struct {
	UserMessage model.Message        `json:"user_message"`
	Reply       model.Message        `json:"reply"`
	Fallback    bool                 `json:"fallback"`
	Account     *model.CreditAccount `json:"account"`
}

type Transcription struct {
	Text     string               `json:"text"`
	Fallback bool                 `json:"fallback"`
	Account  *model.CreditAccount `json:"account"`
}

type ChatConfig struct {
	Model string
	// HistoryTokenBudget bounds the prompt (system prompt plus history).
	HistoryTokenBudget int
	// MaxHistoryMessages is the most recent messages considered before budgeting.
	MaxHistoryMessages int
}

type chatUC struct {
	ledger      LedgerUseCase
	sessions    RolloverUseCase
	ai          adapter.AIServiceAdapter
	transcriber adapter.TranscriptionAdapter
	responder   Responder
	cfg         ChatConfig
	now         func() time.Time
	pick        func(n int) int
	log         *zerolog.Logger
}

func NewChatUseCase(
	ledger LedgerUseCase,
	sessions RolloverUseCase,
	ai adapter.AIServiceAdapter,
	transcriber adapter.TranscriptionAdapter,
	responder Responder,
	cfg ChatConfig,
	logger *zerolog.Logger,
) *chatUC {
	if cfg.MaxHistoryMessages <= 0 {
		cfg.MaxHistoryMessages = 15
	}
	return &chatUC{
		ledger:      ledger,
		sessions:    sessions,
		ai:          ai,
		transcriber: transcriber,
		responder:   responder,
		cfg:         cfg,
		now:         time.Now,
		pick:        rand.IntN,
		log:         logger,
	}
}

// SendMessage spends one credit, records the user message, and answers it.
// Provider failures are answered with canned content and never returned.
func (c *chatUC) SendMessage(ctx context.Context, userID, text string) (*ChatReply, error) {
	defer logging.TraceDuration(c.log, "ChatUC.SendMessage")()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !c.ledger.ConsumeOne(ctx, userID) {
		return nil, domain.ErrInsufficientCredits
	}
	log := logging.With(ctx, c.log)

	userMsg := model.NewMessage(model.SenderUser, text, c.now())
	session, err := c.sessions.AppendMessages(ctx, userID, userMsg)
	if err != nil {
		log.Error().Err(err).Msg("user message not persisted")
	}
	var history []model.Message
	if session != nil {
		history = session.GetRecentMessages(c.cfg.MaxHistoryMessages)
	} else {
		history = []model.Message{userMsg}
	}

	replyText, fallback := c.answer(ctx, text, history)
	reply := model.NewMessage(model.SenderAssistant, replyText, c.now())
	if _, err := c.sessions.AppendMessages(ctx, userID, reply); err != nil {
		log.Error().Err(err).Msg("reply not persisted")
	}

	return &ChatReply{
		UserMessage: userMsg,
		Reply:       reply,
		Fallback:    fallback,
		Account:     c.ledger.Snapshot(ctx, userID),
	}, nil
}

func (c *chatUC) answer(ctx context.Context, text string, history []model.Message) (string, bool) {
	msgs := c.prompt(ctx, history)
	reply, _, err := c.ai.ChatWithUsage(ctx, c.cfg.Model, msgs)
	if err == nil && strings.TrimSpace(reply) != "" {
		return reply, false
	}

	metrics.IncFallback("chat")
	logging.With(ctx, c.log).Warn().Err(err).Msg("chat provider failed, using canned reply")
	if err != nil && !errors.Is(err, domain.ErrExternalService) {
		return c.responder.T(i18n.KeyFallbackError), true
	}
	if canned, ok := c.responder.CannedReply(text); ok {
		return canned, true
	}
	return c.responder.T(i18n.KeyFallbackDefault), true
}

// prompt builds system + history and drops the oldest history until the
// token budget fits. The latest message is always kept.
func (c *chatUC) prompt(ctx context.Context, history []model.Message) []adapter.Message {
	system := adapter.Message{Role: "system", Content: c.responder.Policy()}
	conv := make([]adapter.Message, 0, len(history))
	for _, m := range history {
		conv = append(conv, adapter.Message{Role: string(m.Sender), Content: m.Text})
	}
	// the greeting opens every conversation; providers expect a user turn first
	for len(conv) > 1 && conv[0].Role != string(model.SenderUser) {
		conv = conv[1:]
	}

	build := func() []adapter.Message {
		out := make([]adapter.Message, 0, len(conv)+1)
		if system.Content != "" {
			out = append(out, system)
		}
		return append(out, conv...)
	}
	if c.cfg.HistoryTokenBudget <= 0 {
		return build()
	}
	for len(conv) > 1 {
		n, err := c.ai.CountTokens(ctx, c.cfg.Model, build())
		if err != nil || n <= c.cfg.HistoryTokenBudget {
			break
		}
		conv = conv[1:]
	}
	return build()
}

// Transcribe spends one credit and converts the recording to text. When
// speech-to-text fails a stand-in transcript is returned.
func (c *chatUC) Transcribe(ctx context.Context, userID string, audio adapter.Audio) (*Transcription, error) {
	defer logging.TraceDuration(c.log, "ChatUC.Transcribe")()
	if audio.Body == nil {
		return nil, domain.ErrInvalidArgument
	}
	if !c.ledger.ConsumeOne(ctx, userID) {
		return nil, domain.ErrInsufficientCredits
	}

	out := &Transcription{}
	text, err := c.transcriber.Transcribe(ctx, audio)
	if err == nil && strings.TrimSpace(text) != "" {
		out.Text = text
	} else {
		metrics.IncFallback("transcription")
		logging.With(ctx, c.log).Warn().Err(err).Msg("transcription failed, using canned transcript")
		out.Fallback = true
		if ts := c.responder.Transcripts(); len(ts) > 0 {
			out.Text = ts[c.pick(len(ts))]
		}
	}
	out.Account = c.ledger.Snapshot(ctx, userID)
	return out, nil
}
