package ai_test

import (
	"context"
	"errors"
	"testing"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/ports/adapter"
	ai "jesusia-companion/internal/infra/adapters/ai"
	"jesusia-companion/internal/infra/logging"
)

type stubAI struct {
	name         string
	ctN          int
	cwuN         int
	lastModelCT  string
	lastModelCWU string
}

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{s.name + "-model"}, nil
}
func (s *stubAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	s.ctN++
	s.lastModelCT = model
	return 1, nil
}
func (s *stubAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	s.cwuN++
	s.lastModelCWU = model
	return "ok", adapter.Usage{PromptTokens: 1, CompletionTokens: 1}, nil
}

func TestRouting_ExplicitMap_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}

	m := ai.NewMultiAIAdapter(
		"openai",
		map[string]adapter.AIServiceAdapter{"openai": open, "gemini": gem},
		map[string]string{"custom-x": "gemini"},
	)

	// explicit map wins
	_, _ = m.CountTokens(ctx, "custom-x", nil)
	if gem.ctN != 1 || open.ctN != 0 {
		t.Fatalf("explicit map should route to gemini, got open:%d gem:%d", open.ctN, gem.ctN)
	}
	open.ctN, gem.ctN = 0, 0

	// gpt-* -> openai
	_, _, _ = m.ChatWithUsage(ctx, "gpt-3.5-turbo", nil)
	if open.cwuN != 1 || gem.cwuN != 0 {
		t.Fatalf("heuristic gpt-* should go openai")
	}
	open.cwuN, gem.cwuN = 0, 0

	// gemini-* -> gemini
	_, _, _ = m.ChatWithUsage(ctx, "gemini-2.0-flash", nil)
	if gem.cwuN != 1 || open.cwuN != 0 {
		t.Fatalf("heuristic gemini-* should go gemini")
	}

	// unknown -> default provider (openai)
	open.ctN, gem.ctN = 0, 0
	_, _ = m.CountTokens(ctx, "unknown", nil)
	if open.ctN != 1 || gem.ctN != 0 {
		t.Fatalf("unknown model should go to default provider (openai)")
	}
}

func TestRouting_MissingProviderFallsBack(t *testing.T) {
	t.Parallel()
	open := &stubAI{name: "openai"}
	m := ai.NewMultiAIAdapter("openai", map[string]adapter.AIServiceAdapter{"openai": open}, nil)

	if _, _, err := m.ChatWithUsage(context.Background(), "gemini-2.0-flash", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open.cwuN != 1 {
		t.Fatal("gemini model without a gemini provider should use the default")
	}

	empty := ai.NewMultiAIAdapter("openai", nil, nil)
	if _, _, err := empty.ChatWithUsage(context.Background(), "gpt-3.5-turbo", nil); !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService without providers, got %v", err)
	}
}

func TestNoopAdapter_ReportsUnavailable(t *testing.T) {
	t.Parallel()
	n := ai.NewNoopAIAdapter(logging.Nop())
	if _, _, err := n.ChatWithUsage(context.Background(), "", []adapter.Message{{Role: "user", Content: "oi"}}); !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if _, err := n.Transcribe(context.Background(), adapter.Audio{Filename: "a.m4a"}); !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()
	msgs := []adapter.Message{{Role: "user", Content: "12345678"}}
	// 3 reply + 4 framing + 2 content
	if got := ai.EstimateTokens(msgs); got != 9 {
		t.Fatalf("expected 9, got %d", got)
	}
}

type blockingAI struct {
	stubAI
	release chan struct{}
	started chan struct{}
}

func (b *blockingAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	b.started <- struct{}{}
	<-b.release
	return "ok", adapter.Usage{}, nil
}

func TestLimitedAI_HonoursContext(t *testing.T) {
	t.Parallel()
	inner := &blockingAI{release: make(chan struct{}), started: make(chan struct{}, 1)}
	l := ai.NewLimitedAI(inner, 1)

	done := make(chan struct{})
	go func() {
		_, _, _ = l.ChatWithUsage(context.Background(), "m", nil)
		close(done)
	}()
	<-inner.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := l.ChatWithUsage(ctx, "m", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while the slot is taken, got %v", err)
	}
	close(inner.release)
	<-done
}
