//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/ports/adapter"
	"jesusia-companion/internal/infra/i18n"
)

// -----------------------------
// Utilities
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

var errBackend = errors.New("backend unavailable")

// fakeClock is a settable clock shared by the use cases under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func mustTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "pt")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	return tr
}

// -----------------------------
// Key-value store
// -----------------------------

// memKV is an in-memory KeyValueStore with fault injection.
type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	setErr  error
	sets    int
	onWrite func(key string)
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	if m.onWrite != nil {
		m.onWrite(key)
	}
	return nil
}

func (m *memKV) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memKV) raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memKV) put(key, value string) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

func (m *memKV) failReads(err error) {
	m.mu.Lock()
	m.getErr = err
	m.mu.Unlock()
}

func (m *memKV) failWrites(err error) {
	m.mu.Lock()
	m.setErr = err
	m.mu.Unlock()
}

// memLocker is a process-local stand-in for the Redis locker.
type memLocker struct {
	mu     sync.Mutex
	held   map[string]string
	locks  int
	failOn error
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for {
		l.mu.Lock()
		if l.failOn != nil {
			l.mu.Unlock()
			return "", l.failOn
		}
		if _, busy := l.held[key]; !busy {
			l.locks++
			tok := key + "-token"
			l.held[key] = tok
			l.mu.Unlock()
			return tok, nil
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// -----------------------------
// AI collaborators
// -----------------------------

type stubAI struct {
	mu       sync.Mutex
	reply    string
	err      error
	tokensOf func(msgs []adapter.Message) int
	calls    [][]adapter.Message
}

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) { return []string{"stub"}, nil }

func (s *stubAI) CountTokens(ctx context.Context, model string, msgs []adapter.Message) (int, error) {
	if s.tokensOf != nil {
		return s.tokensOf(msgs), nil
	}
	return len(msgs), nil
}

func (s *stubAI) ChatWithUsage(ctx context.Context, model string, msgs []adapter.Message) (string, adapter.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]adapter.Message(nil), msgs...))
	if s.err != nil {
		return "", adapter.Usage{}, s.err
	}
	return s.reply, adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func (s *stubAI) lastCall() []adapter.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

type stubTranscriber struct {
	text string
	err  error
	read string
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audio adapter.Audio) (string, error) {
	b, _ := io.ReadAll(audio.Body)
	s.read = string(b)
	return s.text, s.err
}

func audioOf(s string) adapter.Audio {
	return adapter.Audio{Filename: "voice.m4a", ContentType: "audio/m4a", Body: strings.NewReader(s)}
}
