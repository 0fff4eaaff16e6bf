//go:build !integration

package i18n

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	contentBytes := []byte(`
messages:
  greeting: "Olá"
  welcome_user: "Olá %s"
canned_replies:
  - keywords: ["oi", "olá"]
    reply: "resposta oi"
  - keywords: ["quem é jesus"]
    reply: "resposta jesus"
transcripts: ["um", "dois"]
`)

	translator, err := newTranslatorFromBytes(contentBytes)
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "Olá" {
			t.Errorf("wanted 'Olá', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ana"); got != "Olá Ana" {
			t.Errorf("wanted 'Olá Ana', got '%s'", got)
		}
	})

	t.Run("canned replies match case-insensitively in order", func(t *testing.T) {
		got, ok := translator.CannedReply("Oi! QUEM É JESUS?")
		if !ok || got != "resposta oi" {
			t.Errorf("expected first matching entry, got %q %v", got, ok)
		}
		if _, ok := translator.CannedReply("bom dia"); ok {
			t.Error("expected no match")
		}
	})

	t.Run("transcripts are copied", func(t *testing.T) {
		ts := translator.Transcripts()
		ts[0] = "changed"
		if translator.Transcripts()[0] != "um" {
			t.Error("Transcripts leaked its backing slice")
		}
	})
}

func TestNewTranslator_FS(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/pt.yaml":       {Data: []byte("messages:\n  a: b\n")},
		"locales/policy-pt.txt": {Data: []byte("  prompt\n")},
	}
	tr, err := NewTranslator(fsys, "pt")
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	if tr.Policy() != "prompt" || tr.T("a") != "b" || tr.Lang() != "pt" {
		t.Errorf("unexpected translator state: %q %q", tr.Policy(), tr.T("a"))
	}
	if _, err := NewTranslator(fsys, "fr"); err == nil {
		t.Error("expected an error for a missing locale")
	}
}

func TestEmbeddedLocales(t *testing.T) {
	for _, lang := range []string{"pt", "en"} {
		tr, err := NewTranslator(LocalesFS, lang)
		if err != nil {
			t.Fatalf("%s: %v", lang, err)
		}
		for _, k := range []string{KeyGreetingFirstVisit, KeyGreetingReturning, KeyDefaultPreview, KeyFallbackDefault, KeyFallbackError} {
			if tr.T(k) == k {
				t.Errorf("%s: missing key %s", lang, k)
			}
		}
		if len(tr.Transcripts()) == 0 || tr.Policy() == "" {
			t.Errorf("%s: missing transcripts or policy", lang)
		}
	}

	pt, _ := NewTranslator(LocalesFS, "pt")
	if pt.T(KeyDefaultPreview) != "Conversa com Jesus.IA" {
		t.Errorf("unexpected default preview %q", pt.T(KeyDefaultPreview))
	}
	if !strings.HasPrefix(pt.T(KeyGreetingReturning), "Olá de novo!") {
		t.Errorf("unexpected returning greeting %q", pt.T(KeyGreetingReturning))
	}
	if got, ok := pt.CannedReply("Como ser salvo?"); !ok || !strings.Contains(got, "João 3:16") {
		t.Errorf("unexpected canned reply %q", got)
	}
}
