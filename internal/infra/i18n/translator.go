package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Message keys used by the service.
const (
	KeyGreetingFirstVisit = "greeting.first_visit"
	KeyGreetingReturning  = "greeting.returning"
	KeyDefaultPreview     = "history.default_preview"
	KeyFallbackDefault    = "chat.fallback_default"
	KeyFallbackError      = "chat.fallback_error"
)

// CannedReply answers any text containing one of its keywords.
type CannedReply struct {
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

type bundle struct {
	Messages      map[string]string `yaml:"messages"`
	CannedReplies []CannedReply     `yaml:"canned_replies"`
	Transcripts   []string          `yaml:"transcripts"`
}

type Translator struct {
	lang         string
	translations map[string]string
	canned       []CannedReply
	transcripts  []string
	policyText   string
}

// NewTranslator reads locales/<lang>.yaml and locales/policy-<lang>.txt from fsys.
// The policy file holds the assistant's system prompt.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}

	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode

	policyPath := path.Join("locales", fmt.Sprintf("policy-%s.txt", langCode))
	policyBytes, err := fs.ReadFile(fsys, policyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", policyPath, err)
	}
	t.policyText = strings.TrimSpace(string(policyBytes))
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var b bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	if b.Messages == nil {
		b.Messages = map[string]string{}
	}
	return &Translator{
		translations: b.Messages,
		canned:       b.CannedReplies,
		transcripts:  b.Transcripts,
	}, nil
}

// T returns the message for key, formatted with args. Unknown keys return the key.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return strings.TrimRight(format, "\n")
}

// Policy is the system prompt sent ahead of every conversation.
func (t *Translator) Policy() string {
	return t.policyText
}

func (t *Translator) Lang() string { return t.lang }

// CannedReply returns the first reply whose keyword occurs in text (case-insensitive).
func (t *Translator) CannedReply(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, c := range t.canned {
		for _, k := range c.Keywords {
			if k != "" && strings.Contains(lower, strings.ToLower(k)) {
				return c.Reply, true
			}
		}
	}
	return "", false
}

// Transcripts is the list of stand-in transcriptions used when speech-to-text fails.
func (t *Translator) Transcripts() []string {
	return append([]string(nil), t.transcripts...)
}
