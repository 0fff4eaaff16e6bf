package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// UnmarshalText accepts the legacy "ai" sender written by older app builds.
func (s *Sender) UnmarshalText(b []byte) error {
	switch v := strings.ToLower(string(b)); v {
	case "ai", "assistant":
		*s = SenderAssistant
	default:
		*s = Sender(v)
	}
	return nil
}

const (
	// CurrentChatID names the in-progress conversation inside a namespace.
	CurrentChatID = "current_chat"
	// HistoryLimit bounds the archived conversation list.
	HistoryLimit = 20

	titleMaxRunes   = 30
	previewMaxRunes = 50
	ellipsis        = "..."
	// HistoryDateLayout renders ChatHistoryEntry.Date (pt-BR day/month/year).
	HistoryDateLayout = "02/01/2006"
)

// Message is one entry of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessage(sender Sender, text string, at time.Time) Message {
	return Message{
		ID:        ulid.Make().String(),
		Text:      text,
		Sender:    sender,
		Timestamp: at,
	}
}

// ChatSession is an ordered conversation. Order is insertion order.
type ChatSession struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

func NewChatSession(id string) *ChatSession {
	return &ChatSession{ID: id, Messages: make([]Message, 0, 8)}
}

func (s *ChatSession) AddMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

func (s *ChatSession) GetRecentMessages(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// ChatHistoryEntry summarises an archived conversation.
type ChatHistoryEntry struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Date    string `json:"date"`
	Preview string `json:"preview"`
	UserID  string `json:"userId,omitempty"`
}

// NewHistoryEntry derives the archive summary of msgs. It reports false when
// the conversation holds nothing beyond the greeting or has no user message.
func NewHistoryEntry(id, userID string, msgs []Message, now time.Time, defaultPreview string) (ChatHistoryEntry, bool) {
	if len(msgs) <= 1 {
		return ChatHistoryEntry{}, false
	}
	var first *Message
	for i := range msgs {
		if msgs[i].Sender == SenderUser {
			first = &msgs[i]
			break
		}
	}
	if first == nil {
		return ChatHistoryEntry{}, false
	}

	preview := defaultPreview
	for _, m := range msgs {
		if m.Sender == SenderAssistant && m.Timestamp.After(first.Timestamp) {
			preview = Truncate(m.Text, previewMaxRunes)
			break
		}
	}
	return ChatHistoryEntry{
		ID:      id,
		Title:   Truncate(first.Text, titleMaxRunes),
		Date:    now.Format(HistoryDateLayout),
		Preview: preview,
		UserID:  userID,
	}, true
}

// PrependHistory puts e in front of list and keeps at most HistoryLimit entries.
func PrependHistory(list []ChatHistoryEntry, e ChatHistoryEntry) []ChatHistoryEntry {
	out := make([]ChatHistoryEntry, 0, len(list)+1)
	out = append(out, e)
	out = append(out, list...)
	if len(out) > HistoryLimit {
		out = out[:HistoryLimit]
	}
	return out
}

// Truncate cuts s to max runes and appends an ellipsis when it was longer.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + ellipsis
}

// SessionMarker holds the persisted rollover flags of a namespace.
type SessionMarker struct {
	LastAccessDate string
	SessionClosed  bool
	FirstVisit     bool
}

// SessionState is the outcome of a rollover decision.
type SessionState string

const (
	StateFreshDay      SessionState = "FRESH_DAY"
	StateClosedSession SessionState = "CLOSED_SESSION"
	StateResumable     SessionState = "RESUMABLE"
)

// StartsNew reports whether the state opens a fresh conversation.
func (s SessionState) StartsNew() bool { return s != StateResumable }
