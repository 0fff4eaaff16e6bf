// File: internal/usecase/rollover_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/model"
	"jesusia-companion/internal/domain/ports/repository"
	"jesusia-companion/internal/infra/i18n"
	"jesusia-companion/internal/infra/logging"
	"jesusia-companion/internal/infra/metrics"
)

// Compile-time check
var _ RolloverUseCase = (*rolloverUC)(nil)

// RolloverUseCase decides when a conversation starts fresh and archives
// finished conversations into the bounded history list.
type RolloverUseCase interface {
	ShouldStartNewChat(ctx context.Context, userID string) (model.SessionState, bool)
	CloseSession(ctx context.Context, userID string) *model.ChatHistoryEntry
	StartNewChat(ctx context.Context, userID string) *model.ChatSession
	Open(ctx context.Context, userID string) (*OpenResult, error)
	CurrentSession(ctx context.Context, userID string) (*model.ChatSession, error)
	AppendMessages(ctx context.Context, userID string, msgs ...model.Message) (*model.ChatSession, error)
	History(ctx context.Context, userID string) ([]model.ChatHistoryEntry, error)
	Archived(ctx context.Context, userID, archiveID string) (*model.ChatSession, error)
	Clear(ctx context.Context, userID string) error
	Marker(ctx context.Context, userID string) (model.SessionMarker, error)
}

// Greeter supplies the localized texts the rollover needs.
type Greeter interface {
	T(key string, args ...interface{}) string
}

// lastAccessLayout mirrors the calendar-date string the mobile client writes.
const lastAccessLayout = "Mon Jan 02 2006"

// OpenResult is what the client shows when the chat screen mounts.
type OpenResult struct {
	State      model.SessionState `json:"state"`
	StartedNew bool               `json:"started_new"`
	Session    *model.ChatSession `json:"session"`
}

type RolloverOption func(*rolloverUC)

func WithRolloverClock(now func() time.Time) RolloverOption {
	return func(r *rolloverUC) { r.now = now }
}

// WithRolloverLocation sets the timezone of the calendar-day comparison.
func WithRolloverLocation(loc *time.Location) RolloverOption {
	return func(r *rolloverUC) {
		if loc != nil {
			r.loc = loc
		}
	}
}

type rolloverUC struct {
	store   repository.KeyValueStore
	greeter Greeter
	now     func() time.Time
	loc     *time.Location
	log     *zerolog.Logger
}

func NewRolloverUseCase(store repository.KeyValueStore, greeter Greeter, logger *zerolog.Logger, opts ...RolloverOption) *rolloverUC {
	r := &rolloverUC{
		store:   store,
		greeter: greeter,
		now:     time.Now,
		loc:     time.Local,
		log:     logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *rolloverUC) today() string { return r.now().In(r.loc).Format(lastAccessLayout) }

// ShouldStartNewChat compares the stored access date with today, then the
// closed flag. Both flags are consumed when they fire. Read failures resume.
func (r *rolloverUC) ShouldStartNewChat(ctx context.Context, userID string) (model.SessionState, bool) {
	defer logging.TraceDuration(r.log, "RolloverUC.ShouldStartNewChat")()
	ns := model.NewNamespace(userID)
	log := logging.With(ctx, r.log)

	today := r.today()
	last, err := r.store.Get(ctx, ns.Key(model.KeyLastAccessDate))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		metrics.IncStoreError("read")
		log.Error().Err(err).Str("namespace", ns.String()).Msg("rollover check failed, resuming")
		return r.decided(model.StateResumable)
	}
	if err != nil || last != today {
		r.write(ctx, ns.Key(model.KeyLastAccessDate), today)
		log.Debug().Str("namespace", ns.String()).Msg("new chat: new day or first access")
		return r.decided(model.StateFreshDay)
	}

	closed, err := r.store.Get(ctx, ns.Key(model.KeySessionClosed))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		metrics.IncStoreError("read")
		log.Error().Err(err).Str("namespace", ns.String()).Msg("rollover check failed, resuming")
		return r.decided(model.StateResumable)
	}
	if closed == "true" {
		r.write(ctx, ns.Key(model.KeySessionClosed), "false")
		log.Debug().Str("namespace", ns.String()).Msg("new chat: previous session was closed")
		return r.decided(model.StateClosedSession)
	}
	return r.decided(model.StateResumable)
}

func (r *rolloverUC) decided(s model.SessionState) (model.SessionState, bool) {
	metrics.IncRolloverDecision(string(s))
	return s, s.StartsNew()
}

// CloseSession marks the session closed and archives the current
// conversation when the user engaged with it. It returns the new history
// entry, or nil when nothing was archived.
func (r *rolloverUC) CloseSession(ctx context.Context, userID string) *model.ChatHistoryEntry {
	defer logging.TraceDuration(r.log, "RolloverUC.CloseSession")()
	ns := model.NewNamespace(userID)
	log := logging.With(ctx, r.log).With().Str("namespace", ns.String()).Logger()

	r.write(ctx, ns.Key(model.KeySessionClosed), "true")

	current, err := r.currentID(ctx, ns)
	if err != nil {
		log.Error().Err(err).Msg("close: current chat id unreadable")
		return nil
	}
	var msgs []model.Message
	if err := r.readRecord(ctx, model.ChatKey(current), &msgs); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Msg("close: current chat unreadable")
		}
		return nil
	}

	archiveID := ns.NewArchiveID()
	entry, ok := model.NewHistoryEntry(archiveID, userID, msgs, r.now().In(r.loc), r.greeter.T(i18n.KeyDefaultPreview))
	if !ok {
		return nil
	}

	var history []model.ChatHistoryEntry
	if err := r.readRecord(ctx, ns.Key(model.KeyChatHistory), &history); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Msg("close: history unreadable, starting a new list")
		history = nil
	}
	history = model.PrependHistory(history, entry)

	r.writeRecord(ctx, ns.Key(model.KeyChatHistory), history)
	r.writeRecord(ctx, model.ChatKey(archiveID), msgs)
	metrics.IncSessionArchived()
	log.Info().Str("archive_id", archiveID).Msg("chat archived")
	return &entry
}

// StartNewChat replaces the current conversation with a greeting. The long
// introduction is used once per namespace.
func (r *rolloverUC) StartNewChat(ctx context.Context, userID string) *model.ChatSession {
	defer logging.TraceDuration(r.log, "RolloverUC.StartNewChat")()
	ns := model.NewNamespace(userID)

	key := i18n.KeyGreetingReturning
	visited, err := r.store.Get(ctx, ns.Key(model.KeyFirstVisit))
	switch {
	case errors.Is(err, domain.ErrNotFound) || (err == nil && visited == ""):
		key = i18n.KeyGreetingFirstVisit
		r.write(ctx, ns.Key(model.KeyFirstVisit), "true")
	case err != nil:
		metrics.IncStoreError("read")
		logging.With(ctx, r.log).Error().Err(err).Str("namespace", ns.String()).Msg("first visit flag unreadable")
	}

	s := model.NewChatSession(ns.CurrentChatID())
	s.AddMessage(model.NewMessage(model.SenderAssistant, r.greeter.T(key), r.now()))
	r.writeRecord(ctx, model.ChatKey(s.ID), s.Messages)
	r.write(ctx, ns.Key(model.KeyCurrentChatID), s.ID)
	return s
}

// Open runs the rollover decision and returns the conversation to display.
func (r *rolloverUC) Open(ctx context.Context, userID string) (*OpenResult, error) {
	state, startNew := r.ShouldStartNewChat(ctx, userID)
	if startNew {
		return &OpenResult{State: state, StartedNew: true, Session: r.StartNewChat(ctx, userID)}, nil
	}
	s, err := r.CurrentSession(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &OpenResult{State: state, StartedNew: true, Session: r.StartNewChat(ctx, userID)}, nil
	}
	if err != nil {
		return nil, err
	}
	return &OpenResult{State: state, Session: s}, nil
}

func (r *rolloverUC) CurrentSession(ctx context.Context, userID string) (*model.ChatSession, error) {
	ns := model.NewNamespace(userID)
	id, err := r.currentID(ctx, ns)
	if err != nil {
		return nil, err
	}
	s := model.NewChatSession(id)
	if err := r.readRecord(ctx, model.ChatKey(id), &s.Messages); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendMessages adds msgs to the current conversation, starting one when
// none is persisted.
func (r *rolloverUC) AppendMessages(ctx context.Context, userID string, msgs ...model.Message) (*model.ChatSession, error) {
	s, err := r.CurrentSession(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		s = r.StartNewChat(ctx, userID)
	} else if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		s.AddMessage(m)
	}
	raw, err := model.EncodeRecord(s.Messages)
	if err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, model.ChatKey(s.ID), raw); err != nil {
		metrics.IncStoreError("write")
		return s, fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
	}
	return s, nil
}

func (r *rolloverUC) History(ctx context.Context, userID string) ([]model.ChatHistoryEntry, error) {
	ns := model.NewNamespace(userID)
	var history []model.ChatHistoryEntry
	err := r.readRecord(ctx, ns.Key(model.KeyChatHistory), &history)
	if errors.Is(err, domain.ErrNotFound) {
		return []model.ChatHistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}

// Archived reopens a conversation from the history list. Ids of other
// namespaces read as not found.
func (r *rolloverUC) Archived(ctx context.Context, userID, archiveID string) (*model.ChatSession, error) {
	ns := model.NewNamespace(userID)
	if !ns.OwnsArchive(archiveID) {
		return nil, domain.ErrNotFound
	}
	s := model.NewChatSession(archiveID)
	if err := r.readRecord(ctx, model.ChatKey(archiveID), &s.Messages); err != nil {
		return nil, err
	}
	return s, nil
}

// Clear removes the conversation data of a namespace on sign-out: the
// current conversation, the history list and every archive it names.
// Credits and the rollover flags stay.
func (r *rolloverUC) Clear(ctx context.Context, userID string) error {
	defer logging.TraceDuration(r.log, "RolloverUC.Clear")()
	ns := model.NewNamespace(userID)
	log := logging.With(ctx, r.log).With().Str("namespace", ns.String()).Logger()

	keys := []string{ns.Key(model.KeyCurrentChatID), ns.Key(model.KeyChatHistory)}
	if current, err := r.currentID(ctx, ns); err == nil {
		keys = append(keys, model.ChatKey(current))
	} else {
		log.Warn().Err(err).Msg("clear: current chat id unreadable")
	}
	var history []model.ChatHistoryEntry
	if err := r.readRecord(ctx, ns.Key(model.KeyChatHistory), &history); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(err).Msg("clear: history unreadable, archives left in place")
	}
	for _, e := range history {
		if ns.OwnsArchive(e.ID) {
			keys = append(keys, model.ChatKey(e.ID))
		}
	}

	if err := r.store.Delete(ctx, keys...); err != nil && !errors.Is(err, domain.ErrNotFound) {
		metrics.IncStoreError("write")
		return fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
	}
	log.Info().Int("keys", len(keys)).Msg("conversation data cleared")
	return nil
}

func (r *rolloverUC) Marker(ctx context.Context, userID string) (model.SessionMarker, error) {
	ns := model.NewNamespace(userID)
	var m model.SessionMarker
	for _, f := range []struct {
		key string
		set func(string)
	}{
		{model.KeyLastAccessDate, func(v string) { m.LastAccessDate = v }},
		{model.KeySessionClosed, func(v string) { m.SessionClosed = v == "true" }},
		{model.KeyFirstVisit, func(v string) { m.FirstVisit = v == "true" }},
	} {
		v, err := r.store.Get(ctx, ns.Key(f.key))
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return m, fmt.Errorf("%w: %v", domain.ErrStorageRead, err)
		}
		f.set(v)
	}
	return m, nil
}

// --- internals ---

// currentID falls back to the namespace's default id when none is stored.
func (r *rolloverUC) currentID(ctx context.Context, ns model.Namespace) (string, error) {
	id, err := r.store.Get(ctx, ns.Key(model.KeyCurrentChatID))
	if errors.Is(err, domain.ErrNotFound) || (err == nil && id == "") {
		return ns.CurrentChatID(), nil
	}
	if err != nil {
		metrics.IncStoreError("read")
		return "", fmt.Errorf("%w: %v", domain.ErrStorageRead, err)
	}
	return id, nil
}

func (r *rolloverUC) readRecord(ctx context.Context, key string, out any) error {
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err != nil {
		metrics.IncStoreError("read")
		return fmt.Errorf("%w: %v", domain.ErrStorageRead, err)
	}
	if _, err := model.DecodeRecord(raw, out); err != nil {
		if errors.Is(err, domain.ErrUnsupportedSchema) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrStorageRead, key, err)
	}
	return nil
}

func (r *rolloverUC) writeRecord(ctx context.Context, key string, v any) {
	raw, err := model.EncodeRecord(v)
	if err != nil {
		r.log.Error().Err(err).Str("key", key).Msg("encode record")
		return
	}
	r.write(ctx, key, raw)
}

// write is best-effort: failures are logged and swallowed.
func (r *rolloverUC) write(ctx context.Context, key, value string) {
	if err := r.store.Set(ctx, key, value); err != nil {
		metrics.IncStoreError("write")
		logging.With(ctx, r.log).Error().Err(err).Str("key", key).Msg("session write failed")
	}
}
