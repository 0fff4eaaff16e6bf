package model

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// Persisted key names. Every key is scoped by Namespace.
const (
	KeyCredits             = "credits"
	KeyPlan                = "plan"
	KeySubscriptionEndDate = "subscriptionEndDate"
	KeyBillingCycle        = "billingCycle"
	KeyLastAccessDate      = "last_access_date"
	KeySessionClosed       = "session_closed"
	KeyFirstVisit          = "first_visit"
	KeyCurrentChatID       = "current_chat_id"
	KeyChatHistory         = "chat_history"
	KeyDevotionals         = "devotionals"
	chatKeyPrefix          = "chat_"
)

// Namespace scopes keys of one user. The empty user id maps to the shared
// anonymous namespace.
type Namespace struct {
	UserID string
}

func NewNamespace(userID string) Namespace { return Namespace{UserID: userID} }

func (n Namespace) Anonymous() bool { return n.UserID == "" }

// Prefix is "user_<id>_" or empty for the anonymous namespace.
func (n Namespace) Prefix() string {
	if n.Anonymous() {
		return ""
	}
	return "user_" + n.UserID + "_"
}

func (n Namespace) Key(name string) string { return n.Prefix() + name }

// String is used for logs and lock names.
func (n Namespace) String() string {
	if n.Anonymous() {
		return "anonymous"
	}
	return n.UserID
}

// CurrentChatID is the session id of the in-progress conversation.
func (n Namespace) CurrentChatID() string { return n.Prefix() + CurrentChatID }

// ChatKey is the key holding the messages of a session id. Session ids
// already carry the namespace prefix.
func ChatKey(sessionID string) string { return chatKeyPrefix + sessionID }

// NewArchiveID names an archived conversation of n.
func (n Namespace) NewArchiveID() string {
	return n.Prefix() + chatKeyPrefix + ulid.Make().String()
}

// OwnsArchive reports whether id was minted by NewArchiveID for n. The
// suffix must be a ULID so "user_a_chat_" cannot reach user "a_chat".
func (n Namespace) OwnsArchive(id string) bool {
	rest, ok := strings.CutPrefix(id, n.Prefix()+chatKeyPrefix)
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}

// scalarKeys hold small values rewritten on almost every request.
var scalarKeys = []string{
	KeyCredits, KeyPlan, KeySubscriptionEndDate, KeyBillingCycle,
	KeyLastAccessDate, KeySessionClosed, KeyFirstVisit, KeyCurrentChatID,
}

// IsScalarKey reports whether a namespaced key holds one of the scalar
// ledger or session fields rather than a JSON record.
func IsScalarKey(key string) bool {
	for _, name := range scalarKeys {
		if key == name || strings.HasSuffix(key, "_"+name) {
			return true
		}
	}
	return false
}
