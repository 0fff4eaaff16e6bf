package security

import (
	"context"
	"fmt"
	"strings"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/ports/repository"
)

const sealedPrefix = "enc:v1:"

var _ repository.KeyValueStore = (*EncryptedStore)(nil)

// EncryptedStore seals the values of selected keys before they reach inner.
// Values written before encryption was enabled are returned as stored.
type EncryptedStore struct {
	inner repository.KeyValueStore
	enc   *EncryptionService
	match func(key string) bool
}

func NewEncryptedStore(inner repository.KeyValueStore, enc *EncryptionService, match func(key string) bool) *EncryptedStore {
	if match == nil {
		match = func(string) bool { return true }
	}
	return &EncryptedStore{inner: inner, enc: enc, match: match}
}

// ConversationKeys matches chat transcripts, the history list and devotionals.
func ConversationKeys(key string) bool {
	if strings.HasPrefix(key, "chat_") {
		return true
	}
	return strings.HasSuffix(key, "chat_history") || strings.HasSuffix(key, "devotionals")
}

func (s *EncryptedStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.inner.Get(ctx, key)
	if err != nil || !strings.HasPrefix(v, sealedPrefix) {
		return v, err
	}
	pt, err := s.enc.Decrypt(strings.TrimPrefix(v, sealedPrefix), key)
	if err != nil {
		return "", fmt.Errorf("%w: decrypt %s: %v", domain.ErrStorageRead, key, err)
	}
	return pt, nil
}

func (s *EncryptedStore) Set(ctx context.Context, key, value string) error {
	if !s.match(key) {
		return s.inner.Set(ctx, key, value)
	}
	ct, err := s.enc.Encrypt(value, key)
	if err != nil {
		return fmt.Errorf("%w: encrypt %s: %v", domain.ErrStorageWrite, key, err)
	}
	return s.inner.Set(ctx, key, sealedPrefix+ct)
}

func (s *EncryptedStore) Delete(ctx context.Context, keys ...string) error {
	return s.inner.Delete(ctx, keys...)
}
