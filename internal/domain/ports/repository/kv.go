package repository

import (
	"context"
	"time"
)

// -----------------------------
// Key-value store
// -----------------------------

// KeyValueStore is the persistence port. Values are plain strings; JSON
// payloads are wrapped by model.EncodeRecord before they reach the store.
//
// Get returns domain.ErrNotFound when the key is absent. Implementations
// must be safe for concurrent use; writes are last-write-wins.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Locker serialises read-modify-write cycles across processes sharing a store.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
