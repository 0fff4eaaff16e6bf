package postgres

import (
	"context"
	"errors"
	"time"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/ports/repository"
	"jesusia-companion/internal/infra/metrics"
	red "jesusia-companion/internal/infra/redis"
)

var _ repository.KeyValueStore = (*kvStoreCacheDecorator)(nil)

type kvStoreCacheDecorator struct {
	inner    repository.KeyValueStore
	cache    red.RedisClient
	ttl      time.Duration
	uncached func(key string) bool
}

type CacheOption func(*kvStoreCacheDecorator)

// WithUncachedKeys sends keys matching skip straight to the inner store.
// Small flags that are read without a lock belong here.
func WithUncachedKeys(skip func(key string) bool) CacheOption {
	return func(d *kvStoreCacheDecorator) { d.uncached = skip }
}

// NewKVStoreCacheDecorator puts a Redis read-through cache in front of inner.
func NewKVStoreCacheDecorator(inner repository.KeyValueStore, cache red.RedisClient, ttl time.Duration, opts ...CacheOption) repository.KeyValueStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	d := &kvStoreCacheDecorator{inner: inner, cache: cache, ttl: ttl}
	for _, o := range opts {
		o(d)
	}
	return d
}

func cacheKey(key string) string { return "kv:" + key }

// CacheKeys returns the Redis keys caching the given store keys.
func CacheKeys(keys ...string) []string {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = cacheKey(k)
	}
	return full
}

func (d *kvStoreCacheDecorator) skip(key string) bool {
	return d.uncached != nil && d.uncached(key)
}

func (d *kvStoreCacheDecorator) Get(ctx context.Context, key string) (string, error) {
	if d.skip(key) {
		return d.inner.Get(ctx, key)
	}
	val, err := d.cache.Get(ctx, cacheKey(key))
	if err == nil {
		metrics.IncCacheRequest("kv", "hit")
		return val, nil
	}

	metrics.IncCacheRequest("kv", "miss")
	val, err = d.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}
	_ = d.cache.Set(ctx, cacheKey(key), val, d.ttl)
	return val, nil
}

// Set writes through. The cached copy is dropped before and after the
// write so a read that filled the cache in between does not survive it.
func (d *kvStoreCacheDecorator) Set(ctx context.Context, key, value string) error {
	if d.skip(key) {
		return d.inner.Set(ctx, key, value)
	}
	_ = d.cache.Del(ctx, cacheKey(key))
	if err := d.inner.Set(ctx, key, value); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, cacheKey(key))
	return nil
}

func (d *kvStoreCacheDecorator) Delete(ctx context.Context, keys ...string) error {
	full := CacheKeys(keys...)
	if len(full) > 0 {
		_ = d.cache.Del(ctx, full...)
	}
	err := d.inner.Delete(ctx, keys...)
	if len(full) > 0 {
		_ = d.cache.Del(ctx, full...)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
