package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/ports/repository"
)

var _ repository.KeyValueStore = (*KVStore)(nil)

// KVStore persists app keys in the app_kv table, one row per key.
type KVStore struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool, tm: NewTxManager(pool)}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	ex, err := getExecutor(s.pool, repository.NoTX)
	if err != nil {
		return "", err
	}
	var v string
	err = ex.QueryRow(ctx, `SELECT value FROM app_kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select %s: %w", key, err)
	}
	return v, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	ex, err := getExecutor(s.pool, repository.NoTX)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
INSERT INTO app_kv (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes all keys in one transaction.
func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(s.pool, tx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := ex.Exec(ctx, `DELETE FROM app_kv WHERE key = $1`, k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}
