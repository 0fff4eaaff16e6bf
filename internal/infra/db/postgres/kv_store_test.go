//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"jesusia-companion/internal/domain"
)

func TestKVStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	store := NewKVStore(testPool)
	ctx := context.Background()
	cleanup(t)

	t.Run("absent key reports not found", func(t *testing.T) {
		if _, err := store.Get(ctx, "credits"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set then overwrite", func(t *testing.T) {
		if err := store.Set(ctx, "user_7_credits", "5"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.Set(ctx, "user_7_credits", "4"); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		v, err := store.Get(ctx, "user_7_credits")
		if err != nil || v != "4" {
			t.Fatalf("expected 4, got %q %v", v, err)
		}
	})

	t.Run("delete removes several keys at once", func(t *testing.T) {
		_ = store.Set(ctx, "plan", "basic")
		_ = store.Set(ctx, "subscriptionEndDate", "2030-01-01T00:00:00Z")
		if err := store.Delete(ctx, "plan", "subscriptionEndDate", "missing"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		for _, k := range []string{"plan", "subscriptionEndDate"} {
			if _, err := store.Get(ctx, k); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("expected %s to be gone, got %v", k, err)
			}
		}
	})
}
