package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/model"
	"jesusia-companion/internal/domain/ports/repository"
	"jesusia-companion/internal/infra/logging"
)

// Compile-time check
var _ DevotionalUseCase = (*devotionalUC)(nil)

// DevotionalUseCase keeps the excerpts a user saved, newest first.
type DevotionalUseCase interface {
	Save(ctx context.Context, userID, content string) (*model.Devotional, error)
	List(ctx context.Context, userID string) ([]model.Devotional, error)
	Delete(ctx context.Context, userID, id string) error
}

type devotionalUC struct {
	store repository.KeyValueStore
	now   func() time.Time
	log   *zerolog.Logger

	mu sync.Mutex
}

func NewDevotionalUseCase(store repository.KeyValueStore, logger *zerolog.Logger) *devotionalUC {
	return &devotionalUC{store: store, now: time.Now, log: logger}
}

func (d *devotionalUC) Save(ctx context.Context, userID, content string) (*model.Devotional, error) {
	defer logging.TraceDuration(d.log, "DevotionalUC.Save")()
	dev, err := model.NewDevotional(content, d.now())
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	ns := model.NewNamespace(userID)
	list, err := d.load(ctx, ns)
	if err != nil {
		return nil, err
	}
	list = append([]model.Devotional{*dev}, list...)
	if err := d.save(ctx, ns, list); err != nil {
		return nil, err
	}
	return dev, nil
}

func (d *devotionalUC) List(ctx context.Context, userID string) ([]model.Devotional, error) {
	return d.load(ctx, model.NewNamespace(userID))
}

func (d *devotionalUC) Delete(ctx context.Context, userID, id string) error {
	defer logging.TraceDuration(d.log, "DevotionalUC.Delete")()
	d.mu.Lock()
	defer d.mu.Unlock()
	ns := model.NewNamespace(userID)
	list, err := d.load(ctx, ns)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, dv := range list {
		if dv.ID != id {
			kept = append(kept, dv)
		}
	}
	if len(kept) == len(list) {
		return domain.ErrNotFound
	}
	return d.save(ctx, ns, kept)
}

func (d *devotionalUC) load(ctx context.Context, ns model.Namespace) ([]model.Devotional, error) {
	raw, err := d.store.Get(ctx, ns.Key(model.KeyDevotionals))
	if errors.Is(err, domain.ErrNotFound) {
		return []model.Devotional{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageRead, err)
	}
	var list []model.Devotional
	if _, err := model.DecodeRecord(raw, &list); err != nil {
		if errors.Is(err, domain.ErrUnsupportedSchema) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: devotionals: %v", domain.ErrStorageRead, err)
	}
	if list == nil {
		list = []model.Devotional{}
	}
	return list, nil
}

func (d *devotionalUC) save(ctx context.Context, ns model.Namespace, list []model.Devotional) error {
	raw, err := model.EncodeRecord(list)
	if err != nil {
		return err
	}
	if err := d.store.Set(ctx, ns.Key(model.KeyDevotionals), raw); err != nil {
		logging.With(ctx, d.log).Error().Err(err).Msg("devotionals write failed")
		return fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
	}
	return nil
}
