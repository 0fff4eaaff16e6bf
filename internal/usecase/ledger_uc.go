// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/domain/model"
	"jesusia-companion/internal/domain/ports/repository"
	"jesusia-companion/internal/infra/logging"
	"jesusia-companion/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase gates metered actions behind a credit balance and manages
// plan changes and expiry. An empty userID addresses the anonymous namespace.
type LedgerUseCase interface {
	Load(ctx context.Context, userID string) *model.CreditAccount
	ConsumeOne(ctx context.Context, userID string) bool
	GrantCredits(ctx context.Context, userID string, amount int) (*model.CreditAccount, error)
	RewardAd(ctx context.Context, userID string) *model.CreditAccount
	UpdatePlan(ctx context.Context, userID string, plan model.PlanTier, base time.Time, cycle model.BillingCycle) (*model.CreditAccount, error)
	Snapshot(ctx context.Context, userID string) *model.CreditAccount
	SweepExpired(ctx context.Context) int
	Catalog() []model.PlanCatalogEntry
}

// endDateLayout matches the ISO-8601 strings written by the mobile client.
const endDateLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	defaultLedgerCacheSize = 10000
	ledgerLockStripes      = 256
)

type LedgerOption func(*ledgerUC)

// WithLedgerClock overrides time.Now.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *ledgerUC) { l.now = now }
}

// WithLedgerLocker serialises read-modify-write cycles across processes.
// Every mutation then re-reads the balance from the store under the lock.
func WithLedgerLocker(locker repository.Locker, ttl time.Duration) LedgerOption {
	return func(l *ledgerUC) {
		l.locker = locker
		if ttl > 0 {
			l.lockTTL = ttl
		}
	}
}

// WithLedgerCacheSize bounds the number of accounts kept in memory. The
// least recently used account is dropped first and reloaded on next use.
func WithLedgerCacheSize(n int) LedgerOption {
	return func(l *ledgerUC) {
		if n > 0 {
			l.cacheSize = n
		}
	}
}

type ledgerUC struct {
	store     repository.KeyValueStore
	locker    repository.Locker
	lockTTL   time.Duration
	cacheSize int
	now       func() time.Time
	log       *zerolog.Logger

	accounts *lru.Cache[string, *model.CreditAccount]
	// stripes serialise read-modify-write per namespace without a per-user map.
	stripes [ledgerLockStripes]sync.Mutex
}

func NewLedgerUseCase(store repository.KeyValueStore, logger *zerolog.Logger, opts ...LedgerOption) *ledgerUC {
	l := &ledgerUC{
		store:     store,
		lockTTL:   5 * time.Second,
		cacheSize: defaultLedgerCacheSize,
		now:       time.Now,
		log:       logger,
	}
	for _, o := range opts {
		o(l)
	}
	// only fails for a non-positive size
	l.accounts, _ = lru.New[string, *model.CreditAccount](l.cacheSize)
	return l
}

func (l *ledgerUC) Catalog() []model.PlanCatalogEntry { return model.Catalog() }

// Load re-reads the account from the store and applies the expiry and
// refill rules. It never fails; read errors yield the free defaults.
func (l *ledgerUC) Load(ctx context.Context, userID string) *model.CreditAccount {
	defer logging.TraceDuration(l.log, "LedgerUC.Load")()
	ns := model.NewNamespace(userID)
	unlock := l.lockNamespace(ctx, ns)
	defer unlock()
	return l.loadLocked(ctx, ns).Clone()
}

func (l *ledgerUC) Snapshot(ctx context.Context, userID string) *model.CreditAccount {
	ns := model.NewNamespace(userID)
	unlock := l.lockNamespace(ctx, ns)
	defer unlock()
	if acc := l.cached(ns); acc != nil {
		return acc.Clone()
	}
	return l.loadLocked(ctx, ns).Clone()
}

func (l *ledgerUC) ConsumeOne(ctx context.Context, userID string) bool {
	defer logging.TraceDuration(l.log, "LedgerUC.ConsumeOne")()
	ns := model.NewNamespace(userID)
	unlock := l.lockNamespace(ctx, ns)
	defer unlock()

	acc := l.current(ctx, ns)
	if !acc.Metered() {
		metrics.IncCreditConsumed(string(acc.Plan))
		return true
	}
	if acc.Credits <= 0 {
		metrics.IncCreditDenied()
		logging.With(ctx, l.log).Debug().Str("namespace", ns.String()).Msg("credit denied")
		return false
	}
	acc.Credits--
	l.writeKey(ctx, ns.Key(model.KeyCredits), strconv.Itoa(acc.Credits))
	metrics.IncCreditConsumed(string(acc.Plan))
	return true
}

// GrantCredits adds amount to a metered balance. Unmetered plans keep the
// unlimited sentinel.
func (l *ledgerUC) GrantCredits(ctx context.Context, userID string, amount int) (*model.CreditAccount, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return l.grant(ctx, model.NewNamespace(userID), amount, "grant"), nil
}

// RewardAd credits a completed rewarded ad. Callers invoke it only after
// the ad finished playing.
func (l *ledgerUC) RewardAd(ctx context.Context, userID string) *model.CreditAccount {
	return l.grant(ctx, model.NewNamespace(userID), model.AdRewardCredits, "ad")
}

func (l *ledgerUC) grant(ctx context.Context, ns model.Namespace, amount int, source string) *model.CreditAccount {
	defer logging.TraceDuration(l.log, "LedgerUC.GrantCredits")()
	unlock := l.lockNamespace(ctx, ns)
	defer unlock()

	acc := l.current(ctx, ns)
	if !acc.Metered() {
		return acc.Clone()
	}
	acc.Credits += amount
	l.writeKey(ctx, ns.Key(model.KeyCredits), strconv.Itoa(acc.Credits))
	metrics.AddCreditsGranted(source, amount)
	return acc.Clone()
}

// UpdatePlan switches the tier and records the cycle. Paid tiers get the
// catalog quota and an end date one billing period after base. Free keeps the
// balance and clears the end date; only the unlimited sentinel is refilled.
func (l *ledgerUC) UpdatePlan(ctx context.Context, userID string, plan model.PlanTier, base time.Time, cycle model.BillingCycle) (*model.CreditAccount, error) {
	defer logging.TraceDuration(l.log, "LedgerUC.UpdatePlan")()
	entry, err := model.LookupPlan(plan)
	if err != nil {
		return nil, err
	}
	if cycle == "" {
		cycle = model.BillingMonthly
	}
	if _, err := model.ParseBillingCycle(string(cycle)); err != nil {
		return nil, err
	}

	ns := model.NewNamespace(userID)
	unlock := l.lockNamespace(ctx, ns)
	defer unlock()

	acc := l.current(ctx, ns)
	if plan == model.PlanFree {
		acc.Plan = model.PlanFree
		acc.SubscriptionEndDate = nil
		acc.BillingCycle = cycle
		l.writeKey(ctx, ns.Key(model.KeyPlan), string(acc.Plan))
		l.writeKey(ctx, ns.Key(model.KeyBillingCycle), string(cycle))
		if acc.Credits == model.UnlimitedCredits {
			acc.Credits = model.FreeQuota
			l.writeKey(ctx, ns.Key(model.KeyCredits), strconv.Itoa(acc.Credits))
		}
		l.deleteKeys(ctx, ns.Key(model.KeySubscriptionEndDate))
	} else {
		end := cycle.Advance(base)
		acc.Plan = plan
		acc.Credits = entry.Credits
		acc.SubscriptionEndDate = &end
		acc.BillingCycle = cycle
		l.writeKey(ctx, ns.Key(model.KeyPlan), string(acc.Plan))
		l.writeKey(ctx, ns.Key(model.KeyCredits), strconv.Itoa(acc.Credits))
		l.writeKey(ctx, ns.Key(model.KeySubscriptionEndDate), end.UTC().Format(endDateLayout))
		l.writeKey(ctx, ns.Key(model.KeyBillingCycle), string(cycle))
	}
	metrics.IncPlanChange(string(plan), string(acc.BillingCycle))
	logging.With(ctx, l.log).Info().
		Str("namespace", ns.String()).
		Str("plan", string(plan)).
		Str("cycle", string(acc.BillingCycle)).
		Msg("plan updated")
	return acc.Clone(), nil
}

// SweepExpired demotes every cached account whose subscription has lapsed.
// Evicted accounts are demoted by the next Load instead.
func (l *ledgerUC) SweepExpired(ctx context.Context) int {
	defer logging.TraceDuration(l.log, "LedgerUC.SweepExpired")()
	namespaces := l.accounts.Keys()

	demoted := 0
	for _, id := range namespaces {
		if ctx.Err() != nil {
			break
		}
		ns := namespaceFromKey(id)
		unlock := l.lockNamespace(ctx, ns)
		acc := l.cached(ns)
		if acc != nil && acc.Expired(l.now()) {
			l.demote(ctx, ns, acc)
			demoted++
		}
		unlock()
	}
	if demoted > 0 {
		l.log.Info().Int("count", demoted).Msg("expired subscriptions demoted")
	}
	return demoted
}

// --- internals ---

func namespaceKey(ns model.Namespace) string { return ns.UserID }

func namespaceFromKey(k string) model.Namespace { return model.NewNamespace(k) }

func (l *ledgerUC) cached(ns model.Namespace) *model.CreditAccount {
	acc, _ := l.accounts.Get(namespaceKey(ns))
	return acc
}

func (l *ledgerUC) remember(ns model.Namespace, acc *model.CreditAccount) {
	l.accounts.Add(namespaceKey(ns), acc)
}

func (l *ledgerUC) stripe(ns model.Namespace) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(namespaceKey(ns)))
	return &l.stripes[h.Sum32()%ledgerLockStripes]
}

// lockNamespace holds the in-process stripe of ns and, when configured, the
// shared lock. A shared lock that cannot be taken is logged and skipped.
func (l *ledgerUC) lockNamespace(ctx context.Context, ns model.Namespace) func() {
	m := l.stripe(ns)
	m.Lock()

	if l.locker == nil {
		return m.Unlock
	}
	key := "ledger:" + ns.String()
	token, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		l.log.Warn().Err(err).Str("namespace", ns.String()).Msg("shared ledger lock unavailable")
		return m.Unlock
	}
	return func() {
		if err := l.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			l.log.Warn().Err(err).Str("namespace", ns.String()).Msg("shared ledger unlock failed")
		}
		m.Unlock()
	}
}

// current returns the live account for a mutation. Without a shared lock the
// cached account is authoritative; with one, the store is re-read so writes
// from other processes are not lost.
func (l *ledgerUC) current(ctx context.Context, ns model.Namespace) *model.CreditAccount {
	acc := l.cached(ns)
	if acc == nil {
		return l.loadLocked(ctx, ns)
	}
	if l.locker == nil {
		if acc.Expired(l.now()) {
			l.demote(ctx, ns, acc)
		}
		return acc
	}
	stored, creditsOK, err := l.read(ctx, ns)
	if err != nil {
		return acc
	}
	if !creditsOK {
		stored.Credits = acc.Credits
	}
	if stored.Expired(l.now()) {
		l.demote(ctx, ns, stored)
	}
	l.remember(ns, stored)
	return stored
}

func (l *ledgerUC) loadLocked(ctx context.Context, ns model.Namespace) *model.CreditAccount {
	log := logging.With(ctx, l.log)
	acc, creditsOK, err := l.read(ctx, ns)
	if err != nil {
		metrics.IncStoreError("read")
		log.Warn().Err(err).Str("namespace", ns.String()).Msg("credit state unreadable, using defaults")
		if prev := l.cached(ns); prev != nil {
			return prev
		}
		acc = model.NewCreditAccount()
		l.remember(ns, acc)
		return acc
	}

	if acc.Expired(l.now()) {
		l.demote(ctx, ns, acc)
	} else if !creditsOK || (acc.Credits <= 0 && !(acc.Plan == model.PlanPremium && acc.Credits == model.UnlimitedCredits)) {
		acc.Credits = model.FreeQuota
		l.writeKey(ctx, ns.Key(model.KeyCredits), strconv.Itoa(acc.Credits))
		metrics.IncBalanceReset()
	}
	l.remember(ns, acc)
	return acc
}

// read parses the stored account without applying any correction.
// creditsOK is false when the balance is absent or unparseable.
func (l *ledgerUC) read(ctx context.Context, ns model.Namespace) (*model.CreditAccount, bool, error) {
	acc := model.NewCreditAccount()
	get := func(name string) (string, bool, error) {
		v, err := l.store.Get(ctx, ns.Key(name))
		if errors.Is(err, domain.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, errors.Join(domain.ErrStorageRead, err)
		}
		return v, true, nil
	}

	if v, ok, err := get(model.KeyPlan); err != nil {
		return nil, false, err
	} else if ok {
		if p, perr := model.ParsePlanTier(v); perr == nil {
			acc.Plan = p
		}
	}

	creditsOK := false
	if v, ok, err := get(model.KeyCredits); err != nil {
		return nil, false, err
	} else if ok {
		if n, perr := strconv.Atoi(v); perr == nil {
			acc.Credits = n
			creditsOK = true
		}
	}

	if v, ok, err := get(model.KeySubscriptionEndDate); err != nil {
		return nil, false, err
	} else if ok {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			acc.SubscriptionEndDate = &t
		}
	}

	if v, ok, err := get(model.KeyBillingCycle); err != nil {
		return nil, false, err
	} else if ok {
		if c, perr := model.ParseBillingCycle(v); perr == nil {
			acc.BillingCycle = c
		}
	}
	return acc, creditsOK, nil
}

func (l *ledgerUC) demote(ctx context.Context, ns model.Namespace, acc *model.CreditAccount) {
	logging.With(ctx, l.log).Info().
		Str("namespace", ns.String()).
		Str("plan", string(acc.Plan)).
		Msg("subscription expired, demoting to free")
	acc.Demote()
	l.writeKey(ctx, ns.Key(model.KeyPlan), string(acc.Plan))
	l.writeKey(ctx, ns.Key(model.KeyCredits), strconv.Itoa(acc.Credits))
	l.deleteKeys(ctx, ns.Key(model.KeySubscriptionEndDate), ns.Key(model.KeyBillingCycle))
	metrics.IncSubscriptionsExpired(1)
}

// writeKey is best-effort: failures are logged and the in-memory state stands.
func (l *ledgerUC) writeKey(ctx context.Context, key, value string) {
	if err := l.store.Set(ctx, key, value); err != nil {
		metrics.IncStoreError("write")
		logging.With(ctx, l.log).Error().Err(err).Str("key", key).Msg("ledger write failed")
	}
}

func (l *ledgerUC) deleteKeys(ctx context.Context, keys ...string) {
	if err := l.store.Delete(ctx, keys...); err != nil {
		metrics.IncStoreError("write")
		logging.With(ctx, l.log).Error().Err(err).Strs("keys", keys).Msg("ledger delete failed")
	}
}
