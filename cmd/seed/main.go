package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"jesusia-companion/internal/config"
	"jesusia-companion/internal/domain/model"
	"jesusia-companion/internal/domain/ports/repository"
	pg "jesusia-companion/internal/infra/db/postgres"
	"jesusia-companion/internal/infra/logging"
	red "jesusia-companion/internal/infra/redis"
	"jesusia-companion/internal/usecase"
)

// seed puts a user on a plan (and optionally tops up credits) directly in
// the Postgres store, for support and manual testing. When Redis is
// configured the writes go through the cache so running servers see them.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	user := flag.String("user", "", "user id (empty = anonymous namespace)")
	plan := flag.String("plan", "free", "free | basic | premium")
	cycle := flag.String("cycle", "monthly", "monthly | annual")
	grant := flag.Int("grant", 0, "extra credits to add after the plan change")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}

	var store repository.KeyValueStore = pg.NewKVStore(pool)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		store = pg.NewKVStoreCacheDecorator(store, rc, cfg.Store.CacheTTL, pg.WithUncachedKeys(model.IsScalarKey))
	}

	ledger := usecase.NewLedgerUseCase(store, logging.New(cfg.Log, false))

	tier, err := model.ParsePlanTier(*plan)
	if err != nil {
		log.Fatalf("plan %q: %v", *plan, err)
	}
	acc, err := ledger.UpdatePlan(ctx, *user, tier, time.Now(), model.BillingCycle(*cycle))
	if err != nil {
		log.Fatalf("update plan: %v", err)
	}
	if *grant > 0 {
		if acc, err = ledger.GrantCredits(ctx, *user, *grant); err != nil {
			log.Fatalf("grant: %v", err)
		}
	}

	fmt.Printf("seeded %s: plan=%s credits=%d", model.NewNamespace(*user), acc.Plan, acc.Credits)
	if acc.SubscriptionEndDate != nil {
		fmt.Printf(" until=%s (%s)", acc.SubscriptionEndDate.Format(time.RFC3339), acc.BillingCycle)
	}
	fmt.Println()
}
