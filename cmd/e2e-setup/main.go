package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"jesusia-companion/internal/config"
	"jesusia-companion/internal/domain/model"
	"jesusia-companion/internal/infra/api"
	pg "jesusia-companion/internal/infra/db/postgres"
	"jesusia-companion/internal/infra/logging"
	"jesusia-companion/internal/usecase"
)

// This script is for setting up a clean, predictable database state
// for manual end-to-end testing. It prints a bearer token per fixture user.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret is required to mint test tokens")
	}

	// --- Connect to Postgres ---
	pool, err := pg.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/3] Ensuring schema...")
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}

	log.Println("[2/3] Wiping all existing key-value data...")
	if _, err := pool.Exec(ctx, `TRUNCATE app_kv;`); err != nil {
		log.Fatalf("failed to truncate app_kv: %v", err)
	}

	log.Println("[3/3] Seeding fixture users...")
	ledger := usecase.NewLedgerUseCase(pg.NewKVStore(pool), logging.Nop())
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 24*time.Hour)

	fixtures := []struct {
		User  string
		Plan  model.PlanTier
		Cycle model.BillingCycle
	}{
		{"e2e-free", model.PlanFree, ""},
		{"e2e-basic", model.PlanBasic, model.BillingMonthly},
		{"e2e-premium", model.PlanPremium, model.BillingAnnual},
	}
	for _, f := range fixtures {
		acc, err := ledger.UpdatePlan(ctx, f.User, f.Plan, time.Now(), f.Cycle)
		if err != nil {
			log.Fatalf("seed %s: %v", f.User, err)
		}
		tok, err := auth.Mint(f.User)
		if err != nil {
			log.Fatalf("mint %s: %v", f.User, err)
		}
		fmt.Printf("%-12s plan=%-8s credits=%-3d token=%s\n", f.User, acc.Plan, acc.Credits, tok)
	}

	log.Println("--- E2E Environment Setup Complete ---")
}
