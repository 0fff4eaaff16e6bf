// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"jesusia-companion/internal/config"
	"jesusia-companion/internal/domain/model"
	"jesusia-companion/internal/domain/ports/adapter"
	"jesusia-companion/internal/domain/ports/repository"
	aiAdapters "jesusia-companion/internal/infra/adapters/ai"
	"jesusia-companion/internal/infra/api"
	"jesusia-companion/internal/infra/api/apiv1"
	pg "jesusia-companion/internal/infra/db/postgres"
	"jesusia-companion/internal/infra/i18n"
	"jesusia-companion/internal/infra/logging"
	"jesusia-companion/internal/infra/memstore"
	"jesusia-companion/internal/infra/metrics"
	red "jesusia-companion/internal/infra/redis"
	"jesusia-companion/internal/infra/sched"
	"jesusia-companion/internal/infra/security"
	"jesusia-companion/internal/usecase"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Redis (store, cache, shared lock, rate limit) ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			if cfg.Store.Driver == "redis" {
				logger.Fatal().Err(err).Msg("redis")
			}
			logger.Warn().Err(err).Msg("redis unavailable; cache, shared lock and rate limit disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// ---- Store ----
	store, closeStore, err := buildStore(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("store")
	}
	defer closeStore()

	// ---- Encryption ----
	if key := cfg.Security.EncryptionKey; key != "" {
		encSvc, err := security.NewEncryptionService(key)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
		store = security.NewEncryptedStore(store, encSvc, security.ConversationKeys)
		logger.Info().Msg("conversation payloads encrypted at rest")
	}

	// ---- Localized content ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Session.Locale)
	if err != nil {
		logger.Fatal().Err(err).Str("locale", cfg.Session.Locale).Msg("i18n")
	}

	// ---- AI ----
	ai, stt := buildAI(ctx, cfg, logger)

	// ---- Use cases ----
	ledgerOpts := []usecase.LedgerOption{usecase.WithLedgerCacheSize(cfg.Ledger.CacheSize)}
	if cfg.Ledger.DistributedRMW {
		if redisClient != nil {
			ledgerOpts = append(ledgerOpts, usecase.WithLedgerLocker(red.NewLocker(redisClient), cfg.Ledger.LockTTL))
		} else {
			logger.Warn().Msg("ledger.distributed_rmw requires redis; using process-local locking")
		}
	}
	ledgerUC := usecase.NewLedgerUseCase(store, logger, ledgerOpts...)
	rolloverUC := usecase.NewRolloverUseCase(store, tr, logger, usecase.WithRolloverLocation(cfg.Location()))
	chatUC := usecase.NewChatUseCase(ledgerUC, rolloverUC, ai, stt, tr, usecase.ChatConfig{
		Model:              cfg.AI.DefaultModel,
		HistoryTokenBudget: cfg.AI.HistoryTokenBudget,
	}, logger)
	devotionalUC := usecase.NewDevotionalUseCase(store, logger)

	// ---- HTTP ----
	deps := apiv1.Deps{
		Ledger:         ledgerUC,
		Sessions:       rolloverUC,
		Chat:           chatUC,
		Devotionals:    devotionalUC,
		ChatRateLimit:  cfg.HTTP.ChatRateLimit,
		ChatRateWindow: cfg.HTTP.ChatRateWindow,
		AdRewardLimit:  cfg.HTTP.AdRewardLimit,
		AdRewardWindow: cfg.HTTP.AdRewardWindow,
		ServiceKey:     cfg.Auth.ServiceKey,
	}
	if redisClient != nil {
		deps.Limiter = red.NewRateLimiter(redisClient)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("auth.jwt_secret not set; every request runs in the anonymous namespace")
	}
	if cfg.Auth.ServiceKey == "" {
		logger.Warn().Msg("auth.service_key not set; credit grants and plan changes are refused")
	}
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	router := api.NewRouter(cfg.HTTP, auth, apiv1.NewServer(deps, logger), logger)
	server := api.NewServer(cfg.HTTP, router, logger)

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	// ---- Expiry worker ----
	worker := sched.NewExpiryWorker(cfg.Ledger.ExpirySweep, ledgerUC, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}

// buildStore selects the key-value backend. The returned func releases it.
func buildStore(ctx context.Context, cfg *config.Config, redisClient *red.Client, logger *zerolog.Logger) (repository.KeyValueStore, func(), error) {
	switch cfg.Store.Driver {
	case "redis":
		logger.Info().Msg("store: redis")
		return red.NewKVStore(redisClient, "jesusia:"), func() {}, nil

	case "postgres":
		pool, err := pg.Connect(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		var store repository.KeyValueStore = pg.NewKVStore(pool)
		if redisClient != nil && cfg.Store.CacheTTL > 0 {
			store = pg.NewKVStoreCacheDecorator(store, redisClient, cfg.Store.CacheTTL, pg.WithUncachedKeys(model.IsScalarKey))
			logger.Info().Dur("ttl", cfg.Store.CacheTTL).Msg("store: postgres with redis read cache")
		} else {
			logger.Info().Msg("store: postgres")
		}
		return store, pool.Close, nil

	default:
		logger.Warn().Msg("store: memory (state is lost on restart)")
		return memstore.New(), func() {}, nil
	}
}

// buildAI routes chat by model name across the configured providers and
// caps concurrent calls. Speech-to-text uses OpenAI when available.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, adapter.TranscriptionAdapter) {
	providers := map[string]adapter.AIServiceAdapter{}
	var stt adapter.TranscriptionAdapter

	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIConfig{
			APIKey:             cfg.AI.OpenAIKey,
			BaseURL:            cfg.AI.OpenAIBaseURL,
			Model:              cfg.AI.DefaultModel,
			TranscriptionModel: cfg.AI.TranscriptionModel,
			Language:           cfg.AI.Language,
			MaxOutputTokens:    cfg.AI.MaxOutputTokens,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		providers["openai"] = oa
		stt = oa
		logger.Info().Str("model", cfg.AI.DefaultModel).Str("base", cfg.AI.OpenAIBaseURL).Msg("AI adapter: OpenAI")
	}
	if cfg.AI.GeminiKey != "" {
		model := ""
		if cfg.AI.DefaultProvider == "gemini" {
			model = cfg.AI.DefaultModel
		}
		g, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, model, cfg.AI.MaxOutputTokens)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		providers["gemini"] = g
		logger.Info().Str("base", cfg.AI.GeminiURL).Msg("AI adapter: Gemini")
	}

	noop := aiAdapters.NewNoopAIAdapter(logger)
	if len(providers) == 0 {
		logger.Warn().Msg("no AI provider configured; serving canned replies")
		providers[cfg.AI.DefaultProvider] = noop
	}
	if stt == nil {
		stt = noop
	}

	multi := aiAdapters.NewMultiAIAdapter(cfg.AI.DefaultProvider, providers, nil)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), stt
}
