package main

import (
	"context"
	"fmt"
	"log"

	"jesusia-companion/internal/config"
	aiAdapters "jesusia-companion/internal/infra/adapters/ai"
	"jesusia-companion/internal/infra/i18n"
	"jesusia-companion/internal/infra/logging"
	"jesusia-companion/internal/infra/memstore"
	"jesusia-companion/internal/usecase"
)

// demo walks the free tier and session rollover against the in-memory
// store with no AI provider, so every answer is a canned reply.
func main() {
	ctx := context.Background()
	logger := logging.New(config.LogConfig{Level: "warn", Format: "console"}, true)

	store := memstore.New()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "pt")
	if err != nil {
		log.Fatalf("i18n: %v", err)
	}
	noop := aiAdapters.NewNoopAIAdapter(logger)

	ledger := usecase.NewLedgerUseCase(store, logger)
	sessions := usecase.NewRolloverUseCase(store, tr, logger)
	chat := usecase.NewChatUseCase(ledger, sessions, noop, noop, tr, usecase.ChatConfig{}, logger)

	// 1. Open the chat screen
	open, err := sessions.Open(ctx, "")
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	fmt.Printf("open: state=%s new=%v\n", open.State, open.StartedNew)

	// 2. Spend the free quota
	for i := 1; i <= 6; i++ {
		res, err := chat.SendMessage(ctx, "", "Quem é Jesus?")
		if err != nil {
			fmt.Printf("send %d: %v\n", i, err)
			continue
		}
		fmt.Printf("send %d: credits=%d fallback=%v\n", i, res.Account.Credits, res.Fallback)
	}

	// 3. Watch an ad
	acc := ledger.RewardAd(ctx, "")
	fmt.Printf("ad reward: credits=%d\n", acc.Credits)

	// 4. Leave the chat and come back
	if entry := sessions.CloseSession(ctx, ""); entry != nil {
		fmt.Printf("archived: %q (%s)\n", entry.Title, entry.Date)
	}
	open, _ = sessions.Open(ctx, "")
	fmt.Printf("reopen: state=%s new=%v\n", open.State, open.StartedNew)

	history, _ := sessions.History(ctx, "")
	fmt.Printf("history entries: %d\n", len(history))
}
