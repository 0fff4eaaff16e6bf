package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper demotes lapsed subscriptions and reports how many it touched.
type Sweeper interface {
	SweepExpired(ctx context.Context) int
}

// ExpiryWorker periodically demotes expired paid plans via the ledger.
type ExpiryWorker struct {
	interval time.Duration
	ledger   Sweeper
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, ledger Sweeper, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		ledger:   ledger,
		log:      &exprLog,
	}
}

// Run sweeps once on startup, then on every tick until ctx is done.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if n := w.ledger.SweepExpired(runCtx); n > 0 {
		w.log.Info().Int("count", n).Msg("expired subscriptions demoted")
	}
}
