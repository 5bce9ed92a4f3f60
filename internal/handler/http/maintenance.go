package http

import (
	"context"
	"log/slog"
	"time"

	"kb-gate/pkg/ipblock"
	"kb-gate/pkg/ratelimit"
)

// StartStoreMaintenance runs a background loop that periodically purges
// expired rate-limit counters and dead IP failure records (expired blocks
// and long-idle sub-threshold records), keeping both stores bounded over
// long uptimes.
//
// The loop stops when the context is cancelled, typically during server
// shutdown.
func StartStoreMaintenance(
	ctx context.Context,
	store ratelimit.CounterStore,
	guard *ipblock.Guard,
	metrics ratelimit.Metrics,
	interval time.Duration,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("store maintenance started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			slog.Info("store maintenance stopped")
			return

		case <-ticker.C:
			evicted, err := store.Purge(ctx)
			if err != nil {
				slog.Warn("counter store purge failed", slog.Any("error", err))
			} else if evicted > 0 {
				metrics.RecordEviction(evicted)
			}

			if count, err := store.KeyCount(ctx); err == nil {
				metrics.SetActiveKeys(count)
			}

			cleared := guard.Purge()

			slog.Debug("store maintenance completed",
				slog.Int("counters_evicted", evicted),
				slog.Int("blocks_cleared", cleared))
		}
	}
}
