package worker

import (
	"context"
	"time"

	"airdrop-client/internal/application"

	"go.uber.org/zap"
)

var _ application.Worker = (*PriceWorker)(nil)

// PriceWorker drives the aggregator on a fixed cadence. It fires one
// refresh immediately so the quote table is populated before the first
// tick.
type PriceWorker struct {
	Quotes *application.PriceAggregator

	RefreshEvery time.Duration
	Log          *zap.Logger
}

func (w *PriceWorker) Start(ctx context.Context) {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	if w.RefreshEvery <= 0 {
		w.RefreshEvery = 30 * time.Second
	}

	t := time.NewTicker(w.RefreshEvery)
	defer t.Stop()

	log.Info("price_worker_started", zap.Duration("refresh_every", w.RefreshEvery))
	w.tick(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("price_worker_stopped")
			return
		case <-t.C:
			w.tick(ctx, log)
		}
	}
}

func (w *PriceWorker) tick(ctx context.Context, log *zap.Logger) {
	if err := w.Quotes.Refresh(ctx); err != nil {
		log.Warn("refresh_failed", zap.Error(err))
	}
}
