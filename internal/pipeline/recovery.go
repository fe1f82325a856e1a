package pipeline

import (
	"context"
	"time"

	"leadgen-platform/pkg/logger"
)

// RecoveryWorker periodically settles campaigns stuck in active.
type RecoveryWorker struct {
	svc       *Service
	interval  time.Duration
	threshold time.Duration
}

func NewRecoveryWorker(svc *Service, interval, threshold time.Duration) *RecoveryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	return &RecoveryWorker{svc: svc, interval: interval, threshold: threshold}
}

// Start blocks until ctx is done.
func (w *RecoveryWorker) Start(ctx context.Context) {
	log := logger.From(ctx).With("worker", "campaign_recovery")
	log.Info("recovery worker started", "interval", w.interval.String(), "threshold", w.threshold.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("recovery worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RecoveryWorker) tick(ctx context.Context) {
	n, err := w.svc.RecoverStuck(ctx, w.threshold)
	if err != nil && ctx.Err() == nil {
		logger.From(ctx).Error("recover stuck campaigns", "err", err)
		return
	}
	if n > 0 {
		logger.From(ctx).Info("recovered stuck campaigns", "count", n)
	}
}
