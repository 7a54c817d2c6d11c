// internal/app/sweepers.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// runEvery calls fn on every tick until ctx is done. A failing or panicking
// cycle is logged and the loop goes on.
func runEvery(ctx context.Context, log *zap.Logger, name string, every time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("sweeper stopped", zap.String("sweeper", name))
			return
		case <-ticker.C:
			if err := safeCycle(ctx, every, fn); err != nil {
				log.Warn("sweep cycle failed", zap.String("sweeper", name), zap.Error(err))
			}
		}
	}
}

func safeCycle(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

func (b *Bot) startSweepers(ctx context.Context) {
	cfg := b.cfg

	go runEvery(ctx, b.log, "queue", cfg.QueueSweepInterval, func(ctx context.Context) error {
		n, err := b.coord.Sweep(ctx, cfg.QueueIdleTimeout)
		if n > 0 {
			b.log.Info("idle queue members removed", zap.Int("count", n))
		}
		// groups left waiting by a failed hand-off
		_, merr := b.coord.MatchFull(ctx)
		return errors.Join(err, merr)
	})

	go runEvery(ctx, b.log, "mediator", cfg.MediatorSweepInterval, func(ctx context.Context) error {
		n, err := b.pool.Sweep(ctx, cfg.MediatorIdleTimeout)
		if n > 0 {
			b.log.Info("idle mediators removed", zap.Int("count", n))
		}
		return err
	})

	go runEvery(ctx, b.log, "cleanup", cfg.CleanupInterval, func(ctx context.Context) error {
		if _, err := b.ledger.Reconcile(ctx); err != nil {
			return err
		}
		b.clicks.Prune()
		if b.gw.MirrorDirty() {
			return b.gw.Heal(ctx)
		}
		return nil
	})
}
