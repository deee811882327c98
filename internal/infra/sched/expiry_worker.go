package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cms-billing/internal/infra/redis"
	"cms-billing/internal/usecase"
)

const expiryLockKey = "lock:sweeper:expiry"

// ExpiryWorker periodically demotes subscriptions past their period end.
// A Redis lock keeps overlapping triggers (or a second instance) from
// running the same pass concurrently.
type ExpiryWorker struct {
	interval time.Duration
	lockTTL  time.Duration
	renewal  usecase.RenewalUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewExpiryWorker(interval, lockTTL time.Duration, renewal usecase.RenewalUseCase, locker redis.Locker, logger *zerolog.Logger) *ExpiryWorker {
	wLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		lockTTL:  lockTTL,
		renewal:  renewal,
		locker:   locker,
		log:      &wLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, expiryLockKey, w.lockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			w.log.Debug().Msg("expiry pass already running elsewhere")
		} else {
			w.log.Error().Err(err).Msg("expiry lock acquisition failed")
		}
		return
	}
	defer func() {
		if err := w.locker.Unlock(ctx, expiryLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("expiry lock release failed")
		}
	}()

	if _, err := w.renewal.SweepExpired(ctx); err != nil {
		w.log.Error().Err(err).Msg("expiry pass failed")
	}
}
