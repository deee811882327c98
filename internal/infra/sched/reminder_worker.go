package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cms-billing/internal/infra/redis"
	"cms-billing/internal/usecase"
)

const reminderLockKey = "lock:sweeper:reminders"

// ReminderWorker periodically dispatches due renewal reminders.
type ReminderWorker struct {
	interval time.Duration
	lockTTL  time.Duration
	renewal  usecase.RenewalUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewReminderWorker(interval, lockTTL time.Duration, renewal usecase.RenewalUseCase, locker redis.Locker, logger *zerolog.Logger) *ReminderWorker {
	wLog := logger.With().Str("component", "ReminderWorker").Logger()
	return &ReminderWorker{
		interval: interval,
		lockTTL:  lockTTL,
		renewal:  renewal,
		locker:   locker,
		log:      &wLog,
	}
}

func (w *ReminderWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting reminder worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping reminder worker")
			return ctx.Err()
		case <-ticker.C:
			w.dispatch(ctx)
		}
	}
}

func (w *ReminderWorker) dispatch(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, reminderLockKey, w.lockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			w.log.Debug().Msg("reminder pass already running elsewhere")
		} else {
			w.log.Error().Err(err).Msg("reminder lock acquisition failed")
		}
		return
	}
	defer func() {
		if err := w.locker.Unlock(ctx, reminderLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("reminder lock release failed")
		}
	}()

	if _, err := w.renewal.DispatchReminders(ctx); err != nil {
		w.log.Error().Err(err).Msg("reminder pass failed")
	}
}
