package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/five82/leafrun/internal/connectivity"
	"github.com/five82/leafrun/internal/syncer"
)

const (
	defaultSyncInterval = 30 * time.Second
	maxBackoff          = 5 * time.Minute
)

// Syncer is the part of the controller the sync loop drives.
type Syncer interface {
	OnOnline(ctx context.Context) (syncer.Result, error)
	Sync(ctx context.Context) (syncer.Result, error)
	SetOnline(online bool)
}

// Pending reports whether queued work exists.
type Pending interface {
	HasPending() bool
}

// RunSyncLoop drains the queue whenever connectivity returns and, while
// online with work pending, on a periodic tick. After a pass with failures
// the tick backs off exponentially up to maxBackoff. It blocks until ctx is
// cancelled.
func RunSyncLoop(ctx context.Context, s Syncer, oracle connectivity.Oracle, pending Pending, interval time.Duration, logger *zap.SugaredLogger) {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	events, unsubscribe := oracle.Subscribe()
	defer unsubscribe()

	failures := 0
	record := func(res syncer.Result, err error) {
		switch {
		case errors.Is(err, syncer.ErrDrainInProgress), errors.Is(err, syncer.ErrOffline):
			return
		case err != nil:
			failures++
			logger.Warnw("sync failed", "error", err, "failures", failures)
		case res.Failed > 0:
			failures++
			logger.Infow("sync left actions queued", "synced", res.Synced, "failed", res.Failed, "failures", failures)
		default:
			failures = 0
		}
	}

	if oracle.IsOnline() && pending.HasPending() {
		record(s.Sync(ctx))
	}

	timer := time.NewTimer(calculateBackoff(failures, interval))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev == connectivity.WentOffline {
				s.SetOnline(false)
				continue
			}
			failures = 0
			record(s.OnOnline(ctx))
		case <-timer.C:
			if oracle.IsOnline() && pending.HasPending() {
				record(s.Sync(ctx))
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(calculateBackoff(failures, interval))
	}
}

// calculateBackoff returns the delay before the next periodic drain: the base
// interval after success, doubling per consecutive failing pass, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	d := base
	for i := 0; i <= failures; i++ {
		d = b.NextBackOff()
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
