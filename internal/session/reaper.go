package session

import (
	"context"
	"time"

	"github.com/fsalinas26/Guido/internal/logging"
)

// Reaper is a lifecycle component that periodically deletes sessions idle
// longer than the configured TTL. The store itself has no eviction policy;
// the reaper bounds memory in long-running deployments.
type Reaper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	logger   *logging.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewReaper creates a reaper for the store.
func NewReaper(store *Store, ttl, interval time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   logging.GetLogger("session.reaper"),
	}
}

// Start implements lifecycle.Component.
func (r *Reaper) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(runCtx)
	r.logger.Info("session reaper started (ttl=%s, interval=%s)", r.ttl, r.interval)
	return nil
}

// Stop implements lifecycle.Component.
func (r *Reaper) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Name implements lifecycle.Component.
func (r *Reaper) Name() string { return "session-reaper" }

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := r.store.ReapIdle(r.ttl); len(reaped) > 0 {
				r.logger.InfoWithFields("reaped idle sessions",
					logging.Field("count", len(reaped)),
					logging.Field("call_ids", reaped),
				)
			}
		}
	}
}
