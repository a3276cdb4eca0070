package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically drops hearing sessions that were abandoned mid-test.
type Reaper struct {
	log      *zap.Logger
	manager  *HearingSessionManager
	interval time.Duration
	idle     time.Duration
}

func NewReaper(log *zap.Logger, manager *HearingSessionManager, interval, idle time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		log:      log,
		manager:  manager,
		interval: interval,
		idle:     idle,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.log.Info("Starting session reaper...", zap.Duration("interval", r.interval), zap.Duration("idle", r.idle))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Session reaper stopped")
			return nil
		case <-ticker.C:
			r.runSweep(ctx)
		}
	}
}

func (r *Reaper) runSweep(ctx context.Context) {
	n := r.manager.Sweep(ctx, r.idle)
	if n > 0 {
		r.log.Info("Expired idle hearing sessions", zap.Int("count", n))
		return
	}
	r.log.Debug("Session sweep found nothing to expire")
}
