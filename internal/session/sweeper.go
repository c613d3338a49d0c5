package session

import (
	"context"
	"fmt"
	"time"

	"github.com/bowerhall/partscout/internal/logger"
	"github.com/robfig/cron/v3"
)

// Sweeper expires idle sessions on a cron schedule. It takes the same
// per-session locks as turns, so a session is never removed mid-turn.
type Sweeper struct {
	store    Store
	locks    *Locks
	ttl      time.Duration
	schedule cron.Schedule
	spec     string
}

// NewSweeper validates spec, which accepts standard 5-field expressions and
// descriptors such as "@every 10m".
func NewSweeper(store Store, locks *Locks, ttl time.Duration, spec string) (*Sweeper, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	return &Sweeper{store: store, locks: locks, ttl: ttl, schedule: sched, spec: spec}, nil
}

// Run sweeps on schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	c := cron.New()
	c.Schedule(s.schedule, cron.FuncJob(func() { s.SweepOnce(ctx) }))
	c.Start()

	logger.Debug("session sweeper started", "schedule", s.spec, "ttl", s.ttl)

	<-ctx.Done()
	<-c.Stop().Done()

	logger.Debug("session sweeper stopping")
}

// SweepOnce removes sessions idle for longer than the TTL. Sessions with a
// turn in flight are skipped until the next run.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	cutoff := time.Now().Add(-s.ttl)

	ids, err := s.store.Idle(ctx, cutoff)
	if err != nil {
		logger.Error("session sweep failed", "error", err)
		return 0
	}

	n := 0
	for _, id := range ids {
		release, ok := s.locks.TryAcquire(id)
		if !ok {
			logger.Debug("session busy, not swept", "session", id)
			continue
		}
		expired, err := s.store.Expire(ctx, id, cutoff)
		release()
		if err != nil {
			logger.Error("session expire failed", "error", err, "session", id)
			continue
		}
		if expired {
			n++
		}
	}

	if n > 0 {
		logger.Info("expired sessions removed", "count", n)
	}
	return n
}
