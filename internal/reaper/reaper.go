package reaper

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper retires all sessions of one kind started before olderThan and
// reports how many it removed. The call engine and room coordinator
// both implement it; each performs the same durable finalization as a
// normal end, with end_reason="expired".
type Sweeper interface {
	SweepExpired(ctx context.Context, olderThan time.Time) (int, error)
}

// Reaper periodically retires abandoned sessions so memory stays
// bounded when clients vanish without signaling an end. Removal runs
// through the same per-entry ownership as every other mutation, so a
// session mid-transition is either fully reaped or fully left alone.
type Reaper struct {
	interval time.Duration
	ttl      time.Duration
	sweepers []Sweeper
	log      *slog.Logger

	clock func() time.Time
}

func New(interval, ttl time.Duration, log *slog.Logger, sweepers ...Sweeper) *Reaper {
	return &Reaper{
		interval: interval,
		ttl:      ttl,
		sweepers: sweepers,
		log:      log,
		clock:    time.Now,
	}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reaper started", "interval", r.interval.String(), "session_ttl", r.ttl.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep across all sweepers.
func (r *Reaper) SweepOnce(ctx context.Context) int {
	cutoff := r.clock().UTC().Add(-r.ttl)
	total := 0
	for _, s := range r.sweepers {
		n, err := s.SweepExpired(ctx, cutoff)
		if err != nil {
			r.log.Error("sweep failed", "err", err)
			continue
		}
		total += n
	}
	if total > 0 {
		r.log.Info("sweep retired sessions", "count", total)
	}
	return total
}
