package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeSweeper struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int
	err     error
}

func (f *fakeSweeper) SweepExpired(ctx context.Context, olderThan time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, olderThan)
	return f.n, f.err
}

func TestSweepOnce_UsesTTLCutoffAcrossSweepers(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	calls := &fakeSweeper{n: 2}
	rooms := &fakeSweeper{n: 1}

	r := New(time.Minute, 30*time.Minute, slog.Default(), calls, rooms)
	r.clock = func() time.Time { return now }

	if got := r.SweepOnce(context.Background()); got != 3 {
		t.Fatalf("expected 3 retired, got %d", got)
	}

	want := now.Add(-30 * time.Minute)
	for _, s := range []*fakeSweeper{calls, rooms} {
		if len(s.cutoffs) != 1 || !s.cutoffs[0].Equal(want) {
			t.Fatalf("unexpected cutoffs: %v", s.cutoffs)
		}
	}
}

func TestSweepOnce_OneFailingSweeperDoesNotBlockOthers(t *testing.T) {
	calls := &fakeSweeper{err: errors.New("boom")}
	rooms := &fakeSweeper{n: 4}

	r := New(time.Minute, 30*time.Minute, slog.Default(), calls, rooms)
	if got := r.SweepOnce(context.Background()); got != 4 {
		t.Fatalf("expected 4 retired despite failure, got %d", got)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	r := New(5*time.Millisecond, time.Minute, slog.Default(), &fakeSweeper{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reaper did not stop on cancel")
	}
}
