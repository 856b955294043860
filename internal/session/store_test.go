package session

import (
	"errors"
	"sync"
	"testing"
)

type testSession struct {
	State string
	Count int
}

func TestStore_CreateGetRemove(t *testing.T) {
	s := NewStore[testSession]()

	if err := s.Create("a", testSession{State: "new"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create("a", testSession{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != "new" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	s.Remove("a")
	if _, err := s.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	// idempotent
	s.Remove("a")
}

func TestStore_MutateIsAllOrNothing(t *testing.T) {
	s := NewStore[testSession]()
	if err := s.Create("a", testSession{State: "new", Count: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Mutate("a", func(v *testSession) error {
		v.State = "half"
		v.Count = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	got, _ := s.Get("a")
	if got.State != "new" || got.Count != 1 {
		t.Fatalf("mutate leaked a partial update: %+v", got)
	}
}

func TestStore_MutateAfterRemoveIsNotFound(t *testing.T) {
	s := NewStore[testSession]()
	_ = s.Create("a", testSession{})
	s.Remove("a")
	if _, err := s.Mutate("a", func(v *testSession) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ConcurrentMutationsLinearize(t *testing.T) {
	s := NewStore[testSession]()
	_ = s.Create("a", testSession{})

	const workers = 32
	const perWorker = 50

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, _ = s.Mutate("a", func(v *testSession) error {
					v.Count++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Count != workers*perWorker {
		t.Fatalf("lost updates: got %d, want %d", got.Count, workers*perWorker)
	}
}

func TestStore_SnapshotSkipsRemoved(t *testing.T) {
	s := NewStore[testSession]()
	for _, id := range []string{"a", "b", "c"} {
		_ = s.Create(id, testSession{State: id})
	}
	s.Remove("b")

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 live entries, got %d", len(snap))
	}
	if _, ok := snap["b"]; ok {
		t.Fatalf("removed entry in snapshot")
	}
	if s.Len() != 2 {
		t.Fatalf("expected Len 2, got %d", s.Len())
	}
}

func TestStore_OnlyOneWinnerForTerminalTransition(t *testing.T) {
	// Models the answer-vs-reject race: both parties try to move the
	// session out of "new"; exactly one transition may win.
	s := NewStore[testSession]()
	_ = s.Create("a", testSession{State: "new"})

	winners := make(chan string, 2)
	var wg sync.WaitGroup
	for _, next := range []string{"answered", "rejected"} {
		wg.Add(1)
		go func(next string) {
			defer wg.Done()
			_, err := s.Mutate("a", func(v *testSession) error {
				if v.State != "new" {
					return ErrConflict
				}
				v.State = next
				return nil
			})
			if err == nil {
				winners <- next
			}
		}(next)
	}
	wg.Wait()
	close(winners)

	var won []string
	for w := range winners {
		won = append(won, w)
	}
	if len(won) != 1 {
		t.Fatalf("expected exactly one winning transition, got %v", won)
	}
}
