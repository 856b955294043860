package session

import (
	"errors"
	"hash/fnv"
	"sync"
)

var (
	// ErrNotFound is returned when a session id is absent or was removed
	// concurrently (e.g. reaped or ended by the other party). Callers
	// must treat it as an expected soft failure.
	ErrNotFound = errors.New("session: not found")
	// ErrConflict is returned when creating an id that already exists.
	ErrConflict = errors.New("session: already exists")
)

const shardCount = 32

// Store is a concurrency-safe table of ephemeral session entities keyed
// by session id. It is the only shared mutable structure in the
// signaling core.
//
// Concurrency discipline:
// - The table is sharded; shard locks only guard map membership.
// - Every entry carries its own mutex. All reads and mutations of a
//   session happen under that entry lock, so operations on session A
//   never contend with session B.
// - Lock order is always shard then entry; no code path holds an entry
//   lock while taking a shard lock.
// - No caller ever receives a live reference to the stored value; Get
//   returns a copy and Mutate runs under the entry lock.
type Store[T any] struct {
	shards [shardCount]shard[T]
}

type shard[T any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[T]
}

type entry[T any] struct {
	mu sync.Mutex
	// removed marks an entry that lost the race with Remove between the
	// shard lookup and the entry lock acquisition.
	removed bool
	val     T
}

func NewStore[T any]() *Store[T] {
	s := &Store[T]{}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*entry[T])
	}
	return s
}

func (s *Store[T]) shardFor(id string) *shard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

func (s *Store[T]) lookup(id string) (*entry[T], bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[id]
	return e, ok
}

// Create inserts a new entry. Ids are caller-generated (UUIDs), so a
// collision indicates a bug upstream and surfaces as ErrConflict.
func (s *Store[T]) Create(id string, val T) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[id]; ok && !e.removed {
		return ErrConflict
	}
	sh.entries[id] = &entry[T]{val: val}
	return nil
}

// Get returns a snapshot copy of the entry.
func (s *Store[T]) Get(id string) (T, error) {
	var zero T
	e, ok := s.lookup(id)
	if !ok {
		return zero, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return zero, ErrNotFound
	}
	return e.val, nil
}

// Mutate applies fn to the entry under its lock and returns the
// resulting snapshot. If fn returns an error the entry is left exactly
// as it was (all-or-nothing), so validation failures inside fn cannot
// tear a session. This is the only sanctioned way to change a session.
func (s *Store[T]) Mutate(id string, fn func(*T) error) (T, error) {
	var zero T
	e, ok := s.lookup(id)
	if !ok {
		return zero, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return zero, ErrNotFound
	}
	prev := e.val
	if err := fn(&e.val); err != nil {
		e.val = prev
		return zero, err
	}
	return e.val, nil
}

// Remove deletes an entry. Removing an absent id is not an error; the
// other party or the reaper may have won the race.
func (s *Store[T]) Remove(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[id]
	if !ok {
		return
	}
	// Mark under the entry lock so an in-flight Mutate observes either
	// the full entry or ErrNotFound, never a half-cleaned one.
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	delete(sh.entries, id)
}

// Snapshot returns copies of all live entries with their ids. The
// snapshot is taken per shard; it is not a point-in-time view across
// shards, which is sufficient for sweep-style consumers.
func (s *Store[T]) Snapshot() map[string]T {
	out := make(map[string]T)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		pending := make(map[string]*entry[T], len(sh.entries))
		for id, e := range sh.entries {
			pending[id] = e
		}
		sh.mu.RUnlock()

		for id, e := range pending {
			e.mu.Lock()
			if !e.removed {
				out[id] = e.val
			}
			e.mu.Unlock()
		}
	}
	return out
}

// Len reports the number of live entries.
func (s *Store[T]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}
