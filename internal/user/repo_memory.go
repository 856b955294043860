package user

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu    sync.Mutex
	users map[string]Summary
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[string]Summary)}
}

func (r *MemoryRepo) Add(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[s.ID] = s
}

func (r *MemoryRepo) Find(ctx context.Context, id string) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.users[id]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	s.Online = online
	at = at.UTC()
	s.LastSeenAt = &at
	r.users[id] = s
	return nil
}
