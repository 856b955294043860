package room

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errInjected = errors.New("room: injected repository failure")

// MemoryRepo is an in-memory Repository useful for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	rooms map[string]Session

	// FailWrites makes the next N writes fail, to exercise retry paths.
	FailWrites int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rooms: make(map[string]Session)}
}

func (r *MemoryRepo) failNext() bool {
	if r.FailWrites > 0 {
		r.FailWrites--
		return true
	}
	return false
}

func (r *MemoryRepo) CreateRoom(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext() {
		return errInjected
	}
	cp := s
	cp.Members = append([]Member(nil), s.Members...)
	r.rooms[s.ID] = cp
	return nil
}

func (r *MemoryRepo) AddParticipant(ctx context.Context, roomID, userID string, joinedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext() {
		return errInjected
	}
	s, ok := r.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	s.Members = append(s.Members, Member{UserID: userID, JoinedAt: joinedAt, Active: true})
	r.rooms[roomID] = s
	return nil
}

func (r *MemoryRepo) MarkParticipantLeft(ctx context.Context, roomID, userID string, leftAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext() {
		return errInjected
	}
	s, ok := r.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	for i := range s.Members {
		if s.Members[i].Active && s.Members[i].UserID == userID {
			s.Members[i].Active = false
			t := leftAt
			s.Members[i].LeftAt = &t
		}
	}
	r.rooms[roomID] = s
	return nil
}

func (r *MemoryRepo) DeactivateRoom(ctx context.Context, roomID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext() {
		return errInjected
	}
	s, ok := r.rooms[roomID]
	if !ok || !s.Active {
		return ErrNotFound
	}
	s.Active = false
	for i := range s.Members {
		if s.Members[i].Active {
			s.Members[i].Active = false
			t := at
			s.Members[i].LeftAt = &t
		}
	}
	r.rooms[roomID] = s
	return nil
}

// Stored returns a copy of the durable room row, for test assertions.
func (r *MemoryRepo) Stored(roomID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rooms[roomID]
	if ok {
		s.Members = append([]Member(nil), s.Members...)
	}
	return s, ok
}
