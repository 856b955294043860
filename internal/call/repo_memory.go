package call

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var errInjected = errors.New("injected repository failure")

// MemoryHistoryRepo is an in-memory HistoryRepository useful for tests.
// It enforces the same immutability rule as the SQL repo: terminal rows
// reject further patches.
type MemoryHistoryRepo struct {
	mu   sync.Mutex
	rows map[string]History

	// FailCreates / FailUpdates make the next N writes fail, to exercise
	// the engine's retry/rollback policy.
	FailCreates int
	FailUpdates int
}

func NewMemoryHistoryRepo() *MemoryHistoryRepo {
	return &MemoryHistoryRepo{rows: make(map[string]History)}
}

func (r *MemoryHistoryRepo) Create(ctx context.Context, h History) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreates > 0 {
		r.FailCreates--
		return errInjected
	}
	r.rows[h.ID] = h
	return nil
}

func (r *MemoryHistoryRepo) Update(ctx context.Context, id string, p HistoryPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdates > 0 {
		r.FailUpdates--
		return errInjected
	}
	h, ok := r.rows[id]
	if !ok || h.FinalState.Terminal() {
		return ErrNotFound
	}
	h.FinalState = p.FinalState
	if p.EndedAt != nil {
		h.EndedAt = p.EndedAt
	}
	if p.DurationSeconds != nil {
		h.DurationSeconds = *p.DurationSeconds
	}
	if p.EndReason != "" {
		h.EndReason = p.EndReason
	}
	r.rows[id] = h
	return nil
}

func (r *MemoryHistoryRepo) ListForUser(ctx context.Context, userID string, limit int) ([]History, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []History
	for _, h := range r.rows {
		if h.CallerID == userID || h.ReceiverID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Row returns a copy of a stored row, for test assertions.
func (r *MemoryHistoryRepo) Row(id string) (History, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.rows[id]
	return h, ok
}

// Rows returns all stored rows.
func (r *MemoryHistoryRepo) Rows() []History {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]History, 0, len(r.rows))
	for _, h := range r.rows {
		out = append(out, h)
	}
	return out
}
