package call

import (
	"context"
	"database/sql"
)

// HistoryRepository is the persistence contract for call history.
//
// It is append-then-patch only: rows are created at initiation and
// patched at state boundaries. No Delete is provided; history is the
// audit trail.
type HistoryRepository interface {
	Create(ctx context.Context, h History) error
	Update(ctx context.Context, id string, p HistoryPatch) error
	ListForUser(ctx context.Context, userID string, limit int) ([]History, error)
}

// SQLHistoryRepo implements HistoryRepository over the call_history table.
//
// Assumed schema:
//   call_history(id, caller_id, receiver_id, media, final_state,
//                started_at, ended_at, duration_seconds, end_reason)
type SQLHistoryRepo struct {
	db *sql.DB
}

func NewSQLHistoryRepo(db *sql.DB) *SQLHistoryRepo { return &SQLHistoryRepo{db: db} }

func (r *SQLHistoryRepo) Create(ctx context.Context, h History) error {
	const q = `
INSERT INTO call_history (id, caller_id, receiver_id, media, final_state, started_at, ended_at, duration_seconds, end_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		h.ID,
		h.CallerID,
		h.ReceiverID,
		string(h.Media),
		string(h.FinalState),
		h.StartedAt,
		h.EndedAt,
		h.DurationSeconds,
		h.EndReason,
	)
	return err
}

func (r *SQLHistoryRepo) Update(ctx context.Context, id string, p HistoryPatch) error {
	// Terminal rows are immutable; the WHERE clause enforces it even if
	// two finalizers race across instances.
	const q = `
UPDATE call_history
SET final_state = $2,
    ended_at = COALESCE($3, ended_at),
    duration_seconds = COALESCE($4, duration_seconds),
    end_reason = CASE WHEN $5 = '' THEN end_reason ELSE $5 END
WHERE id = $1
  AND final_state NOT IN ('ended', 'rejected', 'failed')
`
	var dur any
	if p.DurationSeconds != nil {
		dur = *p.DurationSeconds
	}
	res, err := r.db.ExecContext(ctx, q, id, string(p.FinalState), p.EndedAt, dur, p.EndReason)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLHistoryRepo) ListForUser(ctx context.Context, userID string, limit int) ([]History, error) {
	const q = `
SELECT id, caller_id, receiver_id, media, final_state, started_at, ended_at, duration_seconds, end_reason
FROM call_history
WHERE caller_id = $1 OR receiver_id = $1
ORDER BY started_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []History
	for rows.Next() {
		var h History
		var media, state string
		var reason sql.NullString
		if err := rows.Scan(
			&h.ID,
			&h.CallerID,
			&h.ReceiverID,
			&media,
			&state,
			&h.StartedAt,
			&h.EndedAt,
			&h.DurationSeconds,
			&reason,
		); err != nil {
			return nil, err
		}
		h.Media = MediaKind(media)
		h.FinalState = State(state)
		h.EndReason = reason.String
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
