package user

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user: not found")

// Repository resolves users and tracks their binary presence flag.
//
// The online flag is advisory (used for call-history UIs and the
// offline fast-path at call initiation); the authoritative presence
// check is the directory's live-connection count.
type Repository interface {
	Find(ctx context.Context, id string) (Summary, error)
	SetOnline(ctx context.Context, id string, online bool, at time.Time) error
}

// SQLRepo implements Repository over the users table.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Find(ctx context.Context, id string) (Summary, error) {
	const q = `
SELECT id, username, email, is_online, last_seen_at
FROM users
WHERE id = $1
`
	var s Summary
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID,
		&s.Username,
		&s.Email,
		&s.Online,
		&s.LastSeenAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, err
	}
	return s, nil
}

func (r *SQLRepo) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	const q = `
UPDATE users
SET is_online = $2, last_seen_at = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, online, at)
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
