package room

import (
	"context"
	"database/sql"
	"time"

	"callgrid/pkg/utils"
)

// Repository is the durable mirror of room state. The ephemeral session
// is authoritative while a room is live; these rows are the audit trail
// and survive restarts.
//
// Participant rows are append-only: a rejoin inserts a new row, leave
// patches left_at on the open row.
type Repository interface {
	CreateRoom(ctx context.Context, s Session) error
	AddParticipant(ctx context.Context, roomID, userID string, joinedAt time.Time) error
	MarkParticipantLeft(ctx context.Context, roomID, userID string, leftAt time.Time) error
	DeactivateRoom(ctx context.Context, roomID string, at time.Time) error
}

// SQLRepo implements Repository over rooms and room_participants.
//
// Assumed schema:
//   rooms(id, code, name, creator_id, max_participants, is_active, created_at, closed_at)
//   room_participants(id SERIAL, room_id, user_id, joined_at, left_at, is_active)
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) CreateRoom(ctx context.Context, s Session) error {
	// Room row and the creator's first membership row commit together.
	return utils.WithTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		const insRoom = `
INSERT INTO rooms (id, code, name, creator_id, max_participants, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
		if _, err := tx.ExecContext(ctx, insRoom,
			s.ID, s.Code, s.Name, s.CreatorID, s.MaxParticipants, s.Active, s.CreatedAt,
		); err != nil {
			return err
		}

		const insMember = `
INSERT INTO room_participants (room_id, user_id, joined_at, is_active)
VALUES ($1, $2, $3, TRUE)
`
		for _, m := range s.Members {
			if _, err := tx.ExecContext(ctx, insMember, s.ID, m.UserID, m.JoinedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLRepo) AddParticipant(ctx context.Context, roomID, userID string, joinedAt time.Time) error {
	const q = `
INSERT INTO room_participants (room_id, user_id, joined_at, is_active)
VALUES ($1, $2, $3, TRUE)
`
	_, err := r.db.ExecContext(ctx, q, roomID, userID, joinedAt)
	return err
}

func (r *SQLRepo) MarkParticipantLeft(ctx context.Context, roomID, userID string, leftAt time.Time) error {
	const q = `
UPDATE room_participants
SET is_active = FALSE, left_at = $3
WHERE room_id = $1 AND user_id = $2 AND is_active
`
	_, err := r.db.ExecContext(ctx, q, roomID, userID, leftAt)
	return err
}

func (r *SQLRepo) DeactivateRoom(ctx context.Context, roomID string, at time.Time) error {
	return utils.WithTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		const closeRoom = `
UPDATE rooms SET is_active = FALSE, closed_at = $2 WHERE id = $1 AND is_active
`
		res, err := tx.ExecContext(ctx, closeRoom, roomID, at)
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

		const closeMembers = `
UPDATE room_participants SET is_active = FALSE, left_at = $2 WHERE room_id = $1 AND is_active
`
		_, err = tx.ExecContext(ctx, closeMembers, roomID, at)
		return err
	})
}
