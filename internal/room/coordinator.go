package room

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"callgrid/internal/presence"
	"callgrid/internal/session"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("room: not found or inactive")
	ErrRoomFull        = errors.New("room: at capacity")
	ErrInvalidArgument = errors.New("room: invalid argument")
)

// Events pushed to clients through the presence directory.
const (
	EventMemberJoined = "UserJoinedRoom"
	EventMemberLeft   = "UserLeftRoom"
	EventRoomClosed   = "RoomClosed"
)

const (
	minParticipants = 1
	maxParticipants = 16

	durableWriteAttempts = 3
)

// Coordinator manages multi-party room membership. It is the room
// counterpart of the call engine: the ephemeral session (under its
// per-entry lock) is the authority for capacity and membership races,
// the durable repository keeps the append-only record.
type Coordinator struct {
	store *session.Store[Session]
	repo  Repository
	dir   presence.Directory
	log   *slog.Logger

	// codes maps the human-shareable join code to a live room id. It is
	// maintained by the same code paths that create and retire store
	// entries.
	codes *codeIndex

	clock   func() time.Time
	newID   func() string
	newCode func() (string, error)
}

func NewCoordinator(store *session.Store[Session], repo Repository, dir presence.Directory, log *slog.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		repo:    repo,
		dir:     dir,
		log:     log,
		codes:   newCodeIndex(),
		clock:   time.Now,
		newID:   uuid.NewString,
		newCode: generateCode,
	}
}

// Store exposes the room table for the signaling router and reaper.
func (c *Coordinator) Store() *session.Store[Session] { return c.store }

// Create opens a room and auto-joins the creator as its first active
// member.
func (c *Coordinator) Create(ctx context.Context, creatorID, name string, maxMembers int) (Session, error) {
	if creatorID == "" || name == "" {
		return Session{}, ErrInvalidArgument
	}
	if maxMembers < minParticipants || maxMembers > maxParticipants {
		return Session{}, fmt.Errorf("%w: max_participants must be between %d and %d", ErrInvalidArgument, minParticipants, maxParticipants)
	}

	now := c.clock().UTC()
	code, err := c.codes.reserve(c.newCode)
	if err != nil {
		return Session{}, fmt.Errorf("room: code generation: %w", err)
	}

	sess := Session{
		ID:              c.newID(),
		Code:            code,
		Name:            name,
		CreatorID:       creatorID,
		MaxParticipants: maxMembers,
		Active:          true,
		CreatedAt:       now,
		Members:         []Member{{UserID: creatorID, JoinedAt: now, Active: true}},
	}

	// Durable row first, then the live session, same ordering contract
	// as call initiation.
	if err := c.writeDurable(ctx, func() error { return c.repo.CreateRoom(ctx, sess) }); err != nil {
		c.codes.release(code)
		return Session{}, fmt.Errorf("room: create: %w", err)
	}
	if err := c.store.Create(sess.ID, sess); err != nil {
		c.codes.release(code)
		return Session{}, fmt.Errorf("room: session create: %w", err)
	}
	c.codes.bind(code, sess.ID)

	c.log.Info("room created", "room_id", sess.ID, "code", code, "creator_id", creatorID, "max_participants", maxMembers)
	return sess, nil
}

// Join admits a user by room code. A join for a user who already has an
// active membership is an idempotent no-op returning current state.
// Capacity is enforced under the entry lock: with one free slot and two
// simultaneous joins, exactly one succeeds.
func (c *Coordinator) Join(ctx context.Context, code, userID string) (Session, error) {
	if code == "" || userID == "" {
		return Session{}, ErrInvalidArgument
	}
	roomID, ok := c.codes.lookup(code)
	if !ok {
		return Session{}, ErrNotFound
	}

	now := c.clock().UTC()
	joined := false
	sess, err := c.store.Mutate(roomID, func(s *Session) error {
		if !s.Active {
			return ErrNotFound
		}
		if s.IsActiveMember(userID) {
			return nil // idempotent join
		}
		if s.ActiveCount() >= s.MaxParticipants {
			return ErrRoomFull
		}
		s.Members = append(s.Members, Member{UserID: userID, JoinedAt: now, Active: true})
		joined = true
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if !joined {
		return sess, nil
	}

	// Membership rows are history; a durable write failure does not
	// eject the admitted member, it is logged for reconciliation.
	if err := c.writeDurable(ctx, func() error { return c.repo.AddParticipant(ctx, roomID, userID, now) }); err != nil {
		c.log.Error("participant row write failed", "room_id", roomID, "user_id", userID, "err", err)
	}

	c.notifyGroup(ctx, presence.RoomGroup(roomID), EventMemberJoined, map[string]any{
		"room_id": roomID,
		"user_id": userID,
	})

	c.log.Info("room joined", "room_id", roomID, "user_id", userID, "active", sess.ActiveCount())
	return sess, nil
}

// Leave marks the user's active membership row inactive. Leaving a room
// one is not in (or a room that no longer exists) is a silent no-op.
func (c *Coordinator) Leave(ctx context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return ErrInvalidArgument
	}

	now := c.clock().UTC()
	left := false
	_, err := c.store.Mutate(roomID, func(s *Session) error {
		for i := range s.Members {
			if s.Members[i].Active && s.Members[i].UserID == userID {
				s.Members[i].Active = false
				t := now
				s.Members[i].LeftAt = &t
				left = true
			}
		}
		return nil
	})
	if err != nil || !left {
		// Absent room or membership: nothing to do.
		return nil
	}

	if err := c.writeDurable(ctx, func() error { return c.repo.MarkParticipantLeft(ctx, roomID, userID, now) }); err != nil {
		c.log.Error("participant leave write failed", "room_id", roomID, "user_id", userID, "err", err)
	}

	c.notifyGroup(ctx, presence.RoomGroup(roomID), EventMemberLeft, map[string]any{
		"room_id": roomID,
		"user_id": userID,
	})
	return nil
}

// Get returns a snapshot of a live room.
func (c *Coordinator) Get(roomID string) (Session, error) {
	sess, err := c.store.Get(roomID)
	if err != nil {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// SweepExpired retires rooms created before olderThan: the room is
// deactivated durably, members are notified, and the ephemeral session
// and its code binding are dropped.
func (c *Coordinator) SweepExpired(ctx context.Context, olderThan time.Time) (int, error) {
	retired := 0
	for id, snap := range c.store.Snapshot() {
		if !snap.CreatedAt.Before(olderThan) {
			continue
		}
		if err := c.expire(ctx, id); err != nil {
			c.log.Error("room expire failed", "room_id", id, "err", err)
			continue
		}
		retired++
	}
	return retired, nil
}

func (c *Coordinator) expire(ctx context.Context, roomID string) error {
	now := c.clock().UTC()

	sess, err := c.store.Mutate(roomID, func(s *Session) error {
		if !s.Active {
			return nil
		}
		s.Active = false
		for i := range s.Members {
			if s.Members[i].Active {
				s.Members[i].Active = false
				t := now
				s.Members[i].LeftAt = &t
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := c.writeDurable(ctx, func() error { return c.repo.DeactivateRoom(ctx, roomID, now) }); err != nil && !errors.Is(err, ErrNotFound) {
		c.log.Error("room deactivate write failed", "room_id", roomID, "err", err)
	}

	c.notifyGroup(ctx, presence.RoomGroup(roomID), EventRoomClosed, map[string]any{
		"room_id": roomID,
		"reason":  "expired",
	})

	c.codes.release(sess.Code)
	c.store.Remove(roomID)
	c.log.Info("room expired", "room_id", roomID)
	return nil
}

func (c *Coordinator) writeDurable(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < durableWriteAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (c *Coordinator) notifyGroup(ctx context.Context, group, event string, payload any) {
	if err := c.dir.SendToGroup(ctx, group, event, payload); err != nil {
		c.log.Debug("room notify dropped", "group", group, "event", event, "err", err)
	}
}

// generateCode returns a 6-digit numeric join code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
