package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callgrid/internal/call"
	"callgrid/internal/presence"
	"callgrid/internal/room"
	"callgrid/internal/session"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("signaling: session not found")
	ErrUnauthorized    = errors.New("signaling: sender not a participant")
	ErrInvalidArgument = errors.New("signaling: invalid message")
	ErrPayloadTooLarge = errors.New("signaling: payload too large")
)

const defaultMaxPayloadBytes = 64 * 1024

// Router relays opaque signaling payloads between the participants of a
// session without interpreting them.
//
// Guarantees and non-guarantees:
// - Messages from the same sender on the same session reach the
//   directory in Relay invocation order (Relay is synchronous and does
//   not reorder).
// - Delivery is fire-and-forget: an absent target silently receives
//   nothing and the sender gets no delivery confirmation.
// - Duplicates are not filtered; a re-sent ICE candidate is the media
//   layer's concern.
type Router struct {
	calls *session.Store[call.Session]
	rooms *session.Store[room.Session]
	dir   presence.Directory
	log   *slog.Logger

	maxPayload int
	clock      func() time.Time
	newID      func() string
}

func NewRouter(calls *session.Store[call.Session], rooms *session.Store[room.Session], dir presence.Directory, log *slog.Logger, maxPayloadBytes int) *Router {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = defaultMaxPayloadBytes
	}
	return &Router{
		calls:      calls,
		rooms:      rooms,
		dir:        dir,
		log:        log,
		maxPayload: maxPayloadBytes,
		clock:      time.Now,
		newID:      uuid.NewString,
	}
}

// RelayCall forwards a payload to the other party of a two-party call.
func (r *Router) RelayCall(ctx context.Context, sessionID, senderID string, kind Kind, payload string) error {
	if err := r.validate(sessionID, senderID, kind, payload); err != nil {
		return err
	}

	sess, err := r.calls.Get(sessionID)
	if err != nil {
		return ErrNotFound
	}
	// A terminal session must not accept new signaling even in the
	// window before the store entry is removed.
	if sess.State.Terminal() {
		return ErrNotFound
	}
	target, ok := sess.OtherParty(senderID)
	if !ok {
		return ErrUnauthorized
	}

	msg := Message{
		ID:        r.newID(),
		SessionID: sessionID,
		Kind:      kind,
		SenderID:  senderID,
		Payload:   payload,
		SentAt:    r.clock().UTC(),
	}
	r.forward(ctx, target, callEvents[kind], msg)
	return nil
}

// RelayRoom forwards a payload to one explicitly addressed member of a
// room. Room peer connections are pairwise (mesh), so room signaling is
// point-to-point rather than broadcast.
func (r *Router) RelayRoom(ctx context.Context, roomID, senderID, targetID string, kind Kind, payload string) error {
	if err := r.validate(roomID, senderID, kind, payload); err != nil {
		return err
	}
	if targetID == "" || targetID == senderID {
		return ErrInvalidArgument
	}

	sess, err := r.rooms.Get(roomID)
	if err != nil {
		return ErrNotFound
	}
	if !sess.Active {
		return ErrNotFound
	}
	if !sess.IsActiveMember(senderID) {
		return ErrUnauthorized
	}
	if !sess.IsActiveMember(targetID) {
		// The target already left; signaling to them is dropped, not an
		// error the sender can act on.
		r.log.Debug("relay target left room", "room_id", roomID, "target_id", targetID)
		return nil
	}

	msg := Message{
		ID:        r.newID(),
		SessionID: roomID,
		Kind:      kind,
		SenderID:  senderID,
		TargetID:  targetID,
		Payload:   payload,
		SentAt:    r.clock().UTC(),
	}
	r.forward(ctx, targetID, roomEvents[kind], msg)
	return nil
}

func (r *Router) validate(sessionID, senderID string, kind Kind, payload string) error {
	if sessionID == "" || senderID == "" {
		return ErrInvalidArgument
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidArgument, kind)
	}
	if len(payload) > r.maxPayload {
		return ErrPayloadTooLarge
	}
	return nil
}

func (r *Router) forward(ctx context.Context, targetID, event string, msg Message) {
	if err := r.dir.SendToUser(ctx, targetID, event, msg); err != nil {
		// No buffering and no delivery errors to the sender; a stale
		// candidate is harmless to lose.
		r.log.Debug("relay dropped", "session_id", msg.SessionID, "target_id", targetID, "err", err)
	}
}
