package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callgrid/internal/presence"
	"callgrid/internal/session"
	"callgrid/internal/user"

	"github.com/google/uuid"
)

// Typed failures surfaced to the transport layer. All of them are soft:
// the caller gets a mapped response and nothing is retried by this core.
var (
	ErrNotFound            = errors.New("call: session not found")
	ErrUnauthorized        = errors.New("call: not a participant")
	ErrConflict            = errors.New("call: state does not permit transition")
	ErrReceiverUnavailable = errors.New("call: receiver unavailable")
	ErrInvalidArgument     = errors.New("call: invalid argument")
)

// Events pushed to clients through the presence directory.
const (
	EventIncomingCall = "IncomingCall"
	EventCallAccepted = "CallAccepted"
	EventCallRejected = "CallRejected"
	EventCallEnded    = "CallEnded"
)

// historyWriteAttempts bounds retries of durable history writes before
// the in-memory session is rolled back.
const historyWriteAttempts = 3

// Engine is the call lifecycle state machine. It is the only writer
// that bridges ephemeral sessions and durable history, and it keeps the
// two causally consistent: a history row exists before the session it
// describes becomes reachable.
//
// The engine never holds a session entry lock while calling the history
// repository or the presence directory.
type Engine struct {
	store   *session.Store[Session]
	history HistoryRepository
	users   user.Repository
	dir     presence.Directory
	log     *slog.Logger

	clock func() time.Time
	newID func() string
}

func NewEngine(store *session.Store[Session], history HistoryRepository, users user.Repository, dir presence.Directory, log *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		history: history,
		users:   users,
		dir:     dir,
		log:     log,
		clock:   time.Now,
		newID:   uuid.NewString,
	}
}

// Store exposes the session table for the signaling router and reaper.
func (e *Engine) Store() *session.Store[Session] { return e.store }

// Initiate creates a new call session after verifying both parties
// exist and the receiver is reachable.
//
// Ordering contract: the durable history row is written before the
// session is inserted and before anyone is notified. A crash in between
// can leave an orphaned history row (logged, acceptable) but never a
// live session without an audit trail.
func (e *Engine) Initiate(ctx context.Context, callerID, receiverID string, media MediaKind) (Session, error) {
	if callerID == "" || receiverID == "" || !media.Valid() {
		return Session{}, ErrInvalidArgument
	}
	if callerID == receiverID {
		return Session{}, fmt.Errorf("%w: cannot call yourself", ErrInvalidArgument)
	}

	caller, err := e.users.Find(ctx, callerID)
	if err != nil {
		return Session{}, e.mapUserErr(err)
	}
	if _, err := e.users.Find(ctx, receiverID); err != nil {
		return Session{}, e.mapUserErr(err)
	}

	now := e.clock().UTC()

	online, err := e.dir.IsOnline(ctx, receiverID)
	if err != nil {
		return Session{}, fmt.Errorf("call: presence check: %w", err)
	}
	if !online {
		// No ringing session for an unreachable receiver; record the
		// attempt directly as failed so it still shows in history.
		h := History{
			ID:         e.newID(),
			CallerID:   callerID,
			ReceiverID: receiverID,
			Media:      media,
			FinalState: StateFailed,
			StartedAt:  now,
			EndedAt:    &now,
			EndReason:  EndReasonReceiverOffline,
		}
		if err := e.writeHistory(ctx, func() error { return e.history.Create(ctx, h) }); err != nil {
			e.log.Error("failed-attempt history write failed", "caller_id", callerID, "receiver_id", receiverID, "err", err)
		}
		return Session{}, ErrReceiverUnavailable
	}

	sess := Session{
		ID:         e.newID(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Media:      media,
		State:      StateInitiated,
		StartedAt:  now,
		HistoryID:  e.newID(),
	}

	h := History{
		ID:         sess.HistoryID,
		CallerID:   callerID,
		ReceiverID: receiverID,
		Media:      media,
		FinalState: StateInitiated,
		StartedAt:  now,
	}
	if err := e.writeHistory(ctx, func() error { return e.history.Create(ctx, h) }); err != nil {
		return Session{}, fmt.Errorf("call: history create: %w", err)
	}

	if err := e.store.Create(sess.ID, sess); err != nil {
		// UUID collision or double insert; the history row is now
		// orphaned, which the reconciliation job can pick up.
		e.log.Error("orphaned history row", "history_id", h.ID, "err", err)
		return Session{}, fmt.Errorf("call: session create: %w", err)
	}

	e.notifyUser(ctx, receiverID, EventIncomingCall, map[string]any{
		"call_id":   sess.ID,
		"caller_id": caller.ID,
		"caller":    caller.Username,
		"media":     sess.Media,
	})

	e.log.Info("call initiated", "call_id", sess.ID, "caller_id", callerID, "receiver_id", receiverID, "media", media)
	return sess, nil
}

// Answer accepts or rejects a ringing call. Only the designated
// receiver may answer; a second answer attempt observes the then-current
// state as ErrConflict and causes no duplicate notification.
func (e *Engine) Answer(ctx context.Context, sessionID, userID string, accept bool) (Session, error) {
	now := e.clock().UTC()

	prevTerminalized := false
	sess, err := e.store.Mutate(sessionID, func(s *Session) error {
		if s.ReceiverID != userID {
			return ErrUnauthorized
		}
		if !s.State.answerable() {
			return ErrConflict
		}
		if accept {
			s.State = StateAnswered
		} else {
			s.State = StateRejected
			s.EndedAt = &now
			prevTerminalized = true
		}
		return nil
	})
	if err != nil {
		return Session{}, e.mapStoreErr(err)
	}

	patch := HistoryPatch{FinalState: sess.State}
	if !accept {
		patch.EndedAt = &now
		patch.EndReason = EndReasonRejected
	}
	if err := e.writeHistory(ctx, func() error { return e.history.Update(ctx, sess.HistoryID, patch) }); err != nil {
		// Roll the transition back so no reachable session disagrees
		// with its durable row.
		_, rbErr := e.store.Mutate(sessionID, func(s *Session) error {
			s.State = StateInitiated
			s.EndedAt = nil
			return nil
		})
		if rbErr != nil {
			e.log.Error("rollback after history failure lost the session", "call_id", sessionID, "err", rbErr)
		}
		return Session{}, fmt.Errorf("call: history update: %w", err)
	}

	if accept {
		e.notifyUser(ctx, sess.CallerID, EventCallAccepted, map[string]any{"call_id": sess.ID})
		e.log.Info("call accepted", "call_id", sess.ID, "receiver_id", userID)
	} else {
		e.notifyUser(ctx, sess.CallerID, EventCallRejected, map[string]any{"call_id": sess.ID})
		e.log.Info("call rejected", "call_id", sess.ID, "receiver_id", userID)
	}

	// Rejected sessions are dropped only after the caller was notified.
	if prevTerminalized {
		e.store.Remove(sess.ID)
	}
	return sess, nil
}

// End terminates a call from either party. Duration is recorded only if
// the call passed through Answered. Ending is also the cancellation
// primitive; there is no separate cancel.
func (e *Engine) End(ctx context.Context, sessionID, userID string) (Session, error) {
	now := e.clock().UTC()

	wasAnswered := false
	sess, err := e.store.Mutate(sessionID, func(s *Session) error {
		if !s.IsParticipant(userID) {
			return ErrUnauthorized
		}
		if s.State.Terminal() {
			return ErrConflict
		}
		wasAnswered = s.State == StateAnswered
		s.State = StateEnded
		s.EndedAt = &now
		return nil
	})
	if err != nil {
		return Session{}, e.mapStoreErr(err)
	}

	patch := HistoryPatch{
		FinalState: StateEnded,
		EndedAt:    &now,
		EndReason:  EndReasonHangup,
	}
	var duration int
	if wasAnswered {
		duration = int(now.Sub(sess.StartedAt).Seconds())
		patch.DurationSeconds = &duration
	}

	historyErr := e.writeHistory(ctx, func() error { return e.history.Update(ctx, sess.HistoryID, patch) })
	if historyErr != nil {
		// The session is terminal either way; letting it linger would
		// accept signaling for a dead call. Drop it and report Internal.
		e.log.Error("history finalize failed, dropping session anyway", "call_id", sess.ID, "history_id", sess.HistoryID, "err", historyErr)
	}

	payload := map[string]any{
		"call_id":          sess.ID,
		"ended_by":         userID,
		"duration_seconds": duration,
	}
	for _, p := range sess.Participants() {
		e.notifyUser(ctx, p, EventCallEnded, payload)
	}

	e.store.Remove(sess.ID)

	if historyErr != nil {
		return Session{}, fmt.Errorf("call: history finalize: %w", historyErr)
	}
	e.log.Info("call ended", "call_id", sess.ID, "ended_by", userID, "answered", wasAnswered, "duration_s", duration)
	return sess, nil
}

// SweepExpired force-terminates every non-terminal session started
// before olderThan. It reuses the End side effects with
// end_reason="expired" and returns how many sessions were retired.
func (e *Engine) SweepExpired(ctx context.Context, olderThan time.Time) (int, error) {
	retired := 0
	for id, snap := range e.store.Snapshot() {
		if !snap.StartedAt.Before(olderThan) {
			continue
		}
		if err := e.expire(ctx, id); err != nil {
			// A session gone between snapshot and expiry was retired by
			// someone else; it must not count toward this sweep.
			if !errors.Is(err, ErrNotFound) {
				e.log.Error("expire failed", "call_id", id, "err", err)
			}
			continue
		}
		retired++
	}
	return retired, nil
}

func (e *Engine) expire(ctx context.Context, sessionID string) error {
	now := e.clock().UTC()

	wasAnswered := false
	alreadyTerminal := false
	sess, err := e.store.Mutate(sessionID, func(s *Session) error {
		if s.State.Terminal() {
			// Already finalized; just make sure the entry goes away.
			alreadyTerminal = true
			return nil
		}
		wasAnswered = s.State == StateAnswered
		if wasAnswered {
			s.State = StateEnded
		} else {
			s.State = StateFailed
		}
		s.EndedAt = &now
		return nil
	})
	if err != nil {
		return e.mapStoreErr(err)
	}
	if alreadyTerminal {
		e.store.Remove(sess.ID)
		return nil
	}

	patch := HistoryPatch{
		FinalState: sess.State,
		EndedAt:    &now,
		EndReason:  EndReasonExpired,
	}
	if wasAnswered {
		d := int(now.Sub(sess.StartedAt).Seconds())
		patch.DurationSeconds = &d
	}
	if err := e.writeHistory(ctx, func() error { return e.history.Update(ctx, sess.HistoryID, patch) }); err != nil {
		e.log.Error("expired-session history finalize failed", "call_id", sess.ID, "err", err)
	}

	for _, p := range sess.Participants() {
		e.notifyUser(ctx, p, EventCallEnded, map[string]any{
			"call_id": sess.ID,
			"reason":  EndReasonExpired,
		})
	}

	e.store.Remove(sess.ID)
	e.log.Info("call expired", "call_id", sess.ID, "was_answered", wasAnswered)
	return nil
}

// ListHistory returns the user's most recent call attempts, newest first.
func (e *Engine) ListHistory(ctx context.Context, userID string, limit int) ([]History, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return e.history.ListForUser(ctx, userID, limit)
}

// writeHistory retries durable writes a bounded number of times. The
// durable store provides its own timeouts; this loop only smooths over
// transient failures.
func (e *Engine) writeHistory(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < historyWriteAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (e *Engine) notifyUser(ctx context.Context, userID, event string, payload any) {
	if err := e.dir.SendToUser(ctx, userID, event, payload); err != nil {
		// Delivery is best-effort; losing a notification is equivalent
		// to the target being offline.
		e.log.Debug("notify dropped", "user_id", userID, "event", event, "err", err)
	}
}

func (e *Engine) mapStoreErr(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (e *Engine) mapUserErr(err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
