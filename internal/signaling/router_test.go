package signaling

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"callgrid/internal/call"
	"callgrid/internal/presence"
	"callgrid/internal/room"
	"callgrid/internal/session"
)

type routerFixture struct {
	router *Router
	calls  *session.Store[call.Session]
	rooms  *session.Store[room.Session]
	dir    *presence.Memory
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		calls: session.NewStore[call.Session](),
		rooms: session.NewStore[room.Session](),
		dir:   presence.NewMemory(),
	}
	f.dir.SetOnline("alice", true)
	f.dir.SetOnline("bob", true)
	f.dir.SetOnline("carol", true)
	f.router = NewRouter(f.calls, f.rooms, f.dir, slog.Default(), 0)
	return f
}

func (f *routerFixture) addCall(id string, state call.State) {
	_ = f.calls.Create(id, call.Session{
		ID:         id,
		CallerID:   "alice",
		ReceiverID: "bob",
		Media:      call.MediaVoice,
		State:      state,
		StartedAt:  time.Unix(1700000000, 0).UTC(),
	})
}

func (f *routerFixture) addRoom(id string, members ...string) {
	sess := room.Session{
		ID:              id,
		Code:            "123456",
		Name:            "mesh",
		CreatorID:       members[0],
		MaxParticipants: 8,
		Active:          true,
		CreatedAt:       time.Unix(1700000000, 0).UTC(),
	}
	for _, m := range members {
		sess.Members = append(sess.Members, room.Member{UserID: m, JoinedAt: sess.CreatedAt, Active: true})
	}
	_ = f.rooms.Create(id, sess)
}

func TestRelayCall_ForwardsToOtherParty(t *testing.T) {
	f := newRouterFixture(t)
	f.addCall("c1", call.StateAnswered)

	if err := f.router.RelayCall(context.Background(), "c1", "alice", KindOffer, "sdp-offer"); err != nil {
		t.Fatalf("relay: %v", err)
	}

	got := f.dir.DeliveriesTo("bob")
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery to bob, got %d", len(got))
	}
	if got[0].Event != "ReceiveOffer" {
		t.Fatalf("unexpected event %q", got[0].Event)
	}
	msg, ok := got[0].Payload.(Message)
	if !ok {
		t.Fatalf("unexpected payload type %T", got[0].Payload)
	}
	if msg.SenderID != "alice" || msg.Payload != "sdp-offer" || msg.SessionID != "c1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(f.dir.DeliveriesTo("alice")) != 0 {
		t.Fatalf("sender must not receive their own signal")
	}
}

func TestRelayCall_ValidatesSenderAndSession(t *testing.T) {
	f := newRouterFixture(t)
	f.addCall("c1", call.StateInitiated)

	if err := f.router.RelayCall(context.Background(), "missing", "alice", KindOffer, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.router.RelayCall(context.Background(), "c1", "mallory", KindOffer, "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.router.RelayCall(context.Background(), "c1", "alice", Kind("smoke-signal"), "x"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRelayCall_TerminalSessionRefusesSignaling(t *testing.T) {
	f := newRouterFixture(t)
	f.addCall("c1", call.StateEnded)

	if err := f.router.RelayCall(context.Background(), "c1", "alice", KindIceCandidate, "cand"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for terminal session, got %v", err)
	}
	if len(f.dir.Deliveries()) != 0 {
		t.Fatalf("terminal session must not relay")
	}
}

func TestRelayCall_OfflineTargetIsSilentlyDropped(t *testing.T) {
	f := newRouterFixture(t)
	f.addCall("c1", call.StateAnswered)
	f.dir.SetOnline("bob", false)

	if err := f.router.RelayCall(context.Background(), "c1", "alice", KindIceCandidate, "cand"); err != nil {
		t.Fatalf("sender must not see delivery failures: %v", err)
	}
	if len(f.dir.DeliveriesTo("bob")) != 0 {
		t.Fatalf("offline target must receive nothing")
	}
}

func TestRelayCall_PerSenderOrderPreserved(t *testing.T) {
	f := newRouterFixture(t)
	f.addCall("c1", call.StateAnswered)

	for i := 0; i < 5; i++ {
		payload := strings.Repeat("x", i+1)
		if err := f.router.RelayCall(context.Background(), "c1", "alice", KindIceCandidate, payload); err != nil {
			t.Fatalf("relay %d: %v", i, err)
		}
	}

	got := f.dir.DeliveriesTo("bob")
	if len(got) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(got))
	}
	for i, d := range got {
		msg := d.Payload.(Message)
		if len(msg.Payload) != i+1 {
			t.Fatalf("delivery %d out of order: %q", i, msg.Payload)
		}
	}
}

func TestRelayCall_PayloadSizeBounded(t *testing.T) {
	f := newRouterFixture(t)
	f.addCall("c1", call.StateAnswered)

	huge := strings.Repeat("a", defaultMaxPayloadBytes+1)
	if err := f.router.RelayCall(context.Background(), "c1", "alice", KindOffer, huge); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestRelayRoom_PointToPoint(t *testing.T) {
	f := newRouterFixture(t)
	f.addRoom("r1", "alice", "bob", "carol")

	if err := f.router.RelayRoom(context.Background(), "r1", "alice", "carol", KindOffer, "sdp"); err != nil {
		t.Fatalf("relay: %v", err)
	}

	if len(f.dir.DeliveriesTo("bob")) != 0 {
		t.Fatalf("room relay must not broadcast")
	}
	got := f.dir.DeliveriesTo("carol")
	if len(got) != 1 || got[0].Event != "ReceiveRoomOffer" {
		t.Fatalf("expected ReceiveRoomOffer to carol, got %+v", got)
	}
}

func TestRelayRoom_Validation(t *testing.T) {
	f := newRouterFixture(t)
	f.addRoom("r1", "alice", "bob")

	if err := f.router.RelayRoom(context.Background(), "r1", "mallory", "bob", KindOffer, "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.router.RelayRoom(context.Background(), "r1", "alice", "alice", KindOffer, "x"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for self-target, got %v", err)
	}
	if err := f.router.RelayRoom(context.Background(), "gone", "alice", "bob", KindOffer, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Target who already left: dropped without error.
	_, _ = f.rooms.Mutate("r1", func(s *room.Session) error {
		for i := range s.Members {
			if s.Members[i].UserID == "bob" {
				s.Members[i].Active = false
			}
		}
		return nil
	})
	if err := f.router.RelayRoom(context.Background(), "r1", "alice", "bob", KindOffer, "x"); err != nil {
		t.Fatalf("relay to departed member must be a silent drop: %v", err)
	}
	if len(f.dir.DeliveriesTo("bob")) != 0 {
		t.Fatalf("departed member must receive nothing")
	}
}
