package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"callgrid/internal/presence"
	"callgrid/internal/user"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(h *Hub, userID, connID string) *Client {
	return &Client{
		id:     connID,
		userID: userID,
		hub:    h,
		send:   make(chan []byte, 16),
		done:   make(chan struct{}),
		log:    discardLogger(),
	}
}

func receive(t *testing.T, c *Client) envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		return env
	default:
		t.Fatalf("expected a frame on %s, got none", c.id)
		return envelope{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame on %s: %s", c.id, raw)
	default:
	}
}

func TestSendToUserFansOutToEveryConnection(t *testing.T) {
	h := NewHub(nil, nil, discardLogger())
	ctx := context.Background()

	a1 := newTestClient(h, "alice", "conn-1")
	a2 := newTestClient(h, "alice", "conn-2")
	b := newTestClient(h, "bob", "conn-3")
	h.Register(ctx, a1)
	h.Register(ctx, a2)
	h.Register(ctx, b)

	if err := h.SendToUser(ctx, "alice", "IncomingCall", map[string]string{"id": "s1"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, c := range []*Client{a1, a2} {
		env := receive(t, c)
		if env.Event != "IncomingCall" {
			t.Fatalf("event = %q, want IncomingCall", env.Event)
		}
	}
	assertNoFrame(t, b)
}

func TestGroupDeliveryFollowsMembership(t *testing.T) {
	h := NewHub(nil, nil, discardLogger())
	ctx := context.Background()

	a := newTestClient(h, "alice", "conn-1")
	b := newTestClient(h, "bob", "conn-2")
	h.Register(ctx, a)
	h.Register(ctx, b)

	group := presence.RoomGroup("r1")
	if err := h.AddToGroup(ctx, a.id, group); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := h.SendToGroup(ctx, group, "UserJoinedRoom", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if env := receive(t, a); env.Event != "UserJoinedRoom" {
		t.Fatalf("event = %q", env.Event)
	}
	assertNoFrame(t, b)

	if err := h.RemoveFromGroup(ctx, a.id, group); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := h.SendToGroup(ctx, group, "UserLeftRoom", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	assertNoFrame(t, a)
}

func TestOnlineFlagFollowsFirstAndLastConnection(t *testing.T) {
	repo := user.NewMemoryRepo()
	repo.Add(user.Summary{ID: "alice", Username: "alice"})

	h := NewHub(nil, repo, discardLogger())
	ctx := context.Background()

	c1 := newTestClient(h, "alice", "conn-1")
	c2 := newTestClient(h, "alice", "conn-2")

	h.Register(ctx, c1)
	if u, _ := repo.Find(ctx, "alice"); !u.Online {
		t.Fatalf("expected alice online after first connection")
	}

	h.Register(ctx, c2)
	h.Unregister(ctx, c1)
	if u, _ := repo.Find(ctx, "alice"); !u.Online {
		t.Fatalf("alice still has a live connection, must stay online")
	}

	h.Unregister(ctx, c2)
	u, _ := repo.Find(ctx, "alice")
	if u.Online {
		t.Fatalf("expected alice offline after last disconnect")
	}
	if u.LastSeenAt == nil || time.Since(*u.LastSeenAt) > time.Minute {
		t.Fatalf("expected recent last_seen_at, got %v", u.LastSeenAt)
	}

	if online, _ := h.IsOnline(ctx, "alice"); online {
		t.Fatalf("hub reports alice online with no connections")
	}
}

func TestSendToClosingClientDoesNotPanic(t *testing.T) {
	h := NewHub(nil, nil, discardLogger())
	ctx := context.Background()

	a := newTestClient(h, "alice", "conn-1")
	h.Register(ctx, a)

	// Shutdown is signaled while the client is still registered: the
	// hub entry goes away only later, when the read pump unregisters.
	// Sends landing in that window must be dropped, never panic.
	close(a.done)

	if err := h.SendToUser(ctx, "alice", "IncomingCall", map[string]string{"id": "s1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	assertNoFrame(t, a)

	h.Unregister(ctx, a)
	if err := h.SendToUser(ctx, "alice", "IncomingCall", nil); err != nil {
		t.Fatalf("send after unregister: %v", err)
	}
}

func TestUnregisterClearsGroupMembership(t *testing.T) {
	h := NewHub(nil, nil, discardLogger())
	ctx := context.Background()

	a := newTestClient(h, "alice", "conn-1")
	h.Register(ctx, a)
	_ = h.AddToGroup(ctx, a.id, presence.RoomGroup("r1"))

	h.Unregister(ctx, a)
	if err := h.SendToGroup(ctx, presence.RoomGroup("r1"), "RoomClosed", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	assertNoFrame(t, a)
}
