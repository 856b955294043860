package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"callgrid/internal/presence"
	"callgrid/internal/user"
)

// Hub is the connection registry and the production implementation of
// presence.Directory. A user may hold several connections at once;
// per-user delivery fans out to all of them.
//
// Online state is tracked in two layers: the local maps answer for
// connections on this instance, and the Redis tracker (when configured)
// answers for the whole fleet.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // conn id -> client
	users   map[string]map[string]*Client // user id -> conn id -> client
	groups  map[string]map[string]*Client // group -> conn id -> client

	tracker *presence.Tracker // nil in single-instance tests
	repo    user.Repository   // nil when no durable online flag is kept
	log     *slog.Logger
}

func NewHub(tracker *presence.Tracker, repo user.Repository, log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		tracker: tracker,
		repo:    repo,
		log:     log,
	}
}

// Register adds a connection. The first connection of a user flips the
// durable online flag and joins the user's own addressing group.
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	conns, ok := h.users[c.userID]
	if !ok {
		conns = make(map[string]*Client)
		h.users[c.userID] = conns
	}
	first := len(conns) == 0
	conns[c.id] = c
	h.addToGroupLocked(c, presence.UserGroup(c.userID))
	h.mu.Unlock()

	if h.tracker != nil {
		if _, err := h.tracker.Attach(ctx, c.userID); err != nil {
			h.log.Warn("presence attach", "user_id", c.userID, "error", err)
		}
	}
	if first && h.repo != nil {
		if err := h.repo.SetOnline(ctx, c.userID, true, nowUTC()); err != nil {
			h.log.Warn("mark user online", "user_id", c.userID, "error", err)
		}
	}
	h.log.Info("websocket connected", "conn_id", c.id, "user_id", c.userID)
}

// Unregister removes a connection from every group it joined. The last
// connection of a user clears the durable online flag.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	last := false
	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(h.users, c.userID)
			last = true
		}
	}
	for group, members := range h.groups {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	h.mu.Unlock()

	if h.tracker != nil {
		if _, err := h.tracker.Detach(ctx, c.userID); err != nil {
			h.log.Warn("presence detach", "user_id", c.userID, "error", err)
		}
	}
	if last && h.repo != nil {
		if err := h.repo.SetOnline(ctx, c.userID, false, nowUTC()); err != nil {
			h.log.Warn("mark user offline", "user_id", c.userID, "error", err)
		}
	}
	h.log.Info("websocket disconnected", "conn_id", c.id, "user_id", c.userID)
}

// Touch refreshes the fleet-wide presence TTL for a user.
func (h *Hub) Touch(ctx context.Context, userID string) {
	if h.tracker == nil {
		return
	}
	if err := h.tracker.Touch(ctx, userID); err != nil {
		h.log.Debug("presence touch", "user_id", userID, "error", err)
	}
}

func (h *Hub) SendToUser(ctx context.Context, userID, event string, payload any) error {
	msg, err := marshalEnvelope(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := snapshotClients(h.users[userID])
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
	return nil
}

func (h *Hub) SendToGroup(ctx context.Context, group, event string, payload any) error {
	msg, err := marshalEnvelope(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := snapshotClients(h.groups[group])
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
	return nil
}

func (h *Hub) AddToGroup(ctx context.Context, channelID, group string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[channelID]
	if !ok {
		// Connection raced away; group membership is per-connection
		// bookkeeping, not an error worth surfacing.
		return nil
	}
	h.addToGroupLocked(c, group)
	return nil
}

func (h *Hub) RemoveFromGroup(ctx context.Context, channelID, group string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, channelID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	return nil
}

// IsOnline answers locally when possible and falls back to the
// fleet-wide tracker so users connected to another instance still
// count as reachable.
func (h *Hub) IsOnline(ctx context.Context, userID string) (bool, error) {
	h.mu.RLock()
	_, local := h.users[userID]
	h.mu.RUnlock()
	if local {
		return true, nil
	}
	if h.tracker == nil {
		return false, nil
	}
	return h.tracker.Online(ctx, userID)
}

// JoinUserGroups adds every live connection of a user to a group. Used
// when membership is granted by user identity rather than by the
// connection that asked (the callee of an accepted call, for one).
func (h *Hub) JoinUserGroups(userID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.users[userID] {
		h.addToGroupLocked(c, group)
	}
}

func (h *Hub) addToGroupLocked(c *Client, group string) {
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Client)
		h.groups[group] = members
	}
	members[c.id] = c
}

func nowUTC() time.Time { return time.Now().UTC() }

func snapshotClients(m map[string]*Client) []*Client {
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
