package presence

import (
	"context"
	"sync"
)

// Delivery is one recorded send, for test assertions.
type Delivery struct {
	Target  string // user id or group name
	Group   bool
	Event   string
	Payload any
}

// Memory is an in-process Directory for tests. Online state is set
// explicitly; sends are recorded, not transported.
type Memory struct {
	mu        sync.Mutex
	online    map[string]bool
	groups    map[string]map[string]bool // group -> channel ids
	delivered []Delivery
}

func NewMemory() *Memory {
	return &Memory{
		online: make(map[string]bool),
		groups: make(map[string]map[string]bool),
	}
}

func (m *Memory) SetOnline(userID string, online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID] = online
}

func (m *Memory) SendToUser(ctx context.Context, userID, event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Offline users receive nothing; the send itself still succeeds.
	if m.online[userID] {
		m.delivered = append(m.delivered, Delivery{Target: userID, Event: event, Payload: payload})
	}
	return nil
}

func (m *Memory) SendToGroup(ctx context.Context, group, event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, Delivery{Target: group, Group: true, Event: event, Payload: payload})
	return nil
}

func (m *Memory) AddToGroup(ctx context.Context, channelID, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[group]
	if !ok {
		g = make(map[string]bool)
		m.groups[group] = g
	}
	g[channelID] = true
	return nil
}

func (m *Memory) RemoveFromGroup(ctx context.Context, channelID, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[group]; ok {
		delete(g, channelID)
	}
	return nil
}

func (m *Memory) IsOnline(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online[userID], nil
}

// Deliveries returns a copy of everything sent so far.
func (m *Memory) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.delivered))
	copy(out, m.delivered)
	return out
}

// DeliveriesTo filters recorded sends by target.
func (m *Memory) DeliveriesTo(target string) []Delivery {
	var out []Delivery
	for _, d := range m.Deliveries() {
		if d.Target == target {
			out = append(out, d)
		}
	}
	return out
}
