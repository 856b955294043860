package presence

import (
	"context"
	"time"

	"callgrid/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Tracker counts live connections per user in Redis so IsOnline holds
// across multiple gateway instances. Counters carry a TTL refreshed by
// the gateway heartbeat; a crashed instance therefore cannot pin its
// users online for more than one TTL window.
type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTracker(rdb *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Tracker{rdb: rdb, ttl: ttl}
}

func connKey(userID string) string { return "presence:conn:" + userID }

// Attach records one new connection and returns the resulting count.
func (t *Tracker) Attach(ctx context.Context, userID string) (int64, error) {
	return utils.AttachConnection(ctx, t.rdb, connKey(userID), t.ttl)
}

// Detach removes one connection and returns the remaining count.
func (t *Tracker) Detach(ctx context.Context, userID string) (int64, error) {
	return utils.DetachConnection(ctx, t.rdb, connKey(userID))
}

// Touch refreshes the TTL; call it on every heartbeat tick.
func (t *Tracker) Touch(ctx context.Context, userID string) error {
	return utils.TouchConnection(ctx, t.rdb, connKey(userID), t.ttl)
}

// Online reports whether the user has at least one live connection
// anywhere in the fleet.
func (t *Tracker) Online(ctx context.Context, userID string) (bool, error) {
	n, err := utils.ConnectionCount(ctx, t.rdb, connKey(userID))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
