package presence

import "context"

// Directory is the per-user addressable real-time channel the signaling
// core assumes. The websocket gateway implements it in production; the
// memory implementation backs tests.
//
// Delivery is best-effort and fire-and-forget: a user with no live
// channel receives nothing, and that is not an error the core surfaces
// to senders.
type Directory interface {
	// SendToUser delivers an event to every live channel of a user.
	SendToUser(ctx context.Context, userID, event string, payload any) error
	// SendToGroup delivers an event to every channel in a group.
	SendToGroup(ctx context.Context, group, event string, payload any) error

	// AddToGroup / RemoveFromGroup scope a channel into an addressable
	// group (a call's or room's participant set).
	AddToGroup(ctx context.Context, channelID, group string) error
	RemoveFromGroup(ctx context.Context, channelID, group string) error

	// IsOnline reports whether the user has at least one live channel.
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Group naming mirrors the addressing scheme clients already use: one
// group per user and per room. Two-party calls address their
// participants individually, so they carry no group.

func UserGroup(userID string) string { return "User_" + userID }
func RoomGroup(roomID string) string { return "Room_" + roomID }
