package room

import "time"

// Member is one membership row. Membership history is append-only:
// rejoining after leaving creates a new row rather than reviving the
// old one.
type Member struct {
	UserID   string     `json:"user_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	Active   bool       `json:"active"`
}

// Session is the ephemeral record of a group-call room. The session
// store owns it; capacity decisions are made under its entry lock so
// concurrent joins at the boundary admit exactly the permitted number.
type Session struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`

	CreatorID       string `json:"creator_id"`
	MaxParticipants int    `json:"max_participants"`
	Active          bool   `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	Members   []Member  `json:"members"`
}

// ActiveCount reports the number of currently active members.
// Invariant: ActiveCount() <= MaxParticipants at all times.
func (s Session) ActiveCount() int {
	n := 0
	for _, m := range s.Members {
		if m.Active {
			n++
		}
	}
	return n
}

// IsActiveMember reports whether the user has an active membership row.
func (s Session) IsActiveMember(userID string) bool {
	for _, m := range s.Members {
		if m.Active && m.UserID == userID {
			return true
		}
	}
	return false
}

// ActiveMemberIDs returns the user ids of all active members.
func (s Session) ActiveMemberIDs() []string {
	var out []string
	for _, m := range s.Members {
		if m.Active {
			out = append(out, m.UserID)
		}
	}
	return out
}
