package user

import "time"

// Summary is the read-only user projection the signaling core needs.
// Registration, credentials and profile management live in a separate
// service; this core only resolves identities and flips presence.
type Summary struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Email    string `json:"email,omitempty" db:"email"`

	Online     bool       `json:"online" db:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
}
