package call

import "time"

// MediaKind selects the negotiated media for a call.
type MediaKind string

const (
	MediaVoice MediaKind = "voice"
	MediaVideo MediaKind = "video"
)

func (m MediaKind) Valid() bool {
	return m == MediaVoice || m == MediaVideo
}

// State is the call state machine position.
//
// Transitions (enforced by the Engine, nowhere else):
//
//	Initiated -> Answered | Rejected | Ended | Failed
//	Ringing   -> Answered | Rejected | Ended | Failed
//	Answered  -> Ended | Failed
//
// Rejected, Ended and Failed are terminal: a terminal session accepts
// no further signaling and is removed from the store promptly.
type State string

const (
	StateInitiated State = "initiated"
	StateRinging   State = "ringing"
	StateAnswered  State = "answered"
	StateRejected  State = "rejected"
	StateEnded     State = "ended"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateEnded, StateFailed:
		return true
	default:
		return false
	}
}

// answerable reports whether an answer/reject may still land.
func (s State) answerable() bool {
	return s == StateInitiated || s == StateRinging
}

// Session is the ephemeral record of one call attempt. It lives only in
// the session store; the durable trail is the History row it points at.
type Session struct {
	ID         string    `json:"id"`
	CallerID   string    `json:"caller_id"`
	ReceiverID string    `json:"receiver_id"`
	Media      MediaKind `json:"media"`
	State      State     `json:"state"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// HistoryID links this session to its durable history row. The row
	// is created before the session becomes reachable, so a session
	// without an audit trail cannot exist.
	HistoryID string `json:"-"`
}

// IsParticipant reports whether the user is one of the two parties.
func (s Session) IsParticipant(userID string) bool {
	return userID == s.CallerID || userID == s.ReceiverID
}

// OtherParty returns the peer of the given participant.
func (s Session) OtherParty(userID string) (string, bool) {
	switch userID {
	case s.CallerID:
		return s.ReceiverID, true
	case s.ReceiverID:
		return s.CallerID, true
	default:
		return "", false
	}
}

// Participants returns both parties, caller first.
func (s Session) Participants() []string {
	return []string{s.CallerID, s.ReceiverID}
}

// History is one durable row per call attempt. Created at initiation,
// updated at state boundaries, never mutated after a terminal state is
// recorded.
type History struct {
	ID         string    `json:"id" db:"id"`
	CallerID   string    `json:"caller_id" db:"caller_id"`
	ReceiverID string    `json:"receiver_id" db:"receiver_id"`
	Media      MediaKind `json:"media" db:"media"`
	FinalState State     `json:"final_state" db:"final_state"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is set only for calls that reached Answered.
	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	EndReason       string `json:"end_reason,omitempty" db:"end_reason"`
}

// HistoryPatch carries the fields updated at a state boundary.
// Nil pointers leave the column untouched.
type HistoryPatch struct {
	FinalState      State
	EndedAt         *time.Time
	DurationSeconds *int
	EndReason       string
}

// End reasons recorded in history rows.
const (
	EndReasonRejected        = "rejected"
	EndReasonHangup          = "hangup"
	EndReasonExpired         = "expired"
	EndReasonReceiverOffline = "receiver_offline"
)
