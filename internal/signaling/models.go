package signaling

import "time"

// Kind classifies a signaling payload. The payload itself is opaque to
// this service; kinds exist only to route and name client events.
type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindIceCandidate Kind = "ice_candidate"
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindEnd          Kind = "end"
)

func (k Kind) Valid() bool {
	switch k {
	case KindOffer, KindAnswer, KindIceCandidate, KindRequest, KindResponse, KindEnd:
		return true
	default:
		return false
	}
}

// Message is one relayed signaling payload. Messages are transient:
// relayed at most once to the computed target set, never queued, never
// persisted.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Kind      Kind   `json:"kind"`
	SenderID  string `json:"sender_id"`
	// TargetID is set for room signaling only; two-party calls address
	// the other participant implicitly.
	TargetID string    `json:"target_id,omitempty"`
	Payload  string    `json:"payload"`
	SentAt   time.Time `json:"sent_at"`
}

// Client-facing event names per kind. Room relays use the Room-prefixed
// variants so clients can tell mesh negotiation apart from direct calls.
var callEvents = map[Kind]string{
	KindOffer:        "ReceiveOffer",
	KindAnswer:       "ReceiveAnswer",
	KindIceCandidate: "ReceiveIceCandidate",
	KindRequest:      "ReceiveCallRequest",
	KindResponse:     "ReceiveCallResponse",
	KindEnd:          "ReceiveCallEnd",
}

var roomEvents = map[Kind]string{
	KindOffer:        "ReceiveRoomOffer",
	KindAnswer:       "ReceiveRoomAnswer",
	KindIceCandidate: "ReceiveRoomIceCandidate",
	KindRequest:      "ReceiveRoomRequest",
	KindResponse:     "ReceiveRoomResponse",
	KindEnd:          "ReceiveRoomEnd",
}
