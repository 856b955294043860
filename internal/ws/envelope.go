package ws

import "encoding/json"

// envelope is the outbound wire format: one named event per frame.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func marshalEnvelope(event string, data any) ([]byte, error) {
	return json.Marshal(envelope{Event: event, Data: data})
}

// frame is the inbound wire format: an action name plus its arguments.
type frame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// ackError is pushed back on the sending connection when an action
// fails. Peers never see it.
type ackError struct {
	Action string `json:"action"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}
