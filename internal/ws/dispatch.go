package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"callgrid/internal/call"
	"callgrid/internal/presence"
	"callgrid/internal/room"
	"callgrid/internal/signaling"
)

// Dispatcher routes inbound websocket actions to the signaling core.
// Every action is acknowledged on the sending connection: results carry
// a named event, failures carry an Error envelope. Peers are notified
// by the core itself through the hub.
type Dispatcher struct {
	engine *call.Engine
	router *signaling.Router
	rooms  *room.Coordinator
	hub    *Hub
	log    *slog.Logger
}

func NewDispatcher(engine *call.Engine, router *signaling.Router, rooms *room.Coordinator, hub *Hub, log *slog.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, router: router, rooms: rooms, hub: hub, log: log}
}

func (d *Dispatcher) Handle(ctx context.Context, c *Client, raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.reply("Error", ackError{Code: "invalid_argument", Error: "malformed frame"})
		return
	}

	var err error
	switch f.Action {
	case "initiate_call":
		err = d.initiateCall(ctx, c, f.Data)
	case "answer_call":
		err = d.answerCall(ctx, c, f.Data)
	case "end_call":
		err = d.endCall(ctx, c, f.Data)
	case "signal":
		err = d.signal(ctx, c, f.Data)
	case "create_room":
		err = d.createRoom(ctx, c, f.Data)
	case "join_room":
		err = d.joinRoom(ctx, c, f.Data)
	case "leave_room":
		err = d.leaveRoom(ctx, c, f.Data)
	case "room_signal":
		err = d.roomSignal(ctx, c, f.Data)
	default:
		c.reply("Error", ackError{Action: f.Action, Code: "invalid_argument", Error: "unknown action"})
		return
	}

	if err != nil {
		c.reply("Error", ackError{Action: f.Action, Code: errorCode(err), Error: err.Error()})
	}
}

func (d *Dispatcher) initiateCall(ctx context.Context, c *Client, data json.RawMessage) error {
	var req struct {
		ReceiverID string `json:"receiver_id"`
		Media      string `json:"media"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return call.ErrInvalidArgument
	}

	sess, err := d.engine.Initiate(ctx, c.userID, req.ReceiverID, call.MediaKind(req.Media))
	if err != nil {
		return err
	}
	c.reply("CallInitiated", sess)
	return nil
}

func (d *Dispatcher) answerCall(ctx context.Context, c *Client, data json.RawMessage) error {
	var req struct {
		SessionID string `json:"session_id"`
		Accept    bool   `json:"accept"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return call.ErrInvalidArgument
	}

	sess, err := d.engine.Answer(ctx, req.SessionID, c.userID, req.Accept)
	if err != nil {
		return err
	}
	c.reply("CallAnswered", sess)
	return nil
}

func (d *Dispatcher) endCall(ctx context.Context, c *Client, data json.RawMessage) error {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return call.ErrInvalidArgument
	}

	sess, err := d.engine.End(ctx, req.SessionID, c.userID)
	if err != nil {
		return err
	}
	c.reply("CallEndedAck", sess)
	return nil
}

func (d *Dispatcher) signal(ctx context.Context, c *Client, data json.RawMessage) error {
	var req struct {
		SessionID string `json:"session_id"`
		Kind      string `json:"kind"`
		Payload   string `json:"payload"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return signaling.ErrInvalidArgument
	}
	return d.router.RelayCall(ctx, req.SessionID, c.userID, signaling.Kind(req.Kind), req.Payload)
}

func (d *Dispatcher) createRoom(ctx context.Context, c *Client, data json.RawMessage) error {
	var req struct {
		Name            string `json:"name"`
		MaxParticipants int    `json:"max_participants"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return room.ErrInvalidArgument
	}

	sess, err := d.rooms.Create(ctx, c.userID, req.Name, req.MaxParticipants)
	if err != nil {
		return err
	}
	d.hub.JoinUserGroups(c.userID, presence.RoomGroup(sess.ID))
	c.reply("RoomCreated", sess)
	return nil
}

func (d *Dispatcher) joinRoom(ctx context.Context, c *Client, data json.RawMessage) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return room.ErrInvalidArgument
	}

	sess, err := d.rooms.Join(ctx, req.Code, c.userID)
	if err != nil {
		return err
	}
	d.hub.JoinUserGroups(c.userID, presence.RoomGroup(sess.ID))
	c.reply("RoomJoined", sess)
	return nil
}

func (d *Dispatcher) leaveRoom(ctx context.Context, c *Client, data json.RawMessage) error {
	var req struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return room.ErrInvalidArgument
	}

	if err := d.rooms.Leave(ctx, req.RoomID, c.userID); err != nil {
		return err
	}
	_ = d.hub.RemoveFromGroup(ctx, c.id, presence.RoomGroup(req.RoomID))
	c.reply("RoomLeft", map[string]string{"room_id": req.RoomID})
	return nil
}

func (d *Dispatcher) roomSignal(ctx context.Context, c *Client, data json.RawMessage) error {
	var req struct {
		RoomID   string `json:"room_id"`
		TargetID string `json:"target_id"`
		Kind     string `json:"kind"`
		Payload  string `json:"payload"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return signaling.ErrInvalidArgument
	}
	return d.router.RelayRoom(ctx, req.RoomID, c.userID, req.TargetID, signaling.Kind(req.Kind), req.Payload)
}

// errorCode maps core sentinels to stable machine-readable codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, call.ErrNotFound),
		errors.Is(err, room.ErrNotFound),
		errors.Is(err, signaling.ErrNotFound):
		return "not_found"
	case errors.Is(err, call.ErrUnauthorized),
		errors.Is(err, signaling.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, call.ErrConflict):
		return "conflict"
	case errors.Is(err, call.ErrReceiverUnavailable):
		return "receiver_unavailable"
	case errors.Is(err, room.ErrRoomFull):
		return "room_full"
	case errors.Is(err, signaling.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, call.ErrInvalidArgument),
		errors.Is(err, room.ErrInvalidArgument),
		errors.Is(err, signaling.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
