package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 64
)

// Client is one live websocket connection of an authenticated user.
type Client struct {
	id       string
	userID   string
	username string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// done signals shutdown. The send channel itself is never closed:
	// the hub may still hold this client between Close and the read
	// pump's deferred Unregister, and a send must never panic in that
	// window. Abandoned buffered frames are left to the GC.
	done chan struct{}
	log  *slog.Logger

	closeOnce sync.Once
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Close tears the connection down; the read pump's deferred unregister
// does the bookkeeping.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// enqueue pushes a pre-marshalled frame without blocking. A client that
// cannot keep up is disconnected rather than allowed to stall senders.
func (c *Client) enqueue(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("websocket send buffer full, dropping connection",
			"conn_id", c.id, "user_id", c.userID)
		go c.Close()
	}
}

func (c *Client) reply(event string, data any) {
	msg, err := marshalEnvelope(event, data)
	if err != nil {
		c.log.Error("marshal reply", "event", event, "error", err)
		return
	}
	c.enqueue(msg)
}

func (c *Client) readPump(ctx context.Context, dispatch *Dispatcher, readLimit int64) {
	defer func() {
		c.hub.Unregister(ctx, c)
		c.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.Touch(ctx, c.userID)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read", "conn_id", c.id, "error", err)
			}
			return
		}
		dispatch.Handle(ctx, c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
