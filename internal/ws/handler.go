package ws

import (
	"context"
	"log/slog"
	"net/http"

	"callgrid/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const frameHeadroom = 4 * 1024

// Gateway upgrades authenticated HTTP requests to websocket sessions
// and hands them to the hub.
type Gateway struct {
	hub       *Hub
	dispatch  *Dispatcher
	upgrader  websocket.Upgrader
	readLimit int64
	log       *slog.Logger
}

func NewGateway(hub *Hub, dispatch *Dispatcher, maxSignalBytes int, log *slog.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		dispatch: dispatch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin enforcement belongs to the edge proxy in this
			// deployment; the token check already gates access.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		readLimit: int64(maxSignalBytes + frameHeadroom),
		log:       log,
	}
}

// Serve is mounted behind RequireAccessToken; identity comes from the
// verified token, never from the client.
func (g *Gateway) Serve(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromGin(c).Warn("websocket upgrade", "error", err)
		return
	}

	client := &Client{
		id:       uuid.NewString(),
		userID:   userID,
		username: c.GetString("username"),
		hub:      g.hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		log:      g.log,
	}

	// The socket outlives the HTTP handler, whose context is canceled
	// once the upgrade hijacks the connection. Pumps get a fresh one.
	ctx := context.Background()
	g.hub.Register(ctx, client)

	go client.writePump()
	go client.readPump(ctx, g.dispatch, g.readLimit)
}
