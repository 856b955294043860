package httpapi

import (
	"net/http"

	"callgrid/internal/room"
	"callgrid/internal/signaling"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	rooms  *room.Coordinator
	router *signaling.Router
}

func NewRoomHandler(rooms *room.Coordinator, router *signaling.Router) *RoomHandler {
	return &RoomHandler{rooms: rooms, router: router}
}

func (h *RoomHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/rooms", h.create)
	rg.POST("/rooms/join", h.join)
	rg.GET("/rooms/:id", h.get)
	rg.POST("/rooms/:id/leave", h.leave)
	rg.POST("/rooms/:id/signal", h.signal)
}

func (h *RoomHandler) create(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	var req struct {
		Name            string `json:"name" binding:"required"`
		MaxParticipants int    `json:"max_participants"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "invalid_argument", Error: err.Error()})
		return
	}

	sess, err := h.rooms.Create(c.Request.Context(), userID, req.Name, req.MaxParticipants)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *RoomHandler) join(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "invalid_argument", Error: err.Error()})
		return
	}

	sess, err := h.rooms.Join(c.Request.Context(), req.Code, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *RoomHandler) get(c *gin.Context) {
	if _, ok := identity(c); !ok {
		return
	}

	sess, err := h.rooms.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *RoomHandler) leave(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	if err := h.rooms.Leave(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) signal(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	var req struct {
		TargetID string `json:"target_id" binding:"required"`
		Kind     string `json:"kind" binding:"required"`
		Payload  string `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "invalid_argument", Error: err.Error()})
		return
	}

	if err := h.router.RelayRoom(c.Request.Context(), c.Param("id"), userID, req.TargetID, signaling.Kind(req.Kind), req.Payload); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
