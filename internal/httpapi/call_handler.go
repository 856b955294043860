package httpapi

import (
	"net/http"
	"strconv"

	"callgrid/internal/call"
	"callgrid/internal/signaling"

	"github.com/gin-gonic/gin"
)

// CallHandler exposes the call lifecycle over REST for clients that do
// not hold a websocket (ops tooling, integration tests). Interactive
// clients use the websocket actions; both paths hit the same engine.
type CallHandler struct {
	engine *call.Engine
	router *signaling.Router
}

func NewCallHandler(engine *call.Engine, router *signaling.Router) *CallHandler {
	return &CallHandler{engine: engine, router: router}
}

func (h *CallHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/calls", h.initiate)
	rg.POST("/calls/:id/answer", h.answer)
	rg.POST("/calls/:id/end", h.end)
	rg.POST("/calls/:id/signal", h.signal)
	rg.GET("/calls/history", h.history)
}

func (h *CallHandler) initiate(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required"`
		Media      string `json:"media" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "invalid_argument", Error: err.Error()})
		return
	}

	sess, err := h.engine.Initiate(c.Request.Context(), userID, req.ReceiverID, call.MediaKind(req.Media))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *CallHandler) answer(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	var req struct {
		Accept *bool `json:"accept" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "invalid_argument", Error: err.Error()})
		return
	}

	sess, err := h.engine.Answer(c.Request.Context(), c.Param("id"), userID, *req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *CallHandler) end(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	sess, err := h.engine.End(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *CallHandler) signal(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	var req struct {
		Kind    string `json:"kind" binding:"required"`
		Payload string `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "invalid_argument", Error: err.Error()})
		return
	}

	if err := h.router.RelayCall(c.Request.Context(), c.Param("id"), userID, signaling.Kind(req.Kind), req.Payload); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *CallHandler) history(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.engine.ListHistory(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}
