package httpapi

import (
	"errors"
	"net/http"

	"callgrid/internal/call"
	"callgrid/internal/room"
	"callgrid/internal/signaling"
	"callgrid/pkg/logger"

	"github.com/gin-gonic/gin"
)

type apiError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// respondError translates core sentinels into HTTP statuses. Anything
// unrecognized is a 500 whose detail stays in the log, not the body.
func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "error", err)
		c.JSON(status, apiError{Code: code, Error: "internal error"})
		return
	}
	c.JSON(status, apiError{Code: code, Error: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, call.ErrNotFound),
		errors.Is(err, room.ErrNotFound),
		errors.Is(err, signaling.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, call.ErrUnauthorized),
		errors.Is(err, signaling.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, call.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, call.ErrReceiverUnavailable):
		return http.StatusConflict, "receiver_unavailable"
	case errors.Is(err, room.ErrRoomFull):
		return http.StatusConflict, "room_full"
	case errors.Is(err, signaling.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, call.ErrInvalidArgument),
		errors.Is(err, room.ErrInvalidArgument),
		errors.Is(err, signaling.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// identity returns the authenticated user id set by the auth middleware.
func identity(c *gin.Context) (string, bool) {
	id := c.GetString("user_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Code: "unauthorized", Error: "unauthenticated"})
		return "", false
	}
	return id, true
}
