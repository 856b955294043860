package httpapi

import (
	"errors"
	"net/http"
	"time"

	"callgrid/internal/auth"
	"callgrid/internal/user"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues access tokens for known users. Credential checks
// live in the upstream identity service; production deployments receive
// tokens minted there with the shared secret, and this endpoint is
// mounted only outside production for local and integration use.
type AuthHandler struct {
	manager *auth.Manager
	users   user.Repository
}

func NewAuthHandler(manager *auth.Manager, users user.Repository) *AuthHandler {
	return &AuthHandler{manager: manager, users: users}
}

func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.issueToken)
}

func (h *AuthHandler) issueToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "invalid_argument", Error: err.Error()})
		return
	}

	u, err := h.users.Find(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			c.JSON(http.StatusNotFound, apiError{Code: "not_found", Error: "user not found"})
			return
		}
		respondError(c, err)
		return
	}

	token, err := h.manager.IssueAccess(time.Now(), u.ID, u.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "Bearer"})
}
