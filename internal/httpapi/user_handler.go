package httpapi

import (
	"errors"
	"net/http"

	"callgrid/internal/presence"
	"callgrid/internal/user"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	repo user.Repository
	dir  presence.Directory
}

func NewUserHandler(repo user.Repository, dir presence.Directory) *UserHandler {
	return &UserHandler{repo: repo, dir: dir}
}

func (h *UserHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users/:id", h.get)
}

// get returns a user's profile summary with live reachability, which is
// authoritative over the durable is_online column.
func (h *UserHandler) get(c *gin.Context) {
	if _, ok := identity(c); !ok {
		return
	}

	u, err := h.repo.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			c.JSON(http.StatusNotFound, apiError{Code: "not_found", Error: "user not found"})
			return
		}
		respondError(c, err)
		return
	}

	if online, err := h.dir.IsOnline(c.Request.Context(), u.ID); err == nil {
		u.Online = online
	}
	c.JSON(http.StatusOK, u)
}
