package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"callgrid/internal/auth"
	"callgrid/internal/call"
	"callgrid/internal/config"
	"callgrid/internal/httpapi"
	"callgrid/internal/room"
	"callgrid/internal/signaling"
	"callgrid/internal/user"
	"callgrid/internal/ws"
	"callgrid/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	authManager *auth.Manager
	gateway     *ws.Gateway
	engine      *call.Engine
	router      *signaling.Router
	rooms       *room.Coordinator
	users       user.Repository
	hub         *ws.Hub
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, db *sql.DB, rdb *redis.Client, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMW := auth.RequireAccessToken(deps.authManager)

	// Websocket gateway. Token arrives as a query parameter here since
	// browsers cannot set headers on the upgrade request.
	r.GET("/ws", authMW, deps.gateway.Serve)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		httpapi.NewCallHandler(deps.engine, deps.router).RegisterRoutes(v1)
		httpapi.NewRoomHandler(deps.rooms, deps.router).RegisterRoutes(v1)
		httpapi.NewUserHandler(deps.users, deps.hub).RegisterRoutes(v1)

		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			uname, _ := auth.Username(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "username": uname})
		})
	}

	// Token issuance for known users, local and staging use only.
	// Production deployments mint tokens in the identity service.
	if !cfg.IsProduction() {
		dev := r.Group("/v1")
		httpapi.NewAuthHandler(deps.authManager, deps.users).RegisterRoutes(dev)
	}
}
