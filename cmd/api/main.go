package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callgrid/internal/auth"
	"callgrid/internal/call"
	"callgrid/internal/config"
	"callgrid/internal/presence"
	"callgrid/internal/reaper"
	"callgrid/internal/room"
	"callgrid/internal/session"
	"callgrid/internal/signaling"
	"callgrid/internal/user"
	"callgrid/internal/ws"
	"callgrid/pkg/logger"
	"callgrid/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN())
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Durable repositories.
	users := user.NewSQLRepo(db)
	history := call.NewSQLHistoryRepo(db)
	roomRepo := room.NewSQLRepo(db)

	// Real-time layer: the hub is the presence directory for the whole
	// core, backed by Redis connection counters for fleet-wide state.
	tracker := presence.NewTracker(rdb, cfg.Call.PresenceTTL)
	hub := ws.NewHub(tracker, users, logger.Component(log, "ws"))

	// Signaling core.
	callStore := session.NewStore[call.Session]()
	roomStore := session.NewStore[room.Session]()
	engine := call.NewEngine(callStore, history, users, hub, logger.Component(log, "call"))
	router := signaling.NewRouter(callStore, roomStore, hub, logger.Component(log, "signaling"), cfg.Call.MaxSignalBytes)
	rooms := room.NewCoordinator(roomStore, roomRepo, hub, logger.Component(log, "room"))

	dispatch := ws.NewDispatcher(engine, router, rooms, hub, logger.Component(log, "ws"))
	gateway := ws.NewGateway(hub, dispatch, cfg.Call.MaxSignalBytes, logger.Component(log, "ws"))

	reap := reaper.New(cfg.Call.ReaperInterval, cfg.Call.SessionTTL, logger.Component(log, "reaper"), engine, rooms)
	go reap.Run(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, db, rdb, routeDeps{
		authManager: authManager,
		gateway:     gateway,
		engine:      engine,
		router:      router,
		rooms:       rooms,
		users:       users,
		hub:         hub,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
