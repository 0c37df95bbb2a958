// Package main runs the classroom polling HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/history"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/polls"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/internal/sessions"
	"github.com/classpulse/backend/internal/worker"
	"github.com/classpulse/backend/pkg/database"
	"github.com/classpulse/backend/pkg/queue"
	"github.com/classpulse/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Poll history persistence is best-effort: the live core never depends on
	// it, so a missing database or Redis degrades to in-memory-only mode.
	var histRepo *history.Repository
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Warn("history store disabled", zap.Error(err))
	} else {
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		histRepo = history.NewRepository(pool)
	}

	var jobQueue *queue.Queue
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("archive queue disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}

	hub := realtime.NewHub(logger)
	store := sessions.NewStore(logger)

	var sessionArchive sessions.Archiver
	var pollArchive polls.Archiver
	if jobQueue != nil {
		sessionArchive = jobQueue
		pollArchive = jobQueue
	}

	sessionSvc := sessions.NewService(store, hub, sessionArchive, logger)
	pollSvc := polls.NewService(store, hub, pollArchive, logger)
	chatSvc := chat.NewService(hub, logger)
	wsRouter := realtime.NewRouter(hub, sessionSvc, pollSvc, chatSvc, logger)

	var lookup sessions.CodeLookup
	if histRepo != nil {
		lookup = histRepo
	}
	sessionHandler := sessions.NewHandler(sessionSvc, lookup, logger)
	historyHandler := history.NewHandler(pollSvc, histRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Polling system backend is running.") })
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Session lookup and history; response shapes match the existing clients.
	router.POST("/session", sessionHandler.Create)
	router.GET("/session/by-code/:joinCode", sessionHandler.GetByCode)
	router.GET("/session/:sessionId/poll-history", historyHandler.GetBySession)

	// WebSocket (no auth; participants are session-scoped)
	router.GET("/ws", realtime.ServeWs(hub, wsRouter, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background archiver (closed polls to Postgres)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if histRepo != nil && jobQueue != nil {
		archiver := worker.NewArchiver(histRepo, jobQueue, logger)
		go archiver.Run(workerCtx)
		logger.Info("archive worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
