package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lychee-technology/eav"
	"github.com/lychee-technology/eav/factory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Server exposes a registry and its storage over HTTP
type Server struct {
	registry *eav.Registry
	storage  eav.Storage
	router   *gin.Engine
}

// NewServer creates a new Server instance with its routes registered
func NewServer(registry *eav.Registry, storage eav.Storage) *Server {
	s := &Server{
		registry: registry,
		storage:  storage,
		router:   gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.RegisterRoutes()
	return s
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	api := s.router.Group("/api/v1")
	{
		api.POST("/schemas", s.handleCreateSchema)
		api.GET("/schemas", s.handleListSchemas)
		api.GET("/schemas/:name", s.handleGetSchema)

		api.POST("/entities/:schema", s.handleCreateEntity)
		api.GET("/entities/:id", s.handleGetEntity)
		api.PATCH("/entities/:id", s.handleUpdateEntity)
		api.DELETE("/entities/:id", s.handleDeleteEntity)
	}
}

func newLogger(cfg eav.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	config, err := eav.LoadConfig(getEnv("EAV_CONFIG", ""))
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := factory.NewRegistry(config)
	if err != nil {
		sugar.Fatalf("failed to load schemas: %v", err)
	}
	backend, err := factory.NewBackend(ctx, config)
	if err != nil {
		sugar.Fatalf("failed to open storage: %v", err)
	}
	defer backend.Close()

	if err := registry.CreateAll(ctx, backend.Storage); err != nil {
		sugar.Fatalf("failed to bootstrap storage: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	server := NewServer(registry, backend.Storage)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      server.router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("server shutdown", "err", err)
		}
	}()

	sugar.Infow("starting server", "port", config.Server.Port, "driver", config.Storage.Driver)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Fatalf("server error: %v", err)
	}
}
