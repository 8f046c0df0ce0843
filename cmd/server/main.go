package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/voicereply/voice-service/internal/config"
	"github.com/voicereply/voice-service/internal/handler"
	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Server represents the voice reply service
type Server struct {
	config         *config.Config
	router         *mux.Router
	handlerManager *handler.HandlerManager
	httpServer     *http.Server
}

// NewServer creates a new voice reply server
func NewServer(cfg *config.Config) *Server {
	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		logger.Base().Error("Failed to initialize zap logger, falling back to std log")
	}

	router := mux.NewRouter()

	handlerManager, err := handler.NewHandlerManager(cfg)
	if err != nil {
		logger.Base().Error("Failed to initialize handler manager", zap.Error(err))
		return nil
	}

	handlerManager.SetupAllRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("Starting server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// restoreSessions reconnects every previously linked tenant on boot
func (s *Server) restoreSessions(ctx context.Context) {
	report, err := s.handlerManager.GetOrchestrator().RestoreAll(ctx)
	if err != nil {
		logger.Base().Error("session restoration failed", zap.Error(err))
		return
	}
	logger.Base().Info("session restoration completed",
		zap.Int("total", report.Total),
		zap.Int("restored", report.Restored),
		zap.Int("failed", report.Failed),
	)
}

// maintainCache runs one purge and eviction pass on boot, then daily
func (s *Server) maintainCache(ctx context.Context) {
	cache := s.handlerManager.GetCache()
	if cache == nil {
		return
	}

	runPass := func() {
		expired, err := cache.PurgeExpired(ctx)
		if err != nil {
			logger.Base().Warn("cache purge failed", zap.Error(err))
			return
		}
		evicted, err := cache.EnforceSizeCap(ctx)
		if err != nil {
			logger.Base().Warn("cache eviction failed", zap.Error(err))
			return
		}
		logger.Base().Info("cache maintenance pass completed",
			zap.Int("expired", expired),
			zap.Int("evicted", evicted))
	}

	runPass()

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runPass()
			}
		}
	}()
}

// shutdown drains HTTP traffic, then tears down every live session
func (s *Server) shutdown() {
	logger.Base().Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logger.Base().Warn("http server shutdown error", zap.Error(err))
		}
	}

	s.handlerManager.GetOrchestrator().Shutdown(ctx)
	logger.Sync()
}

func main() {
	// Load .env file for local development if it exists. This will not
	// override environment variables set by Helm/Docker.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := config.LoadConfigFromEnv()
	fmt.Printf("🚀 Starting Voice Reply Service (Instance: %s)\n", cfg.InstanceID)

	server := NewServer(cfg)
	if server == nil {
		log.Fatal("❌ Failed to create server")
	}
	logger.Base().Info("✅ Server initialized successfully",
		zap.String("port", cfg.Port),
		zap.String("instance_id", cfg.InstanceID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server.maintainCache(ctx)
	server.restoreSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Base().Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Base().Error("server failed", zap.Error(err))
		}
	}

	cancel()
	server.shutdown()
}
