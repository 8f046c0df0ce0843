package handler

import (
	"context"
	"os"

	"github.com/gorilla/mux"
	"github.com/voicereply/voice-service/internal/adapters/bridge"
	"github.com/voicereply/voice-service/internal/audiocache"
	"github.com/voicereply/voice-service/internal/config"
	"github.com/voicereply/voice-service/internal/quota"
	"github.com/voicereply/voice-service/internal/repository"
	"github.com/voicereply/voice-service/internal/session"
	"github.com/voicereply/voice-service/internal/synth"
	"github.com/voicereply/voice-service/pkg/gcs"
	"github.com/voicereply/voice-service/pkg/logger"
	"github.com/voicereply/voice-service/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HandlerManager owns the wired service graph and its HTTP surface
type HandlerManager struct {
	config       *config.Config
	orchestrator *session.Orchestrator
	tenantRepo   repository.TenantRepository
	cache        *audiocache.Cache
	synthClient  *synth.Client
	db           *gorm.DB
}

// NewHandlerManager creates and wires all services
func NewHandlerManager(cfg *config.Config) (*HandlerManager, error) {
	// Database connection and migrations
	dbConfig := repository.LoadDatabaseConfigFromEnv()
	db, err := repository.NewDatabaseConnection(dbConfig)
	if err != nil {
		logger.Base().Error("failed to connect to database", zap.Error(err))
		return nil, err
	}
	if err := repository.AutoMigrate(db); err != nil {
		logger.Base().Error("failed to run database migrations", zap.Error(err))
		return nil, err
	}

	tenantRepo := repository.NewGormTenantRepository(db)
	usageStore := repository.NewGormUsageStore(db)
	ledger := quota.NewLedger(usageStore)

	// Redis is optional. Without it the service runs single-instance with
	// no cross-pod session monitor.
	var monitor *session.Monitor
	redisConfig := &redis.RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       cfg.RedisDB,
	}
	redisSvc, err := redis.NewRedisService(redisConfig)
	if err != nil {
		logger.Base().Warn("failed to initialize redis service, running without session monitor", zap.Error(err))
	} else {
		monitor = session.NewMonitor(redisSvc, cfg.InstanceID)
		logger.Base().Info("session monitor initialized", zap.String("instance_id", cfg.InstanceID))
	}

	// Audio cache backed by local disk or GCS
	var cache *audiocache.Cache
	if cfg.AudioCacheEnabled && cfg.AudioCachePath != "" {
		backend, err := newCacheBackend(cfg)
		if err != nil {
			logger.Base().Warn("failed to initialize audio cache, continue without caching",
				zap.Error(err),
				zap.String("type", cfg.AudioCacheType),
				zap.String("path", cfg.AudioCachePath),
			)
		} else {
			cache = audiocache.New(backend)
			logger.Base().Info("audio cache initialized",
				zap.String("type", cfg.AudioCacheType),
				zap.String("path", cfg.AudioCachePath),
			)
		}
	} else {
		logger.Base().Info("audio cache disabled",
			zap.Bool("enabled", cfg.AudioCacheEnabled),
			zap.String("path", cfg.AudioCachePath),
		)
	}

	synthClient := synth.NewClient(cfg.ElevenLabsBaseURL, cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID)

	credStore, err := session.NewFileCredentialStore(cfg.CredentialRoot)
	if err != nil {
		logger.Base().Error("failed to initialize credential store", zap.Error(err))
		return nil, err
	}

	transport := bridge.NewTransport(cfg.BridgeBaseURL, credStore)
	pipeline := session.NewPipeline(ledger, cache, synthClient)
	orchestrator := session.NewOrchestrator(transport, credStore, tenantRepo, pipeline, monitor, session.DefaultConfig())

	// Cross-pod logout fan-out: another instance removing a session tears
	// down the local handle too.
	if monitor != nil {
		if err := monitor.SubscribeToLogouts(context.Background(), func(tenantID string) {
			if err := orchestrator.DisconnectSession(context.Background(), tenantID); err != nil {
				logger.Base().Warn("failed to tear down session after remote logout",
					zap.String("tenant_id", tenantID),
					zap.Error(err))
			}
		}); err != nil {
			logger.Base().Warn("failed to subscribe to logout channel", zap.Error(err))
		}
	}

	return &HandlerManager{
		config:       cfg,
		orchestrator: orchestrator,
		tenantRepo:   tenantRepo,
		cache:        cache,
		synthClient:  synthClient,
		db:           db,
	}, nil
}

func newCacheBackend(cfg *config.Config) (audiocache.Backend, error) {
	if cfg.AudioCacheType == "gcs" {
		client, err := gcs.NewGCSClient(context.Background(), cfg.AudioCachePath)
		if err != nil {
			return nil, err
		}
		return audiocache.NewGCSBackend(client, "audio-cache"), nil
	}
	return audiocache.NewLocalBackend(cfg.AudioCachePath)
}

// SetupAllRoutes sets up all routes with middleware
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)

	healthHandler := NewHealthHandler(hm.db, hm.orchestrator, hm.synthClient)
	healthHandler.SetupHealthRoutes(router)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(LoggingMiddleware)
	apiRouter.Use(ValidationMiddleware)
	apiRouter.Use(APIKeyMiddleware(hm.config.SecretKey))

	tenantHandler := NewTenantHandler(hm.tenantRepo)
	tenantHandler.SetupTenantRoutes(apiRouter)

	sessionHandler := NewSessionHandler(hm.orchestrator, hm.tenantRepo)
	sessionHandler.SetupSessionRoutes(apiRouter)

	cacheHandler := NewCacheHandler(hm.cache)
	cacheHandler.SetupCacheRoutes(apiRouter)

	logger.Base().Info("all application routes registered")
}

// GetOrchestrator returns the session orchestrator
func (hm *HandlerManager) GetOrchestrator() *session.Orchestrator {
	return hm.orchestrator
}

// GetCache returns the audio cache, or nil if caching is disabled
func (hm *HandlerManager) GetCache() *audiocache.Cache {
	return hm.cache
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
