package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/flowvault-go/internal/flow/adapters/coldstorage"
	"github.com/flowvault-go/internal/flow/adapters/db/repository"
	"github.com/flowvault-go/internal/flow/adapters/engine"
	"github.com/flowvault-go/internal/flow/app/analytics"
	"github.com/flowvault-go/internal/flow/app/archive"
	"github.com/flowvault-go/internal/flow/app/comparison"
	"github.com/flowvault-go/internal/flow/app/lifecycle"
	"github.com/flowvault-go/internal/flow/app/statecache"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/cache"
	"github.com/flowvault-go/pkg/config"
	"github.com/flowvault-go/pkg/database"
	"github.com/flowvault-go/pkg/events"
	"github.com/flowvault-go/pkg/logger"
	"github.com/flowvault-go/pkg/telemetry"
	"github.com/redis/go-redis/v9"
)

// Services are the flow components a presentation layer binds to.
type Services struct {
	Lifecycle  *lifecycle.Manager
	StateCache *statecache.ExecutionStateCache
	Comparison *comparison.Engine
	Analytics  *analytics.Engine
	Archive    *archive.Manager
}

type Server struct {
	config     *config.Config
	logger     logger.Logger
	httpServer *http.Server
	db         *database.DB
	redis      *redis.Client
	eventBus   events.EventBus
	telemetry  *telemetry.Telemetry
	scheduler  *archive.Scheduler
	services   *Services
}

func New(cfg *config.Config, log logger.Logger) (*Server, error) {
	tel, err := telemetry.New(cfg.Telemetry.ToTelemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// Initialize database
	db, err := database.New(cfg.Database.ToDatabaseConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// Initialize Redis. The distributed tier is optional, so a failed ping
	// only degrades readiness.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unavailable, state cache runs degraded", "addr", cfg.Redis.Addr(), "error", err)
	}

	// Initialize event bus
	var eventBus events.EventBus = events.NopEventBus{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaBus, err := events.NewKafkaEventBus(cfg.Kafka.ToKafkaConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		eventBus = kafkaBus
	}

	var cold ports.ColdStorage
	if cfg.Archive.ColdStorage.Enabled {
		s3Cfg := coldstorage.Config{
			Bucket:   cfg.Archive.ColdStorage.Bucket,
			Region:   cfg.Archive.ColdStorage.Region,
			Endpoint: cfg.Archive.ColdStorage.Endpoint,
			Prefix:   cfg.Archive.ColdStorage.Prefix,
		}
		client, err := coldstorage.NewS3Client(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create cold storage client: %w", err)
		}
		cold = coldstorage.NewS3Storage(client, s3Cfg)
	}

	repo := repository.NewFlowRepository(db)
	services := &Services{
		Lifecycle: lifecycle.NewManager(repo, repo, engine.NewLevelCompiler(), engine.NewChainRegistry(log), eventBus, log),
		StateCache: statecache.New(
			cache.NewLocalCache(cfg.Cache.LocalOptions()),
			cache.NewRedisCache(redisClient, cfg.Cache.DistributedOptions()),
			statecache.Options{
				WriteRetry: cfg.Cache.WriteRetry(),
				Breaker:    cfg.Cache.WriteBreaker("state-cache-distributed"),
			},
			log,
		),
		Comparison: comparison.NewEngine(repo, log),
		Analytics:  analytics.NewEngine(repo, repo, log),
		Archive: archive.NewManager(repo, repo, repo, cold, eventBus, archive.Options{
			ActiveGuardDays:   cfg.Archive.ActiveGuardDays,
			VersionsPerSecond: cfg.Archive.VersionsPerSec,
		}, log),
	}

	// Chains live in engine memory, so published flows are registered again
	// on every start.
	reloadCtx, cancelReload := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelReload()
	if _, err := services.Lifecycle.ReloadChains(reloadCtx); err != nil {
		return nil, fmt.Errorf("failed to reload published chains: %w", err)
	}

	var scheduler *archive.Scheduler
	if cfg.Archive.Enabled {
		scheduler = archive.NewScheduler(services.Archive, repo, archive.SchedulerConfig{
			Schedule:     cfg.Archive.Schedule,
			KeepVersions: cfg.Archive.KeepVersions,
			Backup:       cfg.Archive.Backup,
			RunTimeout:   cfg.Archive.RunTimeout,
		}, log)
	}

	router := setupRouter([]readinessCheck{
		{name: "database", critical: true, check: db.Ping},
		{name: "redis", check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}, cfg.Metrics.Path, log)

	httpServer := &http.Server{
		Addr:         cfg.Metrics.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return &Server{
		config:     cfg,
		logger:     log,
		httpServer: httpServer,
		db:         db,
		redis:      redisClient,
		eventBus:   eventBus,
		telemetry:  tel,
		scheduler:  scheduler,
		services:   services,
	}, nil
}

func (s *Server) Services() *Services {
	return s.services
}

func (s *Server) Start() error {
	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start archive scheduler: %w", err)
		}
	}

	s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if err := s.eventBus.Close(); err != nil {
		s.logger.Error("Failed to close event bus", "error", err)
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Error("Failed to close Redis", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", "error", err)
	}
	if err := s.telemetry.Close(ctx); err != nil {
		s.logger.Error("Failed to flush traces", "error", err)
	}

	return nil
}
