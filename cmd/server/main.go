// Package main is the entry point for the aale-platform sync server.
//
// The server is the classroom-side half of the platform: devices push
// locally recorded learning events to it, pull catalog and event deltas
// from it, and ask it which unit a student should attempt next.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: learning events, units, recommendation policy
// - Application: use case orchestration (Commands/Queries)
// - Infrastructure: PostgreSQL and in-memory stores, Redis cache
// - Interface: HTTP REST API
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Deekay69/aale-platform/config"
	"github.com/Deekay69/aale-platform/internal/application/command"
	"github.com/Deekay69/aale-platform/internal/application/query"
	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/recommendation"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
	"github.com/Deekay69/aale-platform/internal/infrastructure/persistence/memory"
	"github.com/Deekay69/aale-platform/internal/infrastructure/persistence/postgres"
	"github.com/Deekay69/aale-platform/internal/infrastructure/persistence/redis"
	httpserver "github.com/Deekay69/aale-platform/internal/interface/http"
	"github.com/Deekay69/aale-platform/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	inMemory := flag.Bool("in-memory", false, "run against in-memory stores instead of PostgreSQL")
	flag.Parse()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	logOpts := logger.DefaultOptions()
	logOpts.Level = logger.ParseLevel(cfg.App.LogLevel)
	if cfg.App.Debug {
		logOpts.Level = logger.LevelDebug
		logOpts.AddCaller = true
	}
	log := logger.New(logOpts)
	log.Info("starting aale-platform server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PERSISTENCE
	// ─────────────────────────────────────────────────────────────────────────
	var (
		eventStore  event.TxStore
		unitCatalog unit.Catalog
		recLog      recommendation.Log
		dbConn      *postgres.Connection
	)

	if *inMemory {
		log.Warn("running with in-memory stores, all data is lost on shutdown")
		eventStore = memory.NewEventStore()
		unitCatalog = memory.NewUnitCatalog()
		recLog = memory.NewRecommendationLog()
	} else {
		log.Info("connecting to database...")
		dbConn, err = connectDatabase(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if cfg.Database.Migrate {
			log.Info("running database migrations...")
			migrator := postgres.NewMigrator(dbConn)
			if err := migrator.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations completed")
		}

		eventStore = postgres.NewEventStore(dbConn)
		unitCatalog = postgres.NewUnitCatalog(dbConn)
		recLog = postgres.NewRecommendationLog(dbConn)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var profiles query.ProfileCache
	var profileInvalidator command.ProfileInvalidator
	var heatmapCache query.HeatmapCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, profile caching disabled", logger.Err(err))
		} else {
			defer redisCache.Close()
			profileCache := redis.NewProfileCache(redisCache, log)
			profiles = profileCache
			profileInvalidator = profileCache
			heatmapCache = redis.NewHeatmapCache(redisCache, log)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. DOMAIN SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	policy, err := recommendation.NewPolicy(cfg.Recommendation.Epsilon)
	if err != nil {
		return fmt.Errorf("failed to build recommendation policy: %w", err)
	}
	log.Info("recommendation policy ready",
		logger.Float64("epsilon", cfg.Recommendation.Epsilon))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	pushEvents := command.NewPushEventsHandler(eventStore, profileInvalidator, log)
	pullChanges := query.NewPullChangesHandler(eventStore, unitCatalog, log)
	syncStatus := query.NewGetSyncStatusHandler(eventStore)
	nextRec := query.NewNextRecommendationHandler(eventStore, unitCatalog, recLog, policy, profiles, log)
	profile := query.NewGetProfileHandler(eventStore, unitCatalog)
	heatmap := query.NewGetHeatmapHandler(eventStore, unitCatalog, heatmapCache)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.EnableCORS = cfg.HTTP.EnableCORS
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		PushEvents:         pushEvents,
		PullChanges:        pullChanges,
		SyncStatus:         syncStatus,
		NextRecommendation: nextRec,
		Profile:            profile,
		Heatmap:            heatmap,
		Logger:             log,
		Health:             readiness(dbConn, redisCache),
	})

	errCh := server.StartAsync()
	log.Info("HTTP server listening", logger.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*postgres.Connection, error) {
	if cfg.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.URL)
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.Host = cfg.Host
	pgCfg.Port = cfg.Port
	pgCfg.Database = cfg.Name
	pgCfg.User = cfg.User
	pgCfg.Password = cfg.Password
	pgCfg.SSLMode = cfg.SSLMode
	pgCfg.MaxConns = int32(cfg.MaxConns)
	pgCfg.MinConns = int32(cfg.MinConns)
	pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	return postgres.NewConnection(ctx, pgCfg)
}

// readiness reports the server ready when the database answers a ping.
// Redis is best-effort and never blocks readiness.
func readiness(db *postgres.Connection, cache *redis.Cache) httpserver.HealthChecker {
	return httpserver.ReadyFunc(func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := db.Ping(pingCtx); err != nil {
			return fmt.Errorf("database not reachable: %w", err)
		}
		if cache != nil {
			_ = cache.Ping(pingCtx)
		}
		return nil
	})
}
