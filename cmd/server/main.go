// Package main provides the HTTP entry point backed by PostgreSQL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/api"
	"github.com/imwg-risk-server/internal/audit"
	"github.com/imwg-risk-server/internal/cache"
	"github.com/imwg-risk-server/internal/config"
	"github.com/imwg-risk-server/internal/database"
	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/metrics"
	"github.com/imwg-risk-server/internal/repository"
	"github.com/imwg-risk-server/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()
	databaseURL := configManager.GetDatabaseURL()

	if cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrationRunner(databaseURL, logger)
		if err != nil {
			return err
		}
		err = migrator.Up(ctx)
		migrator.Close()
		if err != nil {
			return err
		}
	}

	db, err := database.OpenPostgres(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	auditStore, err := audit.NewPostgresStoreFromURL(databaseURL)
	if err != nil {
		return err
	}

	m := metrics.New()
	auditLog := audit.NewLog(auditStore, logger, m)
	defer auditLog.Close()

	assessmentCache, closeCache, err := newCache(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	svc := service.NewAssessmentService(
		repository.NewPostgresRepository(db.Pool, logger),
		auditLog,
		assessmentCache,
		m,
		logger,
	)

	server := api.NewServer(api.Options{
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Debug:     configManager.IsDevelopment() && logger.IsLevelEnabled(logrus.DebugLevel),
	}, svc, m, logger)

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting IMWG risk server")

	return server.Start(ctx)
}

// newCache selects Redis when a URL is configured and the in-process LRU otherwise.
func newCache(cfg domain.CacheConfig, logger *logrus.Logger) (domain.AssessmentCache, func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		return cache.NoopCache{}, noop, nil
	}
	if cfg.RedisURL == "" {
		return cache.NewMemoryCache(cfg.MaxItems, cfg.DefaultTTL), noop, nil
	}

	redisCache, err := cache.NewRedisCache(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return redisCache, func() {
		if err := redisCache.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close Redis cache")
		}
	}, nil
}
