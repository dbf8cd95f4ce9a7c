// Package app assembles the service graph for the standalone binaries.
// The lite stack requires no external databases: SQLite for assessments and
// the audit trail, and an in-memory cache.
package app

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/audit"
	"github.com/imwg-risk-server/internal/cache"
	"github.com/imwg-risk-server/internal/config"
	"github.com/imwg-risk-server/internal/database"
	"github.com/imwg-risk-server/internal/metrics"
	"github.com/imwg-risk-server/internal/repository"
	"github.com/imwg-risk-server/internal/service"
)

// LiteStack holds the wired lite components.
type LiteStack struct {
	Config  *config.LiteConfig
	Service *service.AssessmentService
	Audit   *audit.Log
	Metrics *metrics.Metrics
	Logger  *logrus.Logger

	db *sql.DB
}

// LiteOption is a functional option for NewLiteStack.
type LiteOption func(*LiteStack) error

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteOption {
	return func(s *LiteStack) error {
		s.Logger = logger
		return nil
	}
}

// WithMetrics sets a custom metrics registry.
func WithMetrics(m *metrics.Metrics) LiteOption {
	return func(s *LiteStack) error {
		s.Metrics = m
		return nil
	}
}

// NewLiteStack opens the SQLite database under the data directory and wires
// the repository, audit log, cache and assessment service on top of it.
func NewLiteStack(cfg *config.LiteConfig, opts ...LiteOption) (*LiteStack, error) {
	stack := &LiteStack{Config: cfg}

	for _, opt := range opts {
		if err := opt(stack); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if stack.Logger == nil {
		logger, err := config.NewLogger(cfg.LoggingConfig())
		if err != nil {
			return nil, err
		}
		stack.Logger = logger
	}
	if stack.Metrics == nil {
		stack.Metrics = metrics.New()
	}

	// Ensure data directory exists
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := database.OpenSQLite(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	stack.db = db

	repo, err := repository.NewSQLiteRepository(db, stack.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create assessment repository: %w", err)
	}

	auditStore, err := audit.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit store: %w", err)
	}
	stack.Audit = audit.NewLog(auditStore, stack.Logger, stack.Metrics)

	stack.Service = service.NewAssessmentService(
		repo,
		stack.Audit,
		cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL),
		stack.Metrics,
		stack.Logger,
	)

	stack.Logger.WithFields(logrus.Fields{
		"data_dir":        cfg.DataDir,
		"cache_max_items": cfg.CacheMaxItems,
	}).Info("Lite stack ready")

	return stack, nil
}

// Close releases the database.
func (s *LiteStack) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
