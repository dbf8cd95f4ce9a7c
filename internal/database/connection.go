package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/domain"
)

const postgresPingTimeout = 5 * time.Second

// PostgresPool is the pgx pool behind the assessment repository.
type PostgresPool struct {
	*pgxpool.Pool
	logger *logrus.Logger
}

// PoolConfig turns the database settings into pgx pool settings.
// Zero limits leave the pgx defaults in place; the idle floor never exceeds
// the pool size.
func PoolConfig(c domain.DatabaseConfig) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.URL())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres settings for %s:%d: %w", c.Host, c.Port, err)
	}

	if c.MaxOpenConns > 0 {
		cfg.MaxConns = int32(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		cfg.MinConns = int32(min(c.MaxIdleConns, int(cfg.MaxConns)))
	}
	if c.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		cfg.MaxConnIdleTime = c.ConnMaxIdleTime
	}
	return cfg, nil
}

// OpenPostgres opens the pool and checks that the server answers.
func OpenPostgres(ctx context.Context, c domain.DatabaseConfig, logger *logrus.Logger) (*PostgresPool, error) {
	cfg, err := PoolConfig(c)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres at %s:%d is not reachable: %w", c.Host, c.Port, err)
	}

	logger.WithFields(logrus.Fields{
		"database":  c.Database,
		"host":      c.Host,
		"pool_size": cfg.MaxConns,
		"idle_min":  cfg.MinConns,
	}).Info("Connected to PostgreSQL")

	return &PostgresPool{Pool: pool, logger: logger}, nil
}

// Close releases every pooled connection.
func (p *PostgresPool) Close() {
	if p.Pool == nil {
		return
	}
	p.Pool.Close()
	p.logger.Info("PostgreSQL pool closed")
}
