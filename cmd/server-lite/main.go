// Package main provides the lightweight HTTP entry point.
// This version requires no external databases - it uses SQLite and an in-memory cache.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imwg-risk-server/internal/api"
	"github.com/imwg-risk-server/internal/app"
	"github.com/imwg-risk-server/internal/config"
	"github.com/imwg-risk-server/internal/domain"
)

func main() {
	cfg := config.LoadLiteConfig()

	stack, err := app.NewLiteStack(cfg)
	if err != nil {
		log.Fatalf("Failed to initialise storage: %v", err)
	}
	defer stack.Close()

	server := api.NewServer(api.Options{
		Server: domain.ServerConfig{
			Host:           "127.0.0.1",
			Port:           cfg.HTTPPort,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			RequestTimeout: 15 * time.Second,
			MetricsEnabled: true,
		},
		RateLimit: domain.RateLimitConfig{
			Enabled:           cfg.RateLimitRPS > 0,
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             max(1, int(cfg.RateLimitRPS*2)),
		},
	}, stack.Service, stack.Metrics, stack.Logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stack.Logger.WithField("data_dir", cfg.DataDir).Info("Starting IMWG risk server (lite)")

	if err := server.Start(ctx); err != nil {
		stack.Logger.WithError(err).Error("Server failed")
		stack.Close()
		os.Exit(1)
	}

	stack.Logger.Info("IMWG risk server (lite) stopped")
}
