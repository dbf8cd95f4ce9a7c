// Package main provides the MCP entry point. It serves the risk tools over
// stdio and stores assessments in a local SQLite database.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/imwg-risk-server/internal/app"
	"github.com/imwg-risk-server/internal/config"
	"github.com/imwg-risk-server/internal/mcp"
)

func main() {
	// Load lightweight configuration
	cfg := config.LoadLiteConfig()

	stack, err := app.NewLiteStack(cfg)
	if err != nil {
		log.Fatalf("Failed to initialise storage: %v", err)
	}
	defer stack.Close()

	server := mcp.NewServer(stack.Service, stack.Metrics, stack.Logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		stack.Logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start MCP server
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		stack.Logger.WithError(err).Error("MCP server failed")
		stack.Close()
		os.Exit(1)
	}

	stack.Logger.Info("IMWG risk MCP server stopped")
}
