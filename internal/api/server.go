// Package api exposes the assessment service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/metrics"
	"github.com/imwg-risk-server/internal/middleware"
	"github.com/imwg-risk-server/internal/service"
)

// Version is reported by the API root.
const Version = "1.0.0"

const shutdownTimeout = 30 * time.Second

// Options configures the HTTP server.
type Options struct {
	Server    domain.ServerConfig
	RateLimit domain.RateLimitConfig
	Debug     bool
}

// Server represents the HTTP server
type Server struct {
	options Options
	service *service.AssessmentService
	metrics *metrics.Metrics
	logger  *logrus.Logger
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options, svc *service.AssessmentService, m *metrics.Metrics, logger *logrus.Logger) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(cors.New(corsConfig(opts.Server.AllowedOrigins)))
	router.Use(middleware.Metrics(m))
	if opts.RateLimit.Enabled {
		router.Use(middleware.RateLimit(opts.RateLimit.RequestsPerSecond, opts.RateLimit.Burst))
	}
	router.Use(middleware.RequestTimeout(opts.Server.RequestTimeout))

	server := &Server{
		options: opts,
		service: svc,
		metrics: m,
		logger:  logger,
		router:  router,
	}
	server.setupRoutes()

	return server
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.options.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	if s.options.Server.MetricsEnabled && s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	{
		api.GET("/", s.handleRoot)
		api.GET("/health", s.handleHealth)

		assessments := api.Group("/assessments")
		{
			assessments.POST("/", s.handleCreateAssessment)
			assessments.GET("/", s.handleListAssessments)
			assessments.GET("/:id", s.handleGetAssessment)
			assessments.PUT("/:id", s.handleUpdateAssessment)
			assessments.DELETE("/:id", s.handleDeleteAssessment)
			assessments.POST("/:id/calculate", s.handleCalculate)
			assessments.GET("/:id/history", s.handleHistory)
			assessments.GET("/:id/calculations", s.handleCalculations)
		}
	}
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.CorrelationIDHeader, performedByHeader},
		ExposeHeaders: []string{middleware.CorrelationIDHeader},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}
