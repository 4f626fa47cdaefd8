package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flowdhq/flowd/internal/application/catalog"
	"github.com/flowdhq/flowd/internal/application/history"
	"github.com/flowdhq/flowd/internal/application/ledger"
	"github.com/flowdhq/flowd/internal/application/workers"
)

// Server represents the HTTP API server
type Server struct {
	router  *gin.Engine
	server  *http.Server
	catalog *catalog.Service
	ledger  *ledger.Ledger
	history *history.Aggregator
	health  *workers.HealthMonitor
	logger  *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port    int
	Catalog *catalog.Service
	Ledger  *ledger.Ledger
	History *history.Aggregator
	Health  *workers.HealthMonitor
	Logger  *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:  router,
		catalog: cfg.Catalog,
		ledger:  cfg.Ledger,
		history: cfg.History,
		health:  cfg.Health,
		logger:  cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Flow catalog endpoints
		v1.POST("/flows", s.handleSaveFlow)
		v1.GET("/flows", s.handleListFlows)
		v1.GET("/flows/:id", s.handleGetFlow)
		v1.DELETE("/flows/:id", s.handleDeleteFlow)
		v1.GET("/flows/:id/schedule/next", s.handleScheduleNext)

		// Flow run endpoints
		v1.POST("/flow_runs", s.handleCreateFlowRun)
		v1.GET("/flow_runs", s.handleListFlowRuns)
		v1.GET("/flow_runs/:id", s.handleGetFlowRun)
		v1.POST("/flow_runs/:id/set_state", s.handleSetFlowRunState)
		v1.POST("/flow_runs/history", s.handleFlowRunHistory)

		// Task run endpoints
		v1.POST("/task_runs", s.handleCreateTaskRun)
		v1.GET("/task_runs", s.handleListTaskRuns)
		v1.GET("/task_runs/:id", s.handleGetTaskRun)
		v1.POST("/task_runs/:id/set_state", s.handleSetTaskRunState)
		v1.POST("/task_runs/history", s.handleTaskRunHistory)
	}
}

// SetupWebSocket adds the run event stream handler to the server
func (s *Server) SetupWebSocket(handler interface{}) {
	if wsHandler, ok := handler.(interface {
		HandleRunStream(*gin.Context)
	}); ok {
		s.router.GET("/api/v1/flow_runs/:id/ws", wsHandler.HandleRunStream)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()))
	}
}
