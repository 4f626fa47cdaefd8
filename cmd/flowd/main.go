package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowdhq/flowd/internal/application/catalog"
	"github.com/flowdhq/flowd/internal/application/history"
	"github.com/flowdhq/flowd/internal/application/ledger"
	"github.com/flowdhq/flowd/internal/application/workers"
	"github.com/flowdhq/flowd/internal/config"
	eventsmem "github.com/flowdhq/flowd/pkg/adapters/events/memory"
	eventsredis "github.com/flowdhq/flowd/pkg/adapters/events/redis"
	"github.com/flowdhq/flowd/pkg/adapters/metrics/prometheus"
	storagemem "github.com/flowdhq/flowd/pkg/adapters/storage/memory"
	storageredis "github.com/flowdhq/flowd/pkg/adapters/storage/redis"
	"github.com/flowdhq/flowd/pkg/api/grpc"
	"github.com/flowdhq/flowd/pkg/api/http"
	"github.com/flowdhq/flowd/pkg/api/websocket"
	"github.com/flowdhq/flowd/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting flowd",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("storage_backend", cfg.StorageBackend))

	// Initialize storage and event adapters
	var (
		runStore    ports.RunStore
		flowStore   ports.FlowStore
		eventBus    ports.EventBus
		redisClient *goredis.Client
	)

	switch cfg.StorageBackend {
	case "redis":
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		runStore = storageredis.NewRunStore(redisClient, logger)
		flowStore = storageredis.NewFlowStore(redisClient, logger)
		eventBus = eventsredis.NewStreamsEventBus(
			redisClient,
			"flowd-engine",
			fmt.Sprintf("flowd-%d", os.Getpid()),
			logger,
		)

	default:
		runStore = storagemem.NewRunStore()
		flowStore = storagemem.NewFlowStore()
		eventBus = eventsmem.NewInMemoryEventBus()
	}

	metricsCollector := prometheus.NewCollector()

	// Initialize application components
	catalogService := catalog.NewService(flowStore, catalog.NewValidator(), eventBus, logger)
	runLedger := ledger.NewLedger(runStore, nil, eventBus, metricsCollector, logger)
	aggregator := history.NewAggregator(runStore, metricsCollector, logger)

	latePool := workers.NewPool(
		cfg.Late.Workers,
		runLedger,
		metricsCollector,
		logger,
		cfg.Late.HealthCheckInterval,
	)
	if err := latePool.Start(); err != nil {
		logger.Fatal("failed to start late-mark worker pool", zap.Error(err))
	}

	lateScanner := workers.NewScanner(
		runStore,
		latePool,
		metricsCollector,
		logger,
		cfg.Late.ScanInterval,
		cfg.Late.Margin,
	)
	lateScanner.Start()

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:    cfg.HTTPPort,
		Catalog: catalogService,
		Ledger:  runLedger,
		History: aggregator,
		Health:  latePool.Health(),
		Logger:  logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("flowd started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("late_workers", cfg.Late.Workers))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	lateScanner.Stop()
	if err := latePool.Shutdown(shutdownCtx); err != nil {
		logger.Error("late-mark worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}
	if err := runStore.Close(); err != nil {
		logger.Error("run store close error", zap.Error(err))
	}
	if err := flowStore.Close(); err != nil {
		logger.Error("flow store close error", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("flowd shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
