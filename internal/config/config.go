package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the flowd engine
type Config struct {
	// Server configuration
	HTTPPort int    `env:"FLOWD_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"FLOWD_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"FLOWD_LOG_LEVEL" envDefault:"info"`

	// Storage backend: "memory" or "redis"
	StorageBackend string `env:"FLOWD_STORAGE_BACKEND" envDefault:"memory"`

	// Redis configuration
	Redis RedisConfig

	// Late-run marking configuration
	Late LateConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"FLOWD_REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"FLOWD_REDIS_PASS"`
	DB       int    `env:"FLOWD_REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"FLOWD_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"FLOWD_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"FLOWD_REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"FLOWD_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"FLOWD_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"FLOWD_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LateConfig holds the late-run scanner and pool configuration
type LateConfig struct {
	// Margin is how far past its scheduled time a run may be before it
	// counts as late.
	Margin       time.Duration `env:"FLOWD_LATE_MARGIN" envDefault:"15s"`
	ScanInterval time.Duration `env:"FLOWD_LATE_SCAN_INTERVAL" envDefault:"5s"`
	Workers      int           `env:"FLOWD_LATE_WORKERS" envDefault:"4"`

	HealthCheckInterval time.Duration `env:"FLOWD_LATE_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"FLOWD_TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.StorageBackend != "memory" && c.StorageBackend != "redis" {
		return fmt.Errorf("invalid storage backend: %s (must be memory or redis)", c.StorageBackend)
	}
	if c.StorageBackend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Late.Workers < 1 {
		return fmt.Errorf("late worker count must be at least 1")
	}
	if c.Late.ScanInterval < time.Second {
		return fmt.Errorf("late scan interval must be at least 1s")
	}
	if c.Late.Margin < 0 {
		return fmt.Errorf("late margin must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
