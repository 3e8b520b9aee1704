// Package config loads server configuration from an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"simplane/internal/logger"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the server.
type Config struct {
	// HTTP server port for the websocket gateway
	HTTPPort int `mapstructure:"http_port"`

	// Path of the simulation worker binary. Empty means "simworker" next to
	// the server executable.
	WorkerBinary string `mapstructure:"worker_binary"`

	// How long a worker may take to exit after its terminal message
	WorkerJoinTimeout time.Duration `mapstructure:"worker_join_timeout"`

	// How long a cancelled worker may take to acknowledge before it is killed
	WorkerStopTimeout time.Duration `mapstructure:"worker_stop_timeout"`

	// Target number of chunks per bulk reply
	ChunkCount int `mapstructure:"chunk_count"`

	// Redis cache for circuit reads. Empty uses an in-process cache.
	RedisURL string        `mapstructure:"redis_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Reported by get_server_status
	Maintenance bool `mapstructure:"maintenance"`

	LogLevel string `mapstructure:"log_level"`

	// OTLP gRPC collector. Empty disables trace export.
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Per-connection command rate. Zero disables limiting.
	CommandRateLimit float64 `mapstructure:"command_rate_limit"`
	CommandRateBurst int     `mapstructure:"command_rate_burst"`

	// YAML file with extra simulation models, passed on to workers
	SimModelsPath string `mapstructure:"sim_models_path"`

	// Simplification tolerance for astrocyte morphology sections, in
	// micrometers. Zero sends sections unsimplified.
	AstrocyteMorphEpsilon float64 `mapstructure:"astrocyte_morph_epsilon"`
}

var envBindings = map[string]string{
	"http_port":           "PORT",
	"worker_binary":       "WORKER_BINARY",
	"worker_join_timeout": "WORKER_JOIN_TIMEOUT",
	"worker_stop_timeout": "WORKER_STOP_TIMEOUT",
	"chunk_count":         "CHUNK_COUNT",
	"redis_url":           "REDIS_URL",
	"cache_ttl":           "CACHE_TTL",
	"maintenance":         "MAINTENANCE",
	"log_level":           "LOG_LEVEL",
	"otel_endpoint":       "OTEL_EXPORTER_OTLP_ENDPOINT",
	"command_rate_limit":  "COMMAND_RATE_LIMIT",
	"command_rate_burst":  "COMMAND_RATE_BURST",
	"sim_models_path":     "SIM_MODELS_PATH",

	"astrocyte_morph_epsilon": "ASTROCYTE_MORPH_EPSILON",
}

// Load reads configuration from path (or ./simplane.yaml when path is empty
// and the file exists), then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 8000)
	v.SetDefault("worker_binary", "")
	v.SetDefault("worker_join_timeout", 10*time.Second)
	v.SetDefault("worker_stop_timeout", 30*time.Second)
	v.SetDefault("chunk_count", 100)
	v.SetDefault("redis_url", "")
	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("maintenance", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("command_rate_limit", 0.0)
	v.SetDefault("command_rate_burst", 20)
	v.SetDefault("sim_models_path", "")
	v.SetDefault("astrocyte_morph_epsilon", 0.1)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("simplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d (env: PORT)", c.HTTPPort)
	}
	if c.WorkerJoinTimeout <= 0 {
		return fmt.Errorf("worker_join_timeout must be positive")
	}
	if c.WorkerStopTimeout <= 0 {
		return fmt.Errorf("worker_stop_timeout must be positive")
	}
	if c.ChunkCount <= 0 {
		return fmt.Errorf("chunk_count must be positive")
	}
	if c.CommandRateLimit < 0 {
		return fmt.Errorf("command_rate_limit must not be negative")
	}
	if c.AstrocyteMorphEpsilon < 0 {
		return fmt.Errorf("astrocyte_morph_epsilon must not be negative")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level (env: LOG_LEVEL): %w", err)
	}
	return nil
}
