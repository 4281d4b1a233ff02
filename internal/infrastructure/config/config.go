package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Params    ParamsConfig
	Bundles   BundlesConfig
	Restart   RestartConfig
	Spawn     SpawnConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8100"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// GRPCConfig holds the gRPC health endpoint configuration.
type GRPCConfig struct {
	Port    string `envconfig:"GRPC_PORT" default:"8101"`
	Enabled bool   `envconfig:"GRPC_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ParamsConfig locates the persisted system parameter file.
type ParamsConfig struct {
	File  string `envconfig:"PARAMS_FILE" default:"/var/lib/appmgr/params.yaml"`
	Watch bool   `envconfig:"PARAMS_WATCH" default:"true"`
}

// BundlesConfig locates installed bundle manifests.
type BundlesConfig struct {
	Dir string `envconfig:"BUNDLES_DIR" default:"/etc/appmgr/bundles"`
}

// RestartConfig controls resident process restarts.
type RestartConfig struct {
	MaxRestarts     int           `envconfig:"RESTART_MAX" default:"5"`
	InitialInterval time.Duration `envconfig:"RESTART_INITIAL" default:"500ms"`
	MaxInterval     time.Duration `envconfig:"RESTART_MAX_INTERVAL" default:"30s"`
	StableAfter     time.Duration `envconfig:"RESTART_STABLE_AFTER" default:"10m"`
}

// SpawnConfig controls the per-bundle spawn circuit breaker.
type SpawnConfig struct {
	BreakerFailures uint32        `envconfig:"SPAWN_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"SPAWN_BREAKER_COOLDOWN" default:"30s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8100",
			Host: "0.0.0.0",
		},
		GRPC: GRPCConfig{
			Port:    "8101",
			Enabled: true,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Params: ParamsConfig{
			File:  "/var/lib/appmgr/params.yaml",
			Watch: true,
		},
		Bundles: BundlesConfig{
			Dir: "/etc/appmgr/bundles",
		},
		Restart: RestartConfig{
			MaxRestarts:     5,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			StableAfter:     10 * time.Minute,
		},
		Spawn: SpawnConfig{
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validPort(c.Server.Port); err != nil {
		result = multierror.Append(result, fmt.Errorf("PORT: %w", err))
	}
	if c.GRPC.Enabled {
		if err := validPort(c.GRPC.Port); err != nil {
			result = multierror.Append(result, fmt.Errorf("GRPC_PORT: %w", err))
		}
		if c.GRPC.Port == c.Server.Port {
			result = multierror.Append(result, errors.New("GRPC_PORT: must differ from PORT"))
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		result = multierror.Append(result, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.Params.File == "" {
		result = multierror.Append(result, errors.New("PARAMS_FILE: must be set"))
	}
	if c.Restart.MaxRestarts < 0 {
		result = multierror.Append(result, errors.New("RESTART_MAX: must not be negative"))
	}
	if c.Restart.StableAfter < 0 {
		result = multierror.Append(result, errors.New("RESTART_STABLE_AFTER: must not be negative"))
	}
	if c.Restart.InitialInterval <= 0 || c.Restart.MaxInterval < c.Restart.InitialInterval {
		result = multierror.Append(result, errors.New("RESTART_INITIAL must be positive and not exceed RESTART_MAX_INTERVAL"))
	}
	if c.Spawn.BreakerFailures == 0 || c.Spawn.BreakerCooldown <= 0 {
		result = multierror.Append(result, errors.New("SPAWN_BREAKER_FAILURES and SPAWN_BREAKER_COOLDOWN must be positive"))
	}

	return result.ErrorOrNil()
}

func validPort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port %d out of range", n)
	}
	return nil
}
