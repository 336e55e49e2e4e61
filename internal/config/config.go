// Package config loads and validates runtime configuration at startup.
//
// Precedence, highest first: command-line flags bound by the CLI,
// environment variables (SWIPE_ prefix, plus DATABASE_URL and REDIS_URL),
// the optional YAML file, defaults. Fail-fast: an invalid configuration
// stops the process before anything connects.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all runtime configuration for the swipe service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	RedisURL  string          `mapstructure:"redisUrl"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds the listener settings of both transports.
type ServerConfig struct {
	HTTPPort        string        `mapstructure:"httpPort"`
	GRPCPort        string        `mapstructure:"grpcPort"` // empty disables gRPC
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// StoreConfig selects and configures the storage adapter.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"databaseUrl"`
	SQLitePath  string `mapstructure:"sqlitePath"`
	MaxConns    int32  `mapstructure:"maxConns"`
	MinConns    int32  `mapstructure:"minConns"`
	// Migrate applies the embedded schema on serve.
	Migrate bool `mapstructure:"migrate"`
}

type MatchingConfig struct {
	ExperienceGap float64 `mapstructure:"experienceGap"`
}

type FeedConfig struct {
	RedFlags []string `mapstructure:"redFlags"`
}

// RetryConfig mirrors resilient.RetryConfig.
type RetryConfig struct {
	MaxRetries  int           `mapstructure:"maxRetries"`
	InitialWait time.Duration `mapstructure:"initialWait"`
	MaxWait     time.Duration `mapstructure:"maxWait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// BreakerConfig mirrors resilient.BreakerConfig.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"maxRequests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MinRequests      uint32        `mapstructure:"minRequests"`
	FailureThreshold float64       `mapstructure:"failureThreshold"`
}

// RateLimitConfig is applied per x-user-id.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requestsPerMinute"`
	Burst             int  `mapstructure:"burst"`
}

type SchedulerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExpiryInterval time.Duration `mapstructure:"expiryInterval"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// setDefaults sets the default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.httpPort", "8083")
	v.SetDefault("server.grpcPort", "9083")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.databaseUrl", "")
	v.SetDefault("store.sqlitePath", "swipe.db")
	v.SetDefault("store.maxConns", 10)
	v.SetDefault("store.minConns", 2)
	v.SetDefault("store.migrate", false)

	v.SetDefault("redisUrl", "")

	v.SetDefault("matching.experienceGap", 5.0)
	v.SetDefault("feed.redFlags", []string{})

	v.SetDefault("retry.maxRetries", 3)
	v.SetDefault("retry.initialWait", 100*time.Millisecond)
	v.SetDefault("retry.maxWait", 2*time.Second)
	v.SetDefault("retry.multiplier", 2.0)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.maxRequests", 3)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.minRequests", 5)
	v.SetDefault("breaker.failureThreshold", 0.6)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 120)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.expiryInterval", 15*time.Minute)

	v.SetDefault("log.json", true)
	v.SetDefault("log.debug", false)
}

// Load reads configuration into a validated Config. v may carry flag
// bindings; file names an explicit YAML file, otherwise swipe-service.yaml
// is looked up in the working directory and skipped when absent.
func Load(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("SWIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the platform-wide names used by every jobmate service
	if err := v.BindEnv("store.databaseUrl", "SWIPE_STORE_DATABASEURL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("bind DATABASE_URL: %w", err)
	}
	if err := v.BindEnv("redisUrl", "SWIPE_REDISURL", "REDIS_URL"); err != nil {
		return nil, fmt.Errorf("bind REDIS_URL: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("swipe-service")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", DriverPostgres)
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlitePath is required for store driver %q", DriverSQLite)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Server.HTTPPort == "" {
		return fmt.Errorf("server.httpPort is required")
	}
	if c.Matching.ExperienceGap <= 0 {
		return fmt.Errorf("matching.experienceGap must be positive, got %v", c.Matching.ExperienceGap)
	}
	if c.Retry.MaxRetries < 0 || c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry: maxRetries must be >= 0 and multiplier >= 1")
	}
	if c.Breaker.Enabled && (c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1) {
		return fmt.Errorf("breaker.failureThreshold must be in (0, 1], got %v", c.Breaker.FailureThreshold)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rateLimit: requestsPerMinute and burst must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.ExpiryInterval < time.Second {
		return fmt.Errorf("scheduler.expiryInterval must be at least 1s, got %s", c.Scheduler.ExpiryInterval)
	}
	return nil
}
