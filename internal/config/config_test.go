package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SWIPE_STORE_DRIVER", "memory")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "8083", cfg.Server.HTTPPort)
	assert.Equal(t, 5.0, cfg.Matching.ExperienceGap)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.ExpiryInterval)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, 0.6, cfg.Breaker.FailureThreshold)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("SWIPE_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_PlatformEnvNames(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/jobmate")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("SWIPE_MATCHING_EXPERIENCEGAP", "3")
	t.Setenv("SWIPE_SCHEDULER_EXPIRYINTERVAL", "90s")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/jobmate", cfg.Store.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, 3.0, cfg.Matching.ExperienceGap)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.ExpiryInterval)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: sqlite
  sqlitePath: /tmp/swipe-test.db
feed:
  redFlags: [unpaid, "commission only"]
rateLimit:
  enabled: false
`), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/swipe-test.db", cfg.Store.SQLitePath)
	assert.Equal(t, []string{"unpaid", "commission only"}, cfg.Feed.RedFlags)
	assert.False(t, cfg.RateLimit.Enabled)

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    ServerConfig{HTTPPort: "8083"},
			Store:     StoreConfig{Driver: DriverMemory},
			Matching:  MatchingConfig{ExperienceGap: 5},
			Retry:     RetryConfig{MaxRetries: 1, Multiplier: 2},
			Breaker:   BreakerConfig{Enabled: true, FailureThreshold: 0.5},
			RateLimit: RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 5},
			Scheduler: SchedulerConfig{Enabled: true, ExpiryInterval: time.Minute},
		}
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite }},
		{"no http port", func(c *Config) { c.Server.HTTPPort = "" }},
		{"zero gap", func(c *Config) { c.Matching.ExperienceGap = 0 }},
		{"shrinking backoff", func(c *Config) { c.Retry.Multiplier = 0.5 }},
		{"threshold above one", func(c *Config) { c.Breaker.FailureThreshold = 1.5 }},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"tiny interval", func(c *Config) { c.Scheduler.ExpiryInterval = time.Millisecond }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
