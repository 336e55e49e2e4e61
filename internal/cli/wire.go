package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobmate/swipe-service/internal/config"
	"jobmate/swipe-service/internal/db"
	"jobmate/swipe-service/internal/events"
	"jobmate/swipe-service/internal/match"
	"jobmate/swipe-service/internal/port"
	"jobmate/swipe-service/internal/store/memory"
	"jobmate/swipe-service/internal/store/postgres"
	"jobmate/swipe-service/internal/store/resilient"
	"jobmate/swipe-service/internal/store/sqlite"
	"jobmate/swipe-service/internal/swipe"
)

// openStore connects the configured adapter and wraps it with retries and
// the circuit breaker.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*resilient.Store, error) {
	var raw port.Store
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		log.Info("connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.Store.DatabaseURL, db.PoolOptions{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Store.Migrate {
			if err := db.Migrate(ctx, pool, log); err != nil {
				pool.Close()
				return nil, err
			}
		}
		raw = postgres.New(pool, log)
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.Store.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		raw = st
	case config.DriverMemory:
		log.Warn("using the in-memory store; nothing survives a restart")
		raw = memory.New()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	return resilient.Wrap(raw,
		resilient.RetryConfig{
			MaxRetries:  cfg.Retry.MaxRetries,
			InitialWait: cfg.Retry.InitialWait,
			MaxWait:     cfg.Retry.MaxWait,
			Multiplier:  cfg.Retry.Multiplier,
		},
		resilient.BreakerConfig{
			Enabled:          cfg.Breaker.Enabled,
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			MinRequests:      cfg.Breaker.MinRequests,
			FailureThreshold: cfg.Breaker.FailureThreshold,
		},
		log,
	), nil
}

// openEvents returns the Redis publisher and its client when a Redis URL is
// configured, or a no-op publisher and a nil client otherwise.
func openEvents(ctx context.Context, cfg *config.Config, log *zap.Logger) (events.Publisher, *redis.Client, error) {
	if cfg.RedisURL == "" {
		log.Info("no Redis URL configured; events are discarded")
		return events.Nop{}, nil, nil
	}
	log.Info("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return events.NewRedis(rdb), rdb, nil
}

func newService(st port.Store, pub events.Publisher, cfg *config.Config, log *zap.Logger) *swipe.Service {
	return swipe.NewService(st, match.New(cfg.Matching.ExperienceGap), pub, log, swipe.Options{
		RedFlags: cfg.Feed.RedFlags,
	})
}
