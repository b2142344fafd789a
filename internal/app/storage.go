package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/gomarketplace/internal/config"
	"github.com/utafrali/gomarketplace/internal/persistence"
	"github.com/utafrali/gomarketplace/internal/persistence/memory"
	"github.com/utafrali/gomarketplace/internal/persistence/postgres"
	redisstore "github.com/utafrali/gomarketplace/internal/persistence/redis"
	"github.com/utafrali/gomarketplace/internal/persistence/sqlite"
	"github.com/utafrali/gomarketplace/pkg/database"
)

// openStorage connects the configured backend. The returned func releases it.
// Connection pool metrics are registered on reg.
func openStorage(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (persistence.KV, func() error, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory cart storage; the cart is lost on restart")
		return memory.New(), func() error { return nil }, nil

	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return redisstore.NewKV(rdb, cfg.CartTTLDuration()), rdb.Close, nil

	case config.BackendSQLite:
		kv, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("opened SQLite cart storage", slog.String("path", cfg.SQLitePath))
		return kv, kv.Close, nil

	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, database.DefaultPostgresConfig(cfg.PostgresDSN), logger)
		if err != nil {
			return nil, nil, err
		}
		kv := postgres.NewKV(pool)
		if err := kv.Migrate(ctx, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := database.RegisterPoolMetrics(reg, pool, "cart-service"); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("register pool metrics: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return kv, func() error { pool.Close(); return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
