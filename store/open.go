// Package store selects and opens the configured engine.TxStore backend.
package store

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	"github.com/warp/gamble-ledger/config"
	"github.com/warp/gamble-ledger/engine"
	memstore "github.com/warp/gamble-ledger/engine/store"
	"github.com/warp/gamble-ledger/store/redis"
	"github.com/warp/gamble-ledger/store/sqlite"
)

// Open returns the store named by cfg.Storage.Driver and a function that
// releases it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.TxStore, func() error, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory store; data is lost on exit")
		return memstore.NewTxMemory(), func() error { return nil }, nil

	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		logger.Info("SQLite store opened", "path", cfg.Storage.SQLitePath)
		return s, s.Close, nil

	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s := redis.New(client, cfg.Redis.Prefix)
		if err := s.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("Redis store connected", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
