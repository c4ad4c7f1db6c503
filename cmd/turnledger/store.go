package main

import (
	"context"
	"fmt"

	"github.com/park285/turnledger/internal/config"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/store/memstore"
	"github.com/park285/turnledger/internal/store/pgstore"
	"github.com/park285/turnledger/internal/store/redisstore"
	"github.com/park285/turnledger/internal/store/sqlitestore"
)

func openStore(ctx context.Context, cfg *config.AppConfig) (ledger.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		s, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return s, nil
	case config.BackendPostgres:
		s, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return s, nil
	case config.BackendSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return s, nil
	case config.BackendMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}
