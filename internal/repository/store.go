// Package repository opens the backing store named by the configuration.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"cleantree/internal/config"
	"cleantree/internal/domain/repositories"
	"cleantree/internal/repository/memory"
	"cleantree/internal/repository/postgres"
	"cleantree/internal/repository/sqlite"
)

// Store is an opened backing store.
type Store struct {
	Trees     repositories.TreeRepository
	TxManager repositories.TransactionManager
	// Reset drops and recreates the schema. Nil for the memory store.
	Reset func(ctx context.Context) error
	close func() error
}

// Close releases the store's connections.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects the store selected by cfg.Store and makes sure its schema
// exists.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		tables := postgres.NewTableNames(cfg.TablePrefix)
		if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database connected",
			"max_conns", pool.Config().MaxConns,
			"min_conns", pool.Config().MinConns,
			"table", tables.TreeNodes,
		)
		repoConfig := &postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}
		return &Store{
			Trees:     postgres.NewTreeRepository(repoConfig),
			TxManager: postgres.NewTransactionManager(pool, logger),
			Reset: func(ctx context.Context) error {
				if err := postgres.DropTables(ctx, pool, tables); err != nil {
					return err
				}
				return postgres.EnsureSchema(ctx, pool, tables)
			},
			close: func() error { pool.Close(); return nil },
		}, nil

	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.TablePrefix)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", "path", cfg.SQLitePath)
		return &Store{
			Trees:     sqlite.NewTreeRepository(db, cfg.TablePrefix),
			TxManager: sqlite.NewTransactionManager(db, logger),
			Reset:     func(ctx context.Context) error { return sqlite.Reset(ctx, db, cfg.TablePrefix) },
			close:     db.Close,
		}, nil

	case config.StoreMemory:
		store := memory.NewStore()
		logger.Info("memory store created; data is lost on restart")
		return &Store{
			Trees:     memory.NewTreeRepository(store),
			TxManager: memory.NewTransactionManager(store),
		}, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
