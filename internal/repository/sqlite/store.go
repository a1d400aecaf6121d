// Package sqlite stores trees in a single SQLite file, for running the
// server locally without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"cleantree/internal/domain/repositories"
)

// executor is what *sql.DB and *sql.Tx share.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

func getExecutor(ctx context.Context, db *sql.DB) executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path, prefix string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := ensureSchema(ctx, db, prefix); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, prefix string) error {
	table := tableName(prefix)
	schema := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				tree_id    TEXT    NOT NULL,
				id         TEXT    NOT NULL,
				parent_id  TEXT,
				position   INTEGER NOT NULL,
				is_folder  BOOLEAN NOT NULL DEFAULT 0,
				is_open    BOOLEAN NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (tree_id, id)
			)
		`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_branch_idx ON %s (tree_id, parent_id, position)`, table, table),
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Reset drops the tree table and creates it again empty.
func Reset(ctx context.Context, db *sql.DB, prefix string) error {
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableName(prefix)); err != nil {
		return fmt.Errorf("drop %s: %w", tableName(prefix), err)
	}
	return ensureSchema(ctx, db, prefix)
}

func tableName(prefix string) string { return prefix + "tree_nodes" }

// TransactionManager runs repository calls in one SQLite transaction
type TransactionManager struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *sql.DB, logger *slog.Logger) repositories.TransactionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionManager{db: db, logger: logger}
}

// ExecTx executes fn within a transaction, reusing one already in ctx
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			tm.logger.Error("rollback failed", "error", err)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
