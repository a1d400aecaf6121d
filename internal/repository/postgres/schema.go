package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tree tables when they do not exist yet.
// parent_id is NULL for items of the root branch.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				tree_id    TEXT        NOT NULL,
				id         TEXT        NOT NULL,
				parent_id  TEXT,
				position   INTEGER     NOT NULL,
				is_folder  BOOLEAN     NOT NULL DEFAULT FALSE,
				is_open    BOOLEAN     NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (tree_id, id)
			)
		`, tables.TreeNodes),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_branch_idx
			ON %s (tree_id, parent_id, position)
		`, tables.TreeNodes, tables.TreeNodes),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// DropTables drops every tree table. Destructive; callers guard against prod.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, table := range tables.All() {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}
