package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/config"
	"cleantree/internal/domain/models/tree"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOpen_Memory(t *testing.T) {
	store, err := Open(context.Background(), &config.Config{Store: config.StoreMemory}, quiet)
	require.NoError(t, err)
	defer store.Close()
	assert.Nil(t, store.Reset)

	ids, err := store.Trees.Trees(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOpen_SQLiteReset(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Store:       config.StoreSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "tree.db"),
		TablePrefix: "test_",
	}
	store, err := Open(ctx, cfg, quiet)
	require.NoError(t, err)
	defer store.Close()

	err = store.TxManager.ExecTx(ctx, func(ctx context.Context) error {
		return store.Trees.ReplaceTree(ctx, "demo", map[tree.BranchID][]tree.Node{
			tree.RootBranch: {{ID: "a"}},
		})
	})
	require.NoError(t, err)
	ids, err := store.Trees.Trees(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, ids)

	require.NoError(t, store.Reset(ctx))
	ids, err = store.Trees.Trees(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: "etcd"}, quiet)
	assert.Error(t, err)
}
