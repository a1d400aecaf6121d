package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
)

// ============================================================================
// UNIT TESTS
// ============================================================================

func TestNewTableNames(t *testing.T) {
	tables := NewTableNames("test_")
	assert.Equal(t, "test_tree_nodes", tables.TreeNodes)
	assert.Equal(t, []string{"test_tree_nodes"}, tables.All())
}

func TestParentParam(t *testing.T) {
	assert.Nil(t, parentParam(tree.RootBranch))
	p := parentParam("1.1")
	require.NotNil(t, p)
	assert.Equal(t, "1.1", *p)

	assert.Equal(t, tree.RootBranch, branchOf(nil))
	assert.Equal(t, tree.BranchID("1.1"), branchOf(p))
}

// ============================================================================
// INTEGRATION TESTS - need TEST_DATABASE_URL
// ============================================================================

func newIntegrationRepo(t *testing.T) (*PostgresTreeRepository, context.Context) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := CreateConnectionPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tables := NewTableNames("it_")
	require.NoError(t, EnsureSchema(ctx, pool, tables))

	repo := NewTreeRepository(&RepositoryConfig{Pool: pool, Tables: tables}).(*PostgresTreeRepository)
	treeID := "it-" + t.Name()
	require.NoError(t, repo.ReplaceTree(ctx, treeID, map[tree.BranchID][]tree.Node{
		tree.RootBranch: {{ID: "1", IsFolder: true}, {ID: "2"}, {ID: "3"}},
		"1":             {{ID: "1.1"}, {ID: "1.2"}},
	}))
	t.Cleanup(func() { _ = repo.ReplaceTree(ctx, treeID, nil) })
	return repo, ctx
}

func branchIDs(t *testing.T, repo *PostgresTreeRepository, ctx context.Context, branch tree.BranchID) []string {
	t.Helper()
	items, err := repo.ListChildren(ctx, "it-"+t.Name(), branch)
	require.NoError(t, err)
	return tree.IDs(items)
}

func TestIntegration_MoveAndDelete(t *testing.T) {
	repo, ctx := newIntegrationRepo(t)
	treeID := "it-" + t.Name()

	require.NoError(t, repo.MoveTo(ctx, treeID, "3", "1", 1))
	assert.Equal(t, []string{"1", "2"}, branchIDs(t, repo, ctx, tree.RootBranch))
	assert.Equal(t, []string{"1.1", "3", "1.2"}, branchIDs(t, repo, ctx, "1"))

	require.NoError(t, repo.MoveTo(ctx, treeID, "2", tree.RootBranch, 0))
	assert.Equal(t, []string{"2", "1"}, branchIDs(t, repo, ctx, tree.RootBranch))

	removed, err := repo.Delete(ctx, treeID, "1")
	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	assert.Equal(t, []string{"2"}, branchIDs(t, repo, ctx, tree.RootBranch))
}

func TestIntegration_InsertConflict(t *testing.T) {
	repo, ctx := newIntegrationRepo(t)
	treeID := "it-" + t.Name()

	err := repo.InsertAt(ctx, treeID, tree.RootBranch, 0, tree.Node{ID: "1.1"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, repo.InsertAt(ctx, treeID, "1", 1, tree.Node{ID: "new"}))
	assert.Equal(t, []string{"1.1", "new", "1.2"}, branchIDs(t, repo, ctx, "1"))
}
