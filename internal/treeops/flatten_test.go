package treeops

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/config"
	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
)

func seedData() []tree.NodeData {
	return []tree.NodeData{
		{ID: "A", IsOpen: true, Children: []tree.NodeData{
			{ID: "A1"},
			{ID: "A2", IsFolder: true},
		}},
		{ID: "B"},
	}
}

func TestFlatten(t *testing.T) {
	flat, err := Flatten(seedData())
	require.NoError(t, err)

	assert.Equal(t, []tree.Node{
		{ID: "A", IsFolder: true, IsOpen: true},
		{ID: "B"},
	}, flat.Branches[tree.RootBranch])
	assert.Equal(t, []tree.Node{
		{ID: "A1"},
		{ID: "A2", IsFolder: true},
	}, flat.Branches[tree.Branch("A")])

	// empty folders get no branch entry
	_, ok := flat.Branches[tree.Branch("A2")]
	assert.False(t, ok)

	assert.True(t, flat.OpenState["A"])
	assert.False(t, flat.OpenState["B"])
}

func TestFlatten_EmptySeedHasRoot(t *testing.T) {
	flat, err := Flatten(nil)
	require.NoError(t, err)

	root, ok := flat.Branches[tree.RootBranch]
	require.True(t, ok)
	assert.Empty(t, root)
}

func TestFlatten_RejectsBadSeeds(t *testing.T) {
	deep := []tree.NodeData{{ID: "n0"}}
	cur := &deep[0]
	for i := 1; i <= config.MaxSeedDepth+1; i++ {
		cur.Children = []tree.NodeData{{ID: "n" + strconv.Itoa(i)}}
		cur = &cur.Children[0]
	}

	tests := []struct {
		name string
		seed []tree.NodeData
	}{
		{name: "duplicate id", seed: []tree.NodeData{{ID: "A"}, {ID: "B", Children: []tree.NodeData{{ID: "A"}}}}},
		{name: "empty id", seed: []tree.NodeData{{ID: ""}}},
		{name: "too deep", seed: deep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Flatten(tt.seed)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}

func TestNest_InvertsFlatten(t *testing.T) {
	flat, err := Flatten(seedData())
	require.NoError(t, err)

	nested := Nest(flat.Branches)

	want := []tree.NodeData{
		{ID: "A", IsFolder: true, IsOpen: true, Children: []tree.NodeData{
			{ID: "A1"},
			{ID: "A2", IsFolder: true},
		}},
		{ID: "B"},
	}
	assert.Equal(t, want, nested)
}

func TestNest_IgnoresCycles(t *testing.T) {
	branches := map[tree.BranchID][]tree.Node{
		tree.RootBranch:  {{ID: "A"}},
		tree.Branch("A"): {{ID: "B"}},
		tree.Branch("B"): {{ID: "A"}},
	}

	nested := Nest(branches)

	require.Len(t, nested, 1)
	require.Len(t, nested[0].Children, 1)
	require.Len(t, nested[0].Children[0].Children, 1)
	// the inner A stops the walk instead of recursing forever
	assert.Nil(t, nested[0].Children[0].Children[0].Children)
}

func TestToItems(t *testing.T) {
	items := ToItems(seedData())

	require.Len(t, items, 2)
	assert.True(t, items[0].IsFolder)
	assert.Equal(t, "A2", items[0].Children[1].ID)
	assert.Empty(t, items[1].Children)
}
