package reducer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/treeops"
)

func sample() []tree.Item {
	return []tree.Item{
		{ID: "A", IsFolder: true, Children: []tree.Item{
			{ID: "A1"},
			{ID: "A2"},
		}},
		{ID: "B"},
		{ID: "C"},
		{ID: "D", IsDraft: true},
	}
}

func ids(items []tree.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func allIDs(items []tree.Item) map[string]bool {
	out := make(map[string]bool)
	treeops.Walk(items, func(item tree.Item, _ int) bool {
		out[item.ID] = true
		return true
	})
	return out
}

func TestReduce_MissingItemReturnsInput(t *testing.T) {
	data := sample()
	out := Reduce(data, Toggle{ItemID: "missing"})
	assert.Equal(t, data, out)
}

func TestReduce_ToggleExpandCollapse(t *testing.T) {
	data := sample()

	opened := Reduce(data, Toggle{ItemID: "A"})
	assert.True(t, opened[0].IsOpen)
	assert.False(t, data[0].IsOpen, "input must not change")

	// expand on an open item is a no-op
	assert.Equal(t, opened, Reduce(opened, Expand{ItemID: "A"}))

	closed := Reduce(opened, Collapse{ItemID: "A"})
	assert.False(t, closed[0].IsOpen)
	assert.Equal(t, closed, Reduce(closed, Collapse{ItemID: "A"}))

	// leaves are never toggled
	assert.Equal(t, data, Reduce(data, Toggle{ItemID: "B"}))
}

func TestReduce_ToggleKeepsItemSet(t *testing.T) {
	data := sample()
	want := allIDs(data)

	actions := []Action{
		Toggle{ItemID: "A"}, Expand{ItemID: "A"}, Collapse{ItemID: "A"},
		Toggle{ItemID: "B"}, Collapse{ItemID: "A1"}, Toggle{ItemID: "A"},
	}
	for _, action := range actions {
		data = Reduce(data, action)
		assert.Equal(t, want, allIDs(data))
	}
}

func TestReduce_ApplyInstruction(t *testing.T) {
	tests := []struct {
		name   string
		action ApplyInstruction
		check  func(t *testing.T, out []tree.Item)
	}{
		{
			name:   "reorder before",
			action: ApplyInstruction{ItemID: "C", TargetID: "A", Instruction: tree.DropOperation{Operation: tree.ReorderBefore}},
			check: func(t *testing.T, out []tree.Item) {
				assert.Equal(t, []string{"C", "A", "B", "D"}, ids(out))
			},
		},
		{
			name:   "reorder after nested",
			action: ApplyInstruction{ItemID: "B", TargetID: "A1", Instruction: tree.DropOperation{Operation: tree.ReorderAfter}},
			check: func(t *testing.T, out []tree.Item) {
				assert.Equal(t, []string{"A", "C", "D"}, ids(out))
				assert.Equal(t, []string{"A1", "B", "A2"}, ids(out[0].Children))
			},
		},
		{
			name:   "combine makes first child and opens",
			action: ApplyInstruction{ItemID: "C", TargetID: "A", Instruction: tree.DropOperation{Operation: tree.Combine}},
			check: func(t *testing.T, out []tree.Item) {
				assert.Equal(t, []string{"A", "B", "D"}, ids(out))
				assert.True(t, out[0].IsOpen)
				assert.Equal(t, []string{"C", "A1", "A2"}, ids(out[0].Children))
			},
		},
		{
			name:   "blocked is ignored",
			action: ApplyInstruction{ItemID: "C", TargetID: "A", Instruction: tree.DropOperation{Operation: tree.Combine, Blocked: true}},
			check: func(t *testing.T, out []tree.Item) {
				assert.Equal(t, sample(), out)
			},
		},
		{
			name:   "onto itself is ignored",
			action: ApplyInstruction{ItemID: "A", TargetID: "A", Instruction: tree.DropOperation{Operation: tree.Combine}},
			check: func(t *testing.T, out []tree.Item) {
				assert.Equal(t, sample(), out)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Reduce(sample(), tt.action))
		})
	}
}

func TestReduce_ModalMove(t *testing.T) {
	t.Run("into a parent at an index", func(t *testing.T) {
		out := Reduce(sample(), ModalMove{ItemID: "C", TargetID: "A", Index: 1})
		assert.Equal(t, []string{"A1", "C", "A2"}, ids(out[0].Children))
	})

	t.Run("index past the end appends", func(t *testing.T) {
		out := Reduce(sample(), ModalMove{ItemID: "C", TargetID: "A", Index: 10})
		assert.Equal(t, []string{"A1", "A2", "C"}, ids(out[0].Children))
	})

	t.Run("into an empty parent", func(t *testing.T) {
		out := Reduce(sample(), ModalMove{ItemID: "C", TargetID: "B", Index: 0})
		require.Len(t, out[1].Children, 1)
		assert.Equal(t, "C", out[1].Children[0].ID)
	})

	t.Run("to the top level", func(t *testing.T) {
		out := Reduce(sample(), ModalMove{ItemID: "A1", TargetID: "", Index: 0})
		assert.Equal(t, []string{"A1", "A", "B", "C", "D"}, ids(out))
	})

	t.Run("missing parent panics", func(t *testing.T) {
		assert.PanicsWithError(t, (&domain.InvariantError{Message: `parent "nope" not found in tree`}).Error(), func() {
			Reduce(sample(), ModalMove{ItemID: "C", TargetID: "nope", Index: 0})
		})
	})
}

func TestReduceState_RecordsLastAction(t *testing.T) {
	state := State{Data: sample()}
	action := Toggle{ItemID: "A"}

	next := ReduceState(state, action)

	assert.Equal(t, action, next.LastAction)
	assert.True(t, next.Data[0].IsOpen)
}

func TestMoveTargets(t *testing.T) {
	targets := MoveTargets(sample(), "A")

	got := make(map[string]bool)
	for _, item := range targets {
		got[item.ID] = true
	}
	// A and its children are excluded, and so is the draft D
	assert.Equal(t, map[string]bool{"B": true, "C": true}, got)
}
