package branch

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/session"
)

func TestReorder_WithinBranch(t *testing.T) {
	tests := []struct {
		name  string
		item  string
		index int
		want  []string
	}{
		{name: "below last moves to end", item: "A", index: 3, want: []string{"B", "C", "A"}},
		{name: "above first moves to front", item: "C", index: 0, want: []string{"C", "A", "B"}},
		{name: "index past end is clamped", item: "B", index: 10, want: []string{"A", "C", "B"}},
		{name: "missing item is a no-op", item: "Z", index: 0, want: []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newSession(t, leaves("A", "B", "C"))
			root := Mount(sess, tree.RootBranch, Options{})

			sess.Dispatch(drop(tt.item, tree.RootBranch, tree.RootBranch, tt.index))

			assert.Equal(t, tt.want, tree.IDs(root.Items()))
			assert.Equal(t, 0, sess.PendingOperations())
		})
	}
}

func TestCrossBranchMove_Optimistic(t *testing.T) {
	sess := newSession(t, []tree.NodeData{
		{ID: "A", IsFolder: true, Children: leaves("A1")},
		{ID: "B"},
		{ID: "C"},
	})
	rec := record(sess)
	root := Mount(sess, tree.RootBranch, Options{})
	a := Mount(sess, tree.Branch("A"), Options{})

	sess.Dispatch(drop("B", tree.RootBranch, tree.Branch("A"), 0))

	assert.Equal(t, []string{"A", "C"}, tree.IDs(root.Items()))
	assert.Equal(t, []string{"B", "A1"}, tree.IDs(a.Items()))
	assert.Equal(t, []event.ItemAdded{{BranchID: tree.Branch("A"), ItemID: "B"}}, ofType[event.ItemAdded](rec))
}

func TestCrossBranchMove_SourceMissingStillHonoredByTarget(t *testing.T) {
	sess := newSession(t, []tree.NodeData{{ID: "A", IsFolder: true}, {ID: "B"}})
	root := Mount(sess, tree.RootBranch, Options{})
	a := Mount(sess, tree.Branch("A"), Options{})

	// the payload names a source that does not hold the item
	sess.Dispatch(drop("ghost", tree.Branch("elsewhere"), tree.Branch("A"), 0))

	assert.Equal(t, []string{"A", "B"}, tree.IDs(root.Items()))
	assert.Equal(t, []string{"ghost"}, tree.IDs(a.Items()))
}

func TestReconcileMove_Success(t *testing.T) {
	sess := newSession(t, []tree.NodeData{
		{ID: "F", IsFolder: true, Children: leaves("X", "Y")},
		{ID: "Z"},
	})
	m := newMover()
	handlers := Handlers{MoveItem: m.call}
	root := Mount(sess, tree.RootBranch, Options{Handlers: handlers})
	f := Mount(sess, tree.Branch("F"), Options{Handlers: handlers})

	sess.Dispatch(drop("Z", tree.RootBranch, tree.Branch("F"), 2))
	assert.Equal(t, []string{"X", "Y", "Z"}, tree.IDs(f.Items()))
	assert.Equal(t, []string{"F"}, tree.IDs(root.Items()))

	p := m.next(t)
	assert.Equal(t, tree.MoveArgs{
		ItemID:         "Z",
		SourceBranchID: tree.RootBranch,
		TargetBranchID: tree.Branch("F"),
		TargetIndex:    2,
	}, p.args)

	// the store answers with its own order
	p.succeed(tree.MoveResult{
		SourceBranchItems: []tree.Node{{ID: "F", IsFolder: true}},
		TargetBranchItems: nodes("Z", "X", "Y"),
	})
	sess.Wait()

	assert.Equal(t, []string{"Z", "X", "Y"}, tree.IDs(f.Items()))
	assert.Equal(t, []string{"F"}, tree.IDs(root.Items()))
	assert.Equal(t, 0, sess.PendingOperations())
	m.none(t)
}

func TestReconcileMove_FailureRestoresSnapshots(t *testing.T) {
	sess := newSession(t, []tree.NodeData{
		{ID: "F", IsFolder: true, Children: leaves("X", "Y")},
		{ID: "Z"},
	})
	rec := record(sess)
	m := newMover()
	handlers := Handlers{MoveItem: m.call}
	root := Mount(sess, tree.RootBranch, Options{Handlers: handlers})
	f := Mount(sess, tree.Branch("F"), Options{Handlers: handlers})

	sess.Dispatch(drop("Z", tree.RootBranch, tree.Branch("F"), 5))
	assert.Equal(t, []string{"X", "Y", "Z"}, tree.IDs(f.Items()))

	m.next(t).fail(errors.New("store unavailable"))
	sess.Wait()

	assert.Equal(t, []string{"X", "Y"}, tree.IDs(f.Items()))
	assert.Equal(t, []string{"F", "Z"}, tree.IDs(root.Items()))

	reconciles := ofType[event.BranchReconcile](rec)
	require.Len(t, reconciles, 1)
	assert.Equal(t, tree.RootBranch, reconciles[0].BranchID)
}

func TestReconcileMove_TimeoutRollsBack(t *testing.T) {
	sess, err := session.New(session.Config{
		Seed:           []tree.NodeData{{ID: "F", IsFolder: true, Children: leaves("X")}, {ID: "Z"}},
		ConfirmTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer sess.Close()

	m := newMover()
	handlers := Handlers{MoveItem: m.call}
	root := Mount(sess, tree.RootBranch, Options{Handlers: handlers})
	f := Mount(sess, tree.Branch("F"), Options{Handlers: handlers})

	sess.Dispatch(drop("Z", tree.RootBranch, tree.Branch("F"), 0))
	m.next(t) // never answered
	sess.Wait()

	assert.Equal(t, []string{"X"}, tree.IDs(f.Items()))
	assert.Equal(t, []string{"F", "Z"}, tree.IDs(root.Items()))
}

func TestCrossBranchMove_SubscriptionOrderIndependent(t *testing.T) {
	seed := []tree.NodeData{
		{ID: "A", IsFolder: true, Children: leaves("a1", "a2")},
		{ID: "B", IsFolder: true, Children: leaves("b1")},
	}

	orders := map[string][]tree.BranchID{
		"source first": {tree.Branch("A"), tree.Branch("B")},
		"target first": {tree.Branch("B"), tree.Branch("A")},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			sess := newSession(t, seed)
			m := newMover()
			handlers := Handlers{MoveItem: m.call}

			mounted := make(map[tree.BranchID]*Branch)
			for _, id := range order {
				mounted[id] = Mount(sess, id, Options{Handlers: handlers})
			}

			sess.Dispatch(drop("a1", tree.Branch("A"), tree.Branch("B"), 1))

			a, b := mounted[tree.Branch("A")], mounted[tree.Branch("B")]
			assert.Equal(t, []string{"a2"}, tree.IDs(a.Items()))
			assert.Equal(t, []string{"b1", "a1"}, tree.IDs(b.Items()))

			m.next(t).succeed(tree.MoveResult{
				SourceBranchItems: nodes("a2"),
				TargetBranchItems: nodes("b1", "a1"),
			})
			sess.Wait()

			assert.Equal(t, []string{"a2"}, tree.IDs(a.Items()))
			assert.Equal(t, []string{"b1", "a1"}, tree.IDs(b.Items()))
		})
	}
}

func TestPendingDrop_ConsumedOnMount(t *testing.T) {
	sess := newSession(t, []tree.NodeData{{ID: "A", IsFolder: true}, {ID: "B"}})
	rec := record(sess)
	m := newMover()
	handlers := Handlers{MoveItem: m.call}
	root := Mount(sess, tree.RootBranch, Options{Handlers: handlers})

	sess.Dispatch(drop("B", tree.RootBranch, tree.Branch("A"), 0))

	assert.Equal(t, []string{"A"}, tree.IDs(root.Items()))
	assert.True(t, sess.ItemHasChildren("A"))
	// nothing to confirm until the target exists
	m.none(t)

	a := Mount(sess, tree.Branch("A"), Options{Handlers: handlers})
	assert.Equal(t, []string{"B"}, tree.IDs(a.Items()))
	assert.Contains(t, ofType[event.ItemAdded](rec), event.ItemAdded{BranchID: tree.Branch("A"), ItemID: "B"})

	p := m.next(t)
	assert.Equal(t, tree.MoveArgs{ItemID: "B", SourceBranchID: tree.RootBranch, TargetBranchID: tree.Branch("A")}, p.args)
	p.succeed(tree.MoveResult{SourceBranchItems: []tree.Node{{ID: "A", IsFolder: true}}, TargetBranchItems: nodes("B")})
	sess.Wait()

	assert.Equal(t, []string{"B"}, tree.IDs(a.Items()))
	assert.Equal(t, 0, sess.PendingOperations())
}

func TestPendingDrop_FailureRollsBackSource(t *testing.T) {
	sess := newSession(t, []tree.NodeData{{ID: "A", IsFolder: true}, {ID: "B"}})
	m := newMover()
	handlers := Handlers{MoveItem: m.call}
	root := Mount(sess, tree.RootBranch, Options{Handlers: handlers})

	sess.Dispatch(drop("B", tree.RootBranch, tree.Branch("A"), 0))
	a := Mount(sess, tree.Branch("A"), Options{Handlers: handlers})

	m.next(t).fail(errors.New("rejected"))
	sess.Wait()

	assert.Empty(t, a.Items())
	assert.Equal(t, []string{"A", "B"}, tree.IDs(root.Items()))
}

func TestPendingDrop_SkipsItemsAlreadyPresent(t *testing.T) {
	sess := newSession(t, []tree.NodeData{{ID: "A", IsFolder: true}, {ID: "B"}})
	m := newMover()
	Mount(sess, tree.RootBranch, Options{})

	sess.Dispatch(drop("B", tree.RootBranch, tree.Branch("A"), 0))
	a := Mount(sess, tree.Branch("A"), Options{InitialChildren: nodes("B"), Handlers: Handlers{MoveItem: m.call}})

	assert.Equal(t, []string{"B"}, tree.IDs(a.Items()))
	m.none(t)
	assert.Equal(t, 0, sess.PendingOperations())
}

func TestBranchChildrenChanged(t *testing.T) {
	sess := newSession(t, []tree.NodeData{
		{ID: "A", IsFolder: true, Children: leaves("a1")},
		{ID: "B", IsFolder: true},
		{ID: "C"},
	})
	rec := record(sess)
	root := Mount(sess, tree.RootBranch, Options{})
	Mount(sess, tree.Branch("A"), Options{})
	Mount(sess, tree.Branch("B"), Options{})

	sess.Dispatch(drop("a1", tree.Branch("A"), tree.Branch("B"), 0))

	assert.Equal(t, []event.BranchChildrenChanged{
		{BranchID: tree.Branch("A"), HasChildren: false},
		{BranchID: tree.Branch("B"), HasChildren: true},
	}, ofType[event.BranchChildrenChanged](rec))
	assert.False(t, sess.ItemHasChildren("A"))
	assert.True(t, sess.ItemHasChildren("B"))

	// the root never reports
	sess.Dispatch(drop("C", tree.RootBranch, tree.Branch("B"), 0))
	sess.Dispatch(drop("A", tree.RootBranch, tree.Branch("B"), 0))
	sess.Dispatch(drop("nothing", tree.Branch("x"), tree.RootBranch, 0))
	for _, e := range ofType[event.BranchChildrenChanged](rec) {
		assert.NotEqual(t, tree.RootBranch, e.BranchID)
	}
	assert.Equal(t, []string{"nothing", "B"}, tree.IDs(root.Items()))
}

func TestOverlappingMoves_SerializedAndRebased(t *testing.T) {
	sess := newSession(t, []tree.NodeData{
		{ID: "F", IsFolder: true, Children: leaves("x")},
		{ID: "P"},
		{ID: "Q"},
	})
	m := newMover()
	handlers := Handlers{MoveItem: m.call}
	root := Mount(sess, tree.RootBranch, Options{Handlers: handlers})
	f := Mount(sess, tree.Branch("F"), Options{Handlers: handlers})

	sess.Dispatch(drop("P", tree.RootBranch, tree.Branch("F"), 1))
	sess.Dispatch(drop("Q", tree.RootBranch, tree.Branch("F"), 2))
	assert.Equal(t, []string{"x", "P", "Q"}, tree.IDs(f.Items()))
	assert.Equal(t, []string{"F"}, tree.IDs(root.Items()))

	first := m.next(t)
	assert.Equal(t, "P", first.args.ItemID)
	// the second confirmation waits for the first
	m.none(t)

	first.fail(errors.New("conflict"))
	second := m.next(t)
	assert.Equal(t, "Q", second.args.ItemID)

	// only P snapped back; Q is still shown optimistically
	assert.Equal(t, []string{"x", "Q"}, tree.IDs(f.Items()))
	assert.Equal(t, []string{"F", "P"}, tree.IDs(root.Items()))

	second.succeed(tree.MoveResult{
		SourceBranchItems: []tree.Node{{ID: "F", IsFolder: true}, {ID: "P"}},
		TargetBranchItems: nodes("x", "Q"),
	})
	sess.Wait()

	assert.Equal(t, []string{"x", "Q"}, tree.IDs(f.Items()))
	assert.Equal(t, []string{"F", "P"}, tree.IDs(root.Items()))
}

func TestLoadChildren_MergesAheadOfDrops(t *testing.T) {
	sess := newSession(t, []tree.NodeData{{ID: "F", IsFolder: true}, {ID: "Z"}})
	loader := newBlocking[tree.BranchID, []tree.Node]()
	Mount(sess, tree.RootBranch, Options{})
	f := Mount(sess, tree.Branch("F"), Options{Handlers: Handlers{LoadChildren: loader.call}})
	assert.True(t, f.IsLoading())

	p := loader.next(t)
	assert.Equal(t, tree.Branch("F"), p.args)

	// a drop lands while the load is in flight
	sess.Dispatch(drop("Z", tree.RootBranch, tree.Branch("F"), 0))
	assert.Equal(t, []string{"Z"}, tree.IDs(f.Items()))

	p.succeed(nodes("L1", "Z", "L2"))
	sess.Wait()

	assert.Equal(t, []string{"L1", "L2", "Z"}, tree.IDs(f.Items()))
	assert.False(t, f.IsLoading())
}

func TestLoadChildren_FailureKeepsItems(t *testing.T) {
	sess := newSession(t, nil)
	loader := newBlocking[tree.BranchID, []tree.Node]()
	f := Mount(sess, tree.Branch("F"), Options{Handlers: Handlers{LoadChildren: loader.call}})

	loader.next(t).fail(errors.New("offline"))
	sess.Wait()

	assert.Empty(t, f.Items())
	assert.False(t, f.IsLoading())
}

func TestLoadChildren_SkippedWhenItemsExist(t *testing.T) {
	sess := newSession(t, []tree.NodeData{{ID: "F", Children: leaves("f1")}})
	loader := newBlocking[tree.BranchID, []tree.Node]()
	f := Mount(sess, tree.Branch("F"), Options{Handlers: Handlers{LoadChildren: loader.call}})

	loader.none(t)
	assert.False(t, f.IsLoading())
}

func TestLoadChildren_IgnoredWhileMoveInFlight(t *testing.T) {
	sess, logs := newLoggedSession(t, []tree.NodeData{{ID: "F", IsFolder: true}, {ID: "Z"}})
	loader := newBlocking[tree.BranchID, []tree.Node]()
	m := newMover()

	var f *Branch
	sess.Exec(func(st *session.State) {
		MountLocked(st, tree.RootBranch, Options{})
		f = MountLocked(st, tree.Branch("F"), Options{Handlers: Handlers{LoadChildren: loader.call, MoveItem: m.call}})
		st.Dispatch(drop("Z", tree.RootBranch, tree.Branch("F"), 0))
	})

	move := m.next(t)
	loader.next(t).succeed(nodes("L1"))
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "children load ignored")
	}, 2*time.Second, 5*time.Millisecond)

	// still loading until the move settles
	assert.True(t, f.IsLoading())
	assert.Equal(t, []string{"Z"}, tree.IDs(f.Items()))

	move.succeed(tree.MoveResult{SourceBranchItems: []tree.Node{{ID: "F", IsFolder: true}}, TargetBranchItems: nodes("Z")})
	sess.Wait()

	assert.Equal(t, []string{"Z"}, tree.IDs(f.Items()))
	assert.False(t, f.IsLoading())
}

func TestReorder_EveryItemAndIndex(t *testing.T) {
	for n := 3; n <= 5; n++ {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('A' + i))
		}

		for from, item := range ids {
			for index := 0; index <= n; index++ {
				t.Run(fmt.Sprintf("%d items/%s to %d", n, item, index), func(t *testing.T) {
					sess := newSession(t, leaves(ids...))
					root := Mount(sess, tree.RootBranch, Options{})

					sess.Dispatch(drop(item, tree.RootBranch, tree.RootBranch, index))

					got := tree.IDs(root.Items())
					require.Len(t, got, n)
					assert.ElementsMatch(t, ids, got)

					want := index
					if index > from {
						want--
					}
					assert.Equal(t, item, got[min(want, n-1)])
				})
			}
		}
	}
}

func TestCrossBranchMove_PreservesNode(t *testing.T) {
	moved := tree.Node{ID: "F", IsFolder: true, IsOpen: true}

	t.Run("mounted target", func(t *testing.T) {
		sess := newSession(t, []tree.NodeData{
			{ID: "F", IsFolder: true, IsOpen: true, Children: leaves("f1")},
			{ID: "B", IsFolder: true, Children: leaves("b1")},
		})
		m := newMover()
		handlers := Handlers{MoveItem: m.call}
		root := Mount(sess, tree.RootBranch, Options{Handlers: handlers})
		b := Mount(sess, tree.Branch("B"), Options{Handlers: handlers})

		sess.Dispatch(dropNode(moved, tree.RootBranch, tree.Branch("B"), 1))

		assert.Equal(t, []string{"B"}, tree.IDs(root.Items()))
		assert.Equal(t, []tree.Node{{ID: "b1"}, moved}, b.Items())
		node, ok := sess.Item("F")
		require.True(t, ok)
		assert.Equal(t, moved, node)

		m.next(t).succeed(tree.MoveResult{
			SourceBranchItems: []tree.Node{{ID: "B", IsFolder: true}},
			TargetBranchItems: []tree.Node{{ID: "b1"}, moved},
		})
		sess.Wait()
		assert.Equal(t, []tree.Node{{ID: "b1"}, moved}, b.Items())
	})

	t.Run("target mounts later", func(t *testing.T) {
		sess := newSession(t, []tree.NodeData{
			{ID: "F", IsFolder: true, IsOpen: true},
			{ID: "B", IsFolder: true},
		})
		Mount(sess, tree.RootBranch, Options{})

		sess.Dispatch(dropNode(moved, tree.RootBranch, tree.Branch("B"), 0))
		b := Mount(sess, tree.Branch("B"), Options{})

		assert.Equal(t, []tree.Node{moved}, b.Items())
	})
}

func TestOverlappingMoves_DifferentLanesDoNotDuplicate(t *testing.T) {
	sess := newSession(t, []tree.NodeData{
		{ID: "P", IsFolder: true, Children: leaves("p1")},
		{ID: "X"},
		{ID: "Q", IsFolder: true, Children: leaves("q1")},
	})
	m := newMover()
	handlers := Handlers{MoveItem: m.call}
	root := Mount(sess, tree.RootBranch, Options{Handlers: handlers})
	p := Mount(sess, tree.Branch("P"), Options{Handlers: handlers})
	q := Mount(sess, tree.Branch("Q"), Options{Handlers: handlers})

	// confirmed on Q's lane
	sess.Dispatch(drop("X", tree.RootBranch, tree.Branch("Q"), 0))
	// confirmed on the root lane, concurrently
	sess.Dispatch(drop("p1", tree.Branch("P"), tree.RootBranch, 0))
	assert.Equal(t, []string{"p1", "P", "Q"}, tree.IDs(root.Items()))

	calls := map[string]pendingCall[tree.MoveArgs, tree.MoveResult]{}
	for range 2 {
		c := m.next(t)
		calls[c.args.ItemID] = c
	}
	require.Contains(t, calls, "X")
	require.Contains(t, calls, "p1")

	// the store already applied the p1 move when it answers for X
	calls["X"].succeed(tree.MoveResult{
		SourceBranchItems: []tree.Node{{ID: "p1"}, {ID: "P", IsFolder: true}, {ID: "Q", IsFolder: true}},
		TargetBranchItems: nodes("X", "q1"),
	})
	require.Eventually(t, func() bool { return sess.PendingOperations() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"p1", "P", "Q"}, tree.IDs(root.Items()))
	assert.Equal(t, []string{"X", "q1"}, tree.IDs(q.Items()))
	assert.Empty(t, p.Items())
	branch, ok := sess.FindItemBranch("p1")
	require.True(t, ok)
	assert.Equal(t, tree.RootBranch, branch)

	calls["p1"].succeed(tree.MoveResult{
		SourceBranchItems: nil,
		TargetBranchItems: []tree.Node{{ID: "p1"}, {ID: "P", IsFolder: true}, {ID: "Q", IsFolder: true}},
	})
	sess.Wait()

	assert.Equal(t, []string{"p1", "P", "Q"}, tree.IDs(root.Items()))
	assert.Empty(t, p.Items())
	assert.Equal(t, 0, sess.PendingOperations())
}

func TestInsertAt_ReplayIsStable(t *testing.T) {
	insert := insertAt(tree.Node{ID: "Z"}, 1)

	once := insert(nodes("A", "B"))
	assert.Equal(t, []string{"A", "Z", "B"}, tree.IDs(once))
	assert.Equal(t, tree.IDs(once), tree.IDs(insert(tree.Clone(once))))
	assert.Equal(t, []string{"A", "Z", "B"}, tree.IDs(insert(nodes("Z", "A", "B"))))
}
