package session

import (
	"context"
	"log/slog"
	"slices"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/treeops"
)

// Accessor is how the session reads a mounted branch.
type Accessor interface {
	Items() []tree.Node
	Contains(itemID string) bool
}

// Pending is a queued drop together with the operation it belongs to.
type Pending struct {
	tree.PendingItem
	Op *Operation
}

// State is everything a session guards. Its methods assume the session is
// held: they are called from Session.Exec callbacks and from bus listeners.
type State struct {
	session *Session
	logger  *slog.Logger
	bus     *event.Bus

	mounted    map[tree.BranchID]Accessor
	mountOrder []tree.BranchID
	saved      map[tree.BranchID][]tree.Node
	seed       map[tree.BranchID][]tree.Node
	openSeed   map[string]bool
	pending    map[tree.BranchID][]Pending

	ops     []*Operation
	nextSeq uint64
	lanes   map[tree.BranchID]*lane
	dropOp  *Operation
}

func newState(s *Session, seed *treeops.Flattened) *State {
	st := &State{
		session:  s,
		logger:   s.logger,
		bus:      event.NewBus(),
		mounted:  make(map[tree.BranchID]Accessor),
		saved:    make(map[tree.BranchID][]tree.Node),
		seed:     make(map[tree.BranchID][]tree.Node),
		openSeed: make(map[string]bool),
		pending:  make(map[tree.BranchID][]Pending),
		lanes:    make(map[tree.BranchID]*lane),
	}
	if seed != nil {
		for id, items := range seed.Branches {
			st.seed[id] = tree.Clone(items)
		}
		for id, open := range seed.OpenState {
			st.openSeed[id] = open
		}
	}
	return st
}

// Context is cancelled when the session closes.
func (st *State) Context() context.Context { return st.session.ctx }

// Logger returns the session logger.
func (st *State) Logger() *slog.Logger { return st.logger }

// Session returns the owning session, for scheduling work that must re-enter
// it later (timers, callbacks).
func (st *State) Session() *Session { return st.session }

// Subscribe adds a bus listener.
func (st *State) Subscribe(listener event.Listener) (unsubscribe func()) {
	return st.bus.Subscribe(listener)
}

// Dispatch delivers ev to every listener, then applies the session's own
// bookkeeping: a drop whose target branch is not mounted is queued for that
// branch, and an authoritative list for an unmounted branch becomes its
// saved state.
func (st *State) Dispatch(ev event.Event) {
	st.logger.Debug("dispatch", "kind", ev.Kind())

	switch e := ev.(type) {
	case event.ItemDropRequested:
		req := e.Request
		op := st.Begin(OpMove, req.TargetBranchID)
		prev := st.dropOp
		st.dropOp = op
		st.bus.Dispatch(ev)
		st.dropOp = prev

		if !st.IsMounted(req.TargetBranchID) {
			st.pending[req.TargetBranchID] = append(st.pending[req.TargetBranchID], Pending{
				PendingItem: tree.PendingItem{
					Item:           req.Item,
					Index:          req.TargetIndex,
					SourceBranchID: req.SourceBranchID,
				},
				Op: op,
			})
			st.logger.Debug("drop queued for unmounted branch",
				"item_id", req.ItemID,
				"branch", req.TargetBranchID.String(),
			)
			return
		}
		if !op.scheduled {
			st.Discard(op)
		}

	case event.BranchReconcile:
		st.bus.Dispatch(ev)
		if !st.IsMounted(e.BranchID) {
			st.saved[e.BranchID] = tree.Clone(e.Items)
		}

	default:
		st.bus.Dispatch(ev)
	}
}

// DropOperation returns the operation of the drop currently being delivered,
// or nil outside an ItemDropRequested dispatch.
func (st *State) DropOperation() *Operation { return st.dropOp }

// Register records acc as the live branch for id, replacing any previous
// registration.
func (st *State) Register(id tree.BranchID, acc Accessor) {
	if i := slices.Index(st.mountOrder, id); i >= 0 {
		st.mountOrder = slices.Delete(st.mountOrder, i, i+1)
	}
	st.mounted[id] = acc
	st.mountOrder = append(st.mountOrder, id)
}

// Unregister removes acc if it is still the live branch for id. With save set
// its items become the saved state consumed by the next mount.
func (st *State) Unregister(id tree.BranchID, acc Accessor, save bool) {
	if st.mounted[id] != acc {
		// a successor already took over
		return
	}
	if save {
		st.saved[id] = tree.Clone(acc.Items())
	}
	delete(st.mounted, id)
	if i := slices.Index(st.mountOrder, id); i >= 0 {
		st.mountOrder = slices.Delete(st.mountOrder, i, i+1)
	}
}

// Mounted returns the live branch for id.
func (st *State) Mounted(id tree.BranchID) (Accessor, bool) {
	acc, ok := st.mounted[id]
	return acc, ok
}

// IsMounted reports whether a branch with id is live.
func (st *State) IsMounted(id tree.BranchID) bool {
	_, ok := st.mounted[id]
	return ok
}

// MountedBranches lists live branch ids in mount order.
func (st *State) MountedBranches() []tree.BranchID {
	return slices.Clone(st.mountOrder)
}

// FindItemBranch returns the live branch that holds itemID.
func (st *State) FindItemBranch(itemID string) (tree.BranchID, bool) {
	for _, id := range st.mountOrder {
		if st.mounted[id].Contains(itemID) {
			return id, true
		}
	}
	return tree.RootBranch, false
}

// Item returns the node for itemID from whichever live branch holds it.
func (st *State) Item(itemID string) (tree.Node, bool) {
	branch, ok := st.FindItemBranch(itemID)
	if !ok {
		return tree.Node{}, false
	}
	items := st.mounted[branch].Items()
	if i := tree.IndexOf(items, itemID); i >= 0 {
		return items[i], true
	}
	return tree.Node{}, false
}

// PathToItem returns the ancestor ids of itemID, outermost first, walking
// live branches from the root.
func (st *State) PathToItem(itemID string) ([]string, bool) {
	visited := make(map[tree.BranchID]bool)
	var walk func(branch tree.BranchID) ([]string, bool)
	walk = func(branch tree.BranchID) ([]string, bool) {
		acc, ok := st.mounted[branch]
		if !ok || visited[branch] {
			return nil, false
		}
		visited[branch] = true
		for _, item := range acc.Items() {
			if item.ID == itemID {
				return []string{}, true
			}
			if path, found := walk(tree.Branch(item.ID)); found {
				return append([]string{item.ID}, path...), true
			}
		}
		return nil, false
	}
	return walk(tree.RootBranch)
}

// ItemHasChildren answers from the live branch, then saved state, then the
// pending queue, then the seed.
func (st *State) ItemHasChildren(itemID string) bool {
	id := tree.Branch(itemID)
	if acc, ok := st.mounted[id]; ok {
		return len(acc.Items()) > 0
	}
	if items, ok := st.saved[id]; ok {
		return len(items) > 0
	}
	if queued, ok := st.pending[id]; ok {
		return len(queued) > 0
	}
	return len(st.seed[id]) > 0
}

// BranchItems returns a copy of the live items of branch id.
func (st *State) BranchItems(id tree.BranchID) ([]tree.Node, bool) {
	acc, ok := st.mounted[id]
	if !ok {
		return nil, false
	}
	return tree.Clone(acc.Items()), true
}

// ConsumeSaved returns and forgets the saved state of branch id.
func (st *State) ConsumeSaved(id tree.BranchID) ([]tree.Node, bool) {
	items, ok := st.saved[id]
	if ok {
		delete(st.saved, id)
	}
	return items, ok
}

// SaveState records items as the saved state of branch id.
func (st *State) SaveState(id tree.BranchID, items []tree.Node) {
	st.saved[id] = tree.Clone(items)
}

// SeedItems returns the seeded children of branch id.
func (st *State) SeedItems(id tree.BranchID) ([]tree.Node, bool) {
	items, ok := st.seed[id]
	if !ok {
		return nil, false
	}
	return tree.Clone(items), true
}

// SeedOpen returns the seeded open state of itemID.
func (st *State) SeedOpen(itemID string) (open, ok bool) {
	open, ok = st.openSeed[itemID]
	return open, ok
}

// ConsumePending returns and forgets the drops queued for branch id, in
// arrival order.
func (st *State) ConsumePending(id tree.BranchID) []Pending {
	queued := st.pending[id]
	delete(st.pending, id)
	return queued
}
