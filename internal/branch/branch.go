// Package branch implements the reconciliation engine for one mounted branch
// of a tree: optimistic local edits, confirmation against the backing store,
// and rollback when confirmation fails.
//
// Methods without a suffix take the session themselves. The ...Locked
// variants expect the caller to already hold it, which is the case inside
// bus listeners and Session.Exec callbacks.
package branch

import (
	"log/slog"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/session"
)

// Options configures a mount.
type Options struct {
	// InitialChildren, when non-nil, wins over every other source of items.
	InitialChildren []tree.Node
	Handlers        Handlers
}

// Branch is the live state of one branch.
type Branch struct {
	sess     *session.Session
	id       tree.BranchID
	handlers Handlers
	logger   *slog.Logger
	reg      *registration

	items         []tree.Node
	isLoading     bool
	hasLoaded     bool
	loadDone      bool
	movesInFlight int
	live          bool
	unsubscribe   func()
}

// registration is what the session sees of a branch. Its methods run with
// the session held.
type registration struct{ b *Branch }

func (r *registration) Items() []tree.Node { return r.b.items }

func (r *registration) Contains(itemID string) bool {
	return tree.IndexOf(r.b.items, itemID) >= 0
}

// Row is one item of a branch as a presentation layer needs it.
type Row struct {
	tree.Node
	Index       int
	HasChildren bool
}

// Mount creates and registers the branch id.
func Mount(sess *session.Session, id tree.BranchID, opts Options) *Branch {
	var b *Branch
	sess.Exec(func(st *session.State) { b = MountLocked(st, id, opts) })
	return b
}

// MountLocked is Mount for callers holding the session.
//
// Items come from the first source that has them: opts.InitialChildren, a
// live branch with the same id (which is retired), the saved state of an
// earlier unmount, the seed, or nothing.
func MountLocked(st *session.State, id tree.BranchID, opts Options) *Branch {
	b := &Branch{
		sess:     st.Session(),
		id:       id,
		handlers: opts.Handlers,
		logger:   st.Logger().With("branch", id.String()),
	}
	b.reg = &registration{b: b}

	var previous *Branch
	if acc, ok := st.Mounted(id); ok {
		if r, ok := acc.(*registration); ok {
			previous = r.b
		}
	}

	var source string
	switch {
	case opts.InitialChildren != nil:
		b.items, source = tree.Clone(opts.InitialChildren), "initial"
	case previous != nil:
		b.items, source = tree.Clone(previous.items), "live"
	default:
		if saved, ok := st.ConsumeSaved(id); ok {
			b.items, source = tree.Clone(saved), "saved"
		} else if seeded, ok := st.SeedItems(id); ok {
			b.items, source = seeded, "seed"
		} else {
			b.items, source = []tree.Node{}, "empty"
		}
	}
	if previous != nil {
		previous.retire()
	}

	st.Register(id, b.reg)
	b.live = true
	b.unsubscribe = st.Subscribe(func(ev event.Event) { b.handle(st, ev) })

	b.logger.Debug("branch mounted", "source", source, "items", len(b.items))

	b.startLoad(st)
	b.consumePending(st)
	return b
}

// Lookup returns the live branch id.
func Lookup(st *session.State, id tree.BranchID) (*Branch, bool) {
	acc, ok := st.Mounted(id)
	if !ok {
		return nil, false
	}
	r, ok := acc.(*registration)
	if !ok {
		return nil, false
	}
	return r.b, true
}

// Unmount unregisters the branch and saves its items for the next mount.
func (b *Branch) Unmount() {
	b.sess.TryExec(func(st *session.State) { b.UnmountLocked(st) })
}

// UnmountLocked is Unmount for callers holding the session.
func (b *Branch) UnmountLocked(st *session.State) {
	if !b.live {
		return
	}
	b.live = false
	b.unsubscribe()
	st.Unregister(b.id, b.reg, true)
	b.logger.Debug("branch unmounted", "items", len(b.items))
}

// retire hands the branch over to a same-id successor.
func (b *Branch) retire() {
	if !b.live {
		return
	}
	b.live = false
	b.unsubscribe()
	b.logger.Debug("branch retired")
}

// ID returns the branch id.
func (b *Branch) ID() tree.BranchID { return b.id }

// Live reports whether the branch is still mounted.
func (b *Branch) Live() (live bool) {
	b.sess.TryExec(func(*session.State) { live = b.live })
	return live
}

// Items returns a copy of the branch's items.
func (b *Branch) Items() (items []tree.Node) {
	b.sess.Exec(func(*session.State) { items = tree.Clone(b.items) })
	return items
}

// ItemsLocked is Items for callers holding the session.
func (b *Branch) ItemsLocked() []tree.Node { return tree.Clone(b.items) }

// IsLoading reports whether a children load is in flight.
func (b *Branch) IsLoading() (loading bool) {
	b.sess.Exec(func(*session.State) { loading = b.isLoading })
	return loading
}

// Rows returns the items with their positions and child affordances.
func (b *Branch) Rows() (rows []Row) {
	b.sess.Exec(func(st *session.State) { rows = b.RowsLocked(st) })
	return rows
}

// RowsLocked is Rows for callers holding the session.
func (b *Branch) RowsLocked(st *session.State) []Row {
	rows := make([]Row, len(b.items))
	for i, item := range b.items {
		rows[i] = Row{Node: item, Index: i, HasChildren: st.ItemHasChildren(item.ID)}
	}
	return rows
}

func (b *Branch) contains(itemID string) bool {
	return tree.IndexOf(b.items, itemID) >= 0
}

// setItems replaces the list and reports crossings between empty and
// non-empty for non-root branches.
func (b *Branch) setItems(st *session.State, items []tree.Node) {
	domain.Invariant(b.live, "branch %s edited after unmount", b.id.String())
	prev := len(b.items)
	b.items = items
	if b.id.IsRoot() {
		return
	}
	switch {
	case prev > 0 && len(items) == 0:
		st.Dispatch(event.BranchChildrenChanged{BranchID: b.id, HasChildren: false})
	case prev == 0 && len(items) > 0:
		st.Dispatch(event.BranchChildrenChanged{BranchID: b.id, HasChildren: true})
	}
}

// commit applies a settled list. A branch that is gone forwards it to its
// same-id successor, or to saved state when there is none.
func (b *Branch) commit(st *session.State, items []tree.Node) {
	if b.live {
		b.setItems(st, items)
		return
	}
	if successor, ok := Lookup(st, b.id); ok {
		successor.setItems(st, items)
		return
	}
	st.SaveState(b.id, items)
}

func (b *Branch) handle(st *session.State, ev event.Event) {
	if !b.live {
		// unmounted during this dispatch
		return
	}
	switch e := ev.(type) {
	case event.ItemDropRequested:
		b.onDrop(st, e.Request)
	case event.BranchReconcile:
		if e.BranchID == b.id {
			b.logger.Debug("branch reconcile", "items", len(e.Items))
			b.setItems(st, tree.Clone(e.Items))
		}
	}
}
