// Package view keeps the set of mounted branches in step with the open
// state of the tree and projects the visible rows.
package view

import (
	"cleantree/internal/branch"
	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/session"
)

// Row is one visible line of the tree.
type Row struct {
	branch.Row
	BranchID tree.BranchID
	Level    int
}

// View mounts the root branch and the branch of every visible open item,
// and unmounts branches that stop being visible.
type View struct {
	sess     *session.Session
	handlers branch.Handlers

	branches    map[tree.BranchID]*branch.Branch
	unsubscribe func()
	syncing     bool
	dirty       bool
	closed      bool
}

// New mounts the root branch of sess and every open branch below it.
func New(sess *session.Session, handlers branch.Handlers) *View {
	v := &View{
		sess:     domain.MustProvide(sess, "session"),
		handlers: handlers,
		branches: make(map[tree.BranchID]*branch.Branch),
	}
	sess.Exec(func(st *session.State) {
		v.unsubscribe = st.Subscribe(func(ev event.Event) { v.handle(st, ev) })
		v.SyncLocked(st)
	})
	return v
}

func (v *View) handle(st *session.State, ev event.Event) {
	switch ev.(type) {
	case event.OpenStateChanged, event.ItemAdded, event.BranchReconcile, event.BranchChildrenChanged, event.ItemDeleted:
		v.SyncLocked(st)
	}
}

// Sync reconciles the mounted branches with the open state.
func (v *View) Sync() {
	v.sess.Exec(func(st *session.State) { v.SyncLocked(st) })
}

// SyncLocked is Sync for callers holding the session. Calls made while a
// sync is running are folded into one more pass.
func (v *View) SyncLocked(st *session.State) {
	if v.closed {
		return
	}
	if v.syncing {
		v.dirty = true
		return
	}
	v.syncing = true
	defer func() { v.syncing = false }()

	for {
		v.dirty = false
		v.syncOnce(st)
		if !v.dirty {
			return
		}
	}
}

func (v *View) syncOnce(st *session.State) {
	// forget branches someone else took over
	for id, b := range v.branches {
		if live, ok := branch.Lookup(st, id); !ok || live != b {
			delete(v.branches, id)
		}
	}

	wanted := map[tree.BranchID]bool{tree.RootBranch: true}
	queue := []tree.BranchID{tree.RootBranch}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		b := v.ensure(st, id)
		for _, item := range b.ItemsLocked() {
			child := tree.Branch(item.ID)
			if item.IsOpen && !wanted[child] {
				wanted[child] = true
				queue = append(queue, child)
			}
		}
	}

	for id, b := range v.branches {
		if !wanted[id] {
			b.UnmountLocked(st)
			delete(v.branches, id)
		}
	}
}

func (v *View) ensure(st *session.State, id tree.BranchID) *branch.Branch {
	if b, ok := v.branches[id]; ok {
		return b
	}
	if b, ok := branch.Lookup(st, id); ok {
		// mounted by the host; adopt it
		v.branches[id] = b
		return b
	}
	b := branch.MountLocked(st, id, branch.Options{Handlers: v.handlers})
	v.branches[id] = b
	return b
}

// Branch returns the mounted branch id.
func (v *View) Branch(id tree.BranchID) (b *branch.Branch, ok bool) {
	v.sess.Exec(func(*session.State) { b, ok = v.branches[id] })
	return b, ok
}

// Root returns the root branch.
func (v *View) Root() *branch.Branch {
	b, _ := v.Branch(tree.RootBranch)
	return b
}

// Mounted returns the ids of the branches the view keeps mounted.
func (v *View) Mounted() (ids []tree.BranchID) {
	v.sess.Exec(func(*session.State) {
		for id := range v.branches {
			ids = append(ids, id)
		}
	})
	return ids
}

// Rows returns the visible tree, depth first.
func (v *View) Rows() (rows []Row) {
	v.sess.Exec(func(st *session.State) { rows = v.RowsLocked(st) })
	return rows
}

// RowsLocked is Rows for callers holding the session.
func (v *View) RowsLocked(st *session.State) []Row {
	var rows []Row
	var walk func(id tree.BranchID, level int)
	walk = func(id tree.BranchID, level int) {
		b, ok := v.branches[id]
		if !ok {
			return
		}
		for _, r := range b.RowsLocked(st) {
			rows = append(rows, Row{Row: r, BranchID: id, Level: level})
			if r.IsOpen {
				walk(tree.Branch(r.ID), level+1)
			}
		}
	}
	walk(tree.RootBranch, 0)
	return rows
}

// Close unmounts every branch the view mounted. The session stays open.
func (v *View) Close() {
	v.sess.TryExec(func(st *session.State) {
		if v.closed {
			return
		}
		v.closed = true
		v.unsubscribe()
		for id, b := range v.branches {
			b.UnmountLocked(st)
			delete(v.branches, id)
		}
	})
}
