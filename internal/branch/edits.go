package branch

import (
	"context"
	"fmt"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/session"
)

// Toggle flips the open state of itemID if this branch holds it.
func (b *Branch) Toggle(itemID string) {
	b.sess.Exec(func(st *session.State) { b.setOpen(st, itemID, nil) })
}

// Expand opens itemID. It is a no-op when already open.
func (b *Branch) Expand(itemID string) {
	b.sess.Exec(func(st *session.State) { b.ExpandLocked(st, itemID) })
}

// ExpandLocked is Expand for callers holding the session.
func (b *Branch) ExpandLocked(st *session.State, itemID string) {
	open := true
	b.setOpen(st, itemID, &open)
}

// Collapse closes itemID. It is a no-op when already closed.
func (b *Branch) Collapse(itemID string) {
	closed := false
	b.sess.Exec(func(st *session.State) { b.setOpen(st, itemID, &closed) })
}

func (b *Branch) setOpen(st *session.State, itemID string, want *bool) {
	if !b.live {
		return
	}
	i := tree.IndexOf(b.items, itemID)
	if i < 0 {
		return
	}
	next := !b.items[i].IsOpen
	if want != nil {
		if b.items[i].IsOpen == *want {
			return
		}
		next = *want
	}
	items := tree.Clone(b.items)
	items[i].IsOpen = next
	b.setItems(st, items)

	st.Dispatch(event.OpenStateChanged{BranchID: b.id, ItemID: itemID, IsOpen: next})
	if b.handlers.OnOpenStateChange != nil {
		b.handlers.OnOpenStateChange(itemID, next)
	}
}

// CreateItem appends item and confirms it with the backing store.
func (b *Branch) CreateItem(item tree.Node) (err error) {
	b.sess.Exec(func(st *session.State) { err = b.create(st, item, false) })
	return err
}

// CreateFolder appends folder and confirms it with the backing store.
func (b *Branch) CreateFolder(folder tree.Node) (err error) {
	folder.IsFolder = true
	b.sess.Exec(func(st *session.State) { err = b.create(st, folder, true) })
	return err
}

func (b *Branch) create(st *session.State, item tree.Node, folder bool) error {
	if err := item.Validate(); err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("invalid item: %v", err)}
	}
	if !b.live {
		return &domain.NotFoundError{Message: fmt.Sprintf("branch %s is not mounted", b.id.String())}
	}
	if owner, ok := st.FindItemBranch(item.ID); ok {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("item %q already exists in branch %s", item.ID, owner.String()),
			ResourceType: "item",
			ResourceID:   item.ID,
		}
	}

	op := st.Begin(session.OpCreate, b.id)
	b.setItems(st, op.Touch(b.id, b.items, appendNode(item)))
	st.Dispatch(event.ItemCreated{BranchID: b.id, Item: item, Folder: folder})

	call := b.handlers.CreateItem
	if folder {
		call = b.handlers.CreateFolder
	}
	if call == nil {
		st.Discard(op)
		return nil
	}
	id := b.id
	b.confirmList(st, op, "create", item.ID, func(ctx context.Context) ([]tree.Node, error) {
		return call(ctx, id, item)
	})
	return nil
}

// DeleteItem removes itemID and confirms the removal. Unknown ids are ignored.
func (b *Branch) DeleteItem(itemID string) {
	b.sess.Exec(func(st *session.State) { b.delete(st, itemID, false) })
}

// DeleteFolder removes folderID and confirms the removal. The backing store
// drops the whole subtree.
func (b *Branch) DeleteFolder(folderID string) {
	b.sess.Exec(func(st *session.State) { b.delete(st, folderID, true) })
}

func (b *Branch) delete(st *session.State, itemID string, folder bool) {
	if !b.live || !b.contains(itemID) {
		return
	}

	op := st.Begin(session.OpDelete, b.id)
	b.setItems(st, op.Touch(b.id, b.items, removeID(itemID)))
	st.Dispatch(event.ItemDeleted{BranchID: b.id, ItemID: itemID, Folder: folder})

	call := b.handlers.DeleteItem
	if folder {
		call = b.handlers.DeleteFolder
	}
	if call == nil {
		st.Discard(op)
		return
	}
	id := b.id
	b.confirmList(st, op, "delete", itemID, func(ctx context.Context) ([]tree.Node, error) {
		return call(ctx, itemID, id)
	})
}

// confirmList settles a create or delete, whose confirmation returns the new
// list of this branch only.
func (b *Branch) confirmList(st *session.State, op *session.Operation, what, itemID string, call func(ctx context.Context) ([]tree.Node, error)) {
	var result []tree.Node
	st.Confirm(op,
		func(ctx context.Context) error {
			var err error
			result, err = call(ctx)
			return err
		},
		func(st *session.State, err error) {
			var lists map[tree.BranchID][]tree.Node
			if err != nil {
				b.logger.Warn(what+" confirmation failed, rolling back",
					"item_id", itemID,
					"op_id", op.ID,
					"error", err,
				)
				lists = st.Settle(op, session.RolledBack, op.Snapshots())
			} else {
				lists = st.Settle(op, session.Confirmed, map[tree.BranchID][]tree.Node{b.id: tree.Clone(result)})
			}
			if items, ok := lists[b.id]; ok {
				b.commit(st, items)
			}
		},
	)
}
