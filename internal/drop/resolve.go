// Package drop turns a raw drop instruction into a move request and
// dispatches it to the branches involved.
package drop

import (
	"slices"

	"cleantree/internal/branch"
	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
	"cleantree/internal/session"
)

// Drop is what the gesture layer reports at release.
type Drop struct {
	DraggedID string
	// TargetID is the row under the pointer and TargetIndex its position in
	// its branch.
	TargetID    string
	TargetIndex int
	Instruction tree.Instruction
}

// CanDrop rejects dropping an item onto itself or onto one of its own
// descendants.
func CanDrop(st *session.State, draggedID, targetID string) bool {
	if draggedID == targetID {
		return false
	}
	path, _ := st.PathToItem(targetID)
	return !slices.Contains(path, draggedID)
}

// Resolve classifies d into a move request. It reports false when the drop
// must be ignored: blocked, rejected by CanDrop, or aimed at a branch that
// cannot be determined.
func Resolve(st *session.State, d Drop) (tree.MoveRequest, bool) {
	if d.Instruction.Blocked || !CanDrop(st, d.DraggedID, d.TargetID) {
		return tree.MoveRequest{}, false
	}

	source, ok := st.FindItemBranch(d.DraggedID)
	if !ok {
		return tree.MoveRequest{}, false
	}
	item, ok := st.Item(d.DraggedID)
	if !ok {
		return tree.MoveRequest{}, false
	}

	var target tree.BranchID
	var index int
	switch d.Instruction.Type {
	case tree.ReorderAbove, tree.ReorderBelow:
		owner, ok := st.FindItemBranch(d.TargetID)
		if !ok {
			return tree.MoveRequest{}, false
		}
		target, index = owner, d.TargetIndex
		if d.Instruction.Type == tree.ReorderBelow {
			index++
		}

	case tree.MakeChild:
		target, index = tree.Branch(d.TargetID), 0

	case tree.Reparent:
		// a level with no ancestor on the path lands at the root
		level := d.Instruction.DesiredLevel
		target = tree.RootBranch
		if level > 0 {
			path, ok := st.PathToItem(d.TargetID)
			if !ok {
				return tree.MoveRequest{}, false
			}
			if level <= len(path) {
				target = tree.Branch(path[level-1])
			}
		}
		index = d.TargetIndex + 1

	default:
		return tree.MoveRequest{}, false
	}

	return tree.MoveRequest{
		ItemID:         d.DraggedID,
		Item:           item,
		SourceBranchID: source,
		TargetBranchID: target,
		TargetIndex:    index,
		Instruction:    d.Instruction,
	}, true
}

// Resolver dispatches resolved drops on a session.
type Resolver struct {
	sess *session.Session
}

// NewResolver creates a resolver for sess
func NewResolver(sess *session.Session) *Resolver {
	return &Resolver{sess: domain.MustProvide(sess, "session")}
}

// Drop resolves d and dispatches the move. It reports whether anything was
// dispatched.
func (r *Resolver) Drop(d Drop) (dispatched bool) {
	r.sess.Exec(func(st *session.State) { dispatched = DropLocked(st, d) })
	return dispatched
}

// DropLocked is Resolver.Drop for callers holding the session. A make-child
// drop opens its target first, through the branch that owns the target.
func DropLocked(st *session.State, d Drop) bool {
	req, ok := Resolve(st, d)
	if !ok {
		st.Logger().Debug("drop ignored",
			"dragged_id", d.DraggedID,
			"target_id", d.TargetID,
			"instruction", d.Instruction.Type,
		)
		return false
	}

	if d.Instruction.Type == tree.MakeChild {
		if owner, ok := st.FindItemBranch(d.TargetID); ok {
			if b, ok := branch.Lookup(st, owner); ok {
				b.ExpandLocked(st, d.TargetID)
			}
		}
	}

	st.Dispatch(event.ItemDropRequested{Request: req})
	return true
}
