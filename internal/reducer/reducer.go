// Package reducer implements the single-tree variant: one nested tree is the
// ground truth and every action produces a new snapshot synchronously.
package reducer

import (
	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/treeops"
)

// State pairs the tree with the action that produced it, so hosts can run
// post-action effects (flash, focus, announce).
type State struct {
	Data       []tree.Item
	LastAction Action
}

// ReduceState applies action and records it as the last action.
func ReduceState(state State, action Action) State {
	return State{
		Data:       Reduce(state.Data, action),
		LastAction: action,
	}
}

// Reduce applies one action. An action naming an item that is not in the tree
// returns the input unchanged.
func Reduce(data []tree.Item, action Action) []tree.Item {
	item, ok := treeops.Find(data, action.TargetItemID())
	if !ok {
		return data
	}

	switch a := action.(type) {
	case ApplyInstruction:
		return applyInstruction(data, item, a)
	case Toggle:
		return toggle(data, a.ItemID)
	case Expand:
		if treeops.HasChildren(item) && !item.IsOpen {
			return toggle(data, a.ItemID)
		}
		return data
	case Collapse:
		if treeops.HasChildren(item) && item.IsOpen {
			return toggle(data, a.ItemID)
		}
		return data
	case ModalMove:
		return modalMove(data, item, a)
	default:
		return data
	}
}

func applyInstruction(data []tree.Item, item tree.Item, a ApplyInstruction) []tree.Item {
	if a.ItemID == a.TargetID || a.Instruction.Blocked {
		return data
	}

	switch a.Instruction.Operation {
	case tree.ReorderBefore:
		result := treeops.Remove(data, a.ItemID)
		return treeops.InsertBefore(result, a.TargetID, item)
	case tree.ReorderAfter:
		result := treeops.Remove(data, a.ItemID)
		return treeops.InsertAfter(result, a.TargetID, item)
	case tree.Combine:
		result := treeops.Remove(data, a.ItemID)
		return treeops.InsertChild(result, a.TargetID, item)
	default:
		return data
	}
}

// toggle flips isOpen on itemID. Only items with children are considered, so
// the walk never descends into leaves.
func toggle(items []tree.Item, itemID string) []tree.Item {
	out := make([]tree.Item, len(items))
	for i, item := range items {
		if !treeops.HasChildren(item) {
			out[i] = item
			continue
		}
		if item.ID == itemID {
			item.IsOpen = !item.IsOpen
			out[i] = item
			continue
		}
		item.Children = toggle(item.Children, itemID)
		out[i] = item
	}
	return out
}

func modalMove(data []tree.Item, item tree.Item, a ModalMove) []tree.Item {
	result := treeops.Remove(data, item.ID)

	siblings := ChildrenOf(result, a.TargetID)

	switch {
	case len(siblings) == 0:
		if a.TargetID == "" {
			return []tree.Item{item}
		}
		return treeops.InsertChild(result, a.TargetID, item)
	case a.Index >= len(siblings):
		relativeTo := siblings[len(siblings)-1]
		return treeops.InsertAfter(result, relativeTo.ID, item)
	default:
		index := a.Index
		if index < 0 {
			index = 0
		}
		return treeops.InsertBefore(result, siblings[index].ID, item)
	}
}

// ChildrenOf returns the children of parentID ("" = top level). A parent that
// does not exist is a programmer error: callers only pass ids they were given
// by MoveTargets.
func ChildrenOf(data []tree.Item, parentID string) []tree.Item {
	children, ok := treeops.ChildItems(data, parentID)
	domain.Invariant(ok, "parent %q not found in tree", parentID)
	return children
}

// MoveTargets lists every item that itemID may be moved under: everything
// except the item itself, its descendants, and drafts.
func MoveTargets(data []tree.Item, itemID string) []tree.Item {
	var targets []tree.Item
	stack := make([]tree.Item, len(data))
	copy(stack, data)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// can't move to self or children
		if node.ID == itemID {
			continue
		}
		if node.IsDraft {
			continue
		}
		targets = append(targets, node)
		stack = append(stack, node.Children...)
	}
	return targets
}
