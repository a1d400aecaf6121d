// Package treeops holds pure functions over the nested tree representation
// used by the single-tree variant. No function mutates its input: every slice
// on a changed path is copied.
package treeops

import (
	"cleantree/internal/domain/models/tree"
)

// Find returns the first item with id in depth-first order.
func Find(items []tree.Item, id string) (tree.Item, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
		if HasChildren(item) {
			if found, ok := Find(item.Children, id); ok {
				return found, true
			}
		}
	}
	return tree.Item{}, false
}

// HasChildren reports whether the item has at least one child.
func HasChildren(item tree.Item) bool {
	return len(item.Children) > 0
}

// Remove returns a tree without the item with id (wherever it occurs).
func Remove(items []tree.Item, id string) []tree.Item {
	out := make([]tree.Item, 0, len(items))
	for _, item := range items {
		if item.ID == id {
			continue
		}
		if HasChildren(item) {
			item.Children = Remove(item.Children, id)
		}
		out = append(out, item)
	}
	return out
}

// InsertBefore places newItem immediately before targetID among its siblings.
func InsertBefore(items []tree.Item, targetID string, newItem tree.Item) []tree.Item {
	out := make([]tree.Item, 0, len(items)+1)
	for _, item := range items {
		if item.ID == targetID {
			out = append(out, newItem, item)
			continue
		}
		if HasChildren(item) {
			item.Children = InsertBefore(item.Children, targetID, newItem)
		}
		out = append(out, item)
	}
	return out
}

// InsertAfter places newItem immediately after targetID among its siblings.
func InsertAfter(items []tree.Item, targetID string, newItem tree.Item) []tree.Item {
	out := make([]tree.Item, 0, len(items)+1)
	for _, item := range items {
		if item.ID == targetID {
			out = append(out, item, newItem)
			continue
		}
		if HasChildren(item) {
			item.Children = InsertAfter(item.Children, targetID, newItem)
		}
		out = append(out, item)
	}
	return out
}

// InsertChild makes newItem the first child of targetID and opens the target.
func InsertChild(items []tree.Item, targetID string, newItem tree.Item) []tree.Item {
	out := make([]tree.Item, 0, len(items))
	for _, item := range items {
		if item.ID == targetID {
			children := make([]tree.Item, 0, len(item.Children)+1)
			children = append(children, newItem)
			children = append(children, item.Children...)
			item.IsOpen = true
			item.Children = children
			out = append(out, item)
			continue
		}
		if HasChildren(item) {
			item.Children = InsertChild(item.Children, targetID, newItem)
		}
		out = append(out, item)
	}
	return out
}

// PathToItem returns the ancestor ids from root down to (excluding) targetID.
// ok is false when the target is not in the tree.
func PathToItem(items []tree.Item, targetID string) (path []string, ok bool) {
	return pathToItem(items, targetID, []string{})
}

func pathToItem(current []tree.Item, targetID string, parentIDs []string) ([]string, bool) {
	for _, item := range current {
		if item.ID == targetID {
			return parentIDs, true
		}
		next := make([]string, len(parentIDs), len(parentIDs)+1)
		copy(next, parentIDs)
		next = append(next, item.ID)
		if nested, ok := pathToItem(item.Children, targetID, next); ok {
			return nested, true
		}
	}
	return nil, false
}

// ChildItems returns the children of parentID, or the top level when parentID
// is empty. ok is false when parentID names no item.
func ChildItems(items []tree.Item, parentID string) ([]tree.Item, bool) {
	if parentID == "" {
		return items, true
	}
	item, ok := Find(items, parentID)
	if !ok {
		return nil, false
	}
	return item.Children, true
}

// Walk visits every item depth-first with its depth. Returning false from fn
// skips the item's children.
func Walk(items []tree.Item, fn func(item tree.Item, depth int) bool) {
	walk(items, 0, fn)
}

func walk(items []tree.Item, depth int, fn func(tree.Item, int) bool) {
	for _, item := range items {
		if fn(item, depth) {
			walk(item.Children, depth+1, fn)
		}
	}
}
