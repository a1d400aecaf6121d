package branch

import (
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/session"
)

// The list edits below are the mutations recorded on operations. They
// receive a private copy and may edit it in place.

// insertAt places item at index, taking out any copy already in the list, so
// replaying it over a list the store already updated yields the same result.
func insertAt(item tree.Node, index int) session.Mutation {
	return func(items []tree.Node) []tree.Node {
		items = removeID(item.ID)(items)
		index := min(max(index, 0), len(items))
		out := make([]tree.Node, 0, len(items)+1)
		out = append(out, items[:index]...)
		out = append(out, item)
		return append(out, items[index:]...)
	}
}

func removeID(itemID string) session.Mutation {
	return func(items []tree.Node) []tree.Node {
		i := tree.IndexOf(items, itemID)
		if i < 0 {
			return items
		}
		return append(items[:i], items[i+1:]...)
	}
}

// reorder moves itemID to toIndex, where toIndex counts positions before the
// item was taken out.
func reorder(itemID string, toIndex int) session.Mutation {
	return func(items []tree.Node) []tree.Node {
		from := tree.IndexOf(items, itemID)
		if from < 0 {
			return items
		}
		item := items[from]
		rest := append(items[:from:from], items[from+1:]...)
		if toIndex > from {
			toIndex--
		}
		return insertAt(item, toIndex)(rest)
	}
}

func appendNode(item tree.Node) session.Mutation {
	return func(items []tree.Node) []tree.Node {
		return append(items, item)
	}
}

// mergeLoaded puts loaded items first, followed by whatever arrived while the
// load was in flight.
func mergeLoaded(loaded, current []tree.Node) []tree.Node {
	present := make(map[string]struct{}, len(current))
	for _, item := range current {
		present[item.ID] = struct{}{}
	}
	out := make([]tree.Node, 0, len(loaded)+len(current))
	for _, item := range loaded {
		if _, dup := present[item.ID]; !dup {
			out = append(out, item)
		}
	}
	return append(out, current...)
}
