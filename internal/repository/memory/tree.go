package memory

import (
	"context"
	"fmt"
	"slices"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/domain/repositories"
)

type treeRepository struct {
	store *Store
}

// NewTreeRepository creates a tree repository backed by store
func NewTreeRepository(store *Store) repositories.TreeRepository {
	return &treeRepository{store: store}
}

func notFound(id string) error {
	return &domain.NotFoundError{Message: fmt.Sprintf("item %q not found", id)}
}

func (r *treeRepository) ListChildren(ctx context.Context, treeID string, branch tree.BranchID) ([]tree.Node, error) {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	t := r.store.tree(treeID, false)
	if t == nil {
		return []tree.Node{}, nil
	}
	return tree.Clone(t.branches[branch]), nil
}

func (r *treeRepository) GetNode(ctx context.Context, treeID, id string) (*repositories.StoredNode, error) {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	t := r.store.tree(treeID, false)
	if t == nil {
		return nil, notFound(id)
	}
	parent, ok := t.parent[id]
	if !ok {
		return nil, notFound(id)
	}
	index := tree.IndexOf(t.branches[parent], id)
	return &repositories.StoredNode{
		Node:     t.branches[parent][index],
		Parent:   parent,
		Position: index,
	}, nil
}

func (r *treeRepository) InsertAt(ctx context.Context, treeID string, branch tree.BranchID, index int, node tree.Node) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	t := r.store.tree(treeID, true)
	if _, exists := t.parent[node.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("item %q already exists", node.ID),
			ResourceType: "item",
			ResourceID:   node.ID,
		}
	}
	t.branches[branch] = insertClamped(t.branches[branch], index, node)
	t.parent[node.ID] = branch
	return nil
}

func (r *treeRepository) MoveTo(ctx context.Context, treeID, id string, branch tree.BranchID, index int) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	t := r.store.tree(treeID, false)
	if t == nil {
		return notFound(id)
	}
	from, ok := t.parent[id]
	if !ok {
		return notFound(id)
	}
	items := t.branches[from]
	at := tree.IndexOf(items, id)
	node := items[at]
	t.branches[from] = slices.Delete(slices.Clone(items), at, at+1)
	t.branches[branch] = insertClamped(t.branches[branch], index, node)
	t.parent[id] = branch
	return nil
}

func (r *treeRepository) Delete(ctx context.Context, treeID, id string) (int, error) {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	t := r.store.tree(treeID, false)
	if t == nil {
		return 0, notFound(id)
	}
	parent, ok := t.parent[id]
	if !ok {
		return 0, notFound(id)
	}
	items := t.branches[parent]
	at := tree.IndexOf(items, id)
	t.branches[parent] = slices.Delete(slices.Clone(items), at, at+1)

	removed := 0
	queue := []string{id}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		delete(t.parent, next)
		removed++
		for _, child := range t.branches[tree.Branch(next)] {
			queue = append(queue, child.ID)
		}
		delete(t.branches, tree.Branch(next))
	}
	return removed, nil
}

func (r *treeRepository) SetOpen(ctx context.Context, treeID, id string, isOpen bool) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	t := r.store.tree(treeID, false)
	if t == nil {
		return notFound(id)
	}
	parent, ok := t.parent[id]
	if !ok {
		return notFound(id)
	}
	items := tree.Clone(t.branches[parent])
	items[tree.IndexOf(items, id)].IsOpen = isOpen
	t.branches[parent] = items
	return nil
}

func (r *treeRepository) OpenStates(ctx context.Context, treeID string) (map[string]bool, error) {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	out := make(map[string]bool)
	t := r.store.tree(treeID, false)
	if t == nil {
		return out, nil
	}
	for _, items := range t.branches {
		for _, item := range items {
			out[item.ID] = item.IsOpen
		}
	}
	return out, nil
}

func (r *treeRepository) ReplaceTree(ctx context.Context, treeID string, branches map[tree.BranchID][]tree.Node) error {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	t := newTreeData()
	for branch, items := range branches {
		if len(items) == 0 {
			continue
		}
		t.branches[branch] = tree.Clone(items)
		for _, item := range items {
			t.parent[item.ID] = branch
		}
	}
	r.store.trees[treeID] = t
	return nil
}

func (r *treeRepository) AllNodes(ctx context.Context, treeID string) (map[tree.BranchID][]tree.Node, error) {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	out := map[tree.BranchID][]tree.Node{tree.RootBranch: {}}
	t := r.store.tree(treeID, false)
	if t == nil {
		return out, nil
	}
	for branch, items := range t.branches {
		if len(items) > 0 {
			out[branch] = tree.Clone(items)
		}
	}
	return out, nil
}

func (r *treeRepository) Trees(ctx context.Context) ([]string, error) {
	r.store.mutex.Lock()
	defer r.store.mutex.Unlock()

	ids := make([]string, 0, len(r.store.trees))
	for id, t := range r.store.trees {
		if len(t.parent) > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func insertClamped(items []tree.Node, index int, node tree.Node) []tree.Node {
	index = max(0, min(index, len(items)))
	return slices.Insert(slices.Clone(items), index, node)
}
