package treeops

import (
	"fmt"

	"cleantree/internal/config"
	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
)

// Flattened is the branch-keyed form of a nested seed.
type Flattened struct {
	Branches  map[tree.BranchID][]tree.Node
	OpenState map[string]bool
}

// Flatten converts nested seed data into one flat list per branch plus the
// initial open-state map. Items without children get no branch entry.
// Duplicate ids and over-deep nesting are rejected.
func Flatten(seed []tree.NodeData) (*Flattened, error) {
	out := &Flattened{
		Branches:  make(map[tree.BranchID][]tree.Node),
		OpenState: make(map[string]bool),
	}
	seen := make(map[string]struct{})
	if err := flattenInto(out, seen, tree.RootBranch, seed, 0); err != nil {
		return nil, err
	}
	if _, ok := out.Branches[tree.RootBranch]; !ok {
		out.Branches[tree.RootBranch] = []tree.Node{}
	}
	return out, nil
}

func flattenInto(out *Flattened, seen map[string]struct{}, branch tree.BranchID, items []tree.NodeData, depth int) error {
	if depth > config.MaxSeedDepth {
		return &domain.ValidationError{Message: fmt.Sprintf("seed nested deeper than %d levels", config.MaxSeedDepth)}
	}
	nodes := make([]tree.Node, 0, len(items))
	for _, item := range items {
		node := tree.Node{ID: item.ID, IsFolder: item.IsFolder || len(item.Children) > 0, IsOpen: item.IsOpen}
		if err := node.Validate(); err != nil {
			return &domain.ValidationError{Message: fmt.Sprintf("invalid seed item: %v", err)}
		}
		if _, dup := seen[item.ID]; dup {
			return &domain.ValidationError{Message: fmt.Sprintf("duplicate item id %q in seed", item.ID)}
		}
		seen[item.ID] = struct{}{}
		nodes = append(nodes, node)
		out.OpenState[item.ID] = item.IsOpen
		if len(item.Children) > 0 {
			if err := flattenInto(out, seen, tree.Branch(item.ID), item.Children, depth+1); err != nil {
				return err
			}
		}
	}
	if len(nodes) > 0 || branch.IsRoot() {
		out.Branches[branch] = nodes
	}
	return nil
}

// Nest rebuilds nested data from branch lists, starting at the root branch.
// Branches not reachable from the root are ignored.
func Nest(branches map[tree.BranchID][]tree.Node) []tree.NodeData {
	return nest(branches, tree.RootBranch, make(map[tree.BranchID]bool))
}

func nest(branches map[tree.BranchID][]tree.Node, branch tree.BranchID, visiting map[tree.BranchID]bool) []tree.NodeData {
	if visiting[branch] {
		return nil
	}
	visiting[branch] = true
	defer delete(visiting, branch)

	nodes := branches[branch]
	out := make([]tree.NodeData, 0, len(nodes))
	for _, node := range nodes {
		data := tree.NodeData{ID: node.ID, IsFolder: node.IsFolder, IsOpen: node.IsOpen}
		if children, ok := branches[tree.Branch(node.ID)]; ok && len(children) > 0 {
			data.Children = nest(branches, tree.Branch(node.ID), visiting)
		}
		out = append(out, data)
	}
	return out
}

// ToItems converts nested seed data into the single-tree representation.
func ToItems(seed []tree.NodeData) []tree.Item {
	out := make([]tree.Item, 0, len(seed))
	for _, data := range seed {
		out = append(out, tree.Item{
			ID:       data.ID,
			IsFolder: data.IsFolder || len(data.Children) > 0,
			IsOpen:   data.IsOpen,
			Children: ToItems(data.Children),
		})
	}
	return out
}
