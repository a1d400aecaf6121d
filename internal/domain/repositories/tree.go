package repositories

import (
	"context"

	"cleantree/internal/domain/models/tree"
)

// StoredNode is a node together with where it lives.
type StoredNode struct {
	tree.Node
	Parent   tree.BranchID
	Position int
}

// TreeRepository persists many independent trees, each keyed by a tree id.
// Branch lists are ordered by position; positions are dense from zero.
//
// Lookups of unknown items return a domain.NotFoundError. Listing a branch
// that has no children is not an error and yields an empty list.
type TreeRepository interface {
	// ListChildren returns the ordered items of one branch.
	ListChildren(ctx context.Context, treeID string, branch tree.BranchID) ([]tree.Node, error)

	GetNode(ctx context.Context, treeID, id string) (*StoredNode, error)

	// InsertAt adds a new item to branch at index (clamped to the list).
	// An id already present anywhere in the tree is a domain.ConflictError.
	InsertAt(ctx context.Context, treeID string, branch tree.BranchID, index int, node tree.Node) error

	// MoveTo detaches id from its branch and inserts it into branch at index,
	// where index addresses the target list without the item.
	MoveTo(ctx context.Context, treeID, id string, branch tree.BranchID, index int) error

	// Delete removes id and all of its descendants and returns how many
	// items were removed.
	Delete(ctx context.Context, treeID, id string) (int, error)

	SetOpen(ctx context.Context, treeID, id string, isOpen bool) error

	// OpenStates returns the open flag of every item in the tree.
	OpenStates(ctx context.Context, treeID string) (map[string]bool, error)

	// ReplaceTree drops the tree and stores branches in its place.
	ReplaceTree(ctx context.Context, treeID string, branches map[tree.BranchID][]tree.Node) error

	// AllNodes returns every non-empty branch of the tree.
	AllNodes(ctx context.Context, treeID string) (map[tree.BranchID][]tree.Node, error)

	// Trees lists the ids of trees that hold at least one item.
	Trees(ctx context.Context) ([]string, error)
}
