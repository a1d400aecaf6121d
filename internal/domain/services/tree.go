package services

import (
	"context"

	"cleantree/internal/domain/models/tree"
	"cleantree/internal/event"
)

// TreeService is the authoritative side of every branch handler. Each tree
// is independent and addressed by its id.
type TreeService interface {
	// LoadChildren returns the ordered children of a branch
	LoadChildren(ctx context.Context, treeID string, branch tree.BranchID) ([]tree.Node, error)

	// MoveItem relocates an item and returns both affected branch lists
	MoveItem(ctx context.Context, treeID string, args tree.MoveArgs) (*tree.MoveResult, error)

	// CreateItem appends a new item (or folder) and returns the branch list
	CreateItem(ctx context.Context, treeID string, req *CreateItemRequest) ([]tree.Node, error)

	// DeleteItem removes an item, or a folder with its subtree, and returns
	// the remaining branch list
	DeleteItem(ctx context.Context, treeID string, req *DeleteItemRequest) ([]tree.Node, error)

	// SetOpenState persists whether an item is expanded
	SetOpenState(ctx context.Context, treeID, itemID string, isOpen bool) error

	// GetTree exports the whole tree in nested form
	GetTree(ctx context.Context, treeID string) ([]tree.NodeData, error)

	// Seed replaces the tree with nested seed data
	Seed(ctx context.Context, treeID string, data []tree.NodeData) error

	// ListTrees returns the ids of non-empty trees
	ListTrees(ctx context.Context) ([]string, error)

	// Watch delivers the change feed of one tree to listener until the
	// returned function is called. Listeners must not block.
	Watch(treeID string, listener event.Listener) (stop func())
}

// CreateItemRequest represents an item or folder creation request
type CreateItemRequest struct {
	Parent tree.BranchID `json:"parentId"`
	Item   tree.Node     `json:"item"` // empty id = generated
	Folder bool          `json:"folder"`
}

// DeleteItemRequest represents an item or folder removal request
type DeleteItemRequest struct {
	Branch tree.BranchID `json:"branchId"`
	ItemID string        `json:"itemId"`
	Folder bool          `json:"folder"`
}
