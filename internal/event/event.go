// Package event defines the structural notifications exchanged between
// branches of one tree, and the bus that carries them.
package event

import "cleantree/internal/domain/models/tree"

// Kind names an event for logs and the wire.
type Kind string

const (
	KindItemDropRequested     Kind = "item-drop-requested"
	KindItemAdded             Kind = "item-added"
	KindBranchChildrenChanged Kind = "branch-children-changed"
	KindBranchReconcile       Kind = "branch-reconcile"
	KindOpenStateChanged      Kind = "open-state-changed"
	KindItemCreated           Kind = "item-created"
	KindItemDeleted           Kind = "item-deleted"
)

// Event is a closed sum type; listeners switch on the concrete type.
type Event interface {
	Kind() Kind
	isEvent()
}

// ItemDropRequested asks the source and target branches to carry out a move.
type ItemDropRequested struct {
	Request tree.MoveRequest `json:"payload"`
}

// ItemAdded reports that a branch finished inserting an item.
type ItemAdded struct {
	BranchID tree.BranchID `json:"branchId"`
	ItemID   string        `json:"itemId"`
}

// BranchChildrenChanged reports a branch crossing between empty and non-empty.
type BranchChildrenChanged struct {
	BranchID    tree.BranchID `json:"branchId"`
	HasChildren bool          `json:"hasChildren"`
}

// BranchReconcile overwrites a branch's items with an authoritative list.
type BranchReconcile struct {
	BranchID tree.BranchID `json:"branchId"`
	Items    []tree.Node   `json:"items"`
}

// OpenStateChanged reports a persisted expand/collapse change.
type OpenStateChanged struct {
	BranchID tree.BranchID `json:"branchId"`
	ItemID   string        `json:"itemId"`
	IsOpen   bool          `json:"isOpen"`
}

// ItemCreated reports an optimistic create. Folder distinguishes folders.
type ItemCreated struct {
	BranchID tree.BranchID `json:"branchId"`
	Item     tree.Node     `json:"item"`
	Folder   bool          `json:"folder"`
}

// ItemDeleted reports an optimistic delete. Folder distinguishes folders.
type ItemDeleted struct {
	BranchID tree.BranchID `json:"branchId"`
	ItemID   string        `json:"itemId"`
	Folder   bool          `json:"folder"`
}

func (ItemDropRequested) Kind() Kind     { return KindItemDropRequested }
func (ItemAdded) Kind() Kind             { return KindItemAdded }
func (BranchChildrenChanged) Kind() Kind { return KindBranchChildrenChanged }
func (BranchReconcile) Kind() Kind       { return KindBranchReconcile }
func (OpenStateChanged) Kind() Kind      { return KindOpenStateChanged }
func (ItemCreated) Kind() Kind           { return KindItemCreated }
func (ItemDeleted) Kind() Kind           { return KindItemDeleted }

func (ItemDropRequested) isEvent()     {}
func (ItemAdded) isEvent()             {}
func (BranchChildrenChanged) isEvent() {}
func (BranchReconcile) isEvent()       {}
func (OpenStateChanged) isEvent()      {}
func (ItemCreated) isEvent()           {}
func (ItemDeleted) isEvent()           {}
