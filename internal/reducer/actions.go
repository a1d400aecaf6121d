package reducer

import "cleantree/internal/domain/models/tree"

// Action is the closed set of transitions the single-tree reducer accepts.
type Action interface {
	TargetItemID() string
	isAction()
}

// Toggle flips isOpen on an item that has children.
type Toggle struct{ ItemID string }

// Expand opens an item that has children; no-op if already open.
type Expand struct{ ItemID string }

// Collapse closes an item that has children; no-op if already closed.
type Collapse struct{ ItemID string }

// ApplyInstruction moves ItemID relative to TargetID per a drop operation.
type ApplyInstruction struct {
	ItemID      string
	TargetID    string
	Instruction tree.DropOperation
}

// ModalMove places ItemID at Index among TargetID's children. An empty
// TargetID means the top level.
type ModalMove struct {
	ItemID   string
	TargetID string
	Index    int
}

func (a Toggle) TargetItemID() string           { return a.ItemID }
func (a Expand) TargetItemID() string           { return a.ItemID }
func (a Collapse) TargetItemID() string         { return a.ItemID }
func (a ApplyInstruction) TargetItemID() string { return a.ItemID }
func (a ModalMove) TargetItemID() string        { return a.ItemID }

func (Toggle) isAction()           {}
func (Expand) isAction()           {}
func (Collapse) isAction()         {}
func (ApplyInstruction) isAction() {}
func (ModalMove) isAction()        {}
