package tree

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MoveArgs is what the backing store needs to confirm a move.
type MoveArgs struct {
	ItemID         string   `json:"itemId"`
	SourceBranchID BranchID `json:"sourceBranchId"`
	TargetBranchID BranchID `json:"targetBranchId"`
	TargetIndex    int      `json:"targetIndex"`
}

// Validate checks the structural fields of a move
func (a MoveArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ItemID, validation.Required),
		validation.Field(&a.TargetIndex, validation.Min(0)),
	)
}

// SameBranch reports whether the move is a reorder within one branch.
func (a MoveArgs) SameBranch() bool { return a.SourceBranchID == a.TargetBranchID }

// MoveResult is the authoritative post-move contents of both branches.
// Both lists are identical when source and target are the same branch.
type MoveResult struct {
	SourceBranchItems []Node `json:"sourceBranchItems"`
	TargetBranchItems []Node `json:"targetBranchItems"`
}

// MoveRequest is the payload of a drop. It carries a full snapshot of the item
// so the target branch never has to ask the source for data.
type MoveRequest struct {
	ItemID         string      `json:"itemId"`
	Item           Node        `json:"item"`
	SourceBranchID BranchID    `json:"sourceBranchId"`
	TargetBranchID BranchID    `json:"targetBranchId"`
	TargetIndex    int         `json:"targetIndex"`
	Instruction    Instruction `json:"instruction"`
}

// Args strips the request down to what the backing store confirms.
func (r MoveRequest) Args() MoveArgs {
	return MoveArgs{
		ItemID:         r.ItemID,
		SourceBranchID: r.SourceBranchID,
		TargetBranchID: r.TargetBranchID,
		TargetIndex:    r.TargetIndex,
	}
}

// PendingItem is a drop addressed to a branch that was not mounted.
type PendingItem struct {
	Item           Node     `json:"item"`
	Index          int      `json:"index"`
	SourceBranchID BranchID `json:"sourceBranchId"`
}
