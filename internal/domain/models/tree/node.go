package tree

import (
	"bytes"
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"cleantree/internal/config"
)

// BranchID identifies a branch: the id of the parent item, or RootBranch.
// Item ids are never empty, so the empty string is free to mean "root".
type BranchID string

// RootBranch is the branch holding the top-level items.
const RootBranch BranchID = ""

// Branch returns the id of the branch holding the children of itemID.
func Branch(itemID string) BranchID { return BranchID(itemID) }

// IsRoot reports whether b is the root branch.
func (b BranchID) IsRoot() bool { return b == RootBranch }

// String renders the root as "root" for logs.
func (b BranchID) String() string {
	if b.IsRoot() {
		return "root"
	}
	return string(b)
}

// MarshalJSON encodes the root branch as null.
func (b BranchID) MarshalJSON() ([]byte, error) {
	if b.IsRoot() {
		return []byte("null"), nil
	}
	return json.Marshal(string(b))
}

// UnmarshalJSON decodes null (or "") as the root branch.
func (b *BranchID) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*b = RootBranch
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = BranchID(s)
	return nil
}

// Node is the flat form of an item as owned by exactly one branch.
type Node struct {
	ID       string `json:"id" yaml:"id"`
	IsFolder bool   `json:"isFolder,omitempty" yaml:"isFolder,omitempty"`
	IsOpen   bool   `json:"isOpen,omitempty" yaml:"isOpen,omitempty"`
}

// Validate checks the node carries a usable id
func (n Node) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required, validation.Length(1, config.MaxItemIDLength)),
	)
}

// NodeData is the nested seed format. It is flattened once at mount time and
// never used as live state.
type NodeData struct {
	ID       string     `json:"id" yaml:"id"`
	IsFolder bool       `json:"isFolder,omitempty" yaml:"isFolder,omitempty"`
	IsOpen   bool       `json:"isOpen,omitempty" yaml:"isOpen,omitempty"`
	Children []NodeData `json:"children,omitempty" yaml:"children,omitempty"`
}

// Item is a node of the single-tree variant, which keeps the whole nested tree
// as ground truth.
type Item struct {
	ID       string `json:"id"`
	IsFolder bool   `json:"isFolder,omitempty"`
	IsOpen   bool   `json:"isOpen,omitempty"`
	IsDraft  bool   `json:"isDraft,omitempty"` // drafts cannot receive children
	Children []Item `json:"children"`
}

// Clone returns a copy of the items slice (nodes are values).
func Clone(items []Node) []Node {
	if items == nil {
		return []Node{}
	}
	out := make([]Node, len(items))
	copy(out, items)
	return out
}

// IDs returns the ids of items in order.
func IDs(items []Node) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// IndexOf returns the position of id in items, or -1.
func IndexOf(items []Node, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
