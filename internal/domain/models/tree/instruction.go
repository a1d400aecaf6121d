package tree

// InstructionType classifies a drop produced by hit-testing a tree row.
type InstructionType string

const (
	ReorderAbove InstructionType = "reorder-above"
	ReorderBelow InstructionType = "reorder-below"
	MakeChild    InstructionType = "make-child"
	Reparent     InstructionType = "reparent"
)

// Instruction is the black-box output of the drag gesture layer.
type Instruction struct {
	Type InstructionType `json:"type"`
	// DesiredLevel is the depth to reparent to (Reparent only); 0 is root.
	DesiredLevel int  `json:"desiredLevel,omitempty"`
	Blocked      bool `json:"blocked,omitempty"`
}

// Operation is the list-style classification used by the single-tree reducer.
type Operation string

const (
	ReorderBefore Operation = "reorder-before"
	ReorderAfter  Operation = "reorder-after"
	Combine       Operation = "combine"
)

// DropOperation is a list-style instruction consumed by the reducer.
type DropOperation struct {
	Operation Operation `json:"operation"`
	Blocked   bool      `json:"blocked,omitempty"`
}
