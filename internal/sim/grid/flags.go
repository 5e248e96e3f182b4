package grid

// UpdateFlags controls how a block write propagates.
type UpdateFlags uint16

const (
	// NotifyNeighbors fires neighbor-changed reactions on the six adjacent cells.
	NotifyNeighbors UpdateFlags = 1 << iota
	// NotifyClients marks the write as visible to observers.
	NotifyClients
	NoRerender
	// ForceState writes the state without running the old block's removal logic.
	ForceState
	// SuppressReaction skips both neighbor reactions and shape fan-out.
	SuppressReaction
	// MovedByForce marks a block displaced by an external force (pistons, gravity).
	MovedByForce
	// SkipWireShape keeps shape updates from re-deriving wire-like blocks.
	SkipWireShape
)

// DefaultFlags is what a plain placement uses.
const DefaultFlags = NotifyNeighbors | NotifyClients

func (f UpdateFlags) Has(o UpdateFlags) bool {
	return f&o == o
}

func (f UpdateFlags) Without(o UpdateFlags) UpdateFlags {
	return f &^ o
}
