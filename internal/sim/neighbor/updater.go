// Package neighbor propagates block changes to adjacent cells.
//
// A single write can fan out into an arbitrarily long cascade of re-evaluations.
// Two strategies implement the same Updater contract: Immediate recurses on the
// native stack and is only safe where cascades are bounded by context (world
// generation), Batching drains an explicit work stack and bounds the cascade.
package neighbor

import (
	"voxelcascade.ai/internal/sim/grid"
)

// UpdateOrder is the order in which the six neighbors of a changed cell are notified.
var UpdateOrder = [6]grid.Direction{grid.West, grid.East, grid.Down, grid.Up, grid.North, grid.South}

// ShapeOrder is the order in which shape updates fan out from a changed cell.
var ShapeOrder = [6]grid.Direction{grid.West, grid.East, grid.North, grid.South, grid.Down, grid.Up}

// World is the grid accessor the updaters drive. Implementations may call back
// into the Updater from any of these methods.
type World interface {
	BlockState(pos grid.Pos) grid.BlockState

	// UpdateShape re-derives the state at pos after its neighbor in direction dir
	// became neighborState.
	UpdateShape(state grid.BlockState, dir grid.Direction, neighborState grid.BlockState, pos, neighborPos grid.Pos) grid.BlockState

	// ReplaceShape installs a re-derived state. depth is the remaining shape
	// budget for any shape updates the write fans out.
	ReplaceShape(old, updated grid.BlockState, pos grid.Pos, flags grid.UpdateFlags, depth int)

	// NeighborChanged runs the reaction of the block at pos to a change at causePos.
	NeighborChanged(state grid.BlockState, pos grid.Pos, cause grid.BlockType, causePos grid.Pos, moved bool)
}

// ShapeSkipper is implemented by worlds that exempt some blocks from shape
// updates flagged with grid.SkipWireShape.
type ShapeSkipper interface {
	SkipsShapeUpdates(state grid.BlockState) bool
}

// Updater is the public contract both strategies satisfy.
type Updater interface {
	// ShapeUpdate asks the block at pos to re-derive its state because the
	// block at neighborPos (in direction dir) is now neighborState.
	// maxDepth is the remaining hop budget; the update is dropped once it runs out.
	ShapeUpdate(dir grid.Direction, neighborState grid.BlockState, pos, neighborPos grid.Pos, flags grid.UpdateFlags, maxDepth int)

	// NeighborChanged reacts the block currently at pos to a change at causePos.
	NeighborChanged(pos grid.Pos, cause grid.BlockType, causePos grid.Pos)

	// NeighborChangedState is NeighborChanged with the state captured by the caller.
	NeighborChangedState(state grid.BlockState, pos grid.Pos, cause grid.BlockType, causePos grid.Pos, moved bool)

	// UpdateNeighborsExcept notifies every neighbor of pos in UpdateOrder, skipping except.
	UpdateNeighborsExcept(pos grid.Pos, cause grid.BlockType, except grid.Direction)
}

// UpdateNeighbors notifies all six neighbors of pos.
func UpdateNeighbors(u Updater, pos grid.Pos, cause grid.BlockType) {
	u.UpdateNeighborsExcept(pos, cause, grid.NoDirection)
}

// UpdateShapes fans shape updates out from pos, which now holds state.
func UpdateShapes(u Updater, state grid.BlockState, pos grid.Pos, flags grid.UpdateFlags, maxDepth int) {
	for _, d := range ShapeOrder {
		u.ShapeUpdate(d.Opposite(), state, pos.Relative(d), pos, flags, maxDepth)
	}
}

func executeShape(w World, dir grid.Direction, neighborState grid.BlockState, pos, neighborPos grid.Pos, flags grid.UpdateFlags, depth int) {
	if depth < 0 {
		return
	}
	state := w.BlockState(pos)
	if flags.Has(grid.SkipWireShape) {
		if s, ok := w.(ShapeSkipper); ok && s.SkipsShapeUpdates(state) {
			return
		}
	}
	updated := w.UpdateShape(state, dir, neighborState, pos, neighborPos)
	w.ReplaceShape(state, updated, pos, flags, depth)
}
