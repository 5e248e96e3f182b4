package blocks

import "voxelcascade.ai/internal/sim/grid"

// FallDelay is the number of ticks between a falling block noticing free
// space below and dropping one cell.
const FallDelay = 2

// Falling drops one cell per tick while the cell below is air.
type Falling struct {
	Base
	Type grid.BlockType
}

func (f Falling) UpdateShape(l Level, state grid.BlockState, _ grid.Direction, _ grid.BlockState, pos, _ grid.Pos) grid.BlockState {
	l.ScheduleTick(pos, f.Type, FallDelay)
	return state
}

func (f Falling) OnPlace(l Level, _, _ grid.BlockState, pos grid.Pos) {
	l.ScheduleTick(pos, f.Type, FallDelay)
}

func (Falling) Tick(l Level, state grid.BlockState, pos grid.Pos) {
	below := pos.Relative(grid.Down)
	if !l.InBounds(below) || !l.BlockState(below).IsAir() {
		return
	}
	l.SetBlock(pos, 0, grid.DefaultFlags)
	l.SetBlock(below, state, grid.DefaultFlags)
}
