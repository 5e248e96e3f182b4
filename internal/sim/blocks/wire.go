package blocks

import "voxelcascade.ai/internal/sim/grid"

// Wire carries power, losing one level per cell. Its meta is the level.
type Wire struct{ Base }

func (Wire) Power(state grid.BlockState) uint8 { return state.Meta() }

func (w Wire) NeighborChanged(l Level, state grid.BlockState, pos grid.Pos, _ grid.BlockType, _ grid.Pos, _ bool) {
	w.refresh(l, state, pos)
}

func (w Wire) OnPlace(l Level, state, _ grid.BlockState, pos grid.Pos) {
	w.refresh(l, state, pos)
}

func (Wire) refresh(l Level, state grid.BlockState, pos grid.Pos) {
	level := signalAt(l, pos, true)
	if level == state.Meta() {
		return
	}
	l.SetBlock(pos, state.WithMeta(level), grid.DefaultFlags)
}
