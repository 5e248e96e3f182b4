package blocks

import "voxelcascade.ai/internal/sim/grid"

// LampOffDelay is how many ticks a lamp stays lit after losing power.
const LampOffDelay = 4

// Lamp lights as soon as it is powered and goes dark LampOffDelay ticks
// after it stops being powered. Meta 1 is lit.
type Lamp struct {
	Base
	Type grid.BlockType
}

func Lit(state grid.BlockState) bool { return state.Meta()&1 != 0 }

func (lp Lamp) NeighborChanged(l Level, state grid.BlockState, pos grid.Pos, _ grid.BlockType, _ grid.Pos, _ bool) {
	lp.check(l, state, pos)
}

func (lp Lamp) OnPlace(l Level, state, _ grid.BlockState, pos grid.Pos) {
	lp.check(l, state, pos)
}

func (lp Lamp) check(l Level, state grid.BlockState, pos grid.Pos) {
	powered := Powered(l, pos)
	switch {
	case powered && !Lit(state):
		l.SetBlock(pos, state.WithMeta(1), grid.DefaultFlags)
	case !powered && Lit(state):
		l.ScheduleTick(pos, lp.Type, LampOffDelay)
	}
}

func (Lamp) Tick(l Level, state grid.BlockState, pos grid.Pos) {
	if Lit(state) && !Powered(l, pos) {
		l.SetBlock(pos, state.WithMeta(0), grid.DefaultFlags)
	}
}
