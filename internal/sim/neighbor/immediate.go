package neighbor

import (
	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/sim/grid"
)

// Immediate runs every update synchronously through direct calls. Native stack
// depth equals cascade depth, so use it only where cascades are bounded.
type Immediate struct {
	world World
	log   logrus.FieldLogger

	failed int
}

func NewImmediate(w World, opts ...Option) *Immediate {
	o := buildOptions(opts)
	return &Immediate{world: w, log: o.log}
}

// Failed counts recovered reaction panics since construction.
func (u *Immediate) Failed() int { return u.failed }

func (u *Immediate) run(k kind, pos grid.Pos, fn func()) {
	if isolate(u.log, k, pos, fn) {
		u.failed++
	}
}

func (u *Immediate) ShapeUpdate(dir grid.Direction, neighborState grid.BlockState, pos, neighborPos grid.Pos, flags grid.UpdateFlags, maxDepth int) {
	u.run(kindShape, pos, func() {
		executeShape(u.world, dir, neighborState, pos, neighborPos, flags, maxDepth-1)
	})
}

func (u *Immediate) NeighborChanged(pos grid.Pos, cause grid.BlockType, causePos grid.Pos) {
	u.run(kindSimple, pos, func() {
		u.world.NeighborChanged(u.world.BlockState(pos), pos, cause, causePos, false)
	})
}

func (u *Immediate) NeighborChangedState(state grid.BlockState, pos grid.Pos, cause grid.BlockType, causePos grid.Pos, moved bool) {
	u.run(kindFull, pos, func() {
		u.world.NeighborChanged(state, pos, cause, causePos, moved)
	})
}

func (u *Immediate) UpdateNeighborsExcept(pos grid.Pos, cause grid.BlockType, except grid.Direction) {
	for _, d := range UpdateOrder {
		if d == except {
			continue
		}
		u.NeighborChanged(pos.Relative(d), cause, pos)
	}
}
