package neighbor

import "voxelcascade.ai/internal/sim/grid"

type kind uint8

const (
	kindShape kind = iota + 1
	kindFull
	kindSimple
	kindMulti
)

func (k kind) String() string {
	switch k {
	case kindShape:
		return "shape"
	case kindFull:
		return "full_neighbor"
	case kindSimple:
		return "simple_neighbor"
	case kindMulti:
		return "multi_direction"
	}
	return "unknown"
}

// pending is one queued unit of work. Entries are stored by value in the
// batching stack; only the fields of the entry's kind are meaningful.
type pending struct {
	kind kind
	pos  grid.Pos

	// shape
	dir           grid.Direction
	neighborState grid.BlockState
	flags         grid.UpdateFlags
	depth         int

	// neighbor variants; causePos doubles as neighborPos for shape entries
	causePos grid.Pos
	state    grid.BlockState
	cause    grid.BlockType
	moved    bool

	// multi: next index into UpdateOrder
	skip   grid.Direction
	cursor int
}

func shapeEntry(dir grid.Direction, neighborState grid.BlockState, pos, neighborPos grid.Pos, flags grid.UpdateFlags, maxDepth int) pending {
	return pending{kind: kindShape, dir: dir, neighborState: neighborState, pos: pos, causePos: neighborPos, flags: flags, depth: maxDepth - 1}
}

func fullEntry(state grid.BlockState, pos grid.Pos, cause grid.BlockType, causePos grid.Pos, moved bool) pending {
	return pending{kind: kindFull, state: state, pos: pos, cause: cause, causePos: causePos, moved: moved}
}

func simpleEntry(pos grid.Pos, cause grid.BlockType, causePos grid.Pos) pending {
	return pending{kind: kindSimple, pos: pos, cause: cause, causePos: causePos}
}

func multiEntry(pos grid.Pos, cause grid.BlockType, except grid.Direction) pending {
	p := pending{kind: kindMulti, pos: pos, cause: cause, causePos: pos, skip: except}
	p.skipExcluded()
	return p
}

func (p *pending) skipExcluded() {
	if p.cursor < len(UpdateOrder) && UpdateOrder[p.cursor] == p.skip {
		p.cursor++
	}
}

func (p *pending) hasMore() bool {
	return p.kind == kindMulti && p.cursor < len(UpdateOrder)
}

// step runs one unit of work and reports whether the entry has more to do.
// Multi-direction entries advance their cursor before invoking the callback,
// so a failing neighbor does not repeat.
func (p *pending) step(w World) bool {
	switch p.kind {
	case kindShape:
		executeShape(w, p.dir, p.neighborState, p.pos, p.causePos, p.flags, p.depth)
	case kindFull:
		w.NeighborChanged(p.state, p.pos, p.cause, p.causePos, p.moved)
	case kindSimple:
		w.NeighborChanged(w.BlockState(p.pos), p.pos, p.cause, p.causePos, false)
	case kindMulti:
		np := p.pos.Relative(UpdateOrder[p.cursor])
		p.cursor++
		p.skipExcluded()
		w.NeighborChanged(w.BlockState(np), np, p.cause, p.pos, false)
		return p.hasMore()
	}
	return false
}
