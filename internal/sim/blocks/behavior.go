// Package blocks holds the reactions of the few block types the engine ships
// with: power wires, switches, lamps and falling blocks.
package blocks

import (
	"voxelcascade.ai/internal/sim/catalogs"
	"voxelcascade.ai/internal/sim/grid"
)

// Level is the world a behavior reads and mutates.
type Level interface {
	BlockState(pos grid.Pos) grid.BlockState
	InBounds(pos grid.Pos) bool

	// SetBlock writes state and fans the change out; it reports whether
	// anything changed.
	SetBlock(pos grid.Pos, state grid.BlockState, flags grid.UpdateFlags) bool

	// ScheduleTick runs the Tick of typ at pos after delay ticks, unless one
	// is already pending.
	ScheduleTick(pos grid.Pos, typ grid.BlockType, delay int64)

	BehaviorOf(t grid.BlockType) Behavior
}

type Behavior interface {
	// UpdateShape returns the state pos should hold now that its neighbor in
	// direction dir is neighborState.
	UpdateShape(l Level, state grid.BlockState, dir grid.Direction, neighborState grid.BlockState, pos, neighborPos grid.Pos) grid.BlockState

	NeighborChanged(l Level, state grid.BlockState, pos grid.Pos, cause grid.BlockType, causePos grid.Pos, moved bool)

	// Tick runs a scheduled tick.
	Tick(l Level, state grid.BlockState, pos grid.Pos)

	// OnPlace runs after state replaced a block of a different type.
	OnPlace(l Level, state, old grid.BlockState, pos grid.Pos)
}

// PowerSource is a behavior that emits a signal level 0..MaxPower.
type PowerSource interface {
	Power(state grid.BlockState) uint8
}

const MaxPower = 15

// Base reacts to nothing.
type Base struct{}

func (Base) UpdateShape(_ Level, state grid.BlockState, _ grid.Direction, _ grid.BlockState, _, _ grid.Pos) grid.BlockState {
	return state
}

func (Base) NeighborChanged(Level, grid.BlockState, grid.Pos, grid.BlockType, grid.Pos, bool) {}

func (Base) Tick(Level, grid.BlockState, grid.Pos) {}

func (Base) OnPlace(Level, grid.BlockState, grid.BlockState, grid.Pos) {}

// Registry maps block types to behaviors by the catalog's behavior names.
type Registry struct {
	byType []Behavior
}

func NewRegistry(cat *catalogs.BlockCatalog) *Registry {
	r := &Registry{byType: make([]Behavior, len(cat.Palette))}
	for i, name := range cat.Palette {
		t := grid.BlockType(i)
		switch cat.Defs[name].Behavior {
		case "wire":
			r.byType[i] = Wire{}
		case "switch":
			r.byType[i] = Switch{}
		case "lamp":
			r.byType[i] = Lamp{Type: t}
		case "falling":
			r.byType[i] = Falling{Type: t}
		default:
			r.byType[i] = Base{}
		}
	}
	return r
}

// For never returns nil.
func (r *Registry) For(t grid.BlockType) Behavior {
	if int(t) < len(r.byType) {
		return r.byType[t]
	}
	return Base{}
}

// signalAt is the strongest signal any neighbor feeds into pos. With
// wireLoss set, signals arriving from wires lose one level.
func signalAt(l Level, pos grid.Pos, wireLoss bool) uint8 {
	var best uint8
	for _, d := range grid.Directions {
		s := l.BlockState(pos.Relative(d))
		src, ok := l.BehaviorOf(s.Type()).(PowerSource)
		if !ok {
			continue
		}
		p := src.Power(s)
		if _, wire := src.(Wire); wire && wireLoss && p > 0 {
			p--
		}
		if p > best {
			best = p
		}
	}
	return best
}

// Powered reports whether any neighbor feeds pos a signal.
func Powered(l Level, pos grid.Pos) bool {
	return signalAt(l, pos, false) > 0
}
