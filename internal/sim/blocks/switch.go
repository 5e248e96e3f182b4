package blocks

import "voxelcascade.ai/internal/sim/grid"

// Switch emits full power while on (meta 1).
type Switch struct{ Base }

func (Switch) Power(state grid.BlockState) uint8 {
	if state.Meta()&1 != 0 {
		return MaxPower
	}
	return 0
}

// Toggle flips the switch at pos. It reports false when pos holds no switch.
func Toggle(l Level, pos grid.Pos) bool {
	s := l.BlockState(pos)
	if _, ok := l.BehaviorOf(s.Type()).(Switch); !ok {
		return false
	}
	return l.SetBlock(pos, s.WithMeta(s.Meta()^1), grid.DefaultFlags)
}
