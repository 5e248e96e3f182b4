package region

import (
	"fmt"

	"voxelcascade.ai/internal/sim/grid"
)

// PlaceCircuit builds a switch at at, a line of wires running east and a
// lamp at the far end. The switch starts off.
func (r *Region) PlaceCircuit(at grid.Pos, wires int) (sw, lamp grid.Pos, err error) {
	wireState, err := r.stateOf("WIRE")
	if err != nil {
		return sw, lamp, err
	}
	lampState, err := r.stateOf("LAMP")
	if err != nil {
		return sw, lamp, err
	}
	switchState, err := r.stateOf("SWITCH")
	if err != nil {
		return sw, lamp, err
	}

	p := at
	for i := 0; i < wires; i++ {
		p = p.Relative(grid.East)
		r.SetBlock(p, wireState, grid.DefaultFlags)
	}
	lamp = p.Relative(grid.East)
	r.SetBlock(lamp, lampState, grid.DefaultFlags)
	sw = at
	r.SetBlock(sw, switchState, grid.DefaultFlags)
	return sw, lamp, nil
}

// DropColumn places height blocks of a falling type stacked upward from at.
func (r *Region) DropColumn(at grid.Pos, name string, height int) error {
	s, err := r.stateOf(name)
	if err != nil {
		return err
	}
	p := at
	for i := 0; i < height; i++ {
		r.SetBlock(p, s, grid.DefaultFlags)
		p = p.Relative(grid.Up)
	}
	return nil
}

func (r *Region) stateOf(name string) (grid.BlockState, error) {
	t, ok := r.cat.Parse(name)
	if !ok {
		return 0, fmt.Errorf("region %s: unknown block %s", r.id, name)
	}
	return grid.MakeState(t, 0), nil
}
