package grid

import "fmt"

// Pos identifies a single cell of the grid.
type Pos struct {
	X int
	Y int
	Z int
}

func (p Pos) Add(o Pos) Pos {
	return Pos{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Relative returns the cell adjacent to p in direction d.
// NoDirection returns p unchanged.
func (p Pos) Relative(d Direction) Pos {
	return p.Add(d.Offset())
}

func (p Pos) String() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// Array returns the persisted [x,y,z] form.
func (p Pos) Array() [3]int {
	return [3]int{p.X, p.Y, p.Z}
}

func PosFromArray(a [3]int) Pos {
	return Pos{X: a[0], Y: a[1], Z: a[2]}
}

// Less orders positions x, then y, then z.
func (p Pos) Less(o Pos) bool {
	if p.X != o.X {
		return p.X < o.X
	}
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.Z < o.Z
}
