package grid

import (
	"fmt"
	"strings"
)

// Direction is one of the six axis-aligned faces of a cell.
type Direction int8

const (
	NoDirection Direction = iota - 1
	Down
	Up
	North
	South
	West
	East
)

// Directions lists the six faces in declaration order.
var Directions = [6]Direction{Down, Up, North, South, West, East}

var directionOffsets = [6]Pos{
	Down:  {Y: -1},
	Up:    {Y: 1},
	North: {Z: -1},
	South: {Z: 1},
	West:  {X: -1},
	East:  {X: 1},
}

var directionNames = [6]string{"down", "up", "north", "south", "west", "east"}

func (d Direction) Valid() bool {
	return d >= Down && d <= East
}

func (d Direction) Offset() Pos {
	if !d.Valid() {
		return Pos{}
	}
	return directionOffsets[d]
}

func (d Direction) Opposite() Direction {
	switch d {
	case Down:
		return Up
	case Up:
		return Down
	case North:
		return South
	case South:
		return North
	case West:
		return East
	case East:
		return West
	}
	return NoDirection
}

func (d Direction) String() string {
	if !d.Valid() {
		return "none"
	}
	return directionNames[d]
}

func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return NoDirection, nil
	}
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return NoDirection, fmt.Errorf("unknown direction %q", s)
}
