package ticks

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/sim/grid"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

type kind uint8

const (
	none kind = iota
	lamp
	sand
	wire
)

var kindNames = map[kind]string{lamp: "LAMP", sand: "SAND", wire: "WIRE"}

type kindCodec struct{}

func (kindCodec) Name(k kind) (string, bool) {
	n, ok := kindNames[k]
	return n, ok
}

func (kindCodec) Parse(name string) (kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return none, false
}

func p(x, y, z int) grid.Pos { return grid.Pos{X: x, Y: y, Z: z} }

func at(typ kind, pos grid.Pos, trigger int64, prio Priority) TimedAction[kind] {
	return TimedAction[kind]{Type: typ, Pos: pos, TriggerTick: trigger, Priority: prio}
}

func drain(c *Container[kind]) []TimedAction[kind] {
	var out []TimedAction[kind]
	for {
		a, ok := c.Poll()
		if !ok {
			return out
		}
		out = append(out, a)
	}
}
