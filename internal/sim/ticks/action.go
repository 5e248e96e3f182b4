// Package ticks holds actions deferred to a future simulation tick.
//
// A Container is the per-chunk queue: a heap ordered by
// (TriggerTick, Priority, Sequence) plus a (pos, type) index that makes
// scheduling idempotent. Containers persist as relative delays against the
// tick they were saved at, and materialize back into absolute ticks on Unpack.
// A Scheduler drives all containers of a region in one global order.
package ticks

import (
	"errors"
	"fmt"

	"voxelcascade.ai/internal/sim/grid"
)

var (
	ErrInvalidType = errors.New("ticks: invalid action type")
	ErrOutOfBounds = errors.New("ticks: position outside container")
	ErrNotLoaded   = errors.New("ticks: no container for position")

	ErrInvalidPriority = errors.New("ticks: priority outside extremely_high..extremely_low")
)

// Priority breaks ties between actions due on the same tick. Lower runs first.
type Priority int8

const (
	ExtremelyHigh Priority = -3
	VeryHigh      Priority = -2
	High          Priority = -1
	Normal        Priority = 0
	Low           Priority = 1
	VeryLow       Priority = 2
	ExtremelyLow  Priority = 3
)

func (p Priority) Valid() bool {
	return p >= ExtremelyHigh && p <= ExtremelyLow
}

func (p Priority) String() string {
	switch p {
	case ExtremelyHigh:
		return "extremely_high"
	case VeryHigh:
		return "very_high"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	case VeryLow:
		return "very_low"
	case ExtremelyLow:
		return "extremely_low"
	}
	return fmt.Sprintf("priority(%d)", int8(p))
}

// TimedAction is one deferred action. At most one live action exists per
// (Pos, Type) in a container.
type TimedAction[T comparable] struct {
	Type        T
	Pos         grid.Pos
	TriggerTick int64
	Priority    Priority
	Sequence    int64
}

// Before is the total drain order: TriggerTick, then Priority, then Sequence.
func (a TimedAction[T]) Before(b TimedAction[T]) bool {
	if a.TriggerTick != b.TriggerTick {
		return a.TriggerTick < b.TriggerTick
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Sequence < b.Sequence
}

type key[T comparable] struct {
	pos grid.Pos
	typ T
}

func keyOf[T comparable](a TimedAction[T]) key[T] {
	return key[T]{pos: a.Pos, typ: a.Type}
}

// Bounds restricts which positions a container accepts. grid.ChunkKey
// satisfies it.
type Bounds interface {
	Contains(p grid.Pos) bool
}

// Codec maps action types to the names stored on disk.
type Codec[T comparable] interface {
	Name(t T) (string, bool)
	Parse(name string) (T, bool)
}
