package ticks

import (
	"container/heap"
	"sort"

	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/sim/grid"
)

// Scheduler dispatches the containers of one region. Sequences are
// allocated region-wide so that order is global across chunk columns.
type Scheduler[T comparable] struct {
	containers map[grid.ChunkKey]*Container[T]
	seq        int64
	rank       func(T) Priority
	log        logrus.FieldLogger

	// due is reused between ticks.
	due []TimedAction[T]
}

type SchedulerOption[T comparable] func(*Scheduler[T])

// WithRank sets the default priority of each action type.
func WithRank[T comparable](rank func(T) Priority) SchedulerOption[T] {
	return func(s *Scheduler[T]) { s.rank = rank }
}

func WithSchedulerLogger[T comparable](log logrus.FieldLogger) SchedulerOption[T] {
	return func(s *Scheduler[T]) { s.log = log }
}

func NewScheduler[T comparable](opts ...SchedulerOption[T]) *Scheduler[T] {
	s := &Scheduler[T]{
		containers: map[grid.ChunkKey]*Container[T]{},
		log:        logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Activate attaches c for chunk k and unpacks it against now.
func (s *Scheduler[T]) Activate(k grid.ChunkKey, c *Container[T], now int64) {
	if old, ok := s.containers[k]; ok && old != c {
		s.log.WithField("chunk", k).Warn("replacing active tick container")
	}
	c.Unpack(now)
	s.containers[k] = c
}

// Deactivate detaches and returns the container of chunk k.
func (s *Scheduler[T]) Deactivate(k grid.ChunkKey) (*Container[T], bool) {
	c, ok := s.containers[k]
	if ok {
		delete(s.containers, k)
	}
	return c, ok
}

func (s *Scheduler[T]) Container(k grid.ChunkKey) (*Container[T], bool) {
	c, ok := s.containers[k]
	return c, ok
}

// Keys returns the active chunk keys in key order.
func (s *Scheduler[T]) Keys() []grid.ChunkKey {
	keys := make([]grid.ChunkKey, 0, len(s.containers))
	for k := range s.containers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Schedule adds an action due at trigger. It reports whether the action was
// new; scheduling into a chunk with no active container is ErrNotLoaded.
func (s *Scheduler[T]) Schedule(typ T, pos grid.Pos, trigger int64, prio Priority) (bool, error) {
	c, ok := s.containers[grid.ChunkKeyOf(pos)]
	if !ok {
		return false, ErrNotLoaded
	}
	a := TimedAction[T]{Type: typ, Pos: pos, TriggerTick: trigger, Priority: prio}
	if err := c.validate(a); err != nil {
		return false, err
	}
	if c.HasScheduled(pos, typ) {
		return false, nil
	}
	s.seq++
	a.Sequence = s.seq
	return c.Schedule(a)
}

// ScheduleDefault schedules with the type's ranked priority, or Normal.
func (s *Scheduler[T]) ScheduleDefault(typ T, pos grid.Pos, trigger int64) (bool, error) {
	prio := Normal
	if s.rank != nil {
		prio = s.rank(typ)
	}
	return s.Schedule(typ, pos, trigger, prio)
}

func (s *Scheduler[T]) HasScheduled(pos grid.Pos, typ T) bool {
	c, ok := s.containers[grid.ChunkKeyOf(pos)]
	return ok && c.HasScheduled(pos, typ)
}

// Count sums every active container.
func (s *Scheduler[T]) Count() int {
	n := 0
	for _, c := range s.containers {
		n += c.Count()
	}
	return n
}

// RemoveIf applies pred to every active container.
func (s *Scheduler[T]) RemoveIf(pred func(TimedAction[T]) bool) int {
	n := 0
	for _, c := range s.containers {
		n += c.RemoveIf(pred)
	}
	return n
}

// Tick polls every action due at or before now, up to budget (negative
// means unlimited), in global order, then runs them. Actions scheduled
// while running wait for a later tick. It returns the number run.
func (s *Scheduler[T]) Tick(now int64, budget int, run func(TimedAction[T])) int {
	var ready containerHeap[T]
	for k, c := range s.containers {
		if a, ok := c.Peek(); ok && a.TriggerTick <= now {
			ready.items = append(ready.items, readyContainer[T]{key: k, c: c, head: a})
		}
	}
	heap.Init(&ready)

	s.due = s.due[:0]
	for ready.Len() > 0 && (budget < 0 || len(s.due) < budget) {
		top := &ready.items[0]
		a, _ := top.c.Poll()
		s.due = append(s.due, a)
		if next, ok := top.c.Peek(); ok && next.TriggerTick <= now {
			top.head = next
			heap.Fix(&ready, 0)
		} else {
			heap.Pop(&ready)
		}
	}
	if ready.Len() > 0 {
		s.log.WithFields(logrus.Fields{"tick": now, "budget": budget}).Debug("tick budget reached, deferring the rest")
	}

	due := s.due
	for _, a := range due {
		run(a)
	}
	var zero TimedAction[T]
	for i := range due {
		due[i] = zero
	}
	return len(due)
}

type readyContainer[T comparable] struct {
	key  grid.ChunkKey
	c    *Container[T]
	head TimedAction[T]
}

// containerHeap orders containers by their head action, then chunk key.
type containerHeap[T comparable] struct {
	items []readyContainer[T]
}

func (h *containerHeap[T]) Len() int { return len(h.items) }

func (h *containerHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.head.Before(b.head) {
		return true
	}
	if b.head.Before(a.head) {
		return false
	}
	return a.key.Less(b.key)
}

func (h *containerHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *containerHeap[T]) Push(x any) { h.items = append(h.items, x.(readyContainer[T])) }

func (h *containerHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
