package ticks

import (
	"container/heap"
	"sort"

	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/persistence/snapshot"
	"voxelcascade.ai/internal/sim/grid"
)

// saved is a persisted action that has not been unpacked yet.
type saved[T comparable] struct {
	typ      T
	pos      grid.Pos
	delay    int64
	priority Priority
	name     string
}

// Container is the scheduled-action queue of one chunk column.
// It is owned by a single goroutine.
type Container[T comparable] struct {
	bounds Bounds
	queue  actionHeap[T]
	index  map[key[T]]struct{}

	pending  []saved[T]
	unpacked bool

	nextSeq   int64
	dirty     bool
	savedTick int64
	hasSaved  bool

	// OnAdded observes every action that enters the live queue.
	OnAdded func(TimedAction[T])
}

// NewContainer returns an empty, already unpacked container. A nil bounds
// accepts every position.
func NewContainer[T comparable](bounds Bounds) *Container[T] {
	return &Container[T]{
		bounds:   bounds,
		index:    map[key[T]]struct{}{},
		unpacked: true,
	}
}

func (c *Container[T]) validate(a TimedAction[T]) error {
	var zero T
	if a.Type == zero {
		return ErrInvalidType
	}
	if c.bounds != nil && !c.bounds.Contains(a.Pos) {
		return ErrOutOfBounds
	}
	if !a.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// Schedule inserts a. It is a no-op when an action for the same (pos, type)
// is already present, live or pending. A zero Sequence is replaced by the
// container's own counter.
func (c *Container[T]) Schedule(a TimedAction[T]) (bool, error) {
	if err := c.validate(a); err != nil {
		return false, err
	}
	k := keyOf(a)
	if _, ok := c.index[k]; ok {
		return false, nil
	}
	if a.Sequence == 0 {
		c.nextSeq++
		a.Sequence = c.nextSeq
	}
	c.index[k] = struct{}{}
	heap.Push(&c.queue, a)
	c.dirty = true
	if c.OnAdded != nil {
		c.OnAdded(a)
	}
	return true, nil
}

// Peek returns the earliest live action without removing it.
func (c *Container[T]) Peek() (TimedAction[T], bool) {
	if len(c.queue.items) == 0 {
		var zero TimedAction[T]
		return zero, false
	}
	return c.queue.items[0], true
}

// Poll removes and returns the earliest live action.
func (c *Container[T]) Poll() (TimedAction[T], bool) {
	if len(c.queue.items) == 0 {
		var zero TimedAction[T]
		return zero, false
	}
	a := heap.Pop(&c.queue).(TimedAction[T])
	delete(c.index, keyOf(a))
	c.dirty = true
	return a, true
}

func (c *Container[T]) HasScheduled(pos grid.Pos, typ T) bool {
	_, ok := c.index[key[T]{pos: pos, typ: typ}]
	return ok
}

// RemoveIf evicts every live action matching pred from both the queue and
// the index. Pending records are not visited.
func (c *Container[T]) RemoveIf(pred func(TimedAction[T]) bool) int {
	kept := c.queue.items[:0]
	removed := 0
	for _, a := range c.queue.items {
		if pred(a) {
			delete(c.index, keyOf(a))
			removed++
			continue
		}
		kept = append(kept, a)
	}
	var zero TimedAction[T]
	for i := len(kept); i < len(c.queue.items); i++ {
		c.queue.items[i] = zero
	}
	c.queue.items = kept
	if removed > 0 {
		heap.Init(&c.queue)
		c.dirty = true
	}
	return removed
}

// Count is the live queue size plus pending persisted records.
func (c *Container[T]) Count() int {
	return len(c.queue.items) + len(c.pending)
}

// All returns the live actions in drain order.
func (c *Container[T]) All() []TimedAction[T] {
	out := make([]TimedAction[T], len(c.queue.items))
	copy(out, c.queue.items)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c *Container[T]) Unpacked() bool {
	return c.unpacked
}

// Unpack turns pending records into live actions due at now+delay. It runs
// at most once. Sequences count up from -n so that equal-tick records keep
// their file order and sort ahead of anything scheduled afterwards.
func (c *Container[T]) Unpack(now int64) {
	if c.unpacked {
		return
	}
	c.unpacked = true
	n := int64(len(c.pending))
	for i, p := range c.pending {
		a := TimedAction[T]{
			Type:        p.typ,
			Pos:         p.pos,
			TriggerTick: now + p.delay,
			Priority:    p.priority,
			Sequence:    int64(i) - n,
		}
		heap.Push(&c.queue, a)
		if c.OnAdded != nil {
			c.OnAdded(a)
		}
	}
	c.pending = nil
	c.dirty = true
}

// NeedsSave reports whether the stored form is out of date: something
// changed since the last MarkSaved, or stored delays were computed against a
// different tick.
func (c *Container[T]) NeedsSave(now int64) bool {
	if c.dirty {
		return true
	}
	return c.Count() > 0 && (!c.hasSaved || c.savedTick != now)
}

// Encode returns pending records as-is followed by live actions in drain
// order, as delays relative to now. Live types the codec cannot name are
// skipped. The container is not marked saved until MarkSaved.
func (c *Container[T]) Encode(now int64, codec Codec[T], log logrus.FieldLogger) []snapshot.TickV1 {
	out := make([]snapshot.TickV1, 0, c.Count())
	for _, p := range c.pending {
		out = append(out, snapshot.TickV1{
			Type:     p.name,
			Pos:      p.pos.Array(),
			Delay:    p.delay,
			Priority: int(p.priority),
		})
	}
	for _, a := range c.All() {
		name, ok := codec.Name(a.Type)
		if !ok {
			if log != nil {
				log.WithFields(logrus.Fields{"pos": a.Pos.String()}).Warn("unnamed tick type, not saved")
			}
			continue
		}
		out = append(out, snapshot.TickV1{
			Type:     name,
			Pos:      a.Pos.Array(),
			Delay:    a.TriggerTick - now,
			Priority: int(a.Priority),
		})
	}
	return out
}

// MarkSaved records that the form encoded at now reached storage.
func (c *Container[T]) MarkSaved(now int64) {
	c.dirty = false
	c.savedTick = now
	c.hasSaved = true
}

// LoadContainer builds a container holding records as pending entries.
// Records with unknown type names, positions outside bounds, invalid
// priorities or duplicate keys are skipped with a warning.
func LoadContainer[T comparable](records []snapshot.TickV1, codec Codec[T], bounds Bounds, log logrus.FieldLogger) *Container[T] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Container[T]{
		bounds:  bounds,
		index:   make(map[key[T]]struct{}, len(records)),
		pending: make([]saved[T], 0, len(records)),
	}
	var zero T
	for _, r := range records {
		pos := grid.PosFromArray(r.Pos)
		fields := logrus.Fields{"type": r.Type, "pos": pos.String()}
		typ, ok := codec.Parse(r.Type)
		if !ok || typ == zero {
			log.WithFields(fields).Warn("unknown tick type, skipping")
			continue
		}
		if bounds != nil && !bounds.Contains(pos) {
			log.WithFields(fields).Warn("tick outside container, skipping")
			continue
		}
		prio := Priority(r.Priority)
		if r.Priority < int(ExtremelyHigh) || r.Priority > int(ExtremelyLow) {
			log.WithFields(fields).WithField("priority", r.Priority).Warn("invalid tick priority, skipping")
			continue
		}
		k := key[T]{pos: pos, typ: typ}
		if _, dup := c.index[k]; dup {
			log.WithFields(fields).Warn("duplicate tick, skipping")
			continue
		}
		c.index[k] = struct{}{}
		c.pending = append(c.pending, saved[T]{typ: typ, pos: pos, delay: r.Delay, priority: prio, name: r.Type})
	}
	return c
}
