package neighbor

import (
	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/sim/grid"
)

// DefaultMaxChained is the admitted-update cap per drain used when none is configured.
const DefaultMaxChained = 1_000_000

// DrainStats accumulates over the updater's lifetime.
type DrainStats struct {
	Drains   int
	Executed int
	Dropped  int
	Failed   int
}

// Batching drains cascades iteratively with an explicit LIFO stack plus a
// per-layer buffer.
//
// Updates emitted while the top entry runs are collected in the layer buffer
// and pushed in reverse once the entry yields, so a caller's direct effects
// run in emission order before effects-of-effects begin. Only the outermost
// call drains; reentrant calls from reactions append to the layer buffer.
type Batching struct {
	world      World
	maxChained int
	log        logrus.FieldLogger
	reporter   Reporter

	stack   []pending
	layer   []pending
	session DrainSession
	stats   DrainStats
}

// NewBatching returns a batching updater. maxChained caps admitted updates per
// drain; a negative value disables the cap.
func NewBatching(w World, maxChained int, opts ...Option) *Batching {
	o := buildOptions(opts)
	return &Batching{
		world:      w,
		maxChained: maxChained,
		log:        o.log,
		reporter:   o.reporter,
	}
}

func (b *Batching) Stats() DrainStats { return b.stats }

// Draining reports whether a drain is in progress.
func (b *Batching) Draining() bool { return b.session.Active() }

func (b *Batching) ShapeUpdate(dir grid.Direction, neighborState grid.BlockState, pos, neighborPos grid.Pos, flags grid.UpdateFlags, maxDepth int) {
	b.addAndRun(pos, shapeEntry(dir, neighborState, pos, neighborPos, flags, maxDepth))
}

func (b *Batching) NeighborChanged(pos grid.Pos, cause grid.BlockType, causePos grid.Pos) {
	b.addAndRun(pos, simpleEntry(pos, cause, causePos))
}

func (b *Batching) NeighborChangedState(state grid.BlockState, pos grid.Pos, cause grid.BlockType, causePos grid.Pos, moved bool) {
	b.addAndRun(pos, fullEntry(state, pos, cause, causePos, moved))
}

func (b *Batching) UpdateNeighborsExcept(pos grid.Pos, cause grid.BlockType, except grid.Direction) {
	b.addAndRun(pos, multiEntry(pos, cause, except))
}

func (b *Batching) addAndRun(pos grid.Pos, p pending) {
	reentrant := b.session.Active()
	if b.session.admit(pos, b.maxChained) {
		if reentrant {
			b.layer = append(b.layer, p)
		} else {
			b.stack = append(b.stack, p)
		}
	} else if b.session.dropped == 1 {
		b.log.WithFields(logrus.Fields{
			"pos":         pos.String(),
			"max_chained": b.maxChained,
		}).Warn("too many chained neighbor updates, skipping the rest")
	}
	if !reentrant {
		b.drain()
	}
}

func (b *Batching) drain() {
	b.stats.Drains++
	defer b.release()

	for len(b.stack) > 0 || len(b.layer) > 0 {
		for i := len(b.layer) - 1; i >= 0; i-- {
			b.stack = append(b.stack, b.layer[i])
		}
		b.layer = b.layer[:0]

		// Reactions only append to the layer buffer while draining, so the
		// stack does not move underneath top.
		top := len(b.stack) - 1
		for len(b.layer) == 0 {
			if !b.runStep(&b.stack[top]) {
				b.stack[top] = pending{}
				b.stack = b.stack[:top]
				break
			}
		}
	}
}

func (b *Batching) runStep(p *pending) bool {
	var more bool
	if isolate(b.log, p.kind, p.pos, func() { more = p.step(b.world) }) {
		b.session.failed++
		return p.hasMore()
	}
	return more
}

func (b *Batching) release() {
	r := b.session.report()
	b.stats.Executed += r.Admitted
	b.stats.Dropped += r.Dropped
	b.stats.Failed += r.Failed

	b.stack = b.stack[:0]
	b.layer = b.layer[:0]
	b.session.release()

	if b.reporter != nil {
		b.reporter.ReportDrain(r)
	}
}
