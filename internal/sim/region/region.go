// Package region owns one simulated area: its cells, the neighbor updater
// that propagates changes, and the scheduled ticks of its blocks.
package region

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/sim/blocks"
	"voxelcascade.ai/internal/sim/catalogs"
	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/neighbor"
	"voxelcascade.ai/internal/sim/ticks"
	"voxelcascade.ai/internal/sim/tuning"
)

type Config struct {
	ID     string
	Tuning tuning.Tuning
}

type Option func(*Region)

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Region) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDrainReporter receives a report after every batched drain.
func WithDrainReporter(rep neighbor.Reporter) Option {
	return func(r *Region) { r.reporter = rep }
}

type Region struct {
	id  string
	cfg tuning.Tuning
	cat *catalogs.BlockCatalog
	log logrus.FieldLogger

	store     *grid.Store
	behaviors *blocks.Registry
	updater   neighbor.Updater
	batching  *neighbor.Batching
	reporter  neighbor.Reporter
	ticks     *ticks.Scheduler[grid.BlockType]

	tick         int64
	tickFailures int

	savedDigests map[grid.ChunkKey][32]byte
	savedTick    int64
}

// New creates an empty region whose chunks are generated on first access.
func New(cfg Config, cat *catalogs.BlockCatalog, opts ...Option) (*Region, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("region %s: %w", cfg.ID, err)
	}
	r := &Region{
		id:           cfg.ID,
		cfg:          cfg.Tuning,
		cat:          cat,
		log:          logrus.StandardLogger(),
		behaviors:    blocks.NewRegistry(cat),
		savedDigests: map[grid.ChunkKey][32]byte{},
		savedTick:    -1,
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.WithField("region", cfg.ID)

	w := cfg.Tuning.World
	gen := grid.Gen{Seed: w.Seed, FloorY: w.FloorY}
	if stone, ok := cat.Parse("STONE"); ok {
		gen.Floor = grid.MakeState(stone, 0)
	}
	r.store = grid.NewStore(gen, w.Height, w.BoundaryR)
	r.store.OnChunkCreated = func(ch *grid.Chunk) {
		k := ch.Key()
		r.ticks.Activate(k, ticks.NewContainer[grid.BlockType](k), r.tick)
	}

	r.ticks = ticks.NewScheduler(
		ticks.WithRank(func(t grid.BlockType) ticks.Priority { return ticks.Priority(cat.TickPriority(t)) }),
		ticks.WithSchedulerLogger[grid.BlockType](r.log),
	)

	nopts := []neighbor.Option{neighbor.WithLogger(r.log)}
	if r.reporter != nil {
		nopts = append(nopts, neighbor.WithReporter(r.reporter))
	}
	switch cfg.Tuning.Updater {
	case tuning.UpdaterImmediate:
		r.updater = neighbor.NewImmediate(r, nopts...)
	default:
		r.batching = neighbor.NewBatching(r, cfg.Tuning.MaxChainedUpdates, nopts...)
		r.updater = r.batching
	}
	return r, nil
}

func (r *Region) ID() string { return r.id }

// Tick is the number of completed steps.
func (r *Region) Tick() int64 { return r.tick }

func (r *Region) Catalog() *catalogs.BlockCatalog { return r.cat }

func (r *Region) Updater() neighbor.Updater { return r.updater }

// DrainStats is zero for the immediate updater.
func (r *Region) DrainStats() neighbor.DrainStats {
	if r.batching == nil {
		return neighbor.DrainStats{}
	}
	return r.batching.Stats()
}

// PendingTicks counts scheduled ticks across all chunks.
func (r *Region) PendingTicks() int { return r.ticks.Count() }

// TickFailures counts scheduled ticks whose behavior panicked.
func (r *Region) TickFailures() int { return r.tickFailures }

func (r *Region) LoadedChunks() []grid.ChunkKey { return r.store.LoadedChunkKeys() }

func (r *Region) InBounds(pos grid.Pos) bool { return r.store.InBounds(pos) }

func (r *Region) BlockState(pos grid.Pos) grid.BlockState { return r.store.Get(pos) }

func (r *Region) BehaviorOf(t grid.BlockType) blocks.Behavior { return r.behaviors.For(t) }

// SetBlock writes state at pos with the full shape budget.
func (r *Region) SetBlock(pos grid.Pos, state grid.BlockState, flags grid.UpdateFlags) bool {
	return r.SetBlockDepth(pos, state, flags, r.cfg.MaxShapeDepth)
}

// SetBlockDepth writes state at pos. Unless flags suppress reactions, a
// placement of a new type runs its OnPlace, neighbors are notified when
// NotifyNeighbors is set, and shape updates fan out with depth hops left.
func (r *Region) SetBlockDepth(pos grid.Pos, state grid.BlockState, flags grid.UpdateFlags, depth int) bool {
	old, changed := r.store.Set(pos, state)
	if !changed {
		return false
	}
	if flags.Has(grid.SuppressReaction) {
		return true
	}
	if old.Type() != state.Type() {
		r.behaviors.For(state.Type()).OnPlace(r, state, old, pos)
	}
	if flags.Has(grid.NotifyNeighbors) {
		neighbor.UpdateNeighbors(r.updater, pos, old.Type())
	}
	neighbor.UpdateShapes(r.updater, state, pos, flags.Without(grid.NotifyNeighbors), depth)
	return true
}

// ScheduleTick schedules typ at pos delay ticks from now with the type's
// default priority.
func (r *Region) ScheduleTick(pos grid.Pos, typ grid.BlockType, delay int64) {
	if !r.store.InBounds(pos) {
		return
	}
	r.store.GetOrGenChunk(grid.ChunkKeyOf(pos))
	if _, err := r.ticks.ScheduleDefault(typ, pos, r.tick+delay); err != nil {
		r.log.WithFields(logrus.Fields{"pos": pos.String(), "type": typ}).WithError(err).Warn("schedule tick")
	}
}

// HasScheduledTick reports whether typ has a pending tick at pos.
func (r *Region) HasScheduledTick(pos grid.Pos, typ grid.BlockType) bool {
	return r.ticks.HasScheduled(pos, typ)
}

// CancelTicks drops every pending tick at pos.
func (r *Region) CancelTicks(pos grid.Pos) int {
	return r.ticks.RemoveIf(func(a ticks.TimedAction[grid.BlockType]) bool { return a.Pos == pos })
}

// ScheduledTicks lists pending ticks of all active chunks in drain order
// per chunk, chunks in key order.
func (r *Region) ScheduledTicks() []ticks.TimedAction[grid.BlockType] {
	var out []ticks.TimedAction[grid.BlockType]
	for _, k := range r.ticks.Keys() {
		c, _ := r.ticks.Container(k)
		out = append(out, c.All()...)
	}
	return out
}

// neighbor.World

func (r *Region) UpdateShape(state grid.BlockState, dir grid.Direction, neighborState grid.BlockState, pos, neighborPos grid.Pos) grid.BlockState {
	return r.behaviors.For(state.Type()).UpdateShape(r, state, dir, neighborState, pos, neighborPos)
}

func (r *Region) ReplaceShape(old, updated grid.BlockState, pos grid.Pos, flags grid.UpdateFlags, depth int) {
	if old == updated {
		return
	}
	r.SetBlockDepth(pos, updated, flags, depth)
}

func (r *Region) NeighborChanged(state grid.BlockState, pos grid.Pos, cause grid.BlockType, causePos grid.Pos, moved bool) {
	r.behaviors.For(state.Type()).NeighborChanged(r, state, pos, cause, causePos, moved)
}

// SkipsShapeUpdates exempts wires from shape updates flagged SkipWireShape.
func (r *Region) SkipsShapeUpdates(state grid.BlockState) bool {
	return r.cat.IsWire(state.Type())
}

