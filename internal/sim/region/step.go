package region

import (
	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/ticks"
)

type StepResult struct {
	Tick    int64
	Ran     int
	Skipped int // ticks whose block changed type before they came due
	Failed  int
	Pending int
}

// Step advances the region one tick and runs every scheduled tick now due,
// up to the configured per-step budget.
func (r *Region) Step() StepResult {
	r.tick++
	res := StepResult{Tick: r.tick}
	res.Ran = r.ticks.Tick(r.tick, r.cfg.MaxTicksPerStep, func(a ticks.TimedAction[grid.BlockType]) {
		state := r.store.Get(a.Pos)
		if state.Type() != a.Type {
			res.Skipped++
			return
		}
		if !r.runTick(state, a) {
			res.Failed++
		}
	})
	res.Ran -= res.Skipped + res.Failed
	res.Pending = r.ticks.Count()
	return res
}

func (r *Region) runTick(state grid.BlockState, a ticks.TimedAction[grid.BlockType]) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			r.tickFailures++
			r.log.WithFields(logrus.Fields{
				"pos":   a.Pos.String(),
				"type":  a.Type,
				"tick":  r.tick,
				"panic": rec,
			}).Error("scheduled tick failed")
		}
	}()
	r.behaviors.For(state.Type()).Tick(r, state, a.Pos)
	return true
}
