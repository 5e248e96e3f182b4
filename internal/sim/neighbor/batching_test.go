package neighbor

import (
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcascade.ai/internal/sim/grid"
)

func warnEntries(hook *test.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e)
		}
	}
	return out
}

func TestBatching_LongChainDoesNotGrowNativeStack(t *testing.T) {
	const n = 100_000
	w := newTestWorld()
	b := NewBatching(w, -1)
	w.u = b

	maxFrames := 0
	maxQueued := 0
	pcs := make([]uintptr, 512)
	w.onNeighbor = func(w *testWorld, _ grid.BlockState, pos grid.Pos, cause grid.BlockType, _ grid.Pos) {
		if frames := runtime.Callers(0, pcs); frames > maxFrames {
			maxFrames = frames
		}
		if q := len(b.stack) + len(b.layer); q > maxQueued {
			maxQueued = q
		}
		if pos.X < n-1 {
			w.u.NeighborChanged(pos.Relative(grid.East), cause, pos)
		}
	}

	b.NeighborChanged(px(0), 1, px(-1))

	require.Len(t, w.visited, n)
	assert.Equal(t, px(n-1), w.visited[n-1])
	assert.Less(t, maxFrames, 64, "native stack must not grow with chain length")
	assert.LessOrEqual(t, maxQueued, 2)
	assert.Equal(t, DrainStats{Drains: 1, Executed: n}, b.Stats())
	assert.False(t, b.Draining())
}

func TestBatching_LayeredOrdering(t *testing.T) {
	// A emits B and C; B emits B1; C emits C1.
	a, bb, c, b1, c1 := px(0), px(10), px(20), px(11), px(21)
	children := map[grid.Pos][]grid.Pos{a: {bb, c}, bb: {b1}, c: {c1}}

	w := newTestWorld()
	u := NewBatching(w, -1)
	w.u = u
	w.onNeighbor = func(w *testWorld, _ grid.BlockState, pos grid.Pos, cause grid.BlockType, _ grid.Pos) {
		for _, ch := range children[pos] {
			w.u.NeighborChanged(ch, cause, pos)
		}
	}

	u.NeighborChanged(a, 1, px(-1))

	// Everything a step emits is queued before any of it runs, then the
	// layer runs in emission order, each entry's own layer first.
	assert.Equal(t, []grid.Pos{a, bb, b1, c, c1}, w.visited)
	assert.Equal(t, 1, u.Stats().Drains)
}

func TestBatching_MultiDirectionInterleavesWithEmittedUpdates(t *testing.T) {
	origin := grid.Pos{}
	west := origin.Relative(grid.West)
	extra := grid.Pos{X: 100}

	w := newTestWorld()
	u := NewBatching(w, -1)
	w.u = u
	w.onNeighbor = func(w *testWorld, _ grid.BlockState, pos grid.Pos, cause grid.BlockType, _ grid.Pos) {
		if pos == west {
			w.u.NeighborChanged(extra, cause, pos)
		}
	}

	u.UpdateNeighborsExcept(origin, 1, grid.Down)

	want := []grid.Pos{
		west,
		extra,
		origin.Relative(grid.East),
		origin.Relative(grid.Up),
		origin.Relative(grid.North),
		origin.Relative(grid.South),
	}
	assert.Equal(t, want, w.visited)
	assert.Equal(t, DrainStats{Drains: 1, Executed: 2}, u.Stats())
}

func TestBatching_MultiDirectionSkipsFirstDirection(t *testing.T) {
	w := newTestWorld()
	u := NewBatching(w, -1)
	w.u = u

	u.UpdateNeighborsExcept(grid.Pos{}, 1, grid.West)

	require.Len(t, w.visited, 5)
	assert.Equal(t, grid.Pos{}.Relative(grid.East), w.visited[0])
	assert.NotContains(t, w.visited, grid.Pos{}.Relative(grid.West))
}

func TestBatching_ChainCutoffDropsAndWarnsOnce(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var reports []DrainReport

	w := newTestWorld()
	u := NewBatching(w, 10, WithLogger(logger), WithReporter(ReporterFunc(func(r DrainReport) {
		reports = append(reports, r)
	})))
	w.u = u
	w.onNeighbor = func(w *testWorld, _ grid.BlockState, pos grid.Pos, cause grid.BlockType, _ grid.Pos) {
		w.u.NeighborChanged(pos.Relative(grid.East), cause, pos)
	}

	u.NeighborChanged(px(0), 1, px(-1))

	assert.Len(t, w.visited, 10)
	warns := warnEntries(hook)
	require.Len(t, warns, 1)
	assert.Equal(t, "10,0,0", warns[0].Data["pos"])

	require.Len(t, reports, 1)
	assert.Equal(t, 10, reports[0].Admitted)
	assert.Equal(t, 1, reports[0].Dropped)
	require.NotNil(t, reports[0].FirstDropped)
	assert.Equal(t, px(10), *reports[0].FirstDropped)

	// The next external trigger starts with fresh counters.
	w.visited = nil
	w.onNeighbor = nil
	u.NeighborChanged(px(50), 1, px(49))
	assert.Equal(t, []grid.Pos{px(50)}, w.visited)
	assert.Len(t, warnEntries(hook), 1)
}

func TestBatching_CutoffLetsQueuedEntriesFinish(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := newTestWorld()
	u := NewBatching(w, 5, WithLogger(logger))
	w.u = u
	// Binary fan-out: every cell notifies two children.
	w.onNeighbor = func(w *testWorld, _ grid.BlockState, pos grid.Pos, cause grid.BlockType, _ grid.Pos) {
		w.u.NeighborChanged(grid.Pos{X: pos.X*2 + 1}, cause, pos)
		w.u.NeighborChanged(grid.Pos{X: pos.X*2 + 2}, cause, pos)
	}

	u.NeighborChanged(px(0), 1, px(-1))

	// 0 -> 1,2; 1 -> 3,4; 3 -> dropped; 4 -> dropped; 2 -> dropped.
	assert.Equal(t, []grid.Pos{px(0), px(1), px(3), px(4), px(2)}, w.visited)
	stats := u.Stats()
	assert.Equal(t, 5, stats.Executed)
	assert.Equal(t, 6, stats.Dropped)
	warns := warnEntries(hook)
	require.Len(t, warns, 1)
	assert.Equal(t, "7,0,0", warns[0].Data["pos"])
}

func TestBatching_ReentrantTriggersShareOneDrain(t *testing.T) {
	w := newTestWorld()
	u := NewBatching(w, -1)
	w.u = u
	w.onNeighbor = func(w *testWorld, _ grid.BlockState, pos grid.Pos, cause grid.BlockType, _ grid.Pos) {
		assert.True(t, u.Draining())
		if pos.X < 49 && pos.Y == 0 && pos.Z == 0 {
			// Reactions reach the updater through the public entry points.
			w.u.UpdateNeighborsExcept(pos, cause, grid.West)
		}
	}

	u.NeighborChanged(px(0), 1, px(-1))
	assert.Equal(t, 1, u.Stats().Drains)

	u.NeighborChangedState(0, px(-10), 1, px(-11), false)
	assert.Equal(t, 2, u.Stats().Drains)
}

func TestBatching_FailingEntryDoesNotAbortDrain(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := newTestWorld()
	u := NewBatching(w, -1, WithLogger(logger))
	w.u = u
	w.onNeighbor = func(w *testWorld, _ grid.BlockState, pos grid.Pos, cause grid.BlockType, _ grid.Pos) {
		if pos == (grid.Pos{}.Relative(grid.East)) {
			panic("broken reaction")
		}
	}

	u.UpdateNeighborsExcept(grid.Pos{}, 1, grid.NoDirection)

	assert.Len(t, w.visited, 6, "remaining directions still run")
	stats := u.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.False(t, u.Draining())

	var errs []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errs = append(errs, e)
		}
	}
	require.Len(t, errs, 1)
	assert.Equal(t, "neighbor update failed", errs[0].Message)
	assert.Equal(t, "multi_direction", errs[0].Data["kind"])
	assert.Equal(t, "0,0,0", errs[0].Data["pos"])
	assert.Equal(t, "broken reaction", errs[0].Data["panic"])
}

func TestBatching_ZeroCapDropsEverything(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := newTestWorld()
	u := NewBatching(w, 0, WithLogger(logger))
	w.u = u

	u.NeighborChanged(px(3), 1, px(2))

	assert.Empty(t, w.visited)
	assert.Equal(t, DrainStats{Drains: 1, Dropped: 1}, u.Stats())
	assert.Len(t, warnEntries(hook), 1)
}

func TestReporters_FanOutSkipsNil(t *testing.T) {
	var a, b int
	rep := Reporters(ReporterFunc(func(DrainReport) { a++ }), nil, ReporterFunc(func(r DrainReport) { b += r.Admitted }))

	w := newTestWorld()
	u := NewBatching(w, -1, WithReporter(rep))
	w.u = u
	u.NeighborChanged(px(0), 1, px(-1))
	u.NeighborChanged(px(5), 1, px(4))

	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}
