package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/neighbor"
	"voxelcascade.ai/internal/sim/region"
)

func TestCollector_DrainReports(t *testing.T) {
	c := New()
	rep := c.DrainReporter("r1")

	rep.ReportDrain(neighbor.DrainReport{Admitted: 5})
	first := grid.Pos{X: 1}
	rep.ReportDrain(neighbor.DrainReport{Admitted: 10, Dropped: 3, Failed: 1, FirstDropped: &first})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.drains.WithLabelValues("r1")))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.updates.WithLabelValues("r1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dropped.WithLabelValues("r1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cutoffs.WithLabelValues("r1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failed.WithLabelValues("r1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.drains.WithLabelValues("r2")))
}

func TestCollector_StepsAndSaves(t *testing.T) {
	c := New()
	c.ObserveStep("r1", region.StepResult{Tick: 7, Ran: 2, Skipped: 1, Pending: 4})
	c.ObserveStep("r1", region.StepResult{Tick: 8, Ran: 1, Pending: 3})
	c.ObserveSave("r1", "written")
	c.ObserveSave("r1", "skipped")
	c.ObserveSave("r1", "skipped")

	assert.Equal(t, 3.0, testutil.ToFloat64(c.ticksRun.WithLabelValues("r1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ticksSkipped.WithLabelValues("r1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ticksPending.WithLabelValues("r1")))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.regionTick.WithLabelValues("r1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.snapshotsSave.WithLabelValues("r1", "skipped")))
}

func TestCollector_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := New()
	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg), "double registration")

	c.ObserveStep("r1", region.StepResult{Tick: 1})
	n, err := testutil.GatherAndCount(reg, "voxelcascade_region_tick")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
