package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"voxelcascade.ai/internal/sim/neighbor"
	"voxelcascade.ai/internal/sim/region"
)

// Collector exports cascade and scheduled-tick activity per region.
type Collector struct {
	drains        *prometheus.CounterVec
	updates       *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	failed        *prometheus.CounterVec
	cutoffs       *prometheus.CounterVec
	drainSize     *prometheus.HistogramVec
	ticksRun      *prometheus.CounterVec
	ticksSkipped  *prometheus.CounterVec
	ticksFailed   *prometheus.CounterVec
	ticksPending  *prometheus.GaugeVec
	regionTick    *prometheus.GaugeVec
	snapshotsSave *prometheus.CounterVec
}

func New() *Collector {
	return &Collector{
		drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_drains_total",
			Help: "Completed neighbor update drains.",
		}, []string{"region"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_neighbor_updates_total",
			Help: "Neighbor updates admitted into a drain.",
		}, []string{"region"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_neighbor_updates_dropped_total",
			Help: "Neighbor updates dropped by the chain cutoff.",
		}, []string{"region"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_neighbor_updates_failed_total",
			Help: "Neighbor updates whose reaction panicked.",
		}, []string{"region"}),
		cutoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_drain_cutoffs_total",
			Help: "Drains that hit the chain cutoff.",
		}, []string{"region"}),
		drainSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxelcascade_drain_size",
			Help:    "Admitted updates per drain.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"region"}),
		ticksRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_scheduled_ticks_run_total",
			Help: "Scheduled ticks executed.",
		}, []string{"region"}),
		ticksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_scheduled_ticks_skipped_total",
			Help: "Scheduled ticks whose block changed before they came due.",
		}, []string{"region"}),
		ticksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_scheduled_ticks_failed_total",
			Help: "Scheduled ticks whose behavior panicked.",
		}, []string{"region"}),
		ticksPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voxelcascade_scheduled_ticks_pending",
			Help: "Scheduled ticks waiting to run.",
		}, []string{"region"}),
		regionTick: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voxelcascade_region_tick",
			Help: "Current simulation tick.",
		}, []string{"region"}),
		snapshotsSave: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelcascade_snapshots_total",
			Help: "Snapshot save attempts by outcome.",
		}, []string{"region", "outcome"}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.drains, c.updates, c.dropped, c.failed, c.cutoffs, c.drainSize,
		c.ticksRun, c.ticksSkipped, c.ticksFailed, c.ticksPending, c.regionTick,
		c.snapshotsSave,
	}
}

func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, m := range c.collectors() {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// DrainReporter returns a neighbor.Reporter recording drains of regionID.
func (c *Collector) DrainReporter(regionID string) neighbor.Reporter {
	return neighbor.ReporterFunc(func(r neighbor.DrainReport) {
		c.drains.WithLabelValues(regionID).Inc()
		c.updates.WithLabelValues(regionID).Add(float64(r.Admitted))
		c.drainSize.WithLabelValues(regionID).Observe(float64(r.Admitted))
		if r.Dropped > 0 {
			c.dropped.WithLabelValues(regionID).Add(float64(r.Dropped))
			c.cutoffs.WithLabelValues(regionID).Inc()
		}
		if r.Failed > 0 {
			c.failed.WithLabelValues(regionID).Add(float64(r.Failed))
		}
	})
}

func (c *Collector) ObserveStep(regionID string, res region.StepResult) {
	c.ticksRun.WithLabelValues(regionID).Add(float64(res.Ran))
	c.ticksSkipped.WithLabelValues(regionID).Add(float64(res.Skipped))
	c.ticksFailed.WithLabelValues(regionID).Add(float64(res.Failed))
	c.ticksPending.WithLabelValues(regionID).Set(float64(res.Pending))
	c.regionTick.WithLabelValues(regionID).Set(float64(res.Tick))
}

// ObserveSave records a snapshot attempt: "written", "skipped" or "error".
func (c *Collector) ObserveSave(regionID, outcome string) {
	c.snapshotsSave.WithLabelValues(regionID, outcome).Inc()
}

// Saves returns the save counter for one region and outcome.
func (c *Collector) Saves(regionID, outcome string) prometheus.Counter {
	return c.snapshotsSave.WithLabelValues(regionID, outcome)
}
