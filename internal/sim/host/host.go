// Package host runs a set of regions on one loop goroutine: it steps them
// at the configured rate, saves them periodically and serializes outside
// access through an inbox.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/persistence/indexdb"
	plog "voxelcascade.ai/internal/persistence/log"
	"voxelcascade.ai/internal/persistence/r2s3"
	"voxelcascade.ai/internal/persistence/snapshot"
	"voxelcascade.ai/internal/persistence/store"
	"voxelcascade.ai/internal/sim/catalogs"
	"voxelcascade.ai/internal/sim/metrics"
	"voxelcascade.ai/internal/sim/neighbor"
	"voxelcascade.ai/internal/sim/region"
	"voxelcascade.ai/internal/sim/tuning"
)

var (
	ErrUnknownRegion = errors.New("host: unknown region")
	ErrStopped       = errors.New("host: stopped")
)

const saveTimeout = 10 * time.Second

// Config wires a host to its persistence and telemetry. Index, Drains,
// Mirror and Metrics are optional.
type Config struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Store    store.Store
	Index    *indexdb.SQLiteIndex
	Drains   *plog.DrainLogger
	Mirror   *r2s3.Mirror
	Metrics  *metrics.Collector
	Log      logrus.FieldLogger
}

type request struct {
	id   string
	fn   func(*region.Region) error
	done chan error
}

type Host struct {
	cfg Config
	log logrus.FieldLogger

	regions map[string]*region.Region
	order   []string

	inbox chan request
	stop  chan struct{}
}

func New(cfg Config) (*Host, error) {
	if cfg.Catalogs == nil || cfg.Store == nil {
		return nil, fmt.Errorf("host: catalogs and store are required")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Host{
		cfg:     cfg,
		log:     log,
		regions: map[string]*region.Region{},
		inbox:   make(chan request),
		stop:    make(chan struct{}),
	}, nil
}

// Open loads id from the store, or creates it when the store has no
// snapshot. It reports whether the region was restored. Open must not run
// concurrently with Run.
func (h *Host) Open(ctx context.Context, id string) (*region.Region, bool, error) {
	if r, ok := h.regions[id]; ok {
		return r, true, nil
	}

	var r *region.Region
	tick := func() int64 {
		if r == nil {
			return 0
		}
		return r.Tick()
	}
	cfg := region.Config{ID: id, Tuning: h.cfg.Tuning}
	opts := []region.Option{
		region.WithLogger(h.log),
		region.WithDrainReporter(h.reporter(id, tick)),
	}

	restored := false
	snap, err := h.cfg.Store.Load(ctx, id)
	switch {
	case err == nil:
		r, err = region.FromSnapshot(snap, cfg, &h.cfg.Catalogs.Blocks, opts...)
		restored = true
	case errors.Is(err, store.ErrNotFound):
		r, err = region.New(cfg, &h.cfg.Catalogs.Blocks, opts...)
	}
	if err != nil {
		return nil, false, fmt.Errorf("open region %s: %w", id, err)
	}

	h.regions[id] = r
	h.order = append(h.order, id)
	sort.Strings(h.order)
	h.log.WithFields(logrus.Fields{
		"region":   id,
		"restored": restored,
		"tick":     r.Tick(),
		"pending":  r.PendingTicks(),
	}).Info("region opened")
	return r, restored, nil
}

func (h *Host) reporter(id string, tick func() int64) neighbor.Reporter {
	var reps []neighbor.Reporter
	if h.cfg.Metrics != nil {
		reps = append(reps, h.cfg.Metrics.DrainReporter(id))
	}
	if h.cfg.Index != nil {
		reps = append(reps, h.cfg.Index.DrainReporter(id, tick, false))
	}
	if h.cfg.Drains != nil {
		reps = append(reps, h.cfg.Drains.Reporter(id, tick, func(err error) {
			h.log.WithError(err).WithField("region", id).Warn("drain log write failed")
		}))
	}
	return neighbor.Reporters(reps...)
}

// Regions lists open region ids in order.
func (h *Host) Regions() []string { return append([]string(nil), h.order...) }

// Step advances every region once and saves those whose tick reached the
// snapshot interval. Not safe to call while Run is active.
func (h *Host) Step(ctx context.Context) []region.StepResult {
	out := make([]region.StepResult, 0, len(h.order))
	every := h.cfg.Tuning.SnapshotEveryTicks
	for _, id := range h.order {
		r := h.regions[id]
		res := r.Step()
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.ObserveStep(id, res)
		}
		if res.Failed > 0 {
			h.log.WithFields(logrus.Fields{"region": id, "tick": res.Tick, "failed": res.Failed}).Warn("scheduled ticks failed")
		}
		if every > 0 && res.Tick%int64(every) == 0 {
			_ = h.save(ctx, id, r)
		}
		out = append(out, res)
	}
	return out
}

// SaveAll writes every region that changed since its last save.
func (h *Host) SaveAll(ctx context.Context) error {
	var errs []error
	for _, id := range h.order {
		if err := h.save(ctx, id, h.regions[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) save(ctx context.Context, id string, r *region.Region) error {
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	wrote, err := r.SaveDirty(ctx, indexedWriter{st: h.cfg.Store, idx: h.cfg.Index, mirror: h.cfg.Mirror})
	outcome := "skipped"
	switch {
	case err != nil:
		outcome = "error"
		h.log.WithError(err).WithField("region", id).Error("snapshot save failed")
	case wrote:
		outcome = "written"
		h.log.WithFields(logrus.Fields{"region": id, "tick": r.Tick()}).Debug("snapshot saved")
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ObserveSave(id, outcome)
	}
	return err
}

// indexedWriter records every successful save in the index and hands it
// to the mirror.
type indexedWriter struct {
	st     store.Store
	idx    *indexdb.SQLiteIndex
	mirror *r2s3.Mirror
}

func (w indexedWriter) Save(ctx context.Context, snap snapshot.RegionV1) error {
	if err := w.st.Save(ctx, snap); err != nil {
		return err
	}
	w.idx.RecordSave(w.st.Location(snap.Header.RegionID), snap)
	w.mirror.Enqueue(snap)
	return nil
}

// Run steps all regions at the tick rate until ctx is done or Stop is
// called, serving Do requests between steps. It saves every region on the
// way out.
func (h *Host) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(h.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	defer func() {
		if err := h.SaveAll(context.Background()); err != nil {
			h.log.WithError(err).Error("final save failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.stop:
			return nil
		case req := <-h.inbox:
			req.done <- h.apply(req)
		case <-ticker.C:
			h.Step(ctx)
		}
	}
}

func (h *Host) Stop() { close(h.stop) }

func (h *Host) apply(req request) (err error) {
	r, ok := h.regions[req.id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, req.id)
	}
	defer func() {
		if rec := recover(); rec != nil {
			h.log.WithFields(logrus.Fields{"region": req.id, "panic": rec}).Error("request failed")
			err = fmt.Errorf("region %s: request panicked: %v", req.id, rec)
		}
	}()
	return req.fn(r)
}

// Do runs fn against region id on the loop goroutine and waits for it.
func (h *Host) Do(ctx context.Context, id string, fn func(*region.Region) error) error {
	req := request{id: id, fn: fn, done: make(chan error, 1)}
	select {
	case h.inbox <- req:
	case <-h.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
