package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcascade.ai/internal/persistence/indexdb"
	"voxelcascade.ai/internal/persistence/r2s3"
	"voxelcascade.ai/internal/persistence/store"
	"voxelcascade.ai/internal/sim/blocks"
	"voxelcascade.ai/internal/sim/catalogs"
	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/metrics"
	"voxelcascade.ai/internal/sim/region"
	"voxelcascade.ai/internal/sim/tuning"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

type fixture struct {
	dir   string
	store *store.FileStore
	index *indexdb.SQLiteIndex
	mets  *metrics.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFileStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return &fixture{dir: dir, store: st, index: idx, mets: metrics.New()}
}

func (f *fixture) host(t *testing.T, mut func(*tuning.Tuning)) *Host {
	return f.hostWithMirror(t, mut, nil)
}

func (f *fixture) hostWithMirror(t *testing.T, mut func(*tuning.Tuning), m *r2s3.Mirror) *Host {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	require.NoError(t, err)
	tu := tuning.Defaults()
	tu.World.Height = 16
	tu.World.BoundaryR = 64
	tu.SnapshotEveryTicks = 0
	if mut != nil {
		mut(&tu)
	}
	h, err := New(Config{Tuning: tu, Catalogs: cats, Store: f.store, Index: f.index, Mirror: m, Metrics: f.mets})
	require.NoError(t, err)
	return h
}

func TestHost_RequiresStore(t *testing.T) {
	_, err := New(Config{Tuning: tuning.Defaults()})
	assert.Error(t, err)
}

func TestHost_ReopenRestoresPendingTicks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	h := f.host(t, nil)
	r, restored, err := h.Open(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, restored)

	sw, lamp, err := r.PlaceCircuit(grid.Pos{Y: 1}, 3)
	require.NoError(t, err)
	require.True(t, blocks.Toggle(r, sw))
	h.Step(ctx)
	require.True(t, blocks.Toggle(r, sw))
	require.Equal(t, 1, r.PendingTicks())
	require.NoError(t, h.SaveAll(ctx))

	h2 := f.host(t, nil)
	r2, restored, err := h2.Open(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, int64(1), r2.Tick())
	assert.Equal(t, 1, r2.PendingTicks())
	assert.True(t, blocks.Lit(r2.BlockState(lamp)))

	for i := 0; i < 4; i++ {
		h2.Step(ctx)
	}
	assert.False(t, blocks.Lit(r2.BlockState(lamp)))
	assert.Equal(t, []string{"alpha"}, h2.Regions())
}

func TestHost_StepSavesOnInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := f.host(t, func(tu *tuning.Tuning) { tu.SnapshotEveryTicks = 5 })
	_, _, err := h.Open(ctx, "beta")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		h.Step(ctx)
	}
	_, err = os.Stat(f.store.Location("beta"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	res := h.Step(ctx)
	require.Len(t, res, 1)
	assert.Equal(t, int64(5), res[0].Tick)
	_, err = os.Stat(f.store.Location("beta"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.mets.Saves("beta", "written")))

	require.Eventually(t, func() bool {
		row, ok, err := f.index.LatestSave(ctx, "beta")
		return err == nil && ok && row.Tick == 5 && row.Location == f.store.Location("beta")
	}, 2*time.Second, 20*time.Millisecond)

	// Nothing changed between ticks 5 and 10.
	for i := 0; i < 5; i++ {
		h.Step(ctx)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.mets.Saves("beta", "skipped")))
}

func TestHost_RunServesRequestsAndSavesOnExit(t *testing.T) {
	f := newFixture(t)
	h := f.host(t, func(tu *tuning.Tuning) { tu.TickRateHz = 200 })
	_, _, err := h.Open(context.Background(), "gamma")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	var wrote bool
	err = h.Do(ctx, "gamma", func(r *region.Region) error {
		stone, _ := r.Catalog().Parse("STONE")
		wrote = r.SetBlock(grid.Pos{X: 2, Y: 3, Z: 2}, grid.MakeState(stone, 0), grid.DefaultFlags)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, wrote)

	err = h.Do(ctx, "nope", func(*region.Region) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownRegion)

	err = h.Do(ctx, "gamma", func(*region.Region) error { panic("boom") })
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		var tick int64
		_ = h.Do(ctx, "gamma", func(r *region.Region) error { tick = r.Tick(); return nil })
		return tick >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}

	snap, err := f.store.Load(context.Background(), "gamma")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.Header.Tick, int64(3))
}

func TestHost_DoAfterStop(t *testing.T) {
	f := newFixture(t)
	h := f.host(t, nil)
	h.Stop()
	err := h.Do(context.Background(), "any", func(*region.Region) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

type memBucket struct {
	mu   sync.Mutex
	keys []string
}

func (b *memBucket) PutObject(_ context.Context, key string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return nil
}

func TestHost_SavesAreMirrored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bucket := &memBucket{}
	m := r2s3.NewMirror(bucket, r2s3.MirrorConfig{Prefix: "cascade"})
	h := f.hostWithMirror(t, nil, m)

	r, _, err := h.Open(ctx, "delta")
	require.NoError(t, err)
	require.NoError(t, h.SaveAll(ctx))
	h.Step(ctx)
	require.NoError(t, r.DropColumn(grid.Pos{X: 1, Y: 4, Z: 1}, "SAND", 1))
	require.NoError(t, h.SaveAll(ctx))
	m.Close()

	assert.Equal(t, []string{
		"cascade/delta/000000000000.snap.zst",
		"cascade/delta/000000000001.snap.zst",
	}, bucket.keys)
}
