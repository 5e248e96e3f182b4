package log

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/neighbor"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "test")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	require.NoError(t, w.Write(map[string]int{"n": 1}))
	require.NoError(t, w.Write(map[string]int{"n": 2}))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, w.Write(map[string]int{"n": 3}))
	require.NoError(t, w.Close())

	files, err := w.Files()
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "test-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "test-2026-03-01-11.jsonl.zst"),
	}, files)

	first, err := ReadJSONL[map[string]int](files[0])
	require.NoError(t, err)
	assert.Equal(t, []map[string]int{{"n": 1}, {"n": 2}}, first)

	second, err := ReadJSONL[map[string]int](files[1])
	require.NoError(t, err)
	assert.Equal(t, []map[string]int{{"n": 3}}, second)
}

func TestJSONLZstdWriter_AppendsAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for i := 0; i < 2; i++ {
		w := NewJSONLZstdWriter(dir, "test")
		w.now = clock
		require.NoError(t, w.Write(map[string]int{"n": i}))
		require.NoError(t, w.Close())
	}

	got, err := ReadJSONL[map[string]int](filepath.Join(dir, "test-2026-03-01-10.jsonl.zst"))
	require.NoError(t, err)
	assert.Equal(t, []map[string]int{{"n": 0}, {"n": 1}}, got)
}

func TestDrainLogger_ReporterSkipsCleanDrains(t *testing.T) {
	l := NewDrainLogger(t.TempDir())
	tick := int64(12)
	rep := l.Reporter("r1", func() int64 { return tick }, func(err error) { t.Errorf("write: %v", err) })

	rep.ReportDrain(neighbor.DrainReport{Admitted: 4})
	first := grid.Pos{X: 5, Y: 1}
	rep.ReportDrain(neighbor.DrainReport{Origin: grid.Pos{X: 1}, Admitted: 10, Dropped: 2, FirstDropped: &first})
	tick = 13
	rep.ReportDrain(neighbor.DrainReport{Admitted: 1, Failed: 1})
	require.NoError(t, l.Close())

	files, err := l.Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var entries []DrainEntry
	for _, f := range files {
		got, err := ReadJSONL[DrainEntry](f)
		require.NoError(t, err)
		entries = append(entries, got...)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "r1", entries[0].Region)
	assert.Equal(t, int64(12), entries[0].Tick)
	assert.Equal(t, [3]int{1, 0, 0}, entries[0].Origin)
	require.NotNil(t, entries[0].First)
	assert.Equal(t, [3]int{5, 1, 0}, *entries[0].First)
	assert.Equal(t, int64(13), entries[1].Tick)
	assert.Equal(t, 1, entries[1].Failed)
	assert.Nil(t, entries[1].First)
}
