package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Configs(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	require.NoError(t, err)
	assert.Equal(t, UpdaterBatching, tu.Updater)
	assert.Equal(t, 1_000_000, tu.MaxChainedUpdates)
	assert.Equal(t, 256, tu.World.BoundaryR)
	assert.Equal(t, "data/drains", tu.Persistence.DrainLogDir)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("updater: immediate\nworld:\n  height: 8\n"), 0o644))

	tu, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, UpdaterImmediate, tu.Updater)
	assert.Equal(t, 8, tu.World.Height)
	assert.Equal(t, Defaults().MaxShapeDepth, tu.MaxShapeDepth)
	assert.Equal(t, Defaults().World.Seed, tu.World.Seed)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
	unlimited := Defaults()
	unlimited.MaxTicksPerStep = -1
	require.NoError(t, unlimited.Validate())

	bad := []func(*Tuning){
		func(t *Tuning) { t.Updater = "recursive" },
		func(t *Tuning) { t.MaxShapeDepth = -1 },
		func(t *Tuning) { t.TickRateHz = 0 },
		func(t *Tuning) { t.MaxTicksPerStep = 0 },
		func(t *Tuning) { t.World.Height = 0 },
		func(t *Tuning) { t.World.FloorY = 100 },
	}
	for i, mut := range bad {
		tu := Defaults()
		mut(&tu)
		assert.Error(t, tu.Validate(), "case %d", i)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("updater: nope\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
