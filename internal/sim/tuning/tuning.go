package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	UpdaterBatching  = "batching"
	UpdaterImmediate = "immediate"
)

type Tuning struct {
	Updater           string `yaml:"updater"`
	MaxChainedUpdates int    `yaml:"max_chained_updates"` // < 0 means unlimited
	MaxShapeDepth     int    `yaml:"max_shape_depth"`
	MaxTicksPerStep   int    `yaml:"max_ticks_per_step"` // < 0 means unlimited

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	World       World       `yaml:"world"`
	Persistence Persistence `yaml:"persistence"`
}

type World struct {
	Seed      int64 `yaml:"seed"`
	Height    int   `yaml:"height"`
	BoundaryR int   `yaml:"boundary_r"`
	FloorY    int   `yaml:"floor_y"`
}

type Persistence struct {
	SnapshotDir string `yaml:"snapshot_dir"`
	IndexDB     string `yaml:"index_db"`
	DrainLogDir string `yaml:"drain_log_dir"`
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	Mirror      Mirror `yaml:"mirror,omitempty"`
}

// Mirror uploads every save to an S3-compatible bucket when Endpoint is
// set. Credentials come from the environment.
type Mirror struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Workers  int    `yaml:"workers,omitempty"`
}

func Defaults() Tuning {
	return Tuning{
		Updater:            UpdaterBatching,
		MaxChainedUpdates:  1_000_000,
		MaxShapeDepth:      512,
		MaxTicksPerStep:    65536,
		TickRateHz:         20,
		SnapshotEveryTicks: 100,
		World: World{
			Seed:   1,
			Height: 64,
			FloorY: 1,
		},
		Persistence: Persistence{
			SnapshotDir: "data/snapshots",
			IndexDB:     "data/index.sqlite",
			DrainLogDir: "data/drains",
		},
	}
}

// Load reads path over Defaults; keys missing from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch t.Updater {
	case UpdaterBatching, UpdaterImmediate:
	default:
		return fmt.Errorf("unknown updater %q", t.Updater)
	}
	if t.MaxShapeDepth < 0 {
		return fmt.Errorf("max_shape_depth must be >= 0")
	}
	if t.MaxTicksPerStep == 0 {
		return fmt.Errorf("max_ticks_per_step must be > 0, or < 0 for unlimited")
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.World.Height <= 0 {
		return fmt.Errorf("world.height must be > 0")
	}
	if t.World.BoundaryR < 0 {
		return fmt.Errorf("world.boundary_r must be >= 0")
	}
	if t.World.FloorY < 0 || t.World.FloorY > t.World.Height {
		return fmt.Errorf("world.floor_y must be within [0, height]")
	}
	if m := t.Persistence.Mirror; m.Endpoint != "" && m.Bucket == "" {
		return fmt.Errorf("persistence.mirror.bucket is required with an endpoint")
	}
	return nil
}
