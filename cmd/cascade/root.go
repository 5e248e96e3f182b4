package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voxelcascade.ai/internal/persistence/indexdb"
	plog "voxelcascade.ai/internal/persistence/log"
	"voxelcascade.ai/internal/persistence/r2s3"
	"voxelcascade.ai/internal/persistence/store"
	"voxelcascade.ai/internal/sim/catalogs"
	"voxelcascade.ai/internal/sim/host"
	"voxelcascade.ai/internal/sim/metrics"
	"voxelcascade.ai/internal/sim/tuning"
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Cascade runs block regions with deferred neighbor updates and scheduled ticks",
	Long: `Cascade simulates block regions whose changes propagate through batched
neighbor updates and scheduled ticks, and persists them as snapshots.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("configs", "./configs", "config directory holding blocks.json")
	pf.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	pf.String("data", "", "runtime data directory; overrides the persistence paths in tuning")
	pf.Bool("disable-db", false, "disable the sqlite index")
	pf.String("log-level", "info", "log level")
	pf.String("log-format", "text", "log format: text or json")
}

func setupLogging(cmd *cobra.Command) error {
	lvl, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(cmd.ErrOrStderr())
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// app holds what every subcommand opens from the shared flags.
type app struct {
	configDir string
	tuning    tuning.Tuning
	cats      *catalogs.Catalogs
	store     store.Store
	index     *indexdb.SQLiteIndex
	drains    *plog.DrainLogger
	mirror    *r2s3.Mirror
	metrics   *metrics.Collector
	registry  *prometheus.Registry
	log       *logrus.Entry
}

func openApp(cmd *cobra.Command) (*app, error) {
	configDir, _ := cmd.Flags().GetString("configs")
	tuningPath, _ := cmd.Flags().GetString("tuning")
	dataDir, _ := cmd.Flags().GetString("data")
	disableDB, _ := cmd.Flags().GetBool("disable-db")

	if tuningPath == "" {
		tuningPath = filepath.Join(configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tuningPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	if dataDir != "" {
		tune.Persistence.SnapshotDir = filepath.Join(dataDir, "snapshots")
		tune.Persistence.IndexDB = filepath.Join(dataDir, "index.sqlite")
		tune.Persistence.DrainLogDir = filepath.Join(dataDir, "drains")
	}
	cats, err := catalogs.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}

	a := &app{
		configDir: configDir,
		tuning:    tune,
		cats:      cats,
		metrics:   metrics.New(),
		registry:  prometheus.NewRegistry(),
		log:       logrus.WithField("cmd", cmd.Name()),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := a.metrics.Register(a.registry); err != nil {
		return nil, err
	}

	p := tune.Persistence
	if p.RedisAddr != "" {
		a.store = store.NewRedisStore(p.RedisAddr, os.Getenv("CASCADE_REDIS_PASSWORD"), 0)
	} else if a.store, err = store.NewFileStore(p.SnapshotDir); err != nil {
		return nil, fmt.Errorf("open snapshot dir: %w", err)
	}

	if !disableDB {
		a.index, err = indexdb.OpenSQLite(p.IndexDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open index: %w", err)
		}
		if err := a.index.UpsertCatalogs(configDir, cats, tune); err != nil {
			a.log.WithError(err).Warn("index catalogs failed")
		}
	}
	a.drains = plog.NewDrainLogger(p.DrainLogDir)

	if m := p.Mirror; m.Endpoint != "" {
		client, err := r2s3.New(m.Endpoint, m.Bucket, os.Getenv("CASCADE_S3_ACCESS_KEY_ID"), os.Getenv("CASCADE_S3_SECRET_ACCESS_KEY"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("snapshot mirror: %w", err)
		}
		a.mirror = r2s3.NewMirror(client, r2s3.MirrorConfig{Prefix: m.Prefix, Workers: m.Workers, Log: a.log})
	}

	a.log.WithFields(logrus.Fields{
		"updater":  tune.Updater,
		"tick_hz":  tune.TickRateHz,
		"palette":  cats.Blocks.PaletteDigest,
		"redis":    p.RedisAddr != "",
		"index_db": !disableDB,
		"mirror":   p.Mirror.Endpoint != "",
	}).Debug("configuration loaded")
	return a, nil
}

func (a *app) host() (*host.Host, error) {
	return host.New(host.Config{
		Tuning:   a.tuning,
		Catalogs: a.cats,
		Store:    a.store,
		Index:    a.index,
		Drains:   a.drains,
		Mirror:   a.mirror,
		Metrics:  a.metrics,
		Log:      a.log,
	})
}

func (a *app) Close() {
	if a.mirror != nil {
		a.mirror.Close()
		if st := a.mirror.Stats(); st.DroppedTotal > 0 || st.UploadFailTotal > 0 {
			a.log.WithFields(logrus.Fields{"dropped": st.DroppedTotal, "failed": st.UploadFailTotal}).Warn("snapshot mirror incomplete")
		}
	}
	if a.drains != nil {
		if err := a.drains.Close(); err != nil {
			a.log.WithError(err).Warn("close drain log")
		}
	}
	if a.index != nil {
		if st := a.index.Stats(); st.DropSaveTotal > 0 || st.DropDrainTotal > 0 {
			a.log.WithFields(logrus.Fields{"saves": st.DropSaveTotal, "drains": st.DropDrainTotal}).Warn("index dropped rows")
		}
		_ = a.index.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
