package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelcascade.ai/internal/persistence/snapshot"
	"voxelcascade.ai/internal/sim/catalogs"
	"voxelcascade.ai/internal/sim/neighbor"
	"voxelcascade.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable side index of snapshot saves and drain
// reports. Writes are queued to a single writer goroutine and dropped when
// it falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSave  atomic.Uint64
	dropDrain atomic.Uint64
}

type Stats struct {
	DropSaveTotal  uint64
	DropDrainTotal uint64
}

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqDrain
)

type req struct {
	kind  reqKind
	save  SaveRow
	drain DrainRow
}

type SaveRow struct {
	RegionID string
	Tick     int64
	Location string
	Chunks   int
	Ticks    int
	SavedAt  string
}

type DrainRow struct {
	RegionID string
	Tick     int64
	Origin   [3]int
	Admitted int
	Dropped  int
	Failed   int

	FirstDropped *[3]int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			region_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			location TEXT NOT NULL,
			chunks INTEGER NOT NULL,
			ticks INTEGER NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (region_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS drains (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			region_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			origin_x INTEGER NOT NULL,
			origin_y INTEGER NOT NULL,
			origin_z INTEGER NOT NULL,
			admitted INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			first_dropped_x INTEGER,
			first_dropped_y INTEGER,
			first_dropped_z INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_drains_region_tick ON drains(region_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes queued writes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropSaveTotal:  s.dropSave.Load(),
		DropDrainTotal: s.dropDrain.Load(),
	}
}

// RecordSave queues a row for a snapshot written to location.
func (s *SQLiteIndex) RecordSave(location string, snap snapshot.RegionV1) {
	if s == nil || s.closed.Load() {
		return
	}
	n := 0
	for _, ct := range snap.BlockTicks {
		n += len(ct.Ticks)
	}
	r := SaveRow{
		RegionID: snap.Header.RegionID,
		Tick:     snap.Header.Tick,
		Location: location,
		Chunks:   len(snap.Chunks),
		Ticks:    n,
		SavedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSave, save: r}:
	default:
		s.dropSave.Add(1)
	}
}

func (s *SQLiteIndex) RecordDrain(regionID string, tick int64, rep neighbor.DrainReport) {
	if s == nil || s.closed.Load() {
		return
	}
	r := DrainRow{
		RegionID: regionID,
		Tick:     tick,
		Origin:   rep.Origin.Array(),
		Admitted: rep.Admitted,
		Dropped:  rep.Dropped,
		Failed:   rep.Failed,
	}
	if rep.FirstDropped != nil {
		a := rep.FirstDropped.Array()
		r.FirstDropped = &a
	}
	select {
	case s.ch <- req{kind: reqDrain, drain: r}:
	default:
		s.dropDrain.Add(1)
	}
}

// DrainReporter records the drains of one region. Only drains that dropped
// or failed updates are indexed unless all is set.
func (s *SQLiteIndex) DrainReporter(regionID string, tick func() int64, all bool) neighbor.Reporter {
	return neighbor.ReporterFunc(func(rep neighbor.DrainReport) {
		if !all && rep.Dropped == 0 && rep.Failed == 0 {
			return
		}
		s.RecordDrain(regionID, tick(), rep)
	})
}

// UpsertCatalogs stores the block catalog and the applied tuning so saves
// can be matched with the configuration that produced them.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil && len(b) > 0 {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(region_id,tick,location,chunks,ticks,saved_at) VALUES(?,?,?,?,?,?)`)
	insertDrain, _ := s.db.Prepare(`INSERT INTO drains(region_id,tick,origin_x,origin_y,origin_z,admitted,dropped,failed,first_dropped_x,first_dropped_y,first_dropped_z) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertSave != nil {
			_ = insertSave.Close()
		}
		if insertDrain != nil {
			_ = insertDrain.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSave:
			sv := r.save
			if insertSave == nil {
				continue
			}
			if _, err := tx.Stmt(insertSave).Exec(sv.RegionID, sv.Tick, sv.Location, sv.Chunks, sv.Ticks, sv.SavedAt); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqDrain:
			d := r.drain
			if insertDrain == nil {
				continue
			}
			var fx, fy, fz any
			if d.FirstDropped != nil {
				fx, fy, fz = d.FirstDropped[0], d.FirstDropped[1], d.FirstDropped[2]
			}
			if _, err := tx.Stmt(insertDrain).Exec(
				d.RegionID, d.Tick,
				d.Origin[0], d.Origin[1], d.Origin[2],
				d.Admitted, d.Dropped, d.Failed,
				fx, fy, fz,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

// LatestSave returns the newest indexed save of regionID.
func (s *SQLiteIndex) LatestSave(ctx context.Context, regionID string) (SaveRow, bool, error) {
	var r SaveRow
	err := s.db.QueryRowContext(ctx,
		`SELECT region_id,tick,location,chunks,ticks,saved_at FROM saves WHERE region_id=? ORDER BY tick DESC LIMIT 1`,
		regionID,
	).Scan(&r.RegionID, &r.Tick, &r.Location, &r.Chunks, &r.Ticks, &r.SavedAt)
	if err == sql.ErrNoRows {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	return r, true, nil
}

// Drains returns up to limit drain rows of regionID, oldest first.
func (s *SQLiteIndex) Drains(ctx context.Context, regionID string, limit int) ([]DrainRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region_id,tick,origin_x,origin_y,origin_z,admitted,dropped,failed,first_dropped_x,first_dropped_y,first_dropped_z
		 FROM drains WHERE region_id=? ORDER BY id LIMIT ?`,
		regionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DrainRow
	for rows.Next() {
		var d DrainRow
		var fx, fy, fz sql.NullInt64
		if err := rows.Scan(&d.RegionID, &d.Tick, &d.Origin[0], &d.Origin[1], &d.Origin[2],
			&d.Admitted, &d.Dropped, &d.Failed, &fx, &fy, &fz); err != nil {
			return nil, err
		}
		if fx.Valid {
			d.FirstDropped = &[3]int{int(fx.Int64), int(fy.Int64), int(fz.Int64)}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
