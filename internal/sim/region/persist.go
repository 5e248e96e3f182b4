package region

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/persistence/snapshot"
	"voxelcascade.ai/internal/sim/catalogs"
	"voxelcascade.ai/internal/sim/encoding"
	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/ticks"
)

// SnapshotWriter persists region snapshots.
type SnapshotWriter interface {
	Save(ctx context.Context, snap snapshot.RegionV1) error
}

// Snapshot captures cells and scheduled ticks. Tick delays are stored
// relative to the current tick. Taking a snapshot does not mark the region
// saved; SaveDirty does that once the writer accepts it.
func (r *Region) Snapshot() snapshot.RegionV1 {
	w := r.cfg.World
	snap := snapshot.RegionV1{
		Header:    snapshot.Header{Version: snapshot.Version, RegionID: r.id, Tick: r.tick},
		Seed:      w.Seed,
		Height:    w.Height,
		BoundaryR: w.BoundaryR,
		Palette:   append([]string(nil), r.cat.Palette...),
	}
	for _, k := range r.store.LoadedChunkKeys() {
		ch := r.store.Chunks[k]
		snap.Chunks = append(snap.Chunks, snapshot.ChunkV1{
			CX:     k.CX,
			CZ:     k.CZ,
			Height: ch.Height,
			Blocks: encoding.EncodeRLE(ch.Blocks),
		})
	}
	for _, k := range r.ticks.Keys() {
		c, _ := r.ticks.Container(k)
		recs := c.Encode(r.tick, r.cat, r.log)
		if len(recs) == 0 {
			continue
		}
		snap.BlockTicks = append(snap.BlockTicks, snapshot.ChunkTicksV1{CX: k.CX, CZ: k.CZ, Ticks: recs})
	}
	return snap
}

// markSaved makes the current cells and tick containers the baseline that
// NeedsSave compares against.
func (r *Region) markSaved() {
	r.savedDigests = make(map[grid.ChunkKey][32]byte, len(r.store.Chunks))
	for k, ch := range r.store.Chunks {
		r.savedDigests[k] = ch.Digest()
	}
	for _, k := range r.ticks.Keys() {
		c, _ := r.ticks.Container(k)
		c.MarkSaved(r.tick)
	}
	r.savedTick = r.tick
}

// NeedsSave reports whether a snapshot taken now would differ from the last
// one: cells changed, a chunk was created, or a tick container is stale.
func (r *Region) NeedsSave() bool {
	if r.savedTick < 0 {
		return true
	}
	if len(r.store.Chunks) != len(r.savedDigests) {
		return true
	}
	for k, ch := range r.store.Chunks {
		if d, ok := r.savedDigests[k]; !ok || d != ch.Digest() {
			return true
		}
	}
	for _, k := range r.ticks.Keys() {
		c, _ := r.ticks.Container(k)
		if c.NeedsSave(r.tick) {
			return true
		}
	}
	return false
}

// SaveDirty writes a snapshot to w unless nothing changed since the last
// one. It reports whether it wrote.
func (r *Region) SaveDirty(ctx context.Context, w SnapshotWriter) (bool, error) {
	if !r.NeedsSave() {
		return false, nil
	}
	if err := w.Save(ctx, r.Snapshot()); err != nil {
		return false, fmt.Errorf("save region %s: %w", r.id, err)
	}
	r.markSaved()
	return true, nil
}

// FromSnapshot rebuilds a region at the snapshot's tick. Stored type ids are
// remapped through the snapshot palette, so the catalog may have changed
// since the save; cells of types it no longer knows become air.
func FromSnapshot(snap snapshot.RegionV1, cfg Config, cat *catalogs.BlockCatalog, opts ...Option) (*Region, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("region %s: unsupported snapshot version %d", snap.Header.RegionID, snap.Header.Version)
	}
	if cfg.ID == "" {
		cfg.ID = snap.Header.RegionID
	}
	cfg.Tuning.World.Seed = snap.Seed
	cfg.Tuning.World.Height = snap.Height
	cfg.Tuning.World.BoundaryR = snap.BoundaryR
	if cfg.Tuning.World.FloorY > snap.Height {
		cfg.Tuning.World.FloorY = snap.Height
	}

	r, err := New(cfg, cat, opts...)
	if err != nil {
		return nil, err
	}
	r.tick = snap.Header.Tick

	remap, missing := cat.Remap(snap.Palette)
	if len(missing) > 0 {
		r.log.WithField("types", missing).Warn("snapshot types missing from catalog, loading as air")
	}

	for _, cv := range snap.Chunks {
		k := grid.ChunkKey{CX: cv.CX, CZ: cv.CZ}
		ch := grid.NewChunk(k, cv.Height)
		states, err := encoding.DecodeRLE(cv.Blocks, len(ch.Blocks))
		if err != nil {
			return nil, fmt.Errorf("region %s: chunk %d,%d: %w", r.id, cv.CX, cv.CZ, err)
		}
		for i, s := range states {
			t := s.Type()
			if int(t) < len(remap) {
				t = remap[t]
			} else {
				t = grid.Air
			}
			if t == grid.Air {
				states[i] = 0
				continue
			}
			states[i] = grid.MakeState(t, s.Meta())
		}
		ch.Blocks = states
		r.store.Put(ch)
	}

	byChunk := make(map[grid.ChunkKey][]snapshot.TickV1, len(snap.BlockTicks))
	for _, ct := range snap.BlockTicks {
		k := grid.ChunkKey{CX: ct.CX, CZ: ct.CZ}
		byChunk[k] = append(byChunk[k], ct.Ticks...)
	}
	for _, k := range r.store.LoadedChunkKeys() {
		c := ticks.LoadContainer[grid.BlockType](byChunk[k], r.cat, k, r.log)
		r.ticks.Activate(k, c, r.tick)
		delete(byChunk, k)
	}
	for k, recs := range byChunk {
		r.log.WithFields(logrus.Fields{"chunk": k, "ticks": len(recs)}).Warn("ticks for a chunk missing from snapshot, dropped")
	}

	r.markSaved()
	return r, nil
}
