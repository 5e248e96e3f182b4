package grid

import "sort"

// Gen fills freshly created chunks. The zero value leaves them empty (all air).
type Gen struct {
	Seed   int64
	FloorY int        // cells with y < FloorY are filled with Floor
	Floor  BlockState // usually stone

	// Sprinkle replaces floor cells at a seeded per-mille rate.
	Sprinkle         BlockState
	SprinklePermille int
}

func (g Gen) fill(ch *Chunk) {
	if g.FloorY <= 0 || g.Floor == 0 {
		return
	}
	top := g.FloorY
	if top > ch.Height {
		top = ch.Height
	}
	for y := 0; y < top; y++ {
		for z := 0; z < ChunkSize; z++ {
			for x := 0; x < ChunkSize; x++ {
				b := g.Floor
				if g.SprinklePermille > 0 && g.Sprinkle != 0 {
					wx := ch.CX*ChunkSize + x
					wz := ch.CZ*ChunkSize + z
					if int(Hash3(g.Seed, wx, y, wz)%1000) < g.SprinklePermille {
						b = g.Sprinkle
					}
				}
				ch.Blocks[ch.index(x, y, z)] = b
			}
		}
	}
}

// Store is a sparse, chunked cell grid. Accessed only from the owning region's goroutine.
type Store struct {
	Gen       Gen
	Height    int
	BoundaryR int // blocks; 0 means unbounded horizontally

	Chunks map[ChunkKey]*Chunk

	// OnChunkCreated is called after a chunk is generated on first access.
	OnChunkCreated func(*Chunk)
}

func NewStore(gen Gen, height, boundaryR int) *Store {
	if height <= 0 {
		height = 1
	}
	return &Store{
		Gen:       gen,
		Height:    height,
		BoundaryR: boundaryR,
		Chunks:    map[ChunkKey]*Chunk{},
	}
}

func (s *Store) InBounds(p Pos) bool {
	if p.Y < 0 || p.Y >= s.Height {
		return false
	}
	if s.BoundaryR > 0 {
		if p.X < -s.BoundaryR || p.X > s.BoundaryR || p.Z < -s.BoundaryR || p.Z > s.BoundaryR {
			return false
		}
	}
	return true
}

func (s *Store) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Get returns air for out-of-bounds positions.
func (s *Store) Get(p Pos) BlockState {
	if !s.InBounds(p) {
		return 0
	}
	ch := s.GetOrGenChunk(ChunkKeyOf(p))
	return ch.Get(Mod(p.X, ChunkSize), p.Y, Mod(p.Z, ChunkSize))
}

// Set writes b at p and returns the previous state and whether anything changed.
// Out-of-bounds writes are ignored.
func (s *Store) Set(p Pos, b BlockState) (BlockState, bool) {
	if !s.InBounds(p) {
		return 0, false
	}
	ch := s.GetOrGenChunk(ChunkKeyOf(p))
	old := ch.Set(Mod(p.X, ChunkSize), p.Y, Mod(p.Z, ChunkSize), b)
	return old, old != b
}

func (s *Store) GetOrGenChunk(k ChunkKey) *Chunk {
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	ch := NewChunk(k, s.Height)
	s.Gen.fill(ch)
	ch.dirty = true
	_ = ch.Digest()
	s.Chunks[k] = ch
	if s.OnChunkCreated != nil {
		s.OnChunkCreated(ch)
	}
	return ch
}

// Put installs a chunk loaded from persistence, replacing any existing one.
func (s *Store) Put(ch *Chunk) {
	ch.dirty = true
	_ = ch.Digest()
	s.Chunks[ch.Key()] = ch
}
