package grid

import (
	"crypto/sha256"
	"encoding/binary"
)

const ChunkSize = 16

// ChunkKey identifies a 16x16 column of cells spanning the full region height.
type ChunkKey struct {
	CX int
	CZ int
}

func ChunkKeyOf(p Pos) ChunkKey {
	return ChunkKey{CX: FloorDiv(p.X, ChunkSize), CZ: FloorDiv(p.Z, ChunkSize)}
}

// Contains reports whether p lies inside the column.
func (k ChunkKey) Contains(p Pos) bool {
	return ChunkKeyOf(p) == k
}

func (k ChunkKey) Less(o ChunkKey) bool {
	if k.CX != o.CX {
		return k.CX < o.CX
	}
	return k.CZ < o.CZ
}

type Chunk struct {
	CX, CZ int
	Height int
	Blocks []BlockState // len = 16*16*Height

	dirty bool
	hash  [32]byte
}

func NewChunk(k ChunkKey, height int) *Chunk {
	return &Chunk{
		CX:     k.CX,
		CZ:     k.CZ,
		Height: height,
		Blocks: make([]BlockState, ChunkSize*ChunkSize*height),
	}
}

func (c *Chunk) Key() ChunkKey {
	return ChunkKey{CX: c.CX, CZ: c.CZ}
}

func (c *Chunk) index(x, y, z int) int {
	// x fastest, then z, then y
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) BlockState {
	return c.Blocks[c.index(x, y, z)]
}

// Set writes b and returns the previous state.
func (c *Chunk) Set(x, y, z int, b BlockState) BlockState {
	i := c.index(x, y, z)
	old := c.Blocks[i]
	if old == b {
		return old
	}
	c.Blocks[i] = b
	c.dirty = true
	return old
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], uint16(v))
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}
