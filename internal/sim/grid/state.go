package grid

import "fmt"

// BlockType is a palette index; AIR is always 0.
type BlockType uint16

const Air BlockType = 0

// MaxBlockType is the largest type id a BlockState can carry.
const MaxBlockType BlockType = 1<<12 - 1

// BlockState packs a BlockType (high 12 bits) and a 4-bit meta value
// (power level, lit flag, facing) into one uint16 chunk cell.
type BlockState uint16

func MakeState(t BlockType, meta uint8) BlockState {
	return BlockState(uint16(t&MaxBlockType)<<4 | uint16(meta&0x0F))
}

func (s BlockState) Type() BlockType {
	return BlockType(s >> 4)
}

func (s BlockState) Meta() uint8 {
	return uint8(s & 0x0F)
}

func (s BlockState) WithMeta(meta uint8) BlockState {
	return MakeState(s.Type(), meta)
}

func (s BlockState) IsAir() bool {
	return s.Type() == Air
}

func (s BlockState) String() string {
	return fmt.Sprintf("%d:%d", s.Type(), s.Meta())
}
