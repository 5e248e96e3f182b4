package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"voxelcascade.ai/internal/sim/grid"
)

// EncodeRLE encodes a chunk's block states into base64(varint pairs).
// The pairs are (state, run_len) repeated.
func EncodeRLE(states []grid.BlockState) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(states); {
		s := states[i]
		run := 1
		for j := i + 1; j < len(states) && states[j] == s && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(s))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE decodes b64 and checks that it expands to exactly want cells.
func DecodeRLE(b64 string, want int) ([]grid.BlockState, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]grid.BlockState, 0, want)
	for i := 0; i < len(raw); {
		s, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if s > 0xFFFF {
			return nil, fmt.Errorf("block state too large: %d", s)
		}
		if uint64(len(out))+run > uint64(want) {
			return nil, fmt.Errorf("rle overflows %d cells", want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, grid.BlockState(s))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("rle length %d, want %d", len(out), want)
	}
	return out, nil
}
