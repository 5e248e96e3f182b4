package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcascade.ai/internal/sim/grid"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]grid.BlockState, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, grid.MakeState(7, 3))
	}
	in = append(in, 9, 10, 10, 10)

	out, err := DecodeRLE(EncodeRLE(in), len(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRLE_LengthMismatch(t *testing.T) {
	enc := EncodeRLE([]grid.BlockState{1, 1, 1, 1})

	_, err := DecodeRLE(enc, 3)
	assert.Error(t, err)
	_, err = DecodeRLE(enc, 5)
	assert.Error(t, err)
}

func TestRLE_BadInput(t *testing.T) {
	_, err := DecodeRLE("not base64!", 1)
	assert.Error(t, err)

	// 0x80 is a truncated varint.
	_, err = DecodeRLE("gA==", 1)
	assert.Error(t, err)
}
