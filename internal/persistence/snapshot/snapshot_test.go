package snapshot

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRegion() RegionV1 {
	return RegionV1{
		Header:    Header{Version: Version, RegionID: "r1", Tick: 42},
		Seed:      7,
		Height:    64,
		BoundaryR: 32,
		Palette:   []string{"AIR", "STONE", "WIRE"},
		Chunks: []ChunkV1{
			{CX: 0, CZ: 0, Height: 64, Blocks: "AQI="},
			{CX: -1, CZ: 2, Height: 64, Blocks: "AQI="},
		},
		BlockTicks: []ChunkTicksV1{{
			CX: 0, CZ: 0,
			Ticks: []TickV1{
				{Type: "LAMP", Pos: [3]int{1, 2, 3}, Delay: 4},
				{Type: "SAND", Pos: [3]int{4, 5, 6}, Delay: 4, Priority: -1},
			},
		}},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := sampleRegion()
	b, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	h, err := ReadHeader(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, in.Header, h)
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	in := sampleRegion()
	in.Header.Version = 99
	b, err := Marshal(in)
	require.NoError(t, err)

	_, err = Unmarshal(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported snapshot version")
}

func TestWriteFile_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "r1.snap.zst")
	in := sampleRegion()
	require.NoError(t, WriteFile(path, in))

	out, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTicksJSON_MatchesSchema(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("schemas", "ticks_v1.schema.json"))
	require.NoError(t, err)

	b, err := MarshalTicks(sampleRegion().BlockTicks[0].Ticks)
	require.NoError(t, err)
	var doc any
	require.NoError(t, json.Unmarshal(b, &doc))
	require.NoError(t, s.Validate(doc))

	// priority is omitted at the default.
	assert.NotContains(t, string(b), `"priority":0`)

	back, err := UnmarshalTicks(b)
	require.NoError(t, err)
	assert.Equal(t, sampleRegion().BlockTicks[0].Ticks, back)

	empty, err := MarshalTicks(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))

	var bad any
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"LAMP","pos":[1,2],"delay":1}]`), &bad))
	assert.Error(t, s.Validate(bad))
}
