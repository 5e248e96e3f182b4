package snapshot

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version  int    `json:"version"`
	RegionID string `json:"region_id"`
	Tick     int64  `json:"tick"`
}

type RegionV1 struct {
	Header Header `json:"header"`

	Seed      int64 `json:"seed"`
	Height    int   `json:"height"`
	BoundaryR int   `json:"boundary_r"`

	// Palette maps block type ids to names at save time, so a catalog that
	// grows between runs does not reinterpret stored cells.
	Palette []string `json:"palette"`

	Chunks     []ChunkV1      `json:"chunks"`
	BlockTicks []ChunkTicksV1 `json:"block_ticks,omitempty"`
}

type ChunkV1 struct {
	CX     int    `json:"cx"`
	CZ     int    `json:"cz"`
	Height int    `json:"height"`
	Blocks string `json:"blocks_rle"`
}

// ChunkTicksV1 is the persisted scheduled-action list of one chunk column.
type ChunkTicksV1 struct {
	CX    int      `json:"cx"`
	CZ    int      `json:"cz"`
	Ticks []TickV1 `json:"ticks"`
}

// TickV1 stores a scheduled action as a delay relative to the snapshot tick.
// List order is significant: it breaks ties between equal delays on load.
type TickV1 struct {
	Type     string `json:"type"`
	Pos      [3]int `json:"pos"`
	Delay    int64  `json:"delay"`
	Priority int    `json:"priority,omitempty"`
}

// Encode writes a JSON header line followed by the gob body, zstd-framed.
func Encode(w io.Writer, snap RegionV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func Decode(r io.Reader) (RegionV1, error) {
	var snap RegionV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	hb, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(hb, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

func Marshal(snap RegionV1) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(b []byte) (RegionV1, error) {
	return Decode(bytes.NewReader(b))
}

// ReadHeader decodes only the header line.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	dec, err := zstd.NewReader(r)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	hb, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(hb, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// WriteFile writes snap to path through a temp file and rename, so a crash
// mid-write never leaves a truncated snapshot in place.
func WriteFile(path string, snap RegionV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := Encode(tmp, snap); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func ReadFile(path string) (RegionV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return RegionV1{}, err
	}
	defer f.Close()
	return Decode(f)
}

// MarshalTicks renders a tick list in its JSON interchange form.
func MarshalTicks(ticks []TickV1) ([]byte, error) {
	if ticks == nil {
		ticks = []TickV1{}
	}
	return json.Marshal(ticks)
}

func UnmarshalTicks(b []byte) ([]TickV1, error) {
	var ticks []TickV1
	if err := json.Unmarshal(b, &ticks); err != nil {
		return nil, fmt.Errorf("ticks json: %w", err)
	}
	return ticks, nil
}
