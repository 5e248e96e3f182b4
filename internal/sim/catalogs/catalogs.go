package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"voxelcascade.ai/internal/sim/grid"
)

type Catalogs struct {
	Blocks BlockCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]grid.BlockType
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID       string `json:"id"`
	Solid    bool   `json:"solid"`
	Behavior string `json:"behavior,omitempty"` // "wire","switch","lamp","falling"
	Wire     bool   `json:"wire,omitempty"`

	// TickPriority orders this type's scheduled ticks against other types
	// due on the same tick, -3 (first) to 3 (last).
	TickPriority int `json:"tick_priority,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseBlocks(raw, out)
}

func parseBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %s", d.ID)
		}
		if d.TickPriority < -3 || d.TickPriority > 3 {
			return fmt.Errorf("blocks.json: %s: tick_priority %d out of range", d.ID, d.TickPriority)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)
	if len(ids) > int(grid.MaxBlockType)+1 {
		return fmt.Errorf("blocks.json: %d block types exceed palette limit", len(ids))
	}

	out.Palette = ids
	out.Index = make(map[string]grid.BlockType, len(ids))
	for i, id := range ids {
		out.Index[id] = grid.BlockType(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func filterOut(ids []string, drop string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// Name returns the palette name of t.
func (c *BlockCatalog) Name(t grid.BlockType) (string, bool) {
	if int(t) >= len(c.Palette) {
		return "", false
	}
	return c.Palette[t], true
}

func (c *BlockCatalog) Parse(name string) (grid.BlockType, bool) {
	t, ok := c.Index[name]
	return t, ok
}

// MustType panics on unknown names; for wiring code and tests.
func (c *BlockCatalog) MustType(name string) grid.BlockType {
	t, ok := c.Index[name]
	if !ok {
		panic("catalogs: unknown block " + name)
	}
	return t
}

func (c *BlockCatalog) Def(t grid.BlockType) (BlockDef, bool) {
	name, ok := c.Name(t)
	if !ok {
		return BlockDef{}, false
	}
	d, ok := c.Defs[name]
	return d, ok
}

// TickPriority is the default same-tick rank of t; unknown types rank 0.
func (c *BlockCatalog) TickPriority(t grid.BlockType) int {
	d, _ := c.Def(t)
	return d.TickPriority
}

func (c *BlockCatalog) IsWire(t grid.BlockType) bool {
	d, _ := c.Def(t)
	return d.Wire
}

// Remap maps type ids of a stored palette onto this catalog. Names the
// catalog no longer knows map to AIR and are returned as missing.
func (c *BlockCatalog) Remap(stored []string) (ids []grid.BlockType, missing []string) {
	ids = make([]grid.BlockType, len(stored))
	for i, name := range stored {
		t, ok := c.Index[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		ids[i] = t
	}
	return ids, missing
}
