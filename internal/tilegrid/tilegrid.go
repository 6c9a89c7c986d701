// Package tilegrid maps tile identifiers and tile-local pixels onto the shared
// map frame, and parses the edge descriptors used by stitching anchors.
package tilegrid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Tile is a grid position. Row and Col are 0-based.
type Tile struct {
	Row int
	Col int
}

// ID formats the tile as row letters followed by a 1-based column number.
func (t Tile) ID() string {
	return rowLetters(t.Row) + strconv.Itoa(t.Col+1)
}

// ParseTileID parses identifiers like "A1", "B10" or "AA3".
func ParseTileID(id string) (Tile, error) {
	id = strings.TrimSpace(id)
	i := 0
	for i < len(id) && id[i] >= 'A' && id[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(id) {
		return Tile{}, fmt.Errorf("tile id %q: expected row letters followed by a column number", id)
	}
	col, err := strconv.Atoi(id[i:])
	if err != nil || col < 1 || id[i] == '0' {
		return Tile{}, fmt.Errorf("tile id %q: invalid column %q", id, id[i:])
	}
	row := 0
	for _, r := range id[:i] {
		row = row*26 + int(r-'A'+1)
	}
	return Tile{Row: row - 1, Col: col - 1}, nil
}

// rowLetters is the bijective base-26 form used for rows: 0 -> A, 25 -> Z, 26 -> AA.
func rowLetters(row int) string {
	var b []byte
	for n := row + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// Grid describes the tile size and the scale from shared pixels to world units.
type Grid struct {
	TileWidth  int
	TileHeight int
	WorldScale float64
}

// Validate rejects grids that cannot place a pixel.
func (g Grid) Validate() error {
	if g.TileWidth <= 0 || g.TileHeight <= 0 {
		return fmt.Errorf("tile size must be positive, got %dx%d", g.TileWidth, g.TileHeight)
	}
	if g.WorldScale <= 0 {
		return fmt.Errorf("world scale must be positive, got %v", g.WorldScale)
	}
	return nil
}

// Offset is the shared-frame position of the tile's top-left pixel.
func (g Grid) Offset(t Tile) orb.Point {
	return orb.Point{float64(t.Col * g.TileWidth), float64(t.Row * g.TileHeight)}
}

// Bound is the tile's extent in the shared frame.
func (g Grid) Bound(t Tile) orb.Bound {
	o := g.Offset(t)
	return orb.Bound{Min: o, Max: orb.Point{o[0] + float64(g.TileWidth), o[1] + float64(g.TileHeight)}}
}

// Shared translates a tile-local pixel into the shared frame.
func (g Grid) Shared(t Tile, px, py int) orb.Point {
	o := g.Offset(t)
	return orb.Point{o[0] + float64(px), o[1] + float64(py)}
}

// World returns the continuous world coordinates (x, z) of a tile-local pixel.
func (g Grid) World(t Tile, px, py int) (float64, float64) {
	p := g.Shared(t, px, py)
	return p[0] * g.WorldScale, p[1] * g.WorldScale
}

// Contains reports whether a tile-local pixel lies inside a tile.
func (g Grid) Contains(px, py int) bool {
	return px >= 0 && py >= 0 && px < g.TileWidth && py < g.TileHeight
}

// Distance is the Euclidean distance between two tile-local pixels in the shared frame.
func (g Grid) Distance(t1 Tile, x1, y1 int, t2 Tile, x2, y2 int) float64 {
	return planar.Distance(g.Shared(t1, x1, y1), g.Shared(t2, x2, y2))
}

// NearSide reports whether a pixel lies within margin pixels of the given side.
func (g Grid) NearSide(side Side, px, py, margin int) bool {
	switch side {
	case SideTop:
		return py < margin
	case SideBottom:
		return py >= g.TileHeight-margin
	case SideLeft:
		return px < margin
	case SideRight:
		return px >= g.TileWidth-margin
	}
	return false
}
