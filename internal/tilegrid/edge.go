package tilegrid

import (
	"fmt"
	"strings"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
)

// Side names one edge of a tile.
type Side string

const (
	SideTop    Side = "TOP"
	SideBottom Side = "BOTTOM"
	SideLeft   Side = "LEFT"
	SideRight  Side = "RIGHT"
)

func (s Side) Valid() bool {
	switch s {
	case SideTop, SideBottom, SideLeft, SideRight:
		return true
	}
	return false
}

// Opposite is the side facing s on the neighbouring tile.
func (s Side) Opposite() Side {
	switch s {
	case SideTop:
		return SideBottom
	case SideBottom:
		return SideTop
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	}
	return ""
}

// Crossing is the orientation of a line that passes through this side.
func (s Side) Crossing() model.Orientation {
	switch s {
	case SideTop, SideBottom:
		return model.OrientationVertical
	case SideLeft, SideRight:
		return model.OrientationHorizontal
	}
	return ""
}

// Edge is a shared boundary between two adjacent tiles, e.g. "G8_BOTTOM-H8_TOP".
type Edge struct {
	Tile1ID string
	Tile1   Tile
	Side1   Side
	Tile2ID string
	Tile2   Tile
	Side2   Side
}

// String formats the descriptor.
func (e Edge) String() string {
	return fmt.Sprintf("%s_%s-%s_%s", e.Tile1ID, e.Side1, e.Tile2ID, e.Side2)
}

// ParseEdge parses and checks an edge descriptor. The two sides must face each
// other and the tiles must be grid neighbours across them.
func ParseEdge(desc string) (Edge, error) {
	const op = "parse edge"
	left, right, ok := strings.Cut(strings.TrimSpace(desc), "-")
	if !ok {
		return Edge{}, model.Constraint(op, "edge", "descriptor %q: expected <tile>_<SIDE>-<tile>_<SIDE>", desc)
	}
	t1, s1, err := parseHalf(left)
	if err != nil {
		return Edge{}, model.Constraint(op, "edge", "descriptor %q: %v", desc, err)
	}
	t2, s2, err := parseHalf(right)
	if err != nil {
		return Edge{}, model.Constraint(op, "edge", "descriptor %q: %v", desc, err)
	}
	e := Edge{Tile1ID: t1.ID(), Tile1: t1, Side1: s1, Tile2ID: t2.ID(), Tile2: t2, Side2: s2}
	if s1.Opposite() != s2 {
		return Edge{}, model.Constraint(op, "edge", "descriptor %q: %s does not face %s", desc, s1, s2)
	}
	if !adjacent(t1, s1, t2) {
		return Edge{}, model.Constraint(op, "edge", "descriptor %q: %s and %s are not neighbours across %s", desc, e.Tile1ID, e.Tile2ID, s1)
	}
	return e, nil
}

func parseHalf(half string) (Tile, Side, error) {
	id, side, ok := strings.Cut(half, "_")
	if !ok {
		return Tile{}, "", fmt.Errorf("%q: missing _SIDE", half)
	}
	s := Side(strings.ToUpper(side))
	if !s.Valid() {
		return Tile{}, "", fmt.Errorf("%q: unknown side %q", half, side)
	}
	t, err := ParseTileID(id)
	if err != nil {
		return Tile{}, "", err
	}
	return t, s, nil
}

func adjacent(t1 Tile, s1 Side, t2 Tile) bool {
	switch s1 {
	case SideBottom:
		return t2.Row == t1.Row+1 && t2.Col == t1.Col
	case SideTop:
		return t2.Row == t1.Row-1 && t2.Col == t1.Col
	case SideRight:
		return t2.Col == t1.Col+1 && t2.Row == t1.Row
	case SideLeft:
		return t2.Col == t1.Col-1 && t2.Row == t1.Row
	}
	return false
}
