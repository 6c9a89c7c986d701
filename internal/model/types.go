package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Orientation is the axis a gondola system or cable line runs along.
type Orientation string

const (
	OrientationHorizontal Orientation = "horizontal"
	OrientationVertical   Orientation = "vertical"
)

func (o Orientation) Valid() bool {
	switch o {
	case OrientationHorizontal, OrientationVertical:
		return true
	}
	return false
}

// GondolaRole is a settlement's position on its gondola system.
type GondolaRole string

const (
	RoleOrigin   GondolaRole = "origin"
	RolePylon    GondolaRole = "pylon"
	RoleTerminus GondolaRole = "terminus"
)

func (r GondolaRole) Valid() bool {
	switch r {
	case RoleOrigin, RolePylon, RoleTerminus:
		return true
	}
	return false
}

// SpatialType classifies a settlement relative to tile boundaries and gondola membership.
type SpatialType string

const (
	SpatialIsolated          SpatialType = "isolated"
	SpatialInLine            SpatialType = "in-line"
	SpatialBoundaryValidated SpatialType = "boundary-validated"
	SpatialBoundary          SpatialType = "boundary"
	SpatialEdge              SpatialType = "edge"
)

// SpatialTypes lists every classification in summary order.
var SpatialTypes = []SpatialType{
	SpatialIsolated,
	SpatialInLine,
	SpatialBoundaryValidated,
	SpatialBoundary,
	SpatialEdge,
}

func (t SpatialType) Valid() bool {
	switch t {
	case SpatialIsolated, SpatialInLine, SpatialBoundaryValidated, SpatialBoundary, SpatialEdge:
		return true
	}
	return false
}

// Confidence is the detection-confidence tier.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// AnchorKind classifies a stitching anchor.
type AnchorKind string

const (
	AnchorSettlementPair   AnchorKind = "settlement-pair"
	AnchorOrphanSettlement AnchorKind = "orphan-settlement"
	AnchorCableLine        AnchorKind = "cable-line"
)

func (k AnchorKind) Valid() bool {
	switch k {
	case AnchorSettlementPair, AnchorOrphanSettlement, AnchorCableLine:
		return true
	}
	return false
}

// IdentifierScheme tells which naming generation a SystemIdentifier belongs to.
type IdentifierScheme int

const (
	// SchemeNumeric identifiers only carry the legacy system number.
	SchemeNumeric IdentifierScheme = iota + 1
	// SchemeText identifiers carry the GONDOLA_NN text form as well.
	SchemeText
)

// TextPrefix starts every textual gondola identifier.
const TextPrefix = "GONDOLA_"

// SystemIdentifier is the machine identity of a gondola system. The number is
// permanent; the text form is added by the naming migration.
type SystemIdentifier struct {
	Number int    `json:"system_number"`
	Text   string `json:"gondola_system_text,omitempty"`
}

// Scheme reports whether the text form has been assigned.
func (id SystemIdentifier) Scheme() IdentifierScheme {
	if id.Text == "" {
		return SchemeNumeric
	}
	return SchemeText
}

// TextFor returns the textual identifier for number zero-padded to width.
func TextFor(number, width int) string {
	if width < 2 {
		width = 2
	}
	return fmt.Sprintf("%s%0*d", TextPrefix, width, number)
}

// TextWidth is the padding width that keeps every identifier up to maxNumber sortable.
func TextWidth(maxNumber int) int {
	w := len(strconv.Itoa(maxNumber))
	if w < 2 {
		return 2
	}
	return w
}

// Migrate returns the identifier in the textual scheme at the given width.
// The number is kept unchanged.
func (id SystemIdentifier) Migrate(width int) SystemIdentifier {
	return SystemIdentifier{Number: id.Number, Text: TextFor(id.Number, width)}
}

// ParseText extracts the system number from a GONDOLA_NN identifier.
func ParseText(text string) (int, error) {
	digits, ok := strings.CutPrefix(text, TextPrefix)
	if !ok || digits == "" {
		return 0, fmt.Errorf("identifier %q lacks %s prefix", text, TextPrefix)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("identifier %q has non-numeric suffix", text)
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("identifier %q: %w", text, err)
	}
	return n, nil
}

// Consistent reports whether the text form, if any, encodes the same number.
func (id SystemIdentifier) Consistent() bool {
	if id.Text == "" {
		return true
	}
	n, err := ParseText(id.Text)
	return err == nil && n == id.Number && len(id.Text)-len(TextPrefix) >= 2
}

// Endpoint is one end of a gondola system with its terrain sample.
type Endpoint struct {
	TileID      string  `json:"tile_id" yaml:"tile_id"`
	PixelX      int     `json:"pixel_x" yaml:"pixel_x"`
	PixelY      int     `json:"pixel_y" yaml:"pixel_y"`
	Brightness  float64 `json:"brightness" yaml:"brightness"`
	TerrainType string  `json:"terrain_type,omitempty" yaml:"terrain_type,omitempty"`
}

// SameLocation reports whether two endpoints sit on the same pixel of the same tile.
func (e Endpoint) SameLocation(o Endpoint) bool {
	return e.TileID == o.TileID && e.PixelX == o.PixelX && e.PixelY == o.PixelY
}

// GondolaSystem is a cable-transport line from low to high terrain.
type GondolaSystem struct {
	ID              int64            `json:"id"`
	Identifier      SystemIdentifier `json:"identifier"`
	Name            string           `json:"system_name"`
	Origin          Endpoint         `json:"origin"`
	Terminus        Endpoint         `json:"terminus"`
	BrightnessDelta float64          `json:"brightness_delta"`
	Orientation     Orientation      `json:"orientation"`
	StationCount    int              `json:"station_count"`
	TileList        []string         `json:"tile_list"`
}

// TerrainSample is the pixel colour and terrain class under a settlement.
type TerrainSample struct {
	Brightness  *float64 `json:"brightness,omitempty"`
	R           *int     `json:"r,omitempty"`
	G           *int     `json:"g,omitempty"`
	B           *int     `json:"b,omitempty"`
	TerrainType string   `json:"terrain_type,omitempty"`
}

// GondolaMembership places a settlement on a gondola system.
type GondolaMembership struct {
	SystemID int64       `json:"gondola_system_id"`
	Role     GondolaRole `json:"gondola_role"`
	Sequence int         `json:"gondola_sequence"`
}

// Settlement is a detected point of interest.
type Settlement struct {
	ID            int64              `json:"id"`
	SystemName    string             `json:"system_name"`
	DisplayName   string             `json:"display_name,omitempty"`
	Aliases       []string           `json:"aliases,omitempty"`
	Gondola       *GondolaMembership `json:"gondola,omitempty"`
	TileID        string             `json:"tile_id"`
	TileRow       int                `json:"tile_row"`
	TileCol       int                `json:"tile_col"`
	PixelX        int                `json:"pixel_x"`
	PixelY        int                `json:"pixel_y"`
	WorldX        float64            `json:"world_x"`
	WorldZ        float64            `json:"world_z"`
	Elevation     *float64           `json:"elevation,omitempty"`
	Validated     bool               `json:"validated"`
	SpatialType   SpatialType        `json:"spatial_type"`
	EnemyOccupied bool               `json:"enemy_occupied"`
	Confidence    Confidence         `json:"confidence"`
	Terrain       TerrainSample      `json:"terrain"`
}

// SystemID returns the referenced gondola system row id, or 0.
func (s Settlement) SystemID() int64 {
	if s.Gondola == nil {
		return 0
	}
	return s.Gondola.SystemID
}

// CableCarLine is an ordered run of settlements on one tile along one axis.
type CableCarLine struct {
	ID              int64       `json:"id"`
	TileID          string      `json:"tile_id"`
	LineType        Orientation `json:"line_type"`
	AxisCoordinate  int         `json:"axis_coordinate"`
	SettlementCount int         `json:"settlement_count"`
	GondolaSystemID int64       `json:"gondola_system_id,omitempty"`
}

// LineMembership maps a settlement onto a cable line.
type LineMembership struct {
	LineID         int64 `json:"cable_car_line_id"`
	SettlementID   int64 `json:"settlement_id"`
	SequenceNumber int   `json:"sequence_number"`
}

// StitchingAnchor is a cross-tile alignment record.
type StitchingAnchor struct {
	ID              int64      `json:"id"`
	AnchorID        string     `json:"anchor_id"`
	Kind            AnchorKind `json:"anchor_type"`
	Tile1ID         string     `json:"tile1_id"`
	Tile2ID         string     `json:"tile2_id,omitempty"`
	Edge            string     `json:"edge"`
	Settlement1ID   int64      `json:"settlement1_id,omitempty"`
	Settlement2ID   int64      `json:"settlement2_id,omitempty"`
	CableCarLineID  int64      `json:"cable_car_line_id,omitempty"`
	GondolaSystemID int64      `json:"gondola_system_id,omitempty"`
	DistancePixels  *float64   `json:"distance_pixels,omitempty"`
	SettlementCount *int       `json:"settlement_count,omitempty"`
}

// Summary is the registry_summary view.
type Summary struct {
	Total         int                 `json:"total"`
	BySpatialType map[SpatialType]int `json:"by_spatial_type"`
	EnemyOccupied int                 `json:"enemy_occupied"`
}
