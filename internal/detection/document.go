// Package detection reads the output of a detection pass and loads it into
// the registry.
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/store"
	"github.com/Archerevan-01fischb/MW-website/internal/tilegrid"
	"gopkg.in/yaml.v3"
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is one detection pass.
type Document struct {
	GondolaSystems []SystemRecord     `json:"gondola_systems" yaml:"gondola_systems"`
	Settlements    []SettlementRecord `json:"settlements" yaml:"settlements"`
}

type SystemRecord struct {
	SystemNumber    int            `json:"system_number" yaml:"system_number"`
	SystemText      string         `json:"gondola_system_text,omitempty" yaml:"gondola_system_text,omitempty"`
	SystemName      string         `json:"system_name" yaml:"system_name"`
	Origin          model.Endpoint `json:"origin" yaml:"origin"`
	Terminus        model.Endpoint `json:"terminus" yaml:"terminus"`
	BrightnessDelta float64        `json:"brightness_delta" yaml:"brightness_delta"`
	Orientation     string         `json:"orientation" yaml:"orientation"`
	StationCount    int            `json:"station_count" yaml:"station_count"`
	TileList        []string       `json:"tile_list,omitempty" yaml:"tile_list,omitempty"`
}

type TerrainRecord struct {
	Brightness  *float64 `json:"brightness,omitempty" yaml:"brightness,omitempty"`
	R           *int     `json:"r,omitempty" yaml:"r,omitempty"`
	G           *int     `json:"g,omitempty" yaml:"g,omitempty"`
	B           *int     `json:"b,omitempty" yaml:"b,omitempty"`
	TerrainType string   `json:"terrain_type,omitempty" yaml:"terrain_type,omitempty"`
}

type SettlementRecord struct {
	SystemName    string        `json:"system_name" yaml:"system_name"`
	DisplayName   string        `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Aliases       []string      `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	TileID        string        `json:"tile_id" yaml:"tile_id"`
	PixelX        int           `json:"pixel_x" yaml:"pixel_x"`
	PixelY        int           `json:"pixel_y" yaml:"pixel_y"`
	Elevation     *float64      `json:"elevation,omitempty" yaml:"elevation,omitempty"`
	Validated     bool          `json:"validated" yaml:"validated"`
	SpatialType   string        `json:"spatial_type" yaml:"spatial_type"`
	EnemyOccupied bool          `json:"enemy_occupied" yaml:"enemy_occupied"`
	Confidence    string        `json:"confidence" yaml:"confidence"`
	Terrain       TerrainRecord `json:"terrain" yaml:"terrain"`

	GondolaSystemNumber int    `json:"gondola_system_number,omitempty" yaml:"gondola_system_number,omitempty"`
	GondolaRole         string `json:"gondola_role,omitempty" yaml:"gondola_role,omitempty"`
	GondolaSequence     *int   `json:"gondola_sequence,omitempty" yaml:"gondola_sequence,omitempty"`
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported detection file %q: want .json, .yaml or .yml", path)
}

// Decode reads a document. Unknown fields are rejected so that a misspelt
// attribute does not silently load as its zero value.
func Decode(r io.Reader, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return &doc, nil
}

// ReadFile decodes the document at path, choosing the format by extension.
func ReadFile(path string) (*Document, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Decode(bytes.NewReader(data), format)
}

// Batch converts the document into store rows, deriving tile row and column
// and world coordinates from grid.
func (d *Document) Batch(grid tilegrid.Grid) (store.LoadBatch, error) {
	const op = "detection batch"
	if err := grid.Validate(); err != nil {
		return store.LoadBatch{}, err
	}
	var b store.LoadBatch

	for _, rec := range d.GondolaSystems {
		for _, ep := range []model.Endpoint{rec.Origin, rec.Terminus} {
			if !grid.Contains(ep.PixelX, ep.PixelY) {
				return store.LoadBatch{}, model.Constraint(op, "gondola_systems", "system %d: endpoint (%d,%d) is outside a %dx%d tile",
					rec.SystemNumber, ep.PixelX, ep.PixelY, grid.TileWidth, grid.TileHeight)
			}
		}
		b.Systems = append(b.Systems, model.GondolaSystem{
			Identifier:      model.SystemIdentifier{Number: rec.SystemNumber, Text: rec.SystemText},
			Name:            rec.SystemName,
			Origin:          rec.Origin,
			Terminus:        rec.Terminus,
			BrightnessDelta: rec.BrightnessDelta,
			Orientation:     model.Orientation(rec.Orientation),
			StationCount:    rec.StationCount,
			TileList:        rec.TileList,
		})
	}

	for _, rec := range d.Settlements {
		tile, err := tilegrid.ParseTileID(rec.TileID)
		if err != nil {
			return store.LoadBatch{}, model.Constraint(op, "settlements", "settlement %q: %v", rec.SystemName, err)
		}
		if !grid.Contains(rec.PixelX, rec.PixelY) {
			return store.LoadBatch{}, model.Constraint(op, "settlements", "settlement %q: pixel (%d,%d) is outside a %dx%d tile",
				rec.SystemName, rec.PixelX, rec.PixelY, grid.TileWidth, grid.TileHeight)
		}
		wx, wz := grid.World(tile, rec.PixelX, rec.PixelY)
		st := model.Settlement{
			SystemName:    rec.SystemName,
			DisplayName:   rec.DisplayName,
			Aliases:       rec.Aliases,
			TileID:        tile.ID(),
			TileRow:       tile.Row,
			TileCol:       tile.Col,
			PixelX:        rec.PixelX,
			PixelY:        rec.PixelY,
			WorldX:        wx,
			WorldZ:        wz,
			Elevation:     rec.Elevation,
			Validated:     rec.Validated,
			SpatialType:   model.SpatialType(rec.SpatialType),
			EnemyOccupied: rec.EnemyOccupied,
			Confidence:    model.Confidence(rec.Confidence),
			Terrain: model.TerrainSample{
				Brightness:  rec.Terrain.Brightness,
				R:           rec.Terrain.R,
				G:           rec.Terrain.G,
				B:           rec.Terrain.B,
				TerrainType: rec.Terrain.TerrainType,
			},
		}

		hasRole := rec.GondolaRole != "" || rec.GondolaSequence != nil
		switch {
		case rec.GondolaSystemNumber != 0 && hasRole:
			if rec.GondolaSequence == nil {
				return store.LoadBatch{}, model.Constraint(op, "settlements", "settlement %q: gondola_sequence is required with a role", rec.SystemName)
			}
			st.Gondola = &model.GondolaMembership{Role: model.GondolaRole(rec.GondolaRole), Sequence: *rec.GondolaSequence}
		case rec.GondolaSystemNumber != 0 || hasRole:
			return store.LoadBatch{}, model.Constraint(op, "settlements", "settlement %q: gondola_system_number, gondola_role and gondola_sequence go together", rec.SystemName)
		}
		b.Settlements = append(b.Settlements, store.LoadSettlement{Settlement: st, SystemNumber: rec.GondolaSystemNumber})
	}
	return b, nil
}

// Loader writes detection documents into a store.
type Loader struct {
	Store *store.Store
	Grid  tilegrid.Grid
	Log   *slog.Logger
}

// Load writes the whole document in one transaction. Nothing is written if
// any record is rejected.
func (l *Loader) Load(ctx context.Context, doc *Document) (*store.LoadResult, error) {
	b, err := doc.Batch(l.Grid)
	if err != nil {
		return nil, err
	}
	res, err := l.Store.Load(ctx, b)
	if err != nil {
		return nil, err
	}
	if l.Log != nil {
		l.Log.Info("detection loaded", "systems", len(b.Systems), "settlements", len(b.Settlements))
	}
	return res, nil
}
